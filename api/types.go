package api

import (
	"context"

	"github.com/sujal03/ProtonHub-TaskManger/domain"
	"github.com/sujal03/ProtonHub-TaskManger/taskstore"
)

// TaskStore is the per-user authoritative collection the handlers drive.
type TaskStore interface {
	Load(ctx context.Context) error
	Snapshot() []domain.Task
	Create(ctx context.Context, d taskstore.Draft) (domain.Task, error)
	Update(ctx context.Context, task domain.Task) error
	Delete(ctx context.Context, id string) error
	ToggleCompletion(ctx context.Context, id string) error
}

// Stores resolves the task store behind each authenticated request and
// releases it again on sign-out.
type Stores interface {
	ForUser(ctx context.Context, userID string) (TaskStore, error)
	SignOut(userID string)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
