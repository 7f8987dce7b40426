package domain

// ChangeAction identifies what happened to a task.
type ChangeAction string

const (
	ChangeCreated ChangeAction = "created"
	ChangeUpdated ChangeAction = "updated"
	ChangeDeleted ChangeAction = "deleted"
)

// ChangeEvent notifies downstream consumers that a user's collection changed.
type ChangeEvent struct {
	UserID    string       `json:"userId"`
	TaskID    string       `json:"taskId"`
	Action    ChangeAction `json:"action"`
	Timestamp int64        `json:"timestamp"`
}
