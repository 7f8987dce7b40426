// Package taskstore owns the authoritative task collection for each
// signed-in user and synchronizes it with a row backend through the schema
// codec.
package taskstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sujal03/ProtonHub-TaskManger/domain"
	"github.com/sujal03/ProtonHub-TaskManger/schema"
)

// Backend is the persistence collaborator: a row-oriented store scoped by an
// opaque user id. Implementations handle transport, retries and timeouts;
// the store treats any returned error as terminal for that call.
type Backend interface {
	ListRows(ctx context.Context, userID string) ([]schema.Row, error)
	InsertRow(ctx context.Context, userID string, row schema.Row) (schema.Row, error)
	UpdateRow(ctx context.Context, userID string, row schema.Row) error
	DeleteRow(ctx context.Context, userID, id string) error
}

// Notifier publishes change events after successful mutations. Delivery is
// best effort; the store never fails a mutation on a notify error.
type Notifier interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

// Draft carries caller-supplied fields for a new task.
type Draft struct {
	Title       string
	Description string
	Priority    domain.Priority
	Category    domain.Category
	DueDate     *time.Time
}

// Store owns the authoritative task collection for one signed-in user.
//
// Remote round trips may overlap, but the step that replaces the collection
// runs under the mutex in response-arrival order. Concurrent writes to the
// same task therefore resolve last-writer-wins; callers needing stricter
// ordering must serialize their own calls.
type Store struct {
	backend Backend
	notify  Notifier
	logger  *log.Logger
	userID  string

	mu     sync.Mutex
	gen    uint64
	closed bool
	tasks  []domain.Task
}

// New creates a Store bound to one user's partition. notify may be nil.
func New(backend Backend, userID string, notify Notifier, logger *log.Logger) *Store {
	if backend == nil {
		panic("taskstore.New: backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{backend: backend, notify: notify, logger: logger, userID: userID}
}

// UserID returns the identity this store is bound to.
func (s *Store) UserID() string { return s.userID }

// Close discards the collection and rejects further operations. A load in
// flight when Close is called has its result dropped, so one user's tasks
// never leak into the next session's view.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gen++
	s.tasks = nil
}

func (s *Store) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAuthRequired
	}
	return nil
}

// Load fetches the user's rows, decodes them and replaces the collection
// atomically, newest first. Rows with equal timestamps keep the
// backend-returned order.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAuthRequired
	}
	gen := s.gen
	s.mu.Unlock()

	rows, err := s.backend.ListRows(ctx, s.userID)
	if err != nil {
		return &RemoteError{Op: "load tasks", Err: err}
	}
	tasks := make([]domain.Task, len(rows))
	for i, r := range rows {
		tasks[i] = schema.Decode(r)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		// Identity changed while the fetch was in flight.
		return nil
	}
	s.tasks = tasks
	return nil
}

// Snapshot returns a copy of the authoritative collection for the query
// layer. The returned slice never aliases the store's own state.
func (s *Store) Snapshot() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Create validates the draft, persists it and returns the task with its
// server-assigned id. The collection is refreshed on success; on failure it
// is left untouched.
func (s *Store) Create(ctx context.Context, d Draft) (domain.Task, error) {
	if err := s.guard(); err != nil {
		return domain.Task{}, err
	}
	if strings.TrimSpace(d.Title) == "" {
		return domain.Task{}, &ValidationError{Field: "title", Err: errEmptyTitle}
	}
	if d.Priority == "" {
		d.Priority = domain.PriorityMedium
	}
	if d.Category == "" {
		d.Category = domain.CategoryOther
	}

	task := domain.Task{
		Title:       d.Title,
		Description: d.Description,
		Completed:   false,
		Priority:    d.Priority,
		Category:    d.Category,
		DueDate:     d.DueDate,
	}
	stored, err := s.backend.InsertRow(ctx, s.userID, schema.Encode(task))
	if err != nil {
		return domain.Task{}, &RemoteError{Op: "create task", Err: err}
	}
	created := schema.Decode(stored)

	s.mu.Lock()
	if !s.closed {
		s.tasks = append([]domain.Task{created}, s.tasks...)
	}
	s.mu.Unlock()

	s.refresh(ctx, "create")
	s.publish(ctx, created.ID, domain.ChangeCreated)
	return created, nil
}

// Update persists the full task. The id must already exist in the
// authoritative collection.
func (s *Store) Update(ctx context.Context, task domain.Task) error {
	if err := s.guard(); err != nil {
		return err
	}
	if strings.TrimSpace(task.Title) == "" {
		return &ValidationError{Field: "title", Err: errEmptyTitle}
	}
	existing, ok := s.find(task.ID)
	if !ok {
		return &ValidationError{Field: "id", Err: ErrNotFound}
	}
	task.CreatedAt = existing.CreatedAt
	// Cosmetic until the next load; the remote schema has no independent
	// last-modified column.
	task.UpdatedAt = time.Now().UTC()

	if err := s.backend.UpdateRow(ctx, s.userID, schema.Encode(task)); err != nil {
		return &RemoteError{Op: "update task", Err: err}
	}

	s.mu.Lock()
	if !s.closed {
		for i := range s.tasks {
			if s.tasks[i].ID == task.ID {
				s.tasks[i] = task
				break
			}
		}
	}
	s.mu.Unlock()

	s.refresh(ctx, "update")
	s.publish(ctx, task.ID, domain.ChangeUpdated)
	return nil
}

// ToggleCompletion flips the completed flag of the given task and persists
// it. All other fields are preserved verbatim.
func (s *Store) ToggleCompletion(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}
	task, ok := s.find(id)
	if !ok {
		return &ValidationError{Field: "id", Err: ErrNotFound}
	}
	task.Completed = !task.Completed
	return s.Update(ctx, task)
}

// Delete removes the task remotely and from the authoritative collection.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if _, ok := s.find(id); !ok {
		return &ValidationError{Field: "id", Err: ErrNotFound}
	}
	if err := s.backend.DeleteRow(ctx, s.userID, id); err != nil {
		return &RemoteError{Op: "delete task", Err: err}
	}

	s.mu.Lock()
	if !s.closed {
		for i := range s.tasks {
			if s.tasks[i].ID == id {
				s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	s.publish(ctx, id, domain.ChangeDeleted)
	return nil
}

func (s *Store) find(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// refresh reloads after a successful write. The write itself already
// succeeded, so a failed reload only logs: the collection keeps the locally
// merged result until the next load reconciles it.
func (s *Store) refresh(ctx context.Context, op string) {
	if err := s.Load(ctx); err != nil {
		s.logger.WithError(err).WithField("op", op).Warn("refresh after mutation failed")
	}
}

func (s *Store) publish(ctx context.Context, id string, action domain.ChangeAction) {
	if s.notify == nil {
		return
	}
	ev := domain.ChangeEvent{
		UserID:    s.userID,
		TaskID:    id,
		Action:    action,
		Timestamp: time.Now().UnixNano(),
	}
	if err := s.notify.PublishChange(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("task", id).Warn("change event not published")
	}
}
