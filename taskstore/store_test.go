package taskstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sujal03/ProtonHub-TaskManger/domain"
	"github.com/sujal03/ProtonHub-TaskManger/query"
	"github.com/sujal03/ProtonHub-TaskManger/schema"
)

var baseTime = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type mockBackend struct {
	mu   sync.Mutex
	rows []schema.Row
	seq  int

	listErr   error
	insertErr error
	updateErr error
	deleteErr error

	// When set, ListRows signals listStarted and blocks until the gate is
	// closed.
	listGate    chan struct{}
	listStarted chan struct{}

	listCalls int
}

func (m *mockBackend) ListRows(ctx context.Context, userID string) ([]schema.Row, error) {
	if m.listGate != nil {
		if m.listStarted != nil {
			m.listStarted <- struct{}{}
		}
		<-m.listGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []schema.Row{}
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockBackend) InsertRow(ctx context.Context, userID string, row schema.Row) (schema.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return schema.Row{}, m.insertErr
	}
	m.seq++
	row.ID = fmt.Sprintf("task-%d", m.seq)
	row.UserID = userID
	row.CreatedAt = baseTime.Add(time.Duration(m.seq) * time.Minute)
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *mockBackend) UpdateRow(ctx context.Context, userID string, row schema.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.rows {
		if m.rows[i].ID == row.ID && m.rows[i].UserID == userID {
			row.UserID = userID
			m.rows[i] = row
			return nil
		}
	}
	return fmt.Errorf("no such row %s", row.ID)
}

func (m *mockBackend) DeleteRow(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no such row %s", id)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (n *recordingNotifier) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) actions() []domain.ChangeAction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ChangeAction, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Action
	}
	return out
}

func TestCreateEndToEnd(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	store := New(backend, "u1", nil, nil)

	created, err := store.Create(ctx, Draft{
		Title:    "Pay rent",
		Priority: domain.PriorityHigh,
		Category: domain.CategoryPersonal,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("create did not return the server-assigned id")
	}

	backend.mu.Lock()
	row := backend.rows[0]
	backend.mu.Unlock()
	if row.Priority != "high:personal" {
		t.Fatalf("persisted packed priority = %q, want high:personal", row.Priority)
	}
	if row.Status != schema.StatusActive {
		t.Fatalf("persisted status = %q, want active", row.Status)
	}

	tasks := store.Snapshot()
	if len(tasks) != 1 {
		t.Fatalf("snapshot has %d tasks, want 1", len(tasks))
	}
	got := tasks[0]
	if got.Priority != domain.PriorityHigh || got.Category != domain.CategoryPersonal || got.Completed {
		t.Fatalf("decoded task wrong: %+v", got)
	}
	if len(query.ByPriority(tasks, domain.PriorityHigh)) != 1 {
		t.Fatal("ByPriority(high) should include the new task")
	}
	if len(query.Active(tasks)) != 1 {
		t.Fatal("Active should include the new task")
	}
	if len(query.Completed(tasks)) != 0 {
		t.Fatal("Completed should exclude the new task")
	}
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	store := New(backend, "u1", nil, nil)

	if _, err := store.Create(ctx, Draft{Title: "   "}); err == nil {
		t.Fatal("expected validation error for empty title")
	} else {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %T", err)
		}
	}
	backend.mu.Lock()
	inserted := len(backend.rows)
	backend.mu.Unlock()
	if inserted != 0 {
		t.Fatal("validation failure must not reach the backend")
	}

	created, err := store.Create(ctx, Draft{Title: "Untitled draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Priority != domain.PriorityMedium || created.Category != domain.CategoryOther {
		t.Fatalf("defaults not applied: %+v", created)
	}
}

func TestCreateFailureLeavesCollectionUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	store := New(backend, "u1", nil, nil)
	if _, err := store.Create(ctx, Draft{Title: "existing"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := store.Snapshot()

	backend.mu.Lock()
	backend.insertErr = errors.New("remote down")
	backend.mu.Unlock()

	_, err := store.Create(ctx, Draft{Title: "new one"})
	var rerr *RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	after := store.Snapshot()
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Fatalf("failed create changed the collection: %+v -> %+v", before, after)
	}
}

func TestUpdateFailureLeavesCollectionUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	store := New(backend, "u1", nil, nil)
	created, err := store.Create(ctx, Draft{Title: "Pay rent", Description: "before the 5th"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := store.Snapshot()

	backend.mu.Lock()
	backend.updateErr = errors.New("remote down")
	backend.mu.Unlock()

	changed := created
	changed.Title = "Pay rent late"
	err = store.Update(ctx, changed)
	var rerr *RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	after := store.Snapshot()
	if after[0].Title != before[0].Title {
		t.Fatalf("failed update changed the collection: %q -> %q", before[0].Title, after[0].Title)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	ctx := context.Background()
	store := New(&mockBackend{}, "u1", nil, nil)
	err := store.Update(ctx, domain.Task{ID: "ghost", Title: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError wrapper, got %T", err)
	}
}

func TestTogglePreservesFields(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	store := New(backend, "u1", nil, nil)
	due := baseTime.Add(48 * time.Hour)
	created, err := store.Create(ctx, Draft{
		Title:       "Dentist",
		Description: "ask about the molar",
		Priority:    domain.PriorityLow,
		Category:    domain.CategoryHealth,
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.ToggleCompletion(ctx, created.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	got := store.Snapshot()[0]
	if !got.Completed {
		t.Fatal("toggle did not flip completed")
	}
	if got.Title != created.Title || got.Description != created.Description {
		t.Fatalf("toggle altered text fields: %+v", got)
	}
	if got.Priority != created.Priority || got.Category != created.Category {
		t.Fatalf("toggle altered priority/category: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("toggle altered due date: %v", got.DueDate)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("toggle altered CreatedAt: %v", got.CreatedAt)
	}

	if err := store.ToggleCompletion(ctx, created.ID); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if store.Snapshot()[0].Completed {
		t.Fatal("second toggle did not flip back")
	}
}

func TestToggleUnknownID(t *testing.T) {
	store := New(&mockBackend{}, "u1", nil, nil)
	if err := store.ToggleCompletion(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesFromCollection(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	store := New(backend, "u1", nil, nil)
	created, err := store.Create(ctx, Draft{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.Snapshot()) != 0 {
		t.Fatal("delete left the task in the collection")
	}
	if err := store.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLoadOrdersNewestFirstKeepingTies(t *testing.T) {
	ctx := context.Background()
	tie := baseTime.Add(time.Hour)
	backend := &mockBackend{rows: []schema.Row{
		{ID: "old", UserID: "u1", Title: "old", CreatedAt: baseTime},
		{ID: "tie-a", UserID: "u1", Title: "a", CreatedAt: tie},
		{ID: "tie-b", UserID: "u1", Title: "b", CreatedAt: tie},
		{ID: "other-user", UserID: "u2", Title: "not mine", CreatedAt: tie},
	}}
	store := New(backend, "u1", nil, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	tasks := store.Snapshot()
	if len(tasks) != 3 {
		t.Fatalf("loaded %d tasks, want 3", len(tasks))
	}
	if tasks[0].ID != "tie-a" || tasks[1].ID != "tie-b" || tasks[2].ID != "old" {
		t.Fatalf("unexpected order: %s, %s, %s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}

func TestCloseDiscardsInFlightLoad(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	backend := &mockBackend{
		rows:        []schema.Row{{ID: "t1", UserID: "u1", Title: "secret", CreatedAt: baseTime}},
		listGate:    gate,
		listStarted: started,
	}
	store := New(backend, "u1", nil, nil)

	done := make(chan error, 1)
	go func() { done <- store.Load(context.Background()) }()

	<-started
	store.Close()
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("discarded load should not error, got %v", err)
	}
	if tasks := store.Snapshot(); len(tasks) != 0 {
		t.Fatalf("stale load leaked tasks into a closed store: %+v", tasks)
	}
	if err := store.Load(context.Background()); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("closed store should reject load, got %v", err)
	}
	if _, err := store.Create(context.Background(), Draft{Title: "x"}); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("closed store should reject create, got %v", err)
	}
}

func TestMutationsPublishChangeEvents(t *testing.T) {
	ctx := context.Background()
	notify := &recordingNotifier{}
	store := New(&mockBackend{}, "u1", notify, nil)

	created, err := store.Create(ctx, Draft{Title: "Pay rent"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.ToggleCompletion(ctx, created.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []domain.ChangeAction{domain.ChangeCreated, domain.ChangeUpdated, domain.ChangeDeleted}
	got := notify.actions()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("published %v, want %v", got, want)
		}
	}
	for _, ev := range notify.events {
		if ev.UserID != "u1" || ev.TaskID != created.ID {
			t.Fatalf("event not scoped to user/task: %+v", ev)
		}
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	mgr := NewManager(backend, nil, nil)

	if _, err := mgr.ForUser(ctx, ""); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("empty identity should be rejected, got %v", err)
	}

	st, err := mgr.ForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	again, err := mgr.ForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("for user again: %v", err)
	}
	if st != again {
		t.Fatal("manager should reuse the store for the same identity")
	}

	mgr.SignOut("u1")
	if err := st.Load(ctx); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("store should be closed after sign-out, got %v", err)
	}
	fresh, err := mgr.ForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("for user after sign-out: %v", err)
	}
	if fresh == st {
		t.Fatal("sign-out should drop the old store")
	}
}

func TestManagerInitialLoadFailureRetries(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{listErr: errors.New("remote down")}
	mgr := NewManager(backend, nil, nil)

	if _, err := mgr.ForUser(ctx, "u1"); err == nil {
		t.Fatal("expected initial load failure to surface")
	}

	backend.mu.Lock()
	backend.listErr = nil
	backend.mu.Unlock()

	if _, err := mgr.ForUser(ctx, "u1"); err != nil {
		t.Fatalf("retry after failed initial load: %v", err)
	}
}
