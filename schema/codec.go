// Package schema translates between the canonical task model and the
// constrained remote row shape. The remote table has no category column and
// no last-modified column; category travels packed inside the priority field
// and UpdatedAt is approximated on decode. All packing and unpacking happens
// here and nowhere else.
package schema

import (
	"strings"
	"time"

	"github.com/sujal03/ProtonHub-TaskManger/domain"
)

// Status values the remote schema stores for a task.
const (
	StatusCompleted = "completed"
	StatusActive    = "active"
)

const packSeparator = ":"

// Row mirrors the remote table columns. Priority carries both the priority
// and the category, packed as "<priority>:<category>".
type Row struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Decode maps a remote row onto the canonical model. A malformed or missing
// packed priority decodes to the defaults rather than failing. The remote
// schema carries no last-modified column, so UpdatedAt is set to CreatedAt;
// callers must treat it as an approximation until the schema grows a real
// column.
func Decode(r Row) domain.Task {
	priority, category := Unpack(r.Priority)
	return domain.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Status == StatusCompleted,
		Priority:    priority,
		Category:    category,
		DueDate:     r.DueDate,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.CreatedAt,
	}
}

// Encode produces the row persisted remotely. The category is never emitted
// on its own; the remote schema has no such column, so it always travels
// inside the packed priority field.
func Encode(t domain.Task) Row {
	status := StatusActive
	if t.Completed {
		status = StatusCompleted
	}
	return Row{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      status,
		Priority:    Pack(t.Priority, t.Category),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
	}
}

// Pack joins priority and category into the overloaded remote field.
func Pack(p domain.Priority, c domain.Category) string {
	return string(p) + packSeparator + string(c)
}

// Unpack splits the overloaded field on the first separator. The left segment
// becomes the priority, the right the category; an absent segment falls back
// to the respective default.
func Unpack(packed string) (domain.Priority, domain.Category) {
	if packed == "" {
		return domain.PriorityMedium, domain.CategoryOther
	}
	left, right, found := strings.Cut(packed, packSeparator)
	priority := domain.ParsePriority(left)
	if !found {
		return priority, domain.CategoryOther
	}
	return priority, domain.ParseCategory(right)
}
