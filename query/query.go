// Package query derives read-only views from a task collection snapshot.
// Every function is pure: input order is preserved and the input slice is
// never mutated, so snapshots can be queried concurrently from anywhere.
package query

import (
	"math"
	"strings"
	"time"

	"github.com/sujal03/ProtonHub-TaskManger/domain"
)

// DueSoonWindow is the inclusive range ahead of "now" that flags a task as
// due soon.
const DueSoonWindow = 7 * 24 * time.Hour

// ByCategory keeps tasks in the given category.
func ByCategory(tasks []domain.Task, category domain.Category) []domain.Task {
	return filter(tasks, func(t domain.Task) bool { return t.Category == category })
}

// ByPriority keeps tasks with the given priority.
func ByPriority(tasks []domain.Task, priority domain.Priority) []domain.Task {
	return filter(tasks, func(t domain.Task) bool { return t.Priority == priority })
}

// Completed keeps finished tasks.
func Completed(tasks []domain.Task) []domain.Task {
	return filter(tasks, func(t domain.Task) bool { return t.Completed })
}

// Active keeps unfinished tasks. Together with Completed it partitions the
// collection: every task lands in exactly one of the two.
func Active(tasks []domain.Task) []domain.Task {
	return filter(tasks, func(t domain.Task) bool { return !t.Completed })
}

// DueSoon keeps active tasks whose due date falls within [now, now+7d],
// inclusive of both bounds. Tasks without a due date are excluded, and
// completed tasks are excluded regardless of due date.
func DueSoon(tasks []domain.Task, now time.Time) []domain.Task {
	limit := now.Add(DueSoonWindow)
	return filter(tasks, func(t domain.Task) bool {
		if t.Completed || t.DueDate == nil {
			return false
		}
		return !t.DueDate.Before(now) && !t.DueDate.After(limit)
	})
}

// Search keeps tasks whose title or description contains the term,
// case-insensitively. An empty term matches everything.
func Search(tasks []domain.Task, term string) []domain.Task {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return tasks
	}
	return filter(tasks, func(t domain.Task) bool {
		if strings.Contains(strings.ToLower(t.Title), term) {
			return true
		}
		return t.Description != "" && strings.Contains(strings.ToLower(t.Description), term)
	})
}

// CompletionRate reports the share of completed tasks as a rounded percent,
// zero for an empty collection.
func CompletionRate(tasks []domain.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Completed {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(tasks))))
}

func filter(tasks []domain.Task, keep func(domain.Task) bool) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
