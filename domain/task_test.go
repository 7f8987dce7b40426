package domain

import "testing"

func TestParsePriorityFallback(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{in: "low", want: PriorityLow},
		{in: "medium", want: PriorityMedium},
		{in: "high", want: PriorityHigh},
		{in: "", want: PriorityMedium},
		{in: "urgent", want: PriorityMedium},
		{in: "HIGH", want: PriorityMedium},
	}
	for _, tt := range tests {
		if got := ParsePriority(tt.in); got != tt.want {
			t.Fatalf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCategoryFallback(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{in: "work", want: CategoryWork},
		{in: "personal", want: CategoryPersonal},
		{in: "shopping", want: CategoryShopping},
		{in: "health", want: CategoryHealth},
		{in: "other", want: CategoryOther},
		{in: "", want: CategoryOther},
		{in: "chores", want: CategoryOther},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Fatalf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
