package db

import "testing"

func TestPriorityForUrgency(t *testing.T) {
	t.Parallel()

	cases := []struct {
		urgency string
		want    int
	}{
		{"high", 1},
		{"medium", 2},
		{"low", 3},
	}
	for _, tc := range cases {
		got, err := PriorityForUrgency(tc.urgency)
		if err != nil {
			t.Fatalf("PriorityForUrgency(%q): %v", tc.urgency, err)
		}
		if got != tc.want {
			t.Fatalf("PriorityForUrgency(%q) = %d, want %d", tc.urgency, got, tc.want)
		}
	}

	// Unknown urgencies must error, never default to a priority.
	for _, urgency := range []string{"", "urgent", "HIGH", "critical"} {
		if _, err := PriorityForUrgency(urgency); err == nil {
			t.Fatalf("expected error for urgency %q", urgency)
		}
	}
}
