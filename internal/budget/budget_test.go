package budget

import (
	"strings"
	"testing"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_Heuristic_MatchesEstimate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("word ", 50)
	if got, want := (Heuristic{}).Count(s), Estimate(s); got != want {
		t.Errorf("Heuristic.Count = %d, want %d", got, want)
	}
}

func Test_Check(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		prompt   string
		max      int
		wantOver bool
	}{
		{"under budget", strings.Repeat("x", 40), 20, false},
		{"exactly at budget", strings.Repeat("x", 80), 20, false},
		{"over budget", strings.Repeat("x", 84), 20, true},
		{"disabled", strings.Repeat("x", 4000), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u := Check(Heuristic{}, tc.prompt, tc.max)
			if u.Over() != tc.wantOver {
				t.Errorf("Check(%d chars, %d).Over() = %v, want %v", len(tc.prompt), tc.max, u.Over(), tc.wantOver)
			}
			if u.Max != tc.max {
				t.Errorf("Usage.Max = %d, want %d", u.Max, tc.max)
			}
		})
	}
}

func Test_Check_NilCounterUsesHeuristic(t *testing.T) {
	t.Parallel()
	u := Check(nil, "abcdefgh", 10)
	if u.Tokens != 2 {
		t.Errorf("Tokens = %d, want 2", u.Tokens)
	}
}
