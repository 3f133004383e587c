package domain

import (
	"testing"
	"time"
)

func TestParamsKeyDeterministic(t *testing.T) {
	t.Parallel()

	a := ParamsKey(map[string]string{"endpoint": "http://x/jobs", "method": "POST"})
	b := ParamsKey(map[string]string{"method": "POST", "endpoint": "http://x/jobs"})
	if a != b {
		t.Fatalf("expected deterministic key, got %q and %q", a, b)
	}
	if c := ParamsKey(map[string]string{"endpoint": "http://x/jobs", "method": "PUT"}); c == a {
		t.Fatalf("different params must produce different keys")
	}
}

func TestStateSortPriority(t *testing.T) {
	t.Parallel()

	states := States()
	if states[0] != StateFailed || states[len(states)-1] != StateSucceeded {
		t.Fatalf("unexpected order %v", states)
	}
	for index, state := range states {
		if state.SortPriority() != index {
			t.Fatalf("state %s priority %d, want %d", state, state.SortPriority(), index)
		}
	}
	if _, err := ParseState("BOGUS"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSourceLocationCompare(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := SourceLocation{File: "a.rules", Line: 3, Column: 1, Time: base}
	b := SourceLocation{File: "a.rules", Line: 3, Column: 2, Time: base}
	c := SourceLocation{File: "b.rules", Line: 1, Column: 1, Time: base}
	d := SourceLocation{File: "a.rules", Line: 3, Column: 1, Time: base.Add(time.Second)}

	if a.Compare(b) >= 0 || b.Compare(c) >= 0 || a.Compare(d) >= 0 {
		t.Fatalf("unexpected ordering")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("location must equal itself")
	}
	if a.Key() != (SourceLocation{File: "a.rules", Line: 3, Column: 1, Time: base.In(time.FixedZone("x", 3600))}).Key() {
		t.Fatalf("same instant in another zone must share key")
	}
}
