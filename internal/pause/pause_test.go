package pause

import (
	"testing"

	"actiond/internal/domain"
)

func TestPauseResume(t *testing.T) {
	t.Parallel()

	r := New()
	a := domain.SourceLocation{File: "a.rules", Line: 2, Column: 1}
	b := domain.SourceLocation{File: "b.rules", Line: 9, Column: 4}

	r.Pause(b)
	r.Pause(a)
	r.Pause(a)
	if !r.IsPaused(a) || !r.AnyPaused([]domain.SourceLocation{{File: "x"}, b}) {
		t.Fatalf("expected paused locations to be reported")
	}
	if got := r.Pauses(); len(got) != 2 || got[0] != a {
		t.Fatalf("unexpected pauses %+v", got)
	}

	r.Resume(a)
	r.Resume(domain.SourceLocation{File: "never"})
	if r.IsPaused(a) || len(r.Pauses()) != 1 {
		t.Fatalf("resume did not lift pause")
	}
}
