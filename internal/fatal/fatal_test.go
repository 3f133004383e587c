package fatal

import (
	"errors"
	"fmt"
	"testing"
)

func TestMarkAndIs(t *testing.T) {
	t.Parallel()

	root := errors.New("heap corrupted")
	err := fmt.Errorf("tick: %w", Mark(root))
	if !Is(err) {
		t.Fatalf("expected wrapped fatal marker to be detected")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected root cause to stay reachable")
	}
	if Is(root) {
		t.Fatalf("plain error must not be fatal")
	}
	if Mark(nil) != nil || Is(nil) {
		t.Fatalf("nil must stay nil")
	}
}
