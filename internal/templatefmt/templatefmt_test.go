package templatefmt

import (
	"testing"

	"actiond/internal/domain"
)

func TestLinkerRendersLocation(t *testing.T) {
	t.Parallel()

	linker, err := NewLinker("https://git.example/blob/main/{{ pathEscape .File }}#L{{ .Line }}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := linker.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	got := linker.Link(domain.SourceLocation{File: "ops/jobs rules", Line: 12, Column: 3})
	if got != "https://git.example/blob/main/ops%2Fjobs%20rules#L12" {
		t.Fatalf("unexpected link %q", got)
	}

	var none *Linker
	if none.Link(domain.SourceLocation{File: "x"}) != "" {
		t.Fatalf("nil linker must render empty link")
	}
}

func TestLinkerRejectsBadTemplate(t *testing.T) {
	t.Parallel()

	if _, err := NewLinker("{{ .File "); err == nil {
		t.Fatalf("expected parse error")
	}
	linker, err := NewLinker("{{ .Missing }}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if linker.Check() == nil {
		t.Fatalf("expected render error for unknown field")
	}
}
