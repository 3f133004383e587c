package templatefmt

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"actiond/internal/domain"
)

// FuncMap returns shared link template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"pathEscape":  url.PathEscape,
		"queryEscape": url.QueryEscape,
		"json":        MarshalJSON,
	}
}

// Linker renders source locations into links.
type Linker struct {
	tmpl *template.Template
}

// NewLinker parses link template with shared helpers.
// Params: template body over domain.SourceLocation fields.
// Returns: linker or parse error.
func NewLinker(body string) (*Linker, error) {
	tmpl, err := template.New("source_url").Funcs(FuncMap()).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, err
	}
	return &Linker{tmpl: tmpl}, nil
}

// Link renders one location.
// Params: source location.
// Returns: link text, or "" for nil linker or render failure.
func (l *Linker) Link(location domain.SourceLocation) string {
	if l == nil {
		return ""
	}
	var out strings.Builder
	if err := l.tmpl.Execute(&out, location); err != nil {
		return ""
	}
	return out.String()
}

// Check renders a sample location to surface execution errors early.
// Params: none.
// Returns: render error.
func (l *Linker) Check() error {
	var out strings.Builder
	if err := l.tmpl.Execute(&out, domain.SourceLocation{File: "check.rules", Line: 1, Column: 1}); err != nil {
		return fmt.Errorf("render source link: %w", err)
	}
	return nil
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
