// Package template wraps the template engine behind the narrow render
// contract the pipeline needs. Conditions and metadata values are plain
// text templates evaluated against per-notification bindings; the pipeline
// never interprets template syntax itself.
package template

import (
	"fmt"
	"strings"
	texttemplate "text/template"
)

// Renderer renders a template against a set of bindings. Implementations
// must be side-effect free and safe for concurrent use.
type Renderer interface {
	Render(tmpl string, bindings map[string]any) (string, error)
}

// TextRenderer is the default Renderer backed by text/template. Templates
// see the bindings map as their root object plus a small set of read-only
// string helpers.
type TextRenderer struct {
	funcs texttemplate.FuncMap
}

// NewTextRenderer creates a TextRenderer with the standard helper set.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{
		funcs: texttemplate.FuncMap{
			"lower":    strings.ToLower,
			"upper":    strings.ToUpper,
			"trim":     strings.TrimSpace,
			"contains": strings.Contains,
			"replace":  strings.ReplaceAll,
		},
	}
}

// Render evaluates tmpl against bindings. Missing keys are an error rather
// than rendering "<no value>", so a typo in a configured template surfaces
// as a render failure instead of a silently wrong metadata value.
func (r *TextRenderer) Render(tmpl string, bindings map[string]any) (string, error) {
	t, err := texttemplate.New("").Funcs(r.funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, bindings); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return sb.String(), nil
}

// ParseBool interprets rendered condition text using the pipeline's boolean
// convention: only "true", case-insensitive and ignoring surrounding space,
// is true. Every other rendering, including errors upstream, means the
// condition is not met.
func ParseBool(rendered string) bool {
	return strings.EqualFold(strings.TrimSpace(rendered), "true")
}
