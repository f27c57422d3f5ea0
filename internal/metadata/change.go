// Package metadata applies configured, conditionally-templated metadata
// changes to a target item.
package metadata

import (
	"fmt"

	"github.com/oarepo/ldn-inbox/internal/storage"
	"github.com/oarepo/ldn-inbox/internal/template"
)

// Defaults for the change field coordinates.
const (
	DefaultSchema    = "dc"
	DefaultElement   = "description"
	DefaultLanguage  = ""
	DefaultCondition = "true"
)

// Change is one configured metadata mutation rule. Add and Remove are the
// two variants; both share the field coordinates and a condition template
// that gates application per notification.
type Change interface {
	// Condition returns the condition template gating this change.
	Condition() string

	// Apply mutates the item's in-memory metadata. Rendering failures
	// propagate as RenderError.
	Apply(r template.Renderer, bindings map[string]any, item *storage.Item) error
}

// RenderError wraps a template rendering failure during change application.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %q: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Field holds the shared schema.element.qualifier coordinates of a change.
type Field struct {
	Schema   string
	Element  string
	Language string
}

func (f Field) withDefaults() Field {
	if f.Schema == "" {
		f.Schema = DefaultSchema
	}
	if f.Element == "" {
		f.Element = DefaultElement
	}
	if f.Language == "" {
		f.Language = DefaultLanguage
	}
	return f
}

// AddChange adds one rendered metadata value. Repeated adds of the same
// field accumulate independent entries.
type AddChange struct {
	Field
	ConditionTemplate string
	Qualifier         string
	ValueTemplate     string
}

var _ Change = (*AddChange)(nil)

func (c *AddChange) Condition() string {
	if c.ConditionTemplate == "" {
		return DefaultCondition
	}
	return c.ConditionTemplate
}

func (c *AddChange) Apply(r template.Renderer, bindings map[string]any, item *storage.Item) error {
	value, err := r.Render(c.ValueTemplate, bindings)
	if err != nil {
		return &RenderError{Template: c.ValueTemplate, Err: err}
	}
	f := c.Field.withDefaults()
	item.AddMetadata(storage.MetadataValue{
		Schema:    f.Schema,
		Element:   f.Element,
		Qualifier: c.Qualifier,
		Language:  f.Language,
		Value:     value,
	})
	return nil
}

// RemoveChange removes metadata entries whose qualifier and rendered value
// match an existing entry. Qualifiers and value templates are parallel
// lists; a pair with no matching entry is a no-op.
type RemoveChange struct {
	Field
	ConditionTemplate string
	Qualifiers        []string
	ValueTemplates    []string
}

var _ Change = (*RemoveChange)(nil)

func (c *RemoveChange) Condition() string {
	if c.ConditionTemplate == "" {
		return DefaultCondition
	}
	return c.ConditionTemplate
}

func (c *RemoveChange) Apply(r template.Renderer, bindings map[string]any, item *storage.Item) error {
	if len(c.Qualifiers) != len(c.ValueTemplates) {
		return fmt.Errorf("remove change has %d qualifiers but %d value templates",
			len(c.Qualifiers), len(c.ValueTemplates))
	}
	f := c.Field.withDefaults()
	for i, tmpl := range c.ValueTemplates {
		value, err := r.Render(tmpl, bindings)
		if err != nil {
			return &RenderError{Template: tmpl, Err: err}
		}
		item.RemoveMetadata(f.Schema, f.Element, c.Qualifiers[i], value)
	}
	return nil
}
