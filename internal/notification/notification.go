// Package notification defines the inbound LDN document model and the
// context repeater that fans one notification out into per-entry copies.
package notification

import (
	"encoding/json"
	"fmt"
)

// Notification is an inbound Linked Data Notification. The document is an
// opaque tree: only id, type and context are interpreted, every other field
// passes through untouched. A Notification is never mutated after Parse;
// derived documents are produced with Clone.
type Notification struct {
	doc map[string]any
}

// Parse decodes a raw inbox body into a Notification.
func Parse(body []byte) (*Notification, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if _, ok := doc["id"].(string); !ok {
		return nil, fmt.Errorf("notification has no id")
	}
	return &Notification{doc: doc}, nil
}

// FromMap wraps an already-decoded document. The map is not copied; callers
// hand over ownership.
func FromMap(doc map[string]any) *Notification {
	return &Notification{doc: doc}
}

// ID returns the notification id, or "" if absent.
func (n *Notification) ID() string {
	id, _ := n.doc["id"].(string)
	return id
}

// Type returns the notification type(s). A scalar type is returned as a
// one-element slice.
func (n *Notification) Type() []string {
	switch t := n.doc["type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Context returns the context sub-document, or nil if absent or not an
// object.
func (n *Notification) Context() map[string]any {
	c, _ := n.doc["context"].(map[string]any)
	return c
}

// ContextID returns the context id URL, or "" if absent.
func (n *Notification) ContextID() string {
	c := n.Context()
	if c == nil {
		return ""
	}
	id, _ := c["id"].(string)
	return id
}

// Document returns the underlying tree for template bindings. Callers must
// treat it as read-only.
func (n *Notification) Document() map[string]any {
	return n.doc
}

// Clone returns a deep copy of the notification.
func (n *Notification) Clone() (*Notification, error) {
	doc, err := deepCopyMap(n.doc)
	if err != nil {
		return nil, err
	}
	return &Notification{doc: doc}, nil
}

// withContext returns a deep copy of n whose context field is replaced by
// the given value.
func (n *Notification) withContext(ctx any) (*Notification, error) {
	c, err := n.Clone()
	if err != nil {
		return nil, err
	}
	cp, err := deepCopyValue(ctx)
	if err != nil {
		return nil, err
	}
	c.doc["context"] = cp
	return c, nil
}

func deepCopyMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		cp, err := deepCopyValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = cp
	}
	return out, nil
}

func deepCopyValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64, json.Number:
		return t, nil
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			cp, err := deepCopyValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = cp
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported document value %T", v)
	}
}
