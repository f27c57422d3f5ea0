package resolver

import "fmt"

// NotFoundError reports a context id that does not resolve to any object.
type NotFoundError struct {
	ContextID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no object found for context id %s", e.ContextID)
}

// PolicyError reports an external context id rejected by the dereference
// policy: not on the allow-list, or the dereference itself failed.
type PolicyError struct {
	ContextID string
	Reason    string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("external resolution denied for %s: %s", e.ContextID, e.Reason)
}

// TypeMismatchError reports a context id that resolved to an object of the
// wrong kind.
type TypeMismatchError struct {
	ContextID string
	Kind      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("context id %s resolved to a %s, not an item", e.ContextID, e.Kind)
}
