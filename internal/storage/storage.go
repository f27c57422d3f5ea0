// Package storage defines the object store collaborator interfaces and the
// repository item model the pipeline mutates.
package storage

import "context"

// MetadataValue is one descriptive field on an item, addressed by
// schema.element.qualifier. An empty Qualifier means the field is
// unqualified; an empty Language takes the store default.
type MetadataValue struct {
	Schema    string
	Element   string
	Qualifier string
	Language  string
	Value     string
}

// Item is the target object of a notification: a repository item with its
// handle and ordered metadata. Items are fetched fresh per repetition and
// mutated in memory until the surrounding transaction commits.
type Item struct {
	ID       string
	Handle   string
	Kind     string
	Metadata []MetadataValue
}

// KindItem is the object kind the pipeline operates on. Handles can also
// resolve to communities and collections, which the resolver rejects.
const KindItem = "item"

// AddMetadata appends one metadata entry. Repeated adds of the same field
// accumulate; the store performs no deduplication.
func (it *Item) AddMetadata(v MetadataValue) {
	it.Metadata = append(it.Metadata, v)
}

// RemoveMetadata removes the first entry matching schema, element,
// qualifier and value. It reports whether an entry was removed; no match
// is not an error.
func (it *Item) RemoveMetadata(schema, element, qualifier, value string) bool {
	for i, m := range it.Metadata {
		if m.Schema == schema && m.Element == element && m.Qualifier == qualifier && m.Value == value {
			it.Metadata = append(it.Metadata[:i], it.Metadata[i+1:]...)
			return true
		}
	}
	return false
}

// FieldValues returns the values of all entries for one field, in order.
func (it *Item) FieldValues(schema, element, qualifier string) []string {
	var out []string
	for _, m := range it.Metadata {
		if m.Schema == schema && m.Element == element && m.Qualifier == qualifier {
			out = append(out, m.Value)
		}
	}
	return out
}

// ObjectStore is the object/metadata store collaborator. Lookups return
// (nil, nil) when nothing matches; errors are reserved for store failures.
type ObjectStore interface {
	// FindByID looks an item up by its internal identifier.
	FindByID(ctx context.Context, id string) (*Item, error)

	// ResolveToHandle maps a persistent-identifier URL to the native
	// handle it is registered under, or "" if unregistered.
	ResolveToHandle(ctx context.Context, url string) (string, error)

	// ResolveHandle looks the object registered under a handle up.
	ResolveHandle(ctx context.Context, handle string) (*Item, error)

	// Begin opens a transaction for metadata mutation.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one metadata mutation transaction. Update stages an item's full
// metadata set; nothing is visible to other readers until Commit.
type Tx interface {
	Update(ctx context.Context, item *Item) error
	Commit() error
	Rollback() error
}
