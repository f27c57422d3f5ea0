package action

import (
	"context"
	"fmt"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/storage"
)

func init() {
	RegisterFactory(Factory{
		Type:        "flag",
		Description: "marks the item for curator review with a status metadata value",
		Create: func(settings map[string]any, deps Deps) (Action, error) {
			if deps.Store == nil {
				return nil, fmt.Errorf("flag action requires an object store")
			}
			a := &flagAction{
				store:     deps.Store,
				schema:    "local",
				element:   "review",
				qualifier: "flag",
				value:     "pending",
			}
			if s, _ := settings["schema"].(string); s != "" {
				a.schema = s
			}
			if s, _ := settings["element"].(string); s != "" {
				a.element = s
			}
			if s, ok := settings["qualifier"].(string); ok {
				a.qualifier = s
			}
			if s, _ := settings["value"].(string); s != "" {
				a.value = s
			}
			return a, nil
		},
	})
}

// flagAction records a review flag on the item in its own transaction.
// The chain runs after the change list has committed, so the flag write
// must not be folded into that earlier transaction. Writing is
// idempotent: an item already carrying the flag value is left alone.
type flagAction struct {
	store     storage.ObjectStore
	schema    string
	element   string
	qualifier string
	value     string
}

func (a *flagAction) Name() string { return "flag" }

func (a *flagAction) Execute(ctx context.Context, n *notification.Notification, item *storage.Item) (Status, error) {
	for _, v := range item.FieldValues(a.schema, a.element, a.qualifier) {
		if v == a.value {
			return Continue, nil
		}
	}

	tx, err := a.store.Begin(ctx)
	if err != nil {
		return Continue, fmt.Errorf("begin flag transaction: %w", err)
	}
	item.AddMetadata(storage.MetadataValue{
		Schema:    a.schema,
		Element:   a.element,
		Qualifier: a.qualifier,
		Value:     a.value,
	})
	if err := tx.Update(ctx, item); err != nil {
		_ = tx.Rollback()
		return Continue, fmt.Errorf("stage flag on item %s: %w", item.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return Continue, fmt.Errorf("commit flag on item %s: %w", item.ID, err)
	}
	return Continue, nil
}
