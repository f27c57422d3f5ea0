package action

import (
	"context"
	"fmt"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/storage"
)

func init() {
	RegisterFactory(Factory{
		Type:        "require-field",
		Description: "aborts the chain unless the item carries a configured metadata field",
		Create: func(settings map[string]any, _ Deps) (Action, error) {
			schema, _ := settings["schema"].(string)
			element, _ := settings["element"].(string)
			if schema == "" || element == "" {
				return nil, fmt.Errorf("require-field action needs schema and element settings")
			}
			qualifier, _ := settings["qualifier"].(string)
			return &requireFieldAction{schema: schema, element: element, qualifier: qualifier}, nil
		},
	})
}

// requireFieldAction gates the rest of the chain on the presence of a
// metadata field, typically one the change list was expected to add.
type requireFieldAction struct {
	schema    string
	element   string
	qualifier string
}

func (a *requireFieldAction) Name() string { return "require-field" }

func (a *requireFieldAction) Execute(ctx context.Context, n *notification.Notification, item *storage.Item) (Status, error) {
	if len(item.FieldValues(a.schema, a.element, a.qualifier)) == 0 {
		return Abort, nil
	}
	return Continue, nil
}
