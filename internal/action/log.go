package action

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/storage"
)

func init() {
	RegisterFactory(Factory{
		Type:        "log",
		Description: "writes a structured audit entry for the processed notification",
		Create: func(settings map[string]any, deps Deps) (Action, error) {
			level := slog.LevelInfo
			if s, _ := settings["level"].(string); s != "" {
				if err := level.UnmarshalText([]byte(s)); err != nil {
					return nil, err
				}
			}
			logger := deps.Logger
			if logger == nil {
				logger = slog.Default()
			}
			return &logAction{level: level, logger: logger}, nil
		},
	})
}

// logAction records an audit entry and always continues the chain.
type logAction struct {
	level  slog.Level
	logger *slog.Logger
}

func (a *logAction) Name() string { return "log" }

func (a *logAction) Execute(ctx context.Context, n *notification.Notification, item *storage.Item) (Status, error) {
	a.logger.Log(ctx, a.level, "notification processed",
		slog.String("notification_id", n.ID()),
		slog.String("notification_type", strings.Join(n.Type(), ",")),
		slog.String("item_id", item.ID),
		slog.String("item_handle", item.Handle),
	)
	return Continue, nil
}
