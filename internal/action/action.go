// Package action runs the configured post-commit action chain for one
// notification and its resolved item.
package action

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/storage"
)

var tracer = otel.Tracer("ldn-inbox/action")

// Status is an action's verdict on the remaining chain.
type Status int

const (
	// Continue lets the chain proceed to the next action.
	Continue Status = iota
	// Abort stops the chain; later actions are skipped.
	Abort
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Action is one configured unit of side-effecting work. Implementations
// are stateless across invocations and run strictly after the metadata
// transaction has committed, so they may rely on persisted mutations.
type Action interface {
	Name() string
	Execute(ctx context.Context, n *notification.Notification, item *storage.Item) (Status, error)
}

// Runner executes an ordered action chain with early-abort semantics.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes the actions in order. An empty chain succeeds with
// Continue. The first Abort becomes the final chain status and skips the
// rest. An action error propagates unchanged: a thrown failure is not the
// same as an intentional abort, and callers report the two differently.
func (r *Runner) Run(ctx context.Context, actions []Action, n *notification.Notification, item *storage.Item) (Status, error) {
	ctx, span := tracer.Start(ctx, "action.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("actions.count", len(actions)))

	for _, a := range actions {
		status, err := a.Execute(ctx, n, item)
		if err != nil {
			span.SetAttributes(attribute.String("actions.failed", a.Name()))
			return Continue, fmt.Errorf("action %s: %w", a.Name(), err)
		}
		if status == Abort {
			r.logger.Info("action chain aborted",
				slog.String("action", a.Name()),
				slog.String("notification_id", n.ID()))
			span.SetAttributes(attribute.String("actions.aborted_by", a.Name()))
			return Abort, nil
		}
	}
	return Continue, nil
}
