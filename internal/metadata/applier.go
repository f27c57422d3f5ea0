package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oarepo/ldn-inbox/internal/storage"
	"github.com/oarepo/ldn-inbox/internal/template"
)

var tracer = otel.Tracer("ldn-inbox/metadata")

// Applier evaluates a configured change list against one notification's
// bindings and stages the resulting mutations inside a store transaction.
type Applier struct {
	renderer template.Renderer
	logger   *slog.Logger
}

// NewApplier creates an Applier.
func NewApplier(renderer template.Renderer, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{renderer: renderer, logger: logger}
}

// Apply runs the changes in configured order. Each condition is rendered
// against the current bindings; text other than "true" skips the change.
// The item is mutated in memory and staged via tx.Update; the caller owns
// commit and rollback. A render failure aborts the whole change set so
// nothing partial reaches the store.
func (a *Applier) Apply(ctx context.Context, tx storage.Tx, changes []Change, item *storage.Item, bindings map[string]any) error {
	ctx, span := tracer.Start(ctx, "metadata.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("item.id", item.ID),
		attribute.Int("changes.count", len(changes)),
	)

	for i, change := range changes {
		rendered, err := a.renderer.Render(change.Condition(), bindings)
		if err != nil {
			return &RenderError{Template: change.Condition(), Err: err}
		}
		if !template.ParseBool(rendered) {
			a.logger.Debug("change condition not met",
				slog.Int("change", i),
				slog.String("rendered", rendered))
			continue
		}
		if err := change.Apply(a.renderer, bindings, item); err != nil {
			return fmt.Errorf("apply change %d: %w", i, err)
		}
	}

	if err := tx.Update(ctx, item); err != nil {
		return fmt.Errorf("stage metadata update for %s: %w", item.ID, err)
	}
	return nil
}
