package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oarepo/ldn-inbox/internal/action"
	"github.com/oarepo/ldn-inbox/internal/metadata"
	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/resolver"
	"github.com/oarepo/ldn-inbox/internal/storage"
)

var tracer = otel.Tracer("ldn-inbox/pipeline")

// Outcome classifies how one repetition ended.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeNotFound          Outcome = "not-found"
	OutcomePolicyDenied      Outcome = "policy-denied"
	OutcomeRenderFailed      Outcome = "render-failed"
	OutcomePersistenceFailed Outcome = "persistence-failed"
	OutcomeActionFailed      Outcome = "action-failed"
	OutcomeConfigError       Outcome = "config-error"
)

// Result is the per-repetition report handed back to the caller.
type Result struct {
	Index          int
	NotificationID string
	ContextID      string
	Outcome        Outcome
	ChainStatus    action.Status
	Err            error
}

// Rules is the configured processing behavior: the repeat field, the
// ordered change list and the ordered action chain. A Rules value is
// immutable once installed; hot reload swaps the whole value.
type Rules struct {
	RepeatOver string
	Changes    []metadata.Change
	Actions    []action.Action
}

// Processor composes the repeater, resolver, applier and runner into the
// per-notification pipeline.
type Processor struct {
	repeater *notification.Repeater
	resolver *resolver.Resolver
	applier  *metadata.Applier
	runner   *action.Runner
	store    storage.ObjectStore
	logger   *slog.Logger

	mu    sync.RWMutex
	rules Rules

	// now is the timestamp source for template bindings.
	now func() time.Time
}

// New creates a Processor.
func New(rep *notification.Repeater, res *resolver.Resolver, app *metadata.Applier, run *action.Runner, store storage.ObjectStore, rules Rules, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repeater: rep,
		resolver: res,
		applier:  app,
		runner:   run,
		store:    store,
		rules:    rules,
		logger:   logger,
		now:      time.Now,
	}
}

// Reload installs a new rule set. In-flight notifications keep the rules
// they started with.
func (p *Processor) Reload(rules Rules) {
	p.mu.Lock()
	p.rules = rules
	p.mu.Unlock()
	p.logger.Info("pipeline rules reloaded",
		slog.Int("changes", len(rules.Changes)),
		slog.Int("actions", len(rules.Actions)))
}

// Process runs the pipeline for one inbound notification and reports one
// Result per repetition. Repetitions are processed sequentially, in array
// order, and every repetition is attempted regardless of earlier failures.
func (p *Processor) Process(ctx context.Context, n *notification.Notification) []Result {
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()
	span.SetAttributes(attribute.String("notification.id", n.ID()))

	p.mu.RLock()
	rules := p.rules
	p.mu.RUnlock()

	seq, err := p.repeater.Expand(n, rules.RepeatOver)
	if err != nil {
		// A misconfigured repeat field must show up in the report, not
		// vanish as an empty repetition list.
		p.logger.Error("repeat expansion failed",
			slog.String("notification_id", n.ID()),
			slog.String("repeat_over", rules.RepeatOver),
			slog.String("error", err.Error()))
		return []Result{{
			NotificationID: n.ID(),
			ContextID:      n.ContextID(),
			Outcome:        OutcomeConfigError,
			Err:            err,
		}}
	}

	var results []Result
	index := 0
	for rep := range seq {
		result := p.processOne(ctx, rep, rules)
		result.Index = index
		index++

		if result.Err != nil {
			p.logger.Error("repetition failed",
				slog.Int("index", result.Index),
				slog.String("notification_id", result.NotificationID),
				slog.String("context_id", result.ContextID),
				slog.String("outcome", string(result.Outcome)),
				slog.String("error", result.Err.Error()))
		} else {
			p.logger.Info("repetition processed",
				slog.Int("index", result.Index),
				slog.String("notification_id", result.NotificationID),
				slog.String("context_id", result.ContextID),
				slog.String("chain_status", result.ChainStatus.String()))
		}
		results = append(results, result)
	}

	span.SetAttributes(attribute.Int("repetitions", len(results)))
	return results
}

func (p *Processor) processOne(ctx context.Context, n *notification.Notification, rules Rules) Result {
	ctx, span := tracer.Start(ctx, "pipeline.repetition")
	defer span.End()

	result := Result{
		NotificationID: n.ID(),
		ContextID:      n.ContextID(),
	}

	item, err := p.resolver.Resolve(ctx, n)
	if err != nil {
		result.Outcome = classifyResolveError(err)
		result.Err = err
		return result
	}

	bindings := p.buildBindings(n)

	tx, err := p.store.Begin(ctx)
	if err != nil {
		result.Outcome = OutcomePersistenceFailed
		result.Err = err
		return result
	}

	if err := p.applier.Apply(ctx, tx, rules.Changes, item, bindings); err != nil {
		_ = tx.Rollback()
		var re *metadata.RenderError
		if errors.As(err, &re) {
			result.Outcome = OutcomeRenderFailed
		} else {
			result.Outcome = OutcomePersistenceFailed
		}
		result.Err = err
		return result
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		result.Outcome = OutcomePersistenceFailed
		result.Err = err
		return result
	}

	status, err := p.runner.Run(ctx, rules.Actions, n, item)
	if err != nil {
		result.Outcome = OutcomeActionFailed
		result.Err = err
		return result
	}

	result.Outcome = OutcomeOK
	result.ChainStatus = status
	return result
}

// buildBindings assembles the template bindings for one repetition: the
// notification document and a fixed-format timestamp.
func (p *Processor) buildBindings(n *notification.Notification) map[string]any {
	return map[string]any{
		"notification": n.Document(),
		"timestamp":    p.now().UTC().Format(time.RFC3339),
	}
}

func classifyResolveError(err error) Outcome {
	var pe *resolver.PolicyError
	if errors.As(err, &pe) {
		return OutcomePolicyDenied
	}
	var nf *resolver.NotFoundError
	var tm *resolver.TypeMismatchError
	if errors.As(err, &nf) || errors.As(err, &tm) {
		return OutcomeNotFound
	}
	return OutcomePersistenceFailed
}
