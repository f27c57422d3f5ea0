// Package resolver maps a notification's context id to the repository item
// it concerns, enforcing the external-dereference allow-list policy.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/storage"
)

var tracer = otel.Tracer("ldn-inbox/resolver")

// Config is the immutable resolution policy, loaded once at startup.
type Config struct {
	// OwnBaseURL is the system's public base URL. Context ids under it are
	// resolved locally without any network call.
	OwnBaseURL string

	// AllowedExternalPrefixes lists URL prefixes of external identifier
	// resolvers that may be dereferenced. Everything else is rejected
	// before any network I/O.
	AllowedExternalPrefixes []string
}

// Dereferencer performs the single lightweight dereference of an external
// identifier URL and reports the redirect location, or "" if the response
// carried none.
type Dereferencer interface {
	Head(ctx context.Context, url string) (location string, err error)
}

// Resolver resolves context ids against the object store.
type Resolver struct {
	cfg    Config
	store  storage.ObjectStore
	deref  Dereferencer
	logger *slog.Logger
}

// New creates a Resolver. The config is copied and must not change after
// construction.
func New(cfg Config, store storage.ObjectStore, deref Dereferencer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, store: store, deref: deref, logger: logger}
}

// Resolve maps the notification's context id to an item. External ids are
// first translated to an internal URL through one allow-listed dereference.
// Resolution is idempotent: the same context id always yields the same
// item or the same error class.
func (r *Resolver) Resolve(ctx context.Context, n *notification.Notification) (*storage.Item, error) {
	ctx, span := tracer.Start(ctx, "resolver.Resolve")
	defer span.End()

	url := n.ContextID()
	span.SetAttributes(attribute.String("context.id", url))
	if url == "" {
		return nil, &NotFoundError{ContextID: url}
	}

	if !strings.HasPrefix(url, r.cfg.OwnBaseURL) {
		internal, err := r.dereferenceExternal(ctx, url)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("external context id dereferenced",
			slog.String("context_id", url),
			slog.String("location", internal))
		url = internal
	}

	return r.resolveInternal(ctx, url)
}

// dereferenceExternal checks the allow-list, performs the single HEAD
// dereference and returns the internally-resolvable location.
func (r *Resolver) dereferenceExternal(ctx context.Context, url string) (string, error) {
	allowed := false
	for _, prefix := range r.cfg.AllowedExternalPrefixes {
		if strings.HasPrefix(url, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", &PolicyError{ContextID: url, Reason: "resolver not on allow-list"}
	}

	location, err := r.deref.Head(ctx, url)
	if err != nil {
		return "", &PolicyError{ContextID: url, Reason: fmt.Sprintf("dereference failed: %v", err)}
	}
	if location == "" {
		return "", &PolicyError{ContextID: url, Reason: "dereference returned no location"}
	}
	if !strings.HasPrefix(location, r.cfg.OwnBaseURL) {
		return "", &PolicyError{ContextID: url, Reason: "location is not internally resolvable"}
	}
	return location, nil
}

func (r *Resolver) resolveInternal(ctx context.Context, url string) (*storage.Item, error) {
	if id := embeddedItemID(url); id != "" {
		item, err := r.store.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("find item %s: %w", id, err)
		}
		if item == nil {
			return nil, &NotFoundError{ContextID: url}
		}
		return item, nil
	}

	handle, err := r.store.ResolveToHandle(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("resolve url to handle: %w", err)
	}
	if handle == "" {
		return nil, &NotFoundError{ContextID: url}
	}

	item, err := r.store.ResolveHandle(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("resolve handle %s: %w", handle, err)
	}
	if item == nil {
		return nil, &NotFoundError{ContextID: url}
	}
	if item.Kind != storage.KindItem {
		return nil, &TypeMismatchError{ContextID: url, Kind: item.Kind}
	}
	return item, nil
}

// embeddedItemID extracts the internal item identifier from a URL that
// carries one as a path segment, or "" if none does.
func embeddedItemID(url string) string {
	for _, segment := range strings.Split(url, "/") {
		if _, err := uuid.Parse(segment); err == nil {
			return segment
		}
	}
	return ""
}
