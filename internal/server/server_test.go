package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oarepo/ldn-inbox/internal/action"
	"github.com/oarepo/ldn-inbox/internal/metadata"
	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/pipeline"
	"github.com/oarepo/ldn-inbox/internal/resolver"
	"github.com/oarepo/ldn-inbox/internal/storage"
	"github.com/oarepo/ldn-inbox/internal/storage/memory"
	"github.com/oarepo/ldn-inbox/internal/template"
)

const (
	ownBase  = "https://repo.example"
	itemUUID = "aa1e2d3c-0000-4000-8000-000000000001"
)

type failDeref struct{}

func (failDeref) Head(ctx context.Context, url string) (string, error) {
	return "", errors.New("unexpected dereference")
}

func newTestServer(t *testing.T, rules pipeline.Rules) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.Put(&storage.Item{ID: itemUUID, Handle: "123456789/1", Kind: storage.KindItem})

	res := resolver.New(resolver.Config{OwnBaseURL: ownBase}, store, failDeref{}, nil)
	app := metadata.NewApplier(template.NewTextRenderer(), nil)
	processor := pipeline.New(notification.NewRepeater(nil), res, app, action.NewRunner(nil), store, rules, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(0, logger, processor), store
}

func postInbox(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ldn/inbox", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/ld+json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestInbox_AcceptsNotification(t *testing.T) {
	s, store := newTestServer(t, pipeline.Rules{
		Changes: []metadata.Change{
			&metadata.AddChange{
				Field:         metadata.Field{Schema: "dc", Element: "relation"},
				Qualifier:     "source",
				ValueTemplate: `{{index .notification "context" "id"}}`,
			},
		},
	})

	w := postInbox(t, s, `{"id": "urn:n1", "type": "Announce", "context": {"id": "`+ownBase+`/item/`+itemUUID+`"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var resp struct {
		NotificationID string `json:"notification_id"`
		Repetitions    []struct {
			Outcome     string `json:"outcome"`
			ChainStatus string `json:"chain_status"`
		} `json:"repetitions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.NotificationID != "urn:n1" {
		t.Errorf("notification_id = %q", resp.NotificationID)
	}
	if len(resp.Repetitions) != 1 || resp.Repetitions[0].Outcome != "ok" {
		t.Fatalf("repetitions = %+v", resp.Repetitions)
	}

	item, _ := store.FindByID(context.Background(), itemUUID)
	if len(item.FieldValues("dc", "relation", "source")) != 1 {
		t.Error("metadata change not persisted")
	}
}

func TestInbox_MalformedBody(t *testing.T) {
	s, _ := newTestServer(t, pipeline.Rules{})
	if w := postInbox(t, s, `{invalid json`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := postInbox(t, s, `{"type": "Announce"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing id: status = %d, want 400", w.Code)
	}
}

func TestInbox_PerRepetitionOutcomes(t *testing.T) {
	s, _ := newTestServer(t, pipeline.Rules{RepeatOver: "relatedItems"})

	w := postInbox(t, s, `{
		"id": "urn:n1",
		"context": {
			"id": "urn:ignored",
			"relatedItems": [
				{"id": "`+ownBase+`/item/`+itemUUID+`"},
				{"id": "https://evil.example/x"}
			]
		}
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Repetitions []struct {
			Outcome string `json:"outcome"`
		} `json:"repetitions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Repetitions) != 2 {
		t.Fatalf("repetitions = %+v", resp.Repetitions)
	}
	if resp.Repetitions[0].Outcome != "ok" || resp.Repetitions[1].Outcome != "policy-denied" {
		t.Errorf("outcomes = %+v", resp.Repetitions)
	}
}

func TestInbox_PropagatesInboundRequestID(t *testing.T) {
	s, _ := newTestServer(t, pipeline.Rules{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "sender-supplied")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "sender-supplied" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, pipeline.Rules{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	s, _ := newTestServer(t, pipeline.Rules{})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Start()
	}()

	// Wait for the listener to bind.
	deadline := time.After(5 * time.Second)
	for s.Addr() == "" {
		select {
		case err := <-serveErr:
			t.Fatalf("Start returned before shutdown: %v", err)
		case <-deadline:
			t.Fatal("server never bound a listener")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		t.Fatalf("bad listen address %q: %v", s.Addr(), err)
	}
	resp, err := http.Get("http://127.0.0.1:" + port + "/healthz")
	if err != nil {
		t.Fatalf("healthz against live server: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Start returned %v after clean shutdown, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
