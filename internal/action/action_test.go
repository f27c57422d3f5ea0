package action

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/storage"
	"github.com/oarepo/ldn-inbox/internal/storage/memory"
)

// mockAction records calls and returns a configured status or error.
type mockAction struct {
	name   string
	status Status
	err    error
	calls  int
}

func (a *mockAction) Name() string { return a.name }

func (a *mockAction) Execute(ctx context.Context, n *notification.Notification, item *storage.Item) (Status, error) {
	a.calls++
	return a.status, a.err
}

func testNotification(t *testing.T) *notification.Notification {
	t.Helper()
	n, err := notification.Parse([]byte(`{"id": "urn:n1", "context": {"id": "urn:c1"}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return n
}

func TestRun_EmptyChain(t *testing.T) {
	r := NewRunner(nil)
	status, err := r.Run(context.Background(), nil, testNotification(t), &storage.Item{ID: "id-1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != Continue {
		t.Errorf("empty chain status = %v, want Continue", status)
	}
}

func TestRun_AbortSkipsRest(t *testing.T) {
	a1 := &mockAction{name: "a1", status: Continue}
	a2 := &mockAction{name: "a2", status: Abort}
	a3 := &mockAction{name: "a3", status: Continue}

	r := NewRunner(nil)
	status, err := r.Run(context.Background(), []Action{a1, a2, a3}, testNotification(t), &storage.Item{ID: "id-1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != Abort {
		t.Errorf("chain status = %v, want Abort", status)
	}
	if a1.calls != 1 || a2.calls != 1 {
		t.Errorf("a1=%d a2=%d calls, want 1 each", a1.calls, a2.calls)
	}
	if a3.calls != 0 {
		t.Errorf("a3 ran %d times after abort, want 0", a3.calls)
	}
}

func TestRun_ErrorIsNotAbort(t *testing.T) {
	boom := errors.New("boom")
	a1 := &mockAction{name: "a1", status: Continue}
	a2 := &mockAction{name: "a2", err: boom}
	a3 := &mockAction{name: "a3", status: Continue}

	r := NewRunner(nil)
	_, err := r.Run(context.Background(), []Action{a1, a2, a3}, testNotification(t), &storage.Item{ID: "id-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped action error, got %v", err)
	}
	if a3.calls != 0 {
		t.Errorf("a3 ran after an action error")
	}
}

func TestRun_AllContinue(t *testing.T) {
	a1 := &mockAction{name: "a1", status: Continue}
	a2 := &mockAction{name: "a2", status: Continue}

	r := NewRunner(nil)
	status, err := r.Run(context.Background(), []Action{a1, a2}, testNotification(t), &storage.Item{ID: "id-1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != Continue {
		t.Errorf("chain status = %v, want Continue", status)
	}
}

func TestRegistry_CreateKnownTypes(t *testing.T) {
	for _, typ := range []string{"log", "webhook", "flag", "require-field"} {
		found := false
		for _, registered := range RegisteredTypes() {
			if registered == typ {
				found = true
			}
		}
		if !found {
			t.Errorf("builtin action %q not registered", typ)
		}
	}

	if _, err := Create("log", nil, Deps{}); err != nil {
		t.Errorf("Create(log) failed: %v", err)
	}
	if _, err := Create("nope", nil, Deps{}); err == nil {
		t.Error("Create(nope) should fail")
	}
	if _, err := Create("webhook", nil, Deps{}); err == nil {
		t.Error("webhook without url should fail")
	}
	if _, err := Create("flag", nil, Deps{}); err == nil {
		t.Error("flag without a store should fail")
	}
	if _, err := Create("require-field", map[string]any{"schema": "dc"}, Deps{}); err == nil {
		t.Error("require-field without element should fail")
	}
}

func TestWebhookAction_StatusMapping(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if r.URL.Path == "/deny" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := testNotification(t)
	item := &storage.Item{ID: "id-1", Handle: "123456789/1"}

	ok, err := Create("webhook", map[string]any{"url": srv.URL + "/ok"}, Deps{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	status, err := ok.Execute(context.Background(), n, item)
	if err != nil || status != Continue {
		t.Errorf("2xx: status=%v err=%v, want Continue", status, err)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}

	deny, _ := Create("webhook", map[string]any{"url": srv.URL + "/deny"}, Deps{})
	status, err = deny.Execute(context.Background(), n, item)
	if err != nil || status != Abort {
		t.Errorf("non-2xx: status=%v err=%v, want Abort", status, err)
	}

	srv.Close()
	dead, _ := Create("webhook", map[string]any{"url": srv.URL + "/gone", "timeout": "200ms"}, Deps{})
	if _, err := dead.Execute(context.Background(), n, item); err == nil {
		t.Error("transport failure should be an error, not a status")
	}
}

func TestRequireFieldAction(t *testing.T) {
	a, err := Create("require-field", map[string]any{"schema": "dc", "element": "relation", "qualifier": "source"}, Deps{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	n := testNotification(t)
	empty := &storage.Item{ID: "id-1"}
	status, err := a.Execute(context.Background(), n, empty)
	if err != nil || status != Abort {
		t.Errorf("missing field: status=%v err=%v, want Abort", status, err)
	}

	present := &storage.Item{ID: "id-1", Metadata: []storage.MetadataValue{
		{Schema: "dc", Element: "relation", Qualifier: "source", Value: "urn:x"},
	}}
	status, err = a.Execute(context.Background(), n, present)
	if err != nil || status != Continue {
		t.Errorf("field present: status=%v err=%v, want Continue", status, err)
	}
}

func TestFlagAction_WritesReviewFlag(t *testing.T) {
	store := memory.New()
	item := &storage.Item{ID: "id-1", Handle: "123456789/1", Kind: storage.KindItem}
	store.Put(item)

	a, err := Create("flag", nil, Deps{Store: store})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	n := testNotification(t)
	status, err := a.Execute(context.Background(), n, item)
	if err != nil || status != Continue {
		t.Fatalf("flag: status=%v err=%v, want Continue", status, err)
	}

	stored, err := store.FindByID(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	got := stored.FieldValues("local", "review", "flag")
	if len(got) != 1 || got[0] != "pending" {
		t.Fatalf("stored flag values = %v, want [pending]", got)
	}

	// A second run against the already flagged item adds nothing.
	status, err = a.Execute(context.Background(), n, stored)
	if err != nil || status != Continue {
		t.Fatalf("re-flag: status=%v err=%v, want Continue", status, err)
	}
	stored, _ = store.FindByID(context.Background(), "id-1")
	if got := stored.FieldValues("local", "review", "flag"); len(got) != 1 {
		t.Errorf("flag duplicated: %v", got)
	}
}

func TestFlagAction_SettingsOverrideDefaults(t *testing.T) {
	store := memory.New()
	item := &storage.Item{ID: "id-2", Kind: storage.KindItem}
	store.Put(item)

	a, err := Create("flag", map[string]any{
		"schema":    "dc",
		"element":   "description",
		"qualifier": "provenance",
		"value":     "needs-review",
	}, Deps{Store: store})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := a.Execute(context.Background(), testNotification(t), item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	stored, _ := store.FindByID(context.Background(), "id-2")
	if got := stored.FieldValues("dc", "description", "provenance"); len(got) != 1 || got[0] != "needs-review" {
		t.Errorf("stored values = %v, want [needs-review]", got)
	}
}
