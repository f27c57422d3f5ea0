package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/storage"
)

const defaultWebhookTimeout = 10 * time.Second

func init() {
	RegisterFactory(Factory{
		Type:        "webhook",
		Description: "POSTs the notification and item summary to an external service",
		Create: func(settings map[string]any, _ Deps) (Action, error) {
			url, _ := settings["url"].(string)
			if url == "" {
				return nil, fmt.Errorf("webhook action requires a url setting")
			}
			timeout := defaultWebhookTimeout
			if s, _ := settings["timeout"].(string); s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return nil, fmt.Errorf("webhook timeout: %w", err)
				}
				timeout = d
			}
			return &webhookAction{
				url: url,
				client: &http.Client{
					Timeout:   timeout,
					Transport: otelhttp.NewTransport(http.DefaultTransport),
				},
			}, nil
		},
	})
}

// webhookAction delivers the processed notification to an external
// endpoint. A non-2xx response aborts the remaining chain: the receiver
// has explicitly declined the event. Transport failures are errors, not
// aborts.
type webhookAction struct {
	url    string
	client *http.Client
}

func (a *webhookAction) Name() string { return "webhook" }

func (a *webhookAction) Execute(ctx context.Context, n *notification.Notification, item *storage.Item) (Status, error) {
	payload, err := json.Marshal(map[string]any{
		"notification": n.Document(),
		"item": map[string]any{
			"id":     item.ID,
			"handle": item.Handle,
		},
	})
	if err != nil {
		return Continue, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return Continue, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Continue, fmt.Errorf("deliver webhook to %s: %w", a.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Abort, nil
	}
	return Continue, nil
}
