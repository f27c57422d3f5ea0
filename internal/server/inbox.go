package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/pipeline"
)

// maxInboxBody bounds inbound notification size. LDN payloads are small
// JSON documents; anything near this limit is abuse.
const maxInboxBody = 1 << 20

// inboxResponse is the per-delivery report returned to the sender.
type inboxResponse struct {
	NotificationID string            `json:"notification_id"`
	Repetitions    []repetitionEntry `json:"repetitions"`
}

type repetitionEntry struct {
	Index       int    `json:"index"`
	ContextID   string `json:"context_id"`
	Outcome     string `json:"outcome"`
	ChainStatus string `json:"chain_status,omitempty"`
	Error       string `json:"error,omitempty"`
}

// InboxHandler accepts one LDN delivery, runs the pipeline and reports the
// per-repetition outcomes. Acceptance is 202: the sender learns the
// document was processed, one outcome per repetition, not an aggregate
// pass/fail.
func InboxHandler(processor *pipeline.Processor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxInboxBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		n, err := notification.Parse(body)
		if err != nil {
			logger.Warn("malformed notification rejected",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("error", err.Error()))
			http.Error(w, "malformed notification", http.StatusBadRequest)
			return
		}

		results := processor.Process(r.Context(), n)

		resp := inboxResponse{
			NotificationID: n.ID(),
			Repetitions:    make([]repetitionEntry, 0, len(results)),
		}
		for _, res := range results {
			entry := repetitionEntry{
				Index:     res.Index,
				ContextID: res.ContextID,
				Outcome:   string(res.Outcome),
			}
			if res.Outcome == pipeline.OutcomeOK {
				entry.ChainStatus = res.ChainStatus.String()
			}
			if res.Err != nil {
				entry.Error = res.Err.Error()
			}
			resp.Repetitions = append(resp.Repetitions, entry)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to write inbox response", slog.String("error", err.Error()))
		}
	}
}
