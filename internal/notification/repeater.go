package notification

import (
	"fmt"
	"iter"
	"log/slog"
)

// RepeatConfigError reports a repeat field whose value is not an array.
// Repetition over such a field is a setup mistake, not a property of the
// notification, so it surfaces as an error instead of an empty sequence.
type RepeatConfigError struct {
	NotificationID string
	Field          string
}

func (e *RepeatConfigError) Error() string {
	return fmt.Sprintf("repeat field %q of notification %s is not an array", e.Field, e.NotificationID)
}

// Repeater expands one notification into a sequence of notifications, one
// per entry of a configured repeatable array inside its context.
type Repeater struct {
	logger *slog.Logger
}

// NewRepeater creates a Repeater. A nil logger falls back to slog.Default.
func NewRepeater(logger *slog.Logger) *Repeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repeater{logger: logger}
}

// Expand returns a lazy, single-use sequence of notifications.
//
// With repeatOver unset the sequence holds the original notification only.
// Otherwise each entry of context[repeatOver] yields a deep copy of the
// notification with its context replaced by that entry, in array order. A
// missing context or missing field yields an empty sequence; a field that
// is not an array returns a RepeatConfigError rather than degrading to
// single-item processing.
func (r *Repeater) Expand(n *Notification, repeatOver string) (iter.Seq[*Notification], error) {
	if repeatOver != "" {
		if ctx := n.Context(); ctx != nil {
			if field, ok := ctx[repeatOver]; ok {
				if _, ok := field.([]any); !ok {
					return nil, &RepeatConfigError{NotificationID: n.ID(), Field: repeatOver}
				}
			}
		}
	}

	return func(yield func(*Notification) bool) {
		if repeatOver == "" {
			yield(n)
			return
		}

		ctx := n.Context()
		if ctx == nil {
			r.logger.Warn("notification has no context to repeat over",
				slog.String("notification_id", n.ID()),
				slog.String("repeat_over", repeatOver))
			return
		}

		field, ok := ctx[repeatOver]
		if !ok {
			r.logger.Warn("repeat field absent from context",
				slog.String("notification_id", n.ID()),
				slog.String("repeat_over", repeatOver))
			return
		}

		entries, _ := field.([]any)
		for i, entry := range entries {
			child, err := n.withContext(entry)
			if err != nil {
				r.logger.Error("skipping unrepeatable context entry",
					slog.String("notification_id", n.ID()),
					slog.Int("index", i),
					slog.String("error", err.Error()))
				continue
			}
			if !yield(child) {
				return
			}
		}
	}, nil
}
