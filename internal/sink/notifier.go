package sink

import (
	"context"
	"log/slog"

	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/retry"
)

// Target is a sender plus the filter deciding which events reach it.
// A nil Match sends everything.
type Target struct {
	Sender Sender
	Match  Filter
}

// Notifier sends every event to a set of named targets. Each send goes
// through the retry engine; failures are logged and do not stop the others.
type Notifier struct {
	targets map[string]Target
	retry   retry.Policy
	log     *slog.Logger
}

func NewNotifier(targets map[string]Target, p retry.Policy, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{targets: targets, retry: p, log: log.With("component", "sink")}
}

// Len reports the number of configured targets.
func (n *Notifier) Len() int { return len(n.targets) }

// Notify delivers ev and returns the number of targets that failed.
func (n *Notifier) Notify(ctx context.Context, ev events.Event) int {
	payload := PayloadOf(ev)
	failed := 0
	for id, t := range n.targets {
		if t.Match != nil && !t.Match(payload) {
			continue
		}
		err := retry.DoVoid(ctx, n.retry, func(ctx context.Context) error {
			return t.Sender.Send(ctx, payload)
		})
		if err != nil {
			failed++
			n.log.Warn("sink delivery failed", "sink", id, "kind", payload.Kind, "batch", payload.BatchID, "error", err)
		}
	}
	return failed
}
