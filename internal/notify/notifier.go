// Package notify delivers operator alerts about the ledger: resolutions,
// single-bettor refunds and storage degradation. Alerts go to every
// registered sender (Telegram, Discord, console), filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Sender is one alert channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs and errors, e.g. "telegram".
	Name() string
}

// Notifier fans alerts out to its senders. Notify honours the event filter;
// NotifyAll does not.
type Notifier struct {
	senders []Sender
	events  map[string]struct{} // empty allows every event
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only the listed events pass Notify; an
// empty list passes everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends the alert when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if _, ok := n.events[event]; len(n.events) > 0 && !ok {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// NotifyAll sends the alert regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender concurrently. A failing sender does not stop
// the others; all failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	errs := make([]error, len(n.senders))

	var g errgroup.Group
	for i, s := range n.senders {
		g.Go(func() error {
			if err := s.Send(ctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return nil
			}
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
