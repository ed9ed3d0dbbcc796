// Package notification consumes terminal quote events off the
// dispatcher. Delivery is currently a structured log line per event;
// a real outbound channel (email, chat webhook) would replace the sink
// but keep the subscription.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quoteflow/cpq-backend/internal/application/dispatcher"
	"github.com/quoteflow/cpq-backend/internal/domain/event"
)

// SubscriberName identifies the notifier on the dispatcher.
const SubscriberName = "terminal_notifier"

// Notifier turns terminal quote transitions into operator-visible
// notifications.
type Notifier struct {
	logger *zap.Logger
}

// NewNotifier creates a notifier writing to the given logger
func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Register subscribes the notifier to every terminal quote transition
func (n *Notifier) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeQuoteApproved,
		event.TypeQuoteRejected,
		event.TypeQuoteTerminated,
	} {
		d.Subscribe(t, SubscriberName, n.Notify)
	}
}

// Notify emits one notification for a terminal quote event. Non-terminal
// events indicate a wiring mistake and are rejected.
func (n *Notifier) Notify(_ context.Context, evt *event.Event) error {
	if !evt.Type.IsTerminal() {
		return fmt.Errorf("notifier received non-terminal event %s", evt.Type)
	}

	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("quote_id", evt.QuoteID),
		zap.String("quote_status", evt.QuoteStatus),
	}
	if reason := evt.GetPayloadString("reason"); reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}

	switch evt.Type {
	case event.TypeQuoteApproved:
		n.logger.Info("Notification: quote approved", fields...)
	case event.TypeQuoteRejected:
		n.logger.Info("Notification: quote rejected", fields...)
	default:
		n.logger.Info("Notification: quote terminated", fields...)
	}
	return nil
}
