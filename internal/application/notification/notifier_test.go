package notification

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/quoteflow/cpq-backend/internal/application/dispatcher"
	"github.com/quoteflow/cpq-backend/internal/domain/event"
)

func TestNotifier_RegisterCoversTerminalEvents(t *testing.T) {
	bus := dispatcher.NewDispatcher(nil)
	NewNotifier(zap.NewNop()).Register(bus)

	for _, eventType := range []event.Type{
		event.TypeQuoteApproved,
		event.TypeQuoteRejected,
		event.TypeQuoteTerminated,
	} {
		names := bus.Subscribers(eventType)
		if len(names) != 1 || names[0] != SubscriberName {
			t.Errorf("Subscribers(%s) = %v, want [%s]", eventType, names, SubscriberName)
		}
	}

	if names := bus.Subscribers(event.TypeQuoteSubmitted); len(names) != 0 {
		t.Errorf("notifier subscribed to non-terminal %s: %v", event.TypeQuoteSubmitted, names)
	}
}

func TestNotifier_Notify(t *testing.T) {
	notifier := NewNotifier(zap.NewNop())
	ctx := context.Background()

	rejected := event.NewEvent(event.TypeQuoteRejected, "q1", "rejected", map[string]interface{}{
		"reason": "pricing too aggressive",
	})
	if err := notifier.Notify(ctx, rejected); err != nil {
		t.Errorf("Notify(rejected) error = %v", err)
	}

	if err := notifier.Notify(ctx, event.NewEvent(event.TypeQuoteTerminated, "q2", "terminated", nil)); err != nil {
		t.Errorf("Notify(terminated) error = %v", err)
	}

	if err := notifier.Notify(ctx, event.NewEvent(event.TypeQuoteSubmitted, "q3", "pending_deal_desk", nil)); err == nil {
		t.Error("Notify(submitted) expected error for non-terminal event")
	}
}
