package dispatcher

import (
	"context"

	"github.com/quoteflow/cpq-backend/internal/domain/event"
)

// Handler consumes a single domain event. Handlers must tolerate
// concurrent invocation; async publishes run them off the caller's
// goroutine.
type Handler func(ctx context.Context, evt *event.Event) error

// subscription ties a registered handler to the name it was registered
// under, which is how it shows up in logs and how it is removed.
type subscription struct {
	name string
	fn   Handler
}
