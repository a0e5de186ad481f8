// Package notification defines the boundary through which approval
// lifecycle notifications leave the engine. Delivery is best effort: a
// failed dispatch is logged and never fails the approval operation that
// triggered it.
package notification

import (
	"context"
	"log/slog"

	"github.com/greenlight-engine/greenlight/pkg/eventbus"
)

// Dispatcher delivers approval notifications. Implementations must not
// return delivery failures to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, key string, event eventbus.Event)
}

// BusDispatcher publishes notifications on the event bus. Publishing
// happens on a separate goroutine so slow brokers never stall approval
// decisions.
type BusDispatcher struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewBusDispatcher(publisher eventbus.EventPublisher, logger *slog.Logger) *BusDispatcher {
	return &BusDispatcher{
		publisher: publisher,
		logger:    logger.With("module", "notification"),
	}
}

func (d *BusDispatcher) Dispatch(ctx context.Context, key string, event eventbus.Event) {
	go func() {
		// The request context may be cancelled as soon as the HTTP
		// response is written, so publish detached from it.
		err := d.publisher.Publish(context.WithoutCancel(ctx), key, event)
		if err != nil {
			d.logger.Error("Failed to dispatch notification",
				"event_type", event.GetType(), "key", key, "error", err)
		}
	}()
}

// LogDispatcher writes notifications to the log only. It backs
// deployments that run without a notification channel.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "notification")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, key string, event eventbus.Event) {
	d.logger.Info("Notification", "event_type", event.GetType(), "key", key)
}
