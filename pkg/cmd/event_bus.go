package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/greenlight-engine/greenlight/pkg/channels/gochannel"
	"github.com/greenlight-engine/greenlight/pkg/channels/kafka"
	"github.com/greenlight-engine/greenlight/pkg/eventbus"
	"github.com/greenlight-engine/greenlight/pkg/notification"
)

// NewEventBus creates a notification event bus for the given provider:
// kafka for brokered deployments, gochannel (the default) for in-process
// delivery.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// NewDispatcher creates the notification dispatcher for the given event
// bus provider. The "none" provider logs notifications instead of
// publishing them; the returned bus is nil in that case.
func NewDispatcher(provider, serviceName string, logger *slog.Logger) (notification.Dispatcher, eventbus.EventBus, error) {
	if provider == "none" {
		return notification.NewLogDispatcher(logger), nil, nil
	}

	bus, err := NewEventBus(provider, serviceName, logger)
	if err != nil {
		return nil, nil, err
	}

	return notification.NewBusDispatcher(bus, logger), bus, nil
}
