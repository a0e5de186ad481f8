package notification

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlight-engine/greenlight/pkg/eventbus"
	"github.com/greenlight-engine/greenlight/pkg/events"
)

type capturingPublisher struct {
	published chan eventbus.Event
	err       error
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published <- event

	return p.err
}

func TestBusDispatcherPublishes(t *testing.T) {
	t.Parallel()

	publisher := &capturingPublisher{published: make(chan eventbus.Event, 1)}
	dispatcher := NewBusDispatcher(publisher, slog.Default())

	dispatcher.Dispatch(context.Background(), "contract-1", events.ApprovalRequested{
		BaseEvent: events.BaseEvent{Type: events.ApprovalRequestedEvent, EntityID: "contract-1"},
	})

	select {
	case event := <-publisher.published:
		assert.Equal(t, events.ApprovalRequestedEvent, event.GetType())
	case <-time.After(time.Second):
		t.Fatal("notification was never published")
	}
}

func TestBusDispatcherSurvivesPublishFailure(t *testing.T) {
	t.Parallel()

	publisher := &capturingPublisher{
		published: make(chan eventbus.Event, 1),
		err:       errors.New("broker down"),
	}
	dispatcher := NewBusDispatcher(publisher, slog.Default())

	// Dispatch must not panic or surface the broker error.
	dispatcher.Dispatch(context.Background(), "contract-2", events.ApprovalRejected{
		BaseEvent: events.BaseEvent{Type: events.ApprovalRejectedEvent, EntityID: "contract-2"},
	})

	select {
	case <-publisher.published:
	case <-time.After(time.Second):
		t.Fatal("publish attempt never happened")
	}
}

func TestBusDispatcherOutlivesRequestContext(t *testing.T) {
	t.Parallel()

	publisher := &capturingPublisher{published: make(chan eventbus.Event, 1)}
	dispatcher := NewBusDispatcher(publisher, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dispatcher.Dispatch(ctx, "contract-3", events.ApprovalApproved{
		BaseEvent: events.BaseEvent{Type: events.ApprovalApprovedEvent, EntityID: "contract-3"},
	})

	select {
	case event := <-publisher.published:
		require.Equal(t, events.ApprovalApprovedEvent, event.GetType())
	case <-time.After(time.Second):
		t.Fatal("notification was dropped with the request context")
	}
}
