package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsim/healthsim/pkg/channels/gochannel"
	"github.com/healthsim/healthsim/pkg/events"
	"github.com/healthsim/healthsim/pkg/models"
)

func TestWatermillEventBusRoundTrip(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() {
		require.NoError(t, bus.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.JourneyCompleted, 1)

	require.NoError(t, bus.Handle(events.JourneyCompletedEvent, func(_ context.Context, event any) error {
		if completed, ok := event.(*events.JourneyCompleted); ok {
			received <- completed
		}

		return nil
	}))

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.JourneyCompleted{
		BaseEvent:   events.NewBaseEvent(events.JourneyCompletedEvent, "P1"),
		JourneyName: "diabetic-first-year",
		Product:     models.ProductPatientSim,
		State:       models.TimelineComplete,
		Generated:   4,
	}

	require.NoError(t, bus.Publish(ctx, "P1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "P1", got.EntityID)
		assert.Equal(t, "diabetic-first-year", got.JourneyName)
		assert.Equal(t, models.TimelineComplete, got.State)
		assert.Equal(t, 4, got.Generated)
	case <-time.After(5 * time.Second):
		t.Fatal("journey completed event was not delivered")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() {
		require.NoError(t, bus.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.BatchCompleted, 1)

	require.NoError(t, bus.Handle(events.BatchCompletedEvent, func(_ context.Context, event any) error {
		if completed, ok := event.(*events.BatchCompleted); ok {
			received <- completed
		}

		return nil
	}))

	require.NoError(t, bus.Subscribe(ctx))

	// Published types without a registered handler are acked and dropped,
	// never delivered to other handlers.
	started := events.JourneyStarted{
		BaseEvent:   events.NewBaseEvent(events.JourneyStartedEvent, "P1"),
		JourneyName: "diabetic-first-year",
		Product:     models.ProductPatientSim,
	}
	require.NoError(t, bus.Publish(ctx, "P1", started))

	completed := events.BatchCompleted{
		BaseEvent:   events.NewBaseEvent(events.BatchCompletedEvent, ""),
		JourneyName: "diabetic-first-year",
		Entities:    1,
	}
	require.NoError(t, bus.Publish(ctx, "run-1", completed))

	select {
	case got := <-received:
		assert.Equal(t, 1, got.Entities)
	case <-time.After(5 * time.Second):
		t.Fatal("batch completed event was not delivered")
	}

	assert.Empty(t, received)
}
