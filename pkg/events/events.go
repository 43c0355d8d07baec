// Package events defines event types and structures for generation run
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthsim/healthsim/pkg/models"
)

type EventType string

const Topic = "healthsim.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Journey lifecycle events.
	JourneyStartedEvent   EventType = "journey.started"
	JourneyCompletedEvent EventType = "journey.completed"

	// Per-event notifications.
	EventGeneratedEvent EventType = "event.generated"
	EventSkippedEvent   EventType = "event.skipped"

	// Batch lifecycle events.
	BatchCompletedEvent EventType = "batch.completed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	EntityID  string         `json:"entity_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type JourneyStarted struct {
	BaseEvent

	JourneyName string         `json:"journey_name"`
	Product     models.Product `json:"product"`
	StartDate   time.Time      `json:"start_date"`
	MasterSeed  int64          `json:"master_seed"`
}

func (e JourneyStarted) GetType() EventType {
	return JourneyStartedEvent
}

type JourneyCompleted struct {
	BaseEvent

	JourneyName string               `json:"journey_name"`
	Product     models.Product       `json:"product"`
	State       models.TimelineState `json:"state"`
	Generated   int                  `json:"generated"`
	Skipped     int                  `json:"skipped"`
	Errors      int                  `json:"errors"`
	Budget      *models.BudgetTrip   `json:"budget,omitempty"`
}

func (e JourneyCompleted) GetType() EventType {
	return JourneyCompletedEvent
}

type EventGenerated struct {
	BaseEvent

	Product   models.Product `json:"product"`
	EventType string         `json:"event_type"`
	Date      time.Time      `json:"date"`
	Phase     string         `json:"phase,omitempty"`
	Derived   bool           `json:"derived,omitempty"`
}

func (e EventGenerated) GetType() EventType {
	return EventGeneratedEvent
}

type EventSkipped struct {
	BaseEvent

	Product   models.Product    `json:"product"`
	EventType string            `json:"event_type"`
	Reason    models.SkipReason `json:"reason"`
	Detail    string            `json:"detail,omitempty"`
}

func (e EventSkipped) GetType() EventType {
	return EventSkippedEvent
}

type BatchCompleted struct {
	BaseEvent

	JourneyName   string        `json:"journey_name"`
	Entities      int           `json:"entities"`
	Timelines     int           `json:"timelines"`
	Generated     int           `json:"generated"`
	Skipped       int           `json:"skipped"`
	TriggersFired int           `json:"triggers_fired"`
	Duration      time.Duration `json:"duration"`
}

func (e BatchCompleted) GetType() EventType {
	return BatchCompletedEvent
}

func NewBaseEvent(eventType EventType, entityID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		EntityID:  entityID,
		Metadata:  make(map[string]any),
	}
}
