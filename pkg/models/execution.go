package models

import "time"

// Entity is the simulated person a timeline is generated for. Attributes
// are static demographic or clinical facts; the engine reads them but never
// mutates them.
type Entity struct {
	ID         string         `json:"id" validate:"required"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Attribute returns a static attribute value.
func (e *Entity) Attribute(name string) (any, bool) {
	if e == nil || e.Attributes == nil {
		return nil, false
	}

	v, ok := e.Attributes[name]

	return v, ok
}

// ScheduledEvent is a dated occurrence awaiting materialization by a
// handler. Declared events carry their phase/event/repeat coordinates;
// derived events carry the trigger priority and the source event ID.
type ScheduledEvent struct {
	ID         string         `json:"id"`
	Product    Product        `json:"product"`
	EventType  string         `json:"event_type"`
	Date       time.Time      `json:"date"`
	Phase      string         `json:"phase,omitempty"`
	PhaseIndex int            `json:"phase_index"`
	EventIndex int            `json:"event_index"`
	RepeatIdx  int            `json:"repeat_index"`
	Seq        int            `json:"seq"`
	Seed       int64          `json:"-"`
	Parameters map[string]any `json:"parameters,omitempty"`

	Definition *EventDefinition `json:"-"`

	Derived       bool   `json:"derived,omitempty"`
	Priority      int    `json:"priority,omitempty"`
	SourceEventID string `json:"source_event_id,omitempty"`
}

// GeneratedEvent is the opaque handler output plus the date and event type,
// used for trigger evaluation and provenance.
type GeneratedEvent struct {
	ID        string         `json:"id"`
	Product   Product        `json:"product"`
	EventType string         `json:"event_type"`
	Date      time.Time      `json:"date"`
	Phase     string         `json:"phase,omitempty"`
	Seq       int            `json:"seq"`
	Record    map[string]any `json:"record"`
	Facts     map[string]any `json:"facts,omitempty"`
}

// SkipReason explains why a scheduled event did not materialize.
type SkipReason string

const (
	SkipNoHandler       SkipReason = "no_handler"
	SkipHandlerError    SkipReason = "handler_error"
	SkipConditionFalse  SkipReason = "condition_false"
	SkipConditionError  SkipReason = "condition_error"
	SkipPhaseNotEntered SkipReason = "phase_not_entered"
	SkipBudgetExceeded  SkipReason = "budget_exceeded"
	SkipConfigError     SkipReason = "config_error"
)

// SkippedEvent records one event that was scheduled but not materialized.
type SkippedEvent struct {
	EventType string     `json:"event_type"`
	Product   Product    `json:"product"`
	Date      time.Time  `json:"date,omitempty"`
	Phase     string     `json:"phase,omitempty"`
	Reason    SkipReason `json:"reason"`
	Detail    string     `json:"detail,omitempty"`
}

// TimelineState is the scheduler's lifecycle state.
type TimelineState string

const (
	TimelineNotStarted  TimelineState = "not_started"
	TimelinePhaseActive TimelineState = "phase_active"
	TimelineComplete    TimelineState = "complete"
)

// ExecutionResult is the sole artifact a run hands to external storage:
// ordered generated events, skipped events with reasons, and non-fatal
// errors. A run never aborts mid-timeline because of one bad event.
type ExecutionResult struct {
	EntityID    string            `json:"entity_id"`
	Product     Product           `json:"product"`
	JourneyName string            `json:"journey_name,omitempty"`
	StartDate   time.Time         `json:"start_date"`
	State       TimelineState     `json:"state"`
	Events      []*GeneratedEvent `json:"events"`
	Skipped     []*SkippedEvent   `json:"skipped,omitempty"`
	Errors      []string          `json:"errors,omitempty"`
	Budget      *BudgetTrip       `json:"budget,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
}

// BudgetTrip reports a tripped day cap or event-count circuit breaker.
type BudgetTrip struct {
	Kind  string `json:"kind"`
	Limit int    `json:"limit"`
}
