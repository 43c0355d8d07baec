// Package models defines the core domain models for journey-based synthetic
// healthcare data generation.
package models

// Product identifies the domain a timeline or event belongs to.
type Product string

const (
	ProductPatientSim  Product = "patientsim"
	ProductMemberSim   Product = "membersim"
	ProductRxMemberSim Product = "rxmembersim"
	ProductTrialSim    Product = "trialsim"
)

// KnownProducts lists every product the engine can route events to.
var KnownProducts = []Product{
	ProductPatientSim,
	ProductMemberSim,
	ProductRxMemberSim,
	ProductTrialSim,
}

// IsKnownProduct reports whether p is one of the supported products.
func IsKnownProduct(p Product) bool {
	for _, known := range KnownProducts {
		if p == known {
			return true
		}
	}

	return false
}

// JourneySpecification is the declarative description of how an entity's
// record evolves over time. It is immutable once loaded; the engine only
// reads it.
type JourneySpecification struct {
	Name         string             `json:"name"                   validate:"required,min=3"`
	Description  string             `json:"description,omitempty"`
	DurationDays int                `json:"duration_days"          validate:"required,gt=0"`
	Products     []Product          `json:"products"               validate:"required,min=1"`
	Phases       []*PhaseDefinition `json:"phases,omitempty"`
	Events       []*EventDefinition `json:"events,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

// PrimaryProduct is the product whose timeline the journey is scheduled on.
// Other listed products only receive derived events through triggers.
func (j *JourneySpecification) PrimaryProduct() Product {
	if len(j.Products) == 0 {
		return ""
	}

	return j.Products[0]
}

// EffectivePhases returns the journey's phases, wrapping a flat event list
// into a single implicit phase spanning the whole journey.
func (j *JourneySpecification) EffectivePhases() []*PhaseDefinition {
	if len(j.Phases) > 0 {
		return j.Phases
	}

	return []*PhaseDefinition{{
		Name:         "journey",
		DurationDays: j.DurationDays,
		Events:       j.Events,
	}}
}

// PhaseDefinition is an ordered group of events gated by an optional entry
// condition. A phase whose entry condition evaluates false is skipped in
// full without mutating context.
type PhaseDefinition struct {
	Name           string             `json:"name"            validate:"required"`
	DurationDays   int                `json:"duration_days"   validate:"required,gt=0"`
	EntryCondition *EventCondition    `json:"entry_condition,omitempty"`
	Events         []*EventDefinition `json:"events"          validate:"required,min=1"`
}

// EventDefinition declares one event within a phase: what it is, when it
// happens relative to its anchor, and what it may trigger.
type EventDefinition struct {
	EventType  string          `json:"event_type"            validate:"required"`
	Product    Product         `json:"product,omitempty"`
	Delay      DelaySpec       `json:"delay"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Condition  *EventCondition `json:"condition,omitempty"`
	SkillRef   string          `json:"skill_ref,omitempty"`
	Fallback   map[string]any  `json:"fallback,omitempty"`
	Repeat     *RepeatSpec     `json:"repeat,omitempty"`
	Triggers   []*TriggerSpec  `json:"triggers,omitempty"`
}

// Anchor names the reference date a delay is measured from.
type Anchor string

const (
	AnchorPhaseStart    Anchor = "phase_start"
	AnchorPreviousEvent Anchor = "previous_event"
	AnchorJourneyStart  Anchor = "journey_start"
)

// DelaySpec resolves to a single non-negative day offset at scheduling time:
// either a fixed offset or a draw from a bounded distribution.
type DelaySpec struct {
	Days         *int   `json:"days,omitempty"`
	MinDays      *int   `json:"min_days,omitempty"`
	MaxDays      *int   `json:"max_days,omitempty"`
	Distribution string `json:"distribution,omitempty" validate:"omitempty,oneof=uniform normal"`
	RelativeTo   Anchor `json:"relative_to,omitempty"  validate:"omitempty,oneof=phase_start previous_event journey_start"`
}

// Fixed reports whether the delay is a fixed day offset.
func (d DelaySpec) Fixed() bool {
	return d.Days != nil
}

// Anchor returns the resolved anchor, defaulting to the phase start.
func (d DelaySpec) Anchor() Anchor {
	if d.RelativeTo == "" {
		return AnchorPhaseStart
	}

	return d.RelativeTo
}

// RepeatSpec expands one event definition into count occurrences. With an
// interval the occurrences are spaced exactly interval days apart; without
// one, each occurrence re-resolves the event's delay relative to the
// previous occurrence's date.
type RepeatSpec struct {
	Count        int `json:"count"                   validate:"required,gt=0"`
	IntervalDays int `json:"interval_days,omitempty" validate:"omitempty,gt=0"`
}

// Operator is a comparison operator usable in an EventCondition.
type Operator string

const (
	OperatorEq       Operator = "eq"
	OperatorNe       Operator = "ne"
	OperatorGt       Operator = "gt"
	OperatorLt       Operator = "lt"
	OperatorIn       Operator = "in"
	OperatorContains Operator = "contains"
)

// EventCondition is a declarative predicate evaluated against the merged
// view of accumulated context facts and entity static attributes. Context
// wins when both carry the field.
type EventCondition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required,oneof=eq ne gt lt in contains"`
	Value    any      `json:"value"`
}

// TriggerSpec declares a derived event fired when this definition's event
// materializes. Without a target product the derived event lands in the
// same timeline; with one it lands in the linked entity's timeline for
// that product.
type TriggerSpec struct {
	TargetEventType string          `json:"target_event_type" validate:"required"`
	TargetProduct   Product         `json:"target_product,omitempty"`
	Delay           *DelaySpec      `json:"delay,omitempty"`
	Priority        int             `json:"priority"`
	Condition       *EventCondition `json:"condition,omitempty"`
	Parameters      map[string]any  `json:"parameters,omitempty"`
}
