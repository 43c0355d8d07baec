// Package trigger propagates derived events between otherwise-independent
// per-domain timelines for the same underlying person.
package trigger

import (
	"github.com/healthsim/healthsim/pkg/models"
)

// RegisteredTrigger is one process-wide rule mapping a source event type to
// a derived event. An empty SourceProduct matches the event's product in
// any timeline; an empty TargetProduct keeps the derived event in the
// source timeline.
type RegisteredTrigger struct {
	SourceProduct   models.Product         `json:"source_product,omitempty"`
	SourceEventType string                 `json:"source_event_type" validate:"required"`
	TargetProduct   models.Product         `json:"target_product,omitempty"`
	TargetEventType string                 `json:"target_event_type" validate:"required"`
	DelayDays       int                    `json:"delay_days"`
	Priority        int                    `json:"priority"`
	Condition       *models.EventCondition `json:"condition,omitempty"`
	Parameters      map[string]any         `json:"parameters,omitempty"`
}

// Registry is an immutable snapshot of trigger rules, constructed once at
// startup from defaults plus caller overrides and passed explicitly into
// the coordinator. It is never mutated mid-run.
type Registry struct {
	bySource map[string][]*RegisteredTrigger
}

// NewRegistry builds and validates a registry. The trigger graph over
// product:event_type nodes must be acyclic; a cycle is a
// ConfigurationError because runtime cycle-breaking would undermine
// determinism.
func NewRegistry(triggers ...*RegisteredTrigger) (*Registry, error) {
	r := &Registry{bySource: make(map[string][]*RegisteredTrigger)}

	for _, t := range triggers {
		if t.SourceEventType == "" || t.TargetEventType == "" {
			return nil, models.NewConfigurationError("trigger requires source and target event types")
		}

		if t.TargetProduct != "" && !models.IsKnownProduct(t.TargetProduct) {
			return nil, models.NewConfigurationError("trigger targets unknown product %q", t.TargetProduct)
		}

		if t.DelayDays < 0 {
			return nil, models.NewConfigurationError("trigger %s→%s has a negative delay", t.SourceEventType, t.TargetEventType)
		}

		r.bySource[t.SourceEventType] = append(r.bySource[t.SourceEventType], t)
	}

	if cycle := r.findCycle(); cycle != "" {
		return nil, models.NewConfigurationError("cyclic trigger graph through %s", cycle)
	}

	return r, nil
}

// findCycle builds the full derivation graph over product:event_type nodes
// and checks it for cycles. An event materialized in product p can fire any
// rule whose source matches (p, event), landing the derived event in the
// rule's target product (or p when the rule has none).
func (r *Registry) findCycle() string {
	edges := make(map[string][]string)

	var addEdgesFrom func(p models.Product, eventType string)

	addEdgesFrom = func(p models.Product, eventType string) {
		node := string(p) + ":" + eventType
		if _, seen := edges[node]; seen {
			return
		}

		edges[node] = []string{}

		for _, t := range r.TriggersFor(p, eventType) {
			targetProduct := t.TargetProduct
			if targetProduct == "" {
				targetProduct = p
			}

			edges[node] = append(edges[node], string(targetProduct)+":"+t.TargetEventType)
			addEdgesFrom(targetProduct, t.TargetEventType)
		}
	}

	for eventType, rules := range r.bySource {
		for _, t := range rules {
			if t.SourceProduct != "" {
				addEdgesFrom(t.SourceProduct, eventType)
			} else {
				for _, p := range models.KnownProducts {
					addEdgesFrom(p, eventType)
				}
			}
		}
	}

	return models.FindTriggerCycle(edges)
}

// TriggersFor returns the rules applicable to an event of the given type
// materialized in the given product's timeline, in registration order.
func (r *Registry) TriggersFor(product models.Product, eventType string) []*RegisteredTrigger {
	var matched []*RegisteredTrigger

	for _, t := range r.bySource[eventType] {
		if t.SourceProduct == "" || t.SourceProduct == product {
			matched = append(matched, t)
		}
	}

	return matched
}

// Defaults is the pre-registered healthcare trigger set: clinical activity
// produces insurance claims, prescriptions produce pharmacy fills, trial
// visits produce clinical encounters. Callers extend or override it at
// startup.
func Defaults() []*RegisteredTrigger {
	return []*RegisteredTrigger{
		{
			SourceProduct:   models.ProductPatientSim,
			SourceEventType: "diagnosis",
			TargetProduct:   models.ProductMemberSim,
			TargetEventType: "claim_professional",
			DelayDays:       2,
			Priority:        1,
		},
		{
			SourceProduct:   models.ProductPatientSim,
			SourceEventType: "admission",
			TargetProduct:   models.ProductMemberSim,
			TargetEventType: "claim_institutional",
			DelayDays:       3,
			Priority:        1,
		},
		{
			SourceProduct:   models.ProductPatientSim,
			SourceEventType: "encounter",
			TargetProduct:   models.ProductMemberSim,
			TargetEventType: "claim_professional",
			DelayDays:       1,
			Priority:        2,
		},
		{
			SourceProduct:   models.ProductPatientSim,
			SourceEventType: "medication_order",
			TargetProduct:   models.ProductRxMemberSim,
			TargetEventType: "fill",
			DelayDays:       1,
			Priority:        1,
		},
		{
			SourceProduct:   models.ProductRxMemberSim,
			SourceEventType: "new_rx",
			TargetProduct:   models.ProductRxMemberSim,
			TargetEventType: "fill",
			DelayDays:       1,
			Priority:        1,
		},
		{
			SourceProduct:   models.ProductTrialSim,
			SourceEventType: "scheduled_visit",
			TargetProduct:   models.ProductPatientSim,
			TargetEventType: "encounter",
			DelayDays:       0,
			Priority:        3,
		},
	}
}

// DefaultRegistry builds a registry from the default set plus overrides.
func DefaultRegistry(overrides ...*RegisteredTrigger) (*Registry, error) {
	return NewRegistry(append(Defaults(), overrides...)...)
}
