package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct-tag validation plus the semantic checks the schema
// cannot express: phases and a flat event list are mutually exclusive,
// delays must be a fixed offset or a complete range, products must be
// known, and the event-level trigger graph must be acyclic. Any failure is
// a ConfigurationError raised before scheduling begins.
func (j *JourneySpecification) Validate() error {
	if err := validate.Struct(j); err != nil {
		return &ConfigurationError{Msg: "journey " + j.Name, Err: err}
	}

	if len(j.Phases) > 0 && len(j.Events) > 0 {
		return NewConfigurationError("journey %s: phases and events are mutually exclusive", j.Name)
	}

	if len(j.Phases) == 0 && len(j.Events) == 0 {
		return NewConfigurationError("journey %s: declares neither phases nor events", j.Name)
	}

	for _, p := range j.Products {
		if !IsKnownProduct(p) {
			return NewConfigurationError("journey %s: unknown product %q", j.Name, p)
		}
	}

	edges := make(map[string][]string)

	for _, phase := range j.EffectivePhases() {
		for ei, def := range phase.Events {
			where := fmt.Sprintf("journey %s, phase %s, event %d (%s)", j.Name, phase.Name, ei, def.EventType)

			if err := validateDelay(def.Delay, where); err != nil {
				return err
			}

			if def.Product != "" && !IsKnownProduct(def.Product) {
				return NewConfigurationError("%s: unknown product %q", where, def.Product)
			}

			source := nodeKey(j.eventProduct(def), def.EventType)

			for _, t := range def.Triggers {
				if t.TargetProduct != "" && !IsKnownProduct(t.TargetProduct) {
					return NewConfigurationError("%s: trigger targets unknown product %q", where, t.TargetProduct)
				}

				if t.Delay != nil {
					if err := validateDelay(*t.Delay, where+" trigger"); err != nil {
						return err
					}
				}

				target := t.TargetProduct
				if target == "" {
					target = j.eventProduct(def)
				}

				edges[source] = append(edges[source], nodeKey(target, t.TargetEventType))
			}
		}
	}

	if cycle := FindTriggerCycle(edges); cycle != "" {
		return NewConfigurationError("journey %s: cyclic trigger graph through %s", j.Name, cycle)
	}

	return nil
}

func (j *JourneySpecification) eventProduct(def *EventDefinition) Product {
	if def.Product != "" {
		return def.Product
	}

	return j.PrimaryProduct()
}

func validateDelay(d DelaySpec, where string) error {
	if d.Days != nil {
		if *d.Days < 0 {
			return NewConfigurationError("%s: negative delay", where)
		}

		if d.MinDays != nil || d.MaxDays != nil {
			return NewConfigurationError("%s: delay declares both fixed days and a range", where)
		}

		return nil
	}

	if d.MinDays == nil && d.MaxDays == nil {
		// No delay at all means day zero of the anchor.
		return nil
	}

	if d.MinDays == nil || d.MaxDays == nil {
		return NewConfigurationError("%s: delay range requires both min_days and max_days", where)
	}

	if *d.MinDays < 0 || *d.MaxDays < *d.MinDays {
		return NewConfigurationError("%s: delay range [%d,%d] is invalid", where, *d.MinDays, *d.MaxDays)
	}

	return nil
}

func nodeKey(p Product, eventType string) string {
	return string(p) + ":" + eventType
}

// FindTriggerCycle walks the product:event_type trigger graph and returns a
// node on a cycle, or "" when the graph is acyclic. Runtime cycle-breaking
// would undermine determinism, so cycles are rejected up front.
func FindTriggerCycle(edges map[string][]string) string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(edges))

	var visit func(node string) string

	visit = func(node string) string {
		switch state[node] {
		case visiting:
			return node
		case done:
			return ""
		}

		state[node] = visiting

		for _, next := range edges[node] {
			if hit := visit(next); hit != "" {
				return hit
			}
		}

		state[node] = done

		return ""
	}

	for node := range edges {
		if hit := visit(node); hit != "" {
			return hit
		}
	}

	return ""
}
