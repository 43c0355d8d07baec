// Package trialsim generates clinical trial records: screening,
// randomization, study visits, safety events, and protocol deviations.
package trialsim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/healthsim/healthsim/pkg/handlers"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
)

type site struct {
	ID   string
	Name string
	PI   string
}

type Handlers struct {
	sites []site
}

func New() *Handlers {
	return &Handlers{
		sites: []site{
			{ID: "SITE-001", Name: "University Medical Center", PI: "Dr. James Wilson"},
			{ID: "SITE-002", Name: "Community Research Center", PI: "Dr. Emily Davis"},
			{ID: "SITE-003", Name: "Regional Clinical Trials", PI: "Dr. Robert Kim"},
		},
	}
}

func (h *Handlers) RegisterAll(r *registry.Registry) {
	r.Register(models.ProductTrialSim, "screening", registry.HandlerFunc(h.Screening))
	r.Register(models.ProductTrialSim, "randomization", registry.HandlerFunc(h.Randomization))
	r.Register(models.ProductTrialSim, "withdrawal", registry.HandlerFunc(h.Withdrawal))
	r.Register(models.ProductTrialSim, "scheduled_visit", registry.HandlerFunc(h.ScheduledVisit))
	r.Register(models.ProductTrialSim, "unscheduled_visit", registry.HandlerFunc(h.UnscheduledVisit))
	r.Register(models.ProductTrialSim, "adverse_event", registry.HandlerFunc(h.AdverseEvent))
	r.Register(models.ProductTrialSim, "serious_adverse_event", registry.HandlerFunc(h.SeriousAdverseEvent))
	r.Register(models.ProductTrialSim, "protocol_deviation", registry.HandlerFunc(h.ProtocolDeviation))
	r.Register(models.ProductTrialSim, "dose_modification", registry.HandlerFunc(h.DoseModification))
}

func (h *Handlers) selectSite(rng *rand.Rand) map[string]any {
	s := handlers.Pick(rng, h.sites)

	return map[string]any{
		"site_id": s.ID,
		"name":    s.Name,
		"pi":      s.PI,
	}
}

func (h *Handlers) Screening(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	screeningID := handlers.DeterministicID("SCR", entity.ID, ev.ID)

	passRate := handlers.Param(ev.Parameters, "pass_rate", 0.75)
	passed := rng.Float64() < passRate

	record := map[string]any{
		"screening_id":           screeningID,
		"subject_id":             entity.ID,
		"screening_date":         ev.Date.Format(time.DateOnly),
		"site":                   h.selectSite(rng),
		"inclusion_criteria_met": passed,
		"exclusion_criteria_met": false,
	}

	if passed {
		record["screen_status"] = "passed"
	} else {
		record["screen_status"] = "failed"
		record["screen_failure_reason"] = handlers.Param(ev.Parameters, "failure_reason", "Did not meet inclusion criteria")
	}

	return &registry.Result{
		Record: record,
		Facts:  map[string]any{"screened": true, "screen_passed": passed},
	}, nil
}

func (h *Handlers) Randomization(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	randomizationID := handlers.DeterministicID("RND", entity.ID, ev.ID)

	arm := h.assignArm(rng, ev.Parameters)

	return &registry.Result{
		Record: map[string]any{
			"randomization_id":       randomizationID,
			"subject_id":             entity.ID,
			"randomization_date":     ev.Date.Format(time.DateOnly),
			"treatment_arm":          arm,
			"randomization_number":   handlers.DeterministicID("R", entity.ID, "rand")[2:],
			"stratification_factors": handlers.Param(ev.Parameters, "strata", map[string]any{}),
		},
		Facts: map[string]any{"randomized": true, "treatment_arm": arm},
	}, nil
}

// assignArm draws a treatment arm from the configured weights. Arm order is
// fixed so identical seeds always land in the same arm.
func (h *Handlers) assignArm(rng *rand.Rand, params map[string]any) string {
	type weightedArm struct {
		name   string
		weight float64
	}

	arms := []weightedArm{{name: "Treatment", weight: 0.5}, {name: "Placebo", weight: 0.5}}

	if raw, ok := params["arm_weights"].(map[string]any); ok && len(raw) > 0 {
		arms = arms[:0]

		for _, name := range []string{"Treatment", "Placebo", "Active Comparator"} {
			if w, ok := raw[name].(float64); ok {
				arms = append(arms, weightedArm{name: name, weight: w})
			}
		}

		if len(arms) == 0 {
			arms = []weightedArm{{name: "Treatment", weight: 0.5}, {name: "Placebo", weight: 0.5}}
		}
	}

	total := 0.0
	for _, a := range arms {
		total += a.weight
	}

	draw := rng.Float64() * total

	cumulative := 0.0
	for _, a := range arms {
		cumulative += a.weight
		if draw < cumulative {
			return a.name
		}
	}

	return arms[len(arms)-1].name
}

func (h *Handlers) Withdrawal(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	return &registry.Result{
		Record: map[string]any{
			"subject_id":        entity.ID,
			"withdrawal_date":   ev.Date.Format(time.DateOnly),
			"withdrawal_reason": handlers.Param(ev.Parameters, "reason", "Subject decision"),
			"withdrawal_type":   handlers.Param(ev.Parameters, "type", "consent_withdrawn"),
			"last_visit_date":   handlers.Param(ev.Parameters, "last_visit", ""),
		},
		Facts: map[string]any{"withdrawn": true},
	}, nil
}

func (h *Handlers) ScheduledVisit(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	visitID := handlers.DeterministicID("VST", entity.ID, ev.ID)
	visitNumber := handlers.IntParam(ev.Parameters, "visit_number", 1)

	return &registry.Result{
		Record: map[string]any{
			"visit_id":             visitID,
			"subject_id":           entity.ID,
			"visit_date":           ev.Date.Format(time.DateOnly),
			"visit_number":         visitNumber,
			"visit_name":           handlers.Param(ev.Parameters, "visit_name", fmt.Sprintf("Visit %d", visitNumber)),
			"visit_window_start":   handlers.Param(ev.Parameters, "window_start", ""),
			"visit_window_end":     handlers.Param(ev.Parameters, "window_end", ""),
			"procedures_completed": handlers.Param(ev.Parameters, "procedures", []any{}),
			"status":               "completed",
		},
		Facts: map[string]any{"last_visit_number": visitNumber},
	}, nil
}

func (h *Handlers) UnscheduledVisit(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	visitID := handlers.DeterministicID("USV", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"visit_id":   visitID,
			"subject_id": entity.ID,
			"visit_date": ev.Date.Format(time.DateOnly),
			"visit_type": "unscheduled",
			"reason":     handlers.Param(ev.Parameters, "reason", "AE follow-up"),
			"status":     "completed",
		},
	}, nil
}

func (h *Handlers) AdverseEvent(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	aeID := handlers.DeterministicID("AE", entity.ID, ev.ID)

	status := "ongoing"
	if handlers.Param(ev.Parameters, "resolved", false) {
		status = "resolved"
	}

	return &registry.Result{
		Record: map[string]any{
			"ae_id":        aeID,
			"subject_id":   entity.ID,
			"onset_date":   ev.Date.Format(time.DateOnly),
			"ae_term":      handlers.Param(ev.Parameters, "term", "Headache"),
			"meddra_pt":    handlers.Param(ev.Parameters, "meddra_pt", ""),
			"severity":     handlers.Param(ev.Parameters, "severity", "Mild"),
			"serious":      false,
			"relationship": handlers.Param(ev.Parameters, "relationship", "Possibly related"),
			"action_taken": handlers.Param(ev.Parameters, "action", "None"),
			"outcome":      handlers.Param(ev.Parameters, "outcome", "Recovered"),
			"status":       status,
		},
	}, nil
}

func (h *Handlers) SeriousAdverseEvent(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	saeID := handlers.DeterministicID("SAE", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"sae_id":               saeID,
			"subject_id":           entity.ID,
			"onset_date":           ev.Date.Format(time.DateOnly),
			"ae_term":              handlers.Param(ev.Parameters, "term", "Hospitalization"),
			"meddra_pt":            handlers.Param(ev.Parameters, "meddra_pt", ""),
			"severity":             handlers.Param(ev.Parameters, "severity", "Severe"),
			"serious":              true,
			"seriousness_criteria": handlers.Param(ev.Parameters, "criteria", []any{"hospitalization"}),
			"relationship":         handlers.Param(ev.Parameters, "relationship", "Unknown"),
			"action_taken":         handlers.Param(ev.Parameters, "action", "Drug interrupted"),
			"outcome":              handlers.Param(ev.Parameters, "outcome", "Recovering"),
			"reported_to_sponsor":  true,
			"report_date":          ev.Date.Format(time.DateOnly),
		},
		Facts: map[string]any{"sae_reported": true},
	}, nil
}

func (h *Handlers) ProtocolDeviation(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	deviationID := handlers.DeterministicID("PD", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"deviation_id":      deviationID,
			"subject_id":        entity.ID,
			"deviation_date":    ev.Date.Format(time.DateOnly),
			"category":          handlers.Param(ev.Parameters, "category", "Visit window"),
			"description":       handlers.Param(ev.Parameters, "description", "Visit outside protocol window"),
			"severity":          handlers.Param(ev.Parameters, "severity", "Minor"),
			"corrective_action": handlers.Param(ev.Parameters, "action", "Training provided"),
		},
	}, nil
}

func (h *Handlers) DoseModification(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	return &registry.Result{
		Record: map[string]any{
			"subject_id":        entity.ID,
			"modification_date": ev.Date.Format(time.DateOnly),
			"modification_type": handlers.Param(ev.Parameters, "type", "dose_reduction"),
			"old_dose":          handlers.Param(ev.Parameters, "old_dose", ""),
			"new_dose":          handlers.Param(ev.Parameters, "new_dose", ""),
			"reason":            handlers.Param(ev.Parameters, "reason", "Toxicity"),
		},
	}, nil
}
