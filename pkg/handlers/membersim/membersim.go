// Package membersim generates health plan records: enrollment spans,
// claims, and quality gaps.
package membersim

import (
	"math/rand"
	"time"

	"github.com/healthsim/healthsim/pkg/handlers"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
)

type plan struct {
	ID   string
	Name string
	Type string
}

type Handlers struct {
	plans []plan
}

func New() *Handlers {
	return &Handlers{
		plans: []plan{
			{ID: "PLAN-MA-001", Name: "Medicare Advantage Gold", Type: "MA"},
			{ID: "PLAN-MA-002", Name: "Medicare Advantage Silver", Type: "MA"},
			{ID: "PLAN-COM-001", Name: "Commercial PPO", Type: "Commercial"},
			{ID: "PLAN-MCD-001", Name: "Medicaid Standard", Type: "Medicaid"},
		},
	}
}

func (h *Handlers) RegisterAll(r *registry.Registry) {
	r.Register(models.ProductMemberSim, "new_enrollment", registry.HandlerFunc(h.NewEnrollment))
	r.Register(models.ProductMemberSim, "termination", registry.HandlerFunc(h.Termination))
	r.Register(models.ProductMemberSim, "plan_change", registry.HandlerFunc(h.PlanChange))
	r.Register(models.ProductMemberSim, "claim_professional", registry.HandlerFunc(h.ClaimProfessional))
	r.Register(models.ProductMemberSim, "claim_institutional", registry.HandlerFunc(h.ClaimInstitutional))
	r.Register(models.ProductMemberSim, "claim_pharmacy", registry.HandlerFunc(h.ClaimPharmacy))
	r.Register(models.ProductMemberSim, "gap_identified", registry.HandlerFunc(h.GapIdentified))
	r.Register(models.ProductMemberSim, "gap_closed", registry.HandlerFunc(h.GapClosed))
}

func (h *Handlers) selectPlan(rng *rand.Rand, planType string) plan {
	if planType != "" {
		matching := make([]plan, 0, len(h.plans))

		for _, p := range h.plans {
			if p.Type == planType {
				matching = append(matching, p)
			}
		}

		if len(matching) > 0 {
			return handlers.Pick(rng, matching)
		}
	}

	return handlers.Pick(rng, h.plans)
}

func planRecord(p plan) map[string]any {
	return map[string]any{
		"plan_id":   p.ID,
		"plan_name": p.Name,
		"plan_type": p.Type,
	}
}

func (h *Handlers) NewEnrollment(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	enrollmentID := handlers.DeterministicID("ENR", entity.ID, ev.ID)
	selected := h.selectPlan(rng, handlers.Param(ev.Parameters, "plan_type", ""))

	return &registry.Result{
		Record: map[string]any{
			"enrollment_id":   enrollmentID,
			"member_id":       entity.ID,
			"plan":            planRecord(selected),
			"effective_date":  ev.Date.Format(time.DateOnly),
			"enrollment_type": handlers.Param(ev.Parameters, "enrollment_type", "new"),
			"group_id":        handlers.Param(ev.Parameters, "group_id", "GRP-001"),
			"status":          "active",
		},
		Facts: map[string]any{
			"enrolled":    true,
			"plan_id":     selected.ID,
			"plan_type":   selected.Type,
			"enrolled_on": ev.Date.Format(time.DateOnly),
		},
	}, nil
}

func (h *Handlers) Termination(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	return &registry.Result{
		Record: map[string]any{
			"member_id":          entity.ID,
			"termination_date":   ev.Date.Format(time.DateOnly),
			"termination_reason": handlers.Param(ev.Parameters, "reason", "voluntary"),
			"status":             "terminated",
		},
		Facts: map[string]any{"enrolled": false},
	}, nil
}

func (h *Handlers) PlanChange(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	oldPlanID, _ := context["plan_id"].(string)
	newPlan := h.selectPlan(rng, handlers.Param(ev.Parameters, "new_plan_type", ""))

	return &registry.Result{
		Record: map[string]any{
			"member_id":      entity.ID,
			"effective_date": ev.Date.Format(time.DateOnly),
			"old_plan_id":    oldPlanID,
			"new_plan":       planRecord(newPlan),
			"change_reason":  handlers.Param(ev.Parameters, "reason", "open_enrollment"),
		},
		Facts: map[string]any{"plan_id": newPlan.ID, "plan_type": newPlan.Type},
	}, nil
}

func (h *Handlers) ClaimProfessional(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	claimID := handlers.DeterministicID("CLM", entity.ID, ev.ID)

	billed := handlers.Param(ev.Parameters, "billed_amount", 0.0)
	if billed == 0 {
		billed = handlers.Round2(rng.Float64()*425 + 75)
	}

	allowed := handlers.Round2(billed * (rng.Float64()*0.3 + 0.6))
	paid := handlers.Round2(allowed * (rng.Float64()*0.2 + 0.7))

	return &registry.Result{
		Record: map[string]any{
			"claim_id":              claimID,
			"member_id":             entity.ID,
			"claim_type":            "professional",
			"service_date":          ev.Date.Format(time.DateOnly),
			"provider_npi":          handlers.Param(ev.Parameters, "provider_npi", "1234567890"),
			"diagnosis_codes":       handlers.Param(ev.Parameters, "diagnosis_codes", []any{"R69"}),
			"procedure_codes":       handlers.Param(ev.Parameters, "procedure_codes", []any{"99213"}),
			"billed_amount":         billed,
			"allowed_amount":        allowed,
			"paid_amount":           paid,
			"member_responsibility": handlers.Round2(allowed - paid),
			"status":                "paid",
		},
	}, nil
}

func (h *Handlers) ClaimInstitutional(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	claimID := handlers.DeterministicID("CLM", entity.ID, ev.ID)

	// Institutional claims are larger.
	billed := handlers.Param(ev.Parameters, "billed_amount", 0.0)
	if billed == 0 {
		billed = handlers.Round2(rng.Float64()*45000 + 5000)
	}

	allowed := handlers.Round2(billed * (rng.Float64()*0.3 + 0.5))
	paid := handlers.Round2(allowed * (rng.Float64()*0.15 + 0.8))

	return &registry.Result{
		Record: map[string]any{
			"claim_id":        claimID,
			"member_id":       entity.ID,
			"claim_type":      "institutional",
			"admit_date":      handlers.Param(ev.Parameters, "admit_date", ev.Date.Format(time.DateOnly)),
			"discharge_date":  handlers.Param(ev.Parameters, "discharge_date", ""),
			"facility_npi":    handlers.Param(ev.Parameters, "facility_npi", "9876543210"),
			"drg":             handlers.Param(ev.Parameters, "drg", ""),
			"diagnosis_codes": handlers.Param(ev.Parameters, "diagnosis_codes", []any{"R69"}),
			"procedure_codes": handlers.Param(ev.Parameters, "procedure_codes", []any{}),
			"billed_amount":   billed,
			"allowed_amount":  allowed,
			"paid_amount":     paid,
			"status":          "paid",
		},
	}, nil
}

func (h *Handlers) ClaimPharmacy(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	claimID := handlers.DeterministicID("RX", entity.ID, ev.ID)

	billed := handlers.Param(ev.Parameters, "billed_amount", 0.0)
	if billed == 0 {
		billed = handlers.Round2(rng.Float64()*490 + 10)
	}

	allowed := handlers.Round2(billed * (rng.Float64()*0.3 + 0.7))

	copay := handlers.Param(ev.Parameters, "copay", 0.0)
	if copay == 0 {
		copay = handlers.Pick(rng, []float64{5, 10, 15, 25, 50})
	}

	paid := allowed - copay
	if paid < 0 {
		paid = 0
	}

	return &registry.Result{
		Record: map[string]any{
			"claim_id":       claimID,
			"member_id":      entity.ID,
			"claim_type":     "pharmacy",
			"fill_date":      ev.Date.Format(time.DateOnly),
			"pharmacy_npi":   handlers.Param(ev.Parameters, "pharmacy_npi", "5555555555"),
			"ndc":            handlers.Param(ev.Parameters, "ndc", "00000-0000-00"),
			"drug_name":      handlers.Param(ev.Parameters, "drug_name", "Medication"),
			"quantity":       handlers.IntParam(ev.Parameters, "quantity", 30),
			"days_supply":    handlers.IntParam(ev.Parameters, "days_supply", 30),
			"billed_amount":  billed,
			"allowed_amount": allowed,
			"copay":          copay,
			"paid_amount":    handlers.Round2(paid),
			"status":         "paid",
		},
	}, nil
}

func (h *Handlers) GapIdentified(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	gapID := handlers.DeterministicID("GAP", entity.ID, ev.ID)
	measure := handlers.Param(ev.Parameters, "measure", "CDC")

	return &registry.Result{
		Record: map[string]any{
			"gap_id":              gapID,
			"member_id":           entity.ID,
			"measure":             measure,
			"measure_description": handlers.Param(ev.Parameters, "description", "Comprehensive Diabetes Care"),
			"gap_type":            handlers.Param(ev.Parameters, "gap_type", "missing_service"),
			"identified_date":     ev.Date.Format(time.DateOnly),
			"due_date":            handlers.Param(ev.Parameters, "due_date", ""),
			"status":              "open",
			"priority":            handlers.Param(ev.Parameters, "priority", "routine"),
		},
		Facts: map[string]any{"open_gap_id": gapID, "open_gap_measure": measure},
	}, nil
}

func (h *Handlers) GapClosed(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	gapID := handlers.Param(ev.Parameters, "gap_id", "")
	if gapID == "" {
		gapID, _ = context["open_gap_id"].(string)
	}

	measure := handlers.Param(ev.Parameters, "measure", "")
	if measure == "" {
		measure, _ = context["open_gap_measure"].(string)
	}

	return &registry.Result{
		Record: map[string]any{
			"gap_id":         gapID,
			"member_id":      entity.ID,
			"measure":        measure,
			"closed_date":    ev.Date.Format(time.DateOnly),
			"closure_reason": handlers.Param(ev.Parameters, "reason", "service_completed"),
			"status":         "closed",
		},
	}, nil
}
