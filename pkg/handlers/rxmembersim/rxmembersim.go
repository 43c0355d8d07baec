// Package rxmembersim generates pharmacy benefit records: prescriptions,
// fills, therapy episodes, and adherence signals.
package rxmembersim

import (
	"math/rand"
	"time"

	"github.com/healthsim/healthsim/pkg/handlers"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
)

type pharmacy struct {
	ID   string
	Name string
	NPI  string
}

type Handlers struct {
	pharmacies []pharmacy
}

func New() *Handlers {
	return &Handlers{
		pharmacies: []pharmacy{
			{ID: "PHR-001", Name: "CVS Pharmacy", NPI: "1111111111"},
			{ID: "PHR-002", Name: "Walgreens", NPI: "2222222222"},
			{ID: "PHR-003", Name: "Walmart Pharmacy", NPI: "3333333333"},
		},
	}
}

func (h *Handlers) RegisterAll(r *registry.Registry) {
	r.Register(models.ProductRxMemberSim, "new_rx", registry.HandlerFunc(h.NewRx))
	r.Register(models.ProductRxMemberSim, "fill", registry.HandlerFunc(h.Fill))
	r.Register(models.ProductRxMemberSim, "refill", registry.HandlerFunc(h.Refill))
	r.Register(models.ProductRxMemberSim, "reversal", registry.HandlerFunc(h.Reversal))
	r.Register(models.ProductRxMemberSim, "therapy_start", registry.HandlerFunc(h.TherapyStart))
	r.Register(models.ProductRxMemberSim, "therapy_change", registry.HandlerFunc(h.TherapyChange))
	r.Register(models.ProductRxMemberSim, "therapy_discontinue", registry.HandlerFunc(h.TherapyDiscontinue))
	r.Register(models.ProductRxMemberSim, "adherence_gap", registry.HandlerFunc(h.AdherenceGap))
	r.Register(models.ProductRxMemberSim, "mpr_threshold", registry.HandlerFunc(h.MPRThreshold))
}

func (h *Handlers) selectPharmacy(rng *rand.Rand) map[string]any {
	p := handlers.Pick(rng, h.pharmacies)

	return map[string]any{
		"pharmacy_id": p.ID,
		"name":        p.Name,
		"npi":         p.NPI,
	}
}

func (h *Handlers) NewRx(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rxID := handlers.DeterministicID("RX", entity.ID, ev.ID)
	refills := handlers.IntParam(ev.Parameters, "refills", 3)

	return &registry.Result{
		Record: map[string]any{
			"rx_id":              rxID,
			"member_id":          entity.ID,
			"rxnorm":             handlers.Param(ev.Parameters, "rxnorm", "860975"),
			"drug_name":          handlers.Param(ev.Parameters, "drug_name", "Metformin 500 MG"),
			"written_date":       ev.Date.Format(time.DateOnly),
			"prescriber_npi":     handlers.Param(ev.Parameters, "prescriber_npi", "1234567890"),
			"quantity_written":   handlers.IntParam(ev.Parameters, "quantity", 30),
			"days_supply":        handlers.IntParam(ev.Parameters, "days_supply", 30),
			"refills_authorized": refills,
			"refills_remaining":  refills,
			"status":             "active",
		},
		Facts: map[string]any{"active_rx_id": rxID},
	}, nil
}

func (h *Handlers) Fill(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	fillID := handlers.DeterministicID("FILL", entity.ID, ev.ID)

	rxID := handlers.Param(ev.Parameters, "rx_id", "")
	if rxID == "" {
		rxID, _ = context["active_rx_id"].(string)
	}

	return &registry.Result{
		Record: map[string]any{
			"fill_id":            fillID,
			"rx_id":              rxID,
			"member_id":          entity.ID,
			"fill_date":          ev.Date.Format(time.DateOnly),
			"pharmacy":           h.selectPharmacy(rng),
			"ndc":                handlers.Param(ev.Parameters, "ndc", "00000-0000-00"),
			"drug_name":          handlers.Param(ev.Parameters, "drug_name", "Medication"),
			"quantity_dispensed": handlers.IntParam(ev.Parameters, "quantity", 30),
			"days_supply":        handlers.IntParam(ev.Parameters, "days_supply", 30),
			"fill_number":        handlers.IntParam(ev.Parameters, "fill_number", 1),
			"status":             "dispensed",
		},
		Facts: map[string]any{"last_fill_id": fillID, "last_fill_date": ev.Date.Format(time.DateOnly)},
	}, nil
}

func (h *Handlers) Refill(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	fillID := handlers.DeterministicID("FILL", entity.ID, ev.ID)

	rxID := handlers.Param(ev.Parameters, "rx_id", "")
	if rxID == "" {
		rxID, _ = context["active_rx_id"].(string)
	}

	return &registry.Result{
		Record: map[string]any{
			"fill_id":            fillID,
			"rx_id":              rxID,
			"member_id":          entity.ID,
			"fill_date":          ev.Date.Format(time.DateOnly),
			"pharmacy":           h.selectPharmacy(rng),
			"quantity_dispensed": handlers.IntParam(ev.Parameters, "quantity", 30),
			"days_supply":        handlers.IntParam(ev.Parameters, "days_supply", 30),
			"fill_number":        handlers.IntParam(ev.Parameters, "fill_number", 2),
			"is_refill":          true,
			"status":             "dispensed",
		},
		Facts: map[string]any{"last_fill_id": fillID, "last_fill_date": ev.Date.Format(time.DateOnly)},
	}, nil
}

func (h *Handlers) Reversal(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	fillID := handlers.Param(ev.Parameters, "fill_id", "")
	if fillID == "" {
		fillID, _ = context["last_fill_id"].(string)
	}

	return &registry.Result{
		Record: map[string]any{
			"fill_id":         fillID,
			"member_id":       entity.ID,
			"reversal_date":   ev.Date.Format(time.DateOnly),
			"reversal_reason": handlers.Param(ev.Parameters, "reason", "returned_to_stock"),
			"status":          "reversed",
		},
	}, nil
}

func (h *Handlers) TherapyStart(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	therapyID := handlers.DeterministicID("THR", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"therapy_id":    therapyID,
			"member_id":     entity.ID,
			"therapy_class": handlers.Param(ev.Parameters, "therapy_class", "antidiabetic"),
			"drug_name":     handlers.Param(ev.Parameters, "drug_name", "Metformin"),
			"start_date":    ev.Date.Format(time.DateOnly),
			"indication":    handlers.Param(ev.Parameters, "indication", "Type 2 Diabetes"),
			"status":        "active",
		},
		Facts: map[string]any{"active_therapy_id": therapyID},
	}, nil
}

func (h *Handlers) TherapyChange(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	therapyID := handlers.Param(ev.Parameters, "therapy_id", "")
	if therapyID == "" {
		therapyID, _ = context["active_therapy_id"].(string)
	}

	return &registry.Result{
		Record: map[string]any{
			"therapy_id":  therapyID,
			"member_id":   entity.ID,
			"change_date": ev.Date.Format(time.DateOnly),
			"change_type": handlers.Param(ev.Parameters, "change_type", "dose_adjustment"),
			"old_drug":    handlers.Param(ev.Parameters, "old_drug", ""),
			"new_drug":    handlers.Param(ev.Parameters, "new_drug", ""),
			"reason":      handlers.Param(ev.Parameters, "reason", "therapeutic_optimization"),
		},
	}, nil
}

func (h *Handlers) TherapyDiscontinue(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	therapyID := handlers.Param(ev.Parameters, "therapy_id", "")
	if therapyID == "" {
		therapyID, _ = context["active_therapy_id"].(string)
	}

	return &registry.Result{
		Record: map[string]any{
			"therapy_id":       therapyID,
			"member_id":        entity.ID,
			"discontinue_date": ev.Date.Format(time.DateOnly),
			"reason":           handlers.Param(ev.Parameters, "reason", "therapy_complete"),
			"status":           "discontinued",
		},
		Facts: map[string]any{"active_therapy_id": ""},
	}, nil
}

func (h *Handlers) AdherenceGap(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	gapID := handlers.DeterministicID("ADH", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"gap_id":                  gapID,
			"member_id":               entity.ID,
			"therapy_class":           handlers.Param(ev.Parameters, "therapy_class", ""),
			"drug_name":               handlers.Param(ev.Parameters, "drug_name", ""),
			"gap_start_date":          ev.Date.Format(time.DateOnly),
			"days_without_medication": handlers.IntParam(ev.Parameters, "gap_days", 7),
			"status":                  "open",
		},
	}, nil
}

func (h *Handlers) MPRThreshold(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	mpr := handlers.Param(ev.Parameters, "mpr", 0.75)
	threshold := handlers.Param(ev.Parameters, "threshold", 0.80)

	return &registry.Result{
		Record: map[string]any{
			"member_id":        entity.ID,
			"therapy_class":    handlers.Param(ev.Parameters, "therapy_class", ""),
			"measurement_date": ev.Date.Format(time.DateOnly),
			"mpr":              mpr,
			"threshold":        threshold,
			"is_adherent":      mpr >= threshold,
		},
		Facts: map[string]any{"adherent": mpr >= threshold},
	}, nil
}
