// Package patientsim generates clinical records: ADT movements, encounters,
// diagnoses, orders, results, and procedures.
package patientsim

import (
	"math/rand"
	"strings"
	"time"

	"github.com/healthsim/healthsim/pkg/handlers"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
)

type provider struct {
	ID        string
	Name      string
	NPI       string
	Specialty string
}

// Handlers is the clinical handler pack. One instance is safe for
// concurrent use: all per-event state comes from the event itself.
type Handlers struct {
	facility  map[string]any
	providers []provider
}

func New() *Handlers {
	return &Handlers{
		facility: map[string]any{
			"facility_id": "FAC-001",
			"name":        "Community General Hospital",
			"npi":         "1234567890",
			"address":     map[string]any{"city": "Austin", "state": "TX", "zip": "78701"},
		},
		providers: []provider{
			{ID: "PROV-001", Name: "Dr. Sarah Chen", NPI: "1111111111", Specialty: "Internal Medicine"},
			{ID: "PROV-002", Name: "Dr. Michael Brown", NPI: "2222222222", Specialty: "Family Medicine"},
			{ID: "PROV-003", Name: "Dr. Lisa Rodriguez", NPI: "3333333333", Specialty: "Endocrinology"},
		},
	}
}

// RegisterAll registers every clinical event type with the handler
// registry.
func (h *Handlers) RegisterAll(r *registry.Registry) {
	r.Register(models.ProductPatientSim, "admission", registry.HandlerFunc(h.Admission))
	r.Register(models.ProductPatientSim, "discharge", registry.HandlerFunc(h.Discharge))
	r.Register(models.ProductPatientSim, "encounter", registry.HandlerFunc(h.Encounter))
	r.Register(models.ProductPatientSim, "diagnosis", registry.HandlerFunc(h.Diagnosis))
	r.Register(models.ProductPatientSim, "lab_order", registry.HandlerFunc(h.LabOrder))
	r.Register(models.ProductPatientSim, "lab_result", registry.HandlerFunc(h.LabResult))
	r.Register(models.ProductPatientSim, "medication_order", registry.HandlerFunc(h.MedicationOrder))
	r.Register(models.ProductPatientSim, "procedure", registry.HandlerFunc(h.Procedure))
}

func (h *Handlers) selectProvider(rng *rand.Rand, specialty string) provider {
	if specialty != "" {
		matching := make([]provider, 0, len(h.providers))

		for _, p := range h.providers {
			if p.Specialty == specialty {
				matching = append(matching, p)
			}
		}

		if len(matching) > 0 {
			return handlers.Pick(rng, matching)
		}
	}

	return handlers.Pick(rng, h.providers)
}

func providerRecord(p provider) map[string]any {
	return map[string]any{
		"provider_id": p.ID,
		"name":        p.Name,
		"npi":         p.NPI,
		"specialty":   p.Specialty,
	}
}

func (h *Handlers) Admission(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	encounterID := handlers.DeterministicID("ENC", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"encounter_id":       encounterID,
			"patient_id":         entity.ID,
			"encounter_type":     "inpatient",
			"admission_date":     ev.Date.Format(time.DateOnly),
			"admission_type":     handlers.Param(ev.Parameters, "admission_type", "elective"),
			"facility":           h.facility,
			"attending_provider": providerRecord(h.selectProvider(rng, "")),
			"status":             "active",
			"adt_type":           "A01",
		},
		Facts: map[string]any{
			"active_encounter_id": encounterID,
			"admitted":            true,
		},
	}, nil
}

func (h *Handlers) Discharge(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	encounterID, _ := context["active_encounter_id"].(string)
	if encounterID == "" {
		encounterID = handlers.DeterministicID("ENC", entity.ID, ev.ID)
	}

	return &registry.Result{
		Record: map[string]any{
			"encounter_id":          encounterID,
			"patient_id":            entity.ID,
			"discharge_date":        ev.Date.Format(time.DateOnly),
			"discharge_disposition": handlers.Param(ev.Parameters, "disposition", "home"),
			"discharge_status":      handlers.Param(ev.Parameters, "status", "alive"),
			"status":                "completed",
			"adt_type":              "A03",
		},
		Facts: map[string]any{"admitted": false},
	}, nil
}

func (h *Handlers) Encounter(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	encounterID := handlers.DeterministicID("ENC", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"encounter_id":   encounterID,
			"patient_id":     entity.ID,
			"encounter_type": handlers.Param(ev.Parameters, "encounter_type", "outpatient"),
			"encounter_date": ev.Date.Format(time.DateOnly),
			"reason":         handlers.Param(ev.Parameters, "reason", ev.EventType),
			"facility":       h.facility,
			"provider":       providerRecord(h.selectProvider(rng, handlers.Param(ev.Parameters, "specialty", ""))),
			"status":         "completed",
		},
		Facts: map[string]any{"last_encounter_id": encounterID},
	}, nil
}

func (h *Handlers) Diagnosis(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	conditionID := handlers.DeterministicID("COND", entity.ID, ev.ID)
	icd10 := handlers.Param(ev.Parameters, "icd10", "R69")

	return &registry.Result{
		Record: map[string]any{
			"condition_id":        conditionID,
			"patient_id":          entity.ID,
			"icd10":               icd10,
			"description":         handlers.Param(ev.Parameters, "description", "Illness, unspecified"),
			"onset_date":          ev.Date.Format(time.DateOnly),
			"clinical_status":     "active",
			"verification_status": "confirmed",
			"category":            handlers.Param(ev.Parameters, "category", "encounter-diagnosis"),
		},
		Facts: map[string]any{
			"diagnosed":     true,
			"primary_icd10": icd10,
		},
	}, nil
}

func (h *Handlers) LabOrder(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	orderID := handlers.DeterministicID("ORD", entity.ID, ev.ID)
	loinc := handlers.Param(ev.Parameters, "loinc", "4548-4")

	return &registry.Result{
		Record: map[string]any{
			"order_id":          orderID,
			"patient_id":        entity.ID,
			"order_type":        "laboratory",
			"loinc":             loinc,
			"test_name":         handlers.Param(ev.Parameters, "test_name", "Hemoglobin A1c"),
			"order_date":        ev.Date.Format(time.DateOnly),
			"ordering_provider": providerRecord(h.selectProvider(rng, "")),
			"status":            "ordered",
			"priority":          handlers.Param(ev.Parameters, "priority", "routine"),
		},
		Facts: map[string]any{
			"last_order_id": orderID,
			"last_loinc":    loinc,
		},
	}, nil
}

func (h *Handlers) LabResult(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	resultID := handlers.DeterministicID("RES", entity.ID, ev.ID)

	orderID := handlers.Param(ev.Parameters, "order_id", "")
	if orderID == "" {
		orderID, _ = context["last_order_id"].(string)
	}

	loinc := handlers.Param(ev.Parameters, "loinc", "4548-4")
	value, unit := h.labValue(rng, loinc, entity, context)

	return &registry.Result{
		Record: map[string]any{
			"result_id":      resultID,
			"order_id":       orderID,
			"patient_id":     entity.ID,
			"loinc":          loinc,
			"test_name":      handlers.Param(ev.Parameters, "test_name", "Lab Test"),
			"value":          value,
			"unit":           unit,
			"result_date":    ev.Date.Format(time.DateOnly),
			"status":         "final",
			"interpretation": interpretLabValue(loinc, value),
		},
	}, nil
}

func (h *Handlers) MedicationOrder(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	orderID := handlers.DeterministicID("MED", entity.ID, ev.ID)
	drugName := handlers.Param(ev.Parameters, "drug_name", "Metformin 500 MG")

	return &registry.Result{
		Record: map[string]any{
			"medication_order_id": orderID,
			"patient_id":          entity.ID,
			"rxnorm":              handlers.Param(ev.Parameters, "rxnorm", "860975"),
			"drug_name":           drugName,
			"order_date":          ev.Date.Format(time.DateOnly),
			"prescriber":          providerRecord(h.selectProvider(rng, "")),
			"quantity":            handlers.IntParam(ev.Parameters, "quantity", 30),
			"days_supply":         handlers.IntParam(ev.Parameters, "days_supply", 30),
			"refills":             handlers.IntParam(ev.Parameters, "refills", 3),
			"sig":                 handlers.Param(ev.Parameters, "sig", "Take 1 tablet by mouth twice daily"),
			"status":              "active",
		},
		Facts: map[string]any{"active_medication": drugName},
	}, nil
}

func (h *Handlers) Procedure(ev models.ScheduledEvent, entity *models.Entity, _ map[string]any) (*registry.Result, error) {
	rng := handlers.RNG(ev.Seed)
	procedureID := handlers.DeterministicID("PROC", entity.ID, ev.ID)

	return &registry.Result{
		Record: map[string]any{
			"procedure_id":   procedureID,
			"patient_id":     entity.ID,
			"cpt":            handlers.Param(ev.Parameters, "cpt", "99213"),
			"description":    handlers.Param(ev.Parameters, "description", "Office visit, established patient"),
			"procedure_date": ev.Date.Format(time.DateOnly),
			"performer":      providerRecord(h.selectProvider(rng, handlers.Param(ev.Parameters, "specialty", ""))),
			"facility":       h.facility,
			"status":         "completed",
		},
	}, nil
}

// labValue produces a plausible result for the LOINC code. A1C draws shift
// upward for diabetic patients.
func (h *Handlers) labValue(rng *rand.Rand, loinc string, entity *models.Entity, context map[string]any) (float64, string) {
	round1 := func(v float64) float64 {
		return float64(int(v*10+0.5)) / 10
	}

	switch loinc {
	case "4548-4":
		var value float64

		if isDiabetic(entity, context) {
			value = rng.NormFloat64()*1.2 + 7.8
		} else {
			value = rng.NormFloat64()*0.3 + 5.4
		}

		if value < 4.0 {
			value = 4.0
		}

		if value > 14.0 {
			value = 14.0
		}

		return round1(value), "%"
	case "2345-7":
		return float64(int(rng.NormFloat64()*25 + 100 + 0.5)), "mg/dL"
	case "33914-3":
		return float64(int(rng.NormFloat64()*20 + 75 + 0.5)), "mL/min/1.73m2"
	}

	return round1(rng.NormFloat64()*10 + 100), "unit"
}

func isDiabetic(entity *models.Entity, context map[string]any) bool {
	if icd, ok := context["primary_icd10"].(string); ok && strings.HasPrefix(icd, "E11") {
		return true
	}

	conditions, _ := entity.Attribute("conditions")

	switch v := conditions.(type) {
	case []string:
		for _, c := range v {
			if strings.Contains(c, "E11") {
				return true
			}
		}
	case []any:
		for _, c := range v {
			if s, ok := c.(string); ok && strings.Contains(s, "E11") {
				return true
			}
		}
	}

	return false
}

func interpretLabValue(loinc string, value float64) string {
	if loinc == "4548-4" {
		switch {
		case value < 5.7:
			return "normal"
		case value < 6.5:
			return "prediabetic"
		default:
			return "diabetic"
		}
	}

	return "normal"
}
