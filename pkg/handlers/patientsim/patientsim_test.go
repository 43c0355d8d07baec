package patientsim

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
)

func scheduled(eventType string, seed int64) models.ScheduledEvent {
	return models.ScheduledEvent{
		ID:        "evt-1",
		Product:   models.ProductPatientSim,
		EventType: eventType,
		Date:      time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Seed:      seed,
	}
}

func TestRegisterAllCoversClinicalEvents(t *testing.T) {
	reg := registry.NewRegistry(slog.Default())
	New().RegisterAll(reg)

	for _, eventType := range []string{
		"admission", "discharge", "encounter", "diagnosis",
		"lab_order", "lab_result", "medication_order", "procedure",
	} {
		assert.True(t, reg.Handles(models.ProductPatientSim, eventType), eventType)
	}
}

func TestAdmissionIsDeterministic(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "patient-1"}

	first, err := h.Admission(scheduled("admission", 99), entity, nil)
	require.NoError(t, err)

	second, err := h.Admission(scheduled("admission", 99), entity, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, "inpatient", first.Record["encounter_type"])
	assert.Equal(t, "A01", first.Record["adt_type"])
	assert.Equal(t, true, first.Facts["admitted"])
}

func TestDischargeLinksActiveEncounter(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "patient-1"}

	result, err := h.Discharge(scheduled("discharge", 5), entity, map[string]any{
		"active_encounter_id": "ENC-ABCD1234",
	})

	require.NoError(t, err)
	assert.Equal(t, "ENC-ABCD1234", result.Record["encounter_id"])
	assert.Equal(t, false, result.Facts["admitted"])
}

func TestDiagnosisReportsFacts(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "patient-1"}

	ev := scheduled("diagnosis", 7)
	ev.Parameters = map[string]any{"icd10": "E11.9", "description": "Type 2 diabetes"}

	result, err := h.Diagnosis(ev, entity, nil)

	require.NoError(t, err)
	assert.Equal(t, true, result.Facts["diagnosed"])
	assert.Equal(t, "E11.9", result.Facts["primary_icd10"])
	assert.Equal(t, "confirmed", result.Record["verification_status"])
}

func TestLabResultShiftsForDiabetics(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "patient-1"}

	// A diagnosed diabetic draws from the elevated A1C distribution; with
	// mean 7.8 and the healthy mean at 5.4, averages over many seeds are
	// clearly separated.
	diabetic := map[string]any{"primary_icd10": "E11.9"}

	sumDiabetic, sumHealthy := 0.0, 0.0

	for seed := int64(0); seed < 200; seed++ {
		ev := scheduled("lab_result", seed)

		withDx, err := h.LabResult(ev, entity, diabetic)
		require.NoError(t, err)

		withoutDx, err := h.LabResult(ev, entity, nil)
		require.NoError(t, err)

		sumDiabetic += withDx.Record["value"].(float64)
		sumHealthy += withoutDx.Record["value"].(float64)
	}

	assert.Greater(t, sumDiabetic/200, 7.0)
	assert.Less(t, sumHealthy/200, 6.0)
}

func TestLabResultUsesLastOrderFromContext(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "patient-1"}

	result, err := h.LabResult(scheduled("lab_result", 3), entity, map[string]any{
		"last_order_id": "ORD-12345678",
	})

	require.NoError(t, err)
	assert.Equal(t, "ORD-12345678", result.Record["order_id"])
}
