package membersim

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
		Product:   models.ProductMemberSim,
		EventType: eventType,
		Date:      time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Seed:      seed,
	}
}

func TestRegisterAllCoversPlanEvents(t *testing.T) {
	reg := registry.NewRegistry(slog.Default())
	New().RegisterAll(reg)

	for _, eventType := range []string{
		"new_enrollment", "termination", "plan_change",
		"claim_professional", "claim_institutional", "claim_pharmacy",
		"gap_identified", "gap_closed",
	} {
		assert.True(t, reg.Handles(models.ProductMemberSim, eventType), eventType)
	}
}

func TestClaimProfessionalAmountsAreConsistent(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "member-1"}

	result, err := h.ClaimProfessional(scheduled("claim_professional", 11), entity, nil)
	require.NoError(t, err)

	billed := result.Record["billed_amount"].(float64)
	allowed := result.Record["allowed_amount"].(float64)
	paid := result.Record["paid_amount"].(float64)

	assert.GreaterOrEqual(t, billed, 75.0)
	assert.LessOrEqual(t, billed, 500.0)
	assert.LessOrEqual(t, allowed, billed)
	assert.LessOrEqual(t, paid, allowed)
	assert.InDelta(t, allowed-paid, result.Record["member_responsibility"].(float64), 0.001)

	again, err := h.ClaimProfessional(scheduled("claim_professional", 11), entity, nil)
	require.NoError(t, err)
	assert.Equal(t, result.Record, again.Record)
}

func TestClaimInstitutionalIsLarger(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "member-1"}

	result, err := h.ClaimInstitutional(scheduled("claim_institutional", 13), entity, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Record["billed_amount"].(float64), 5000.0)
	assert.Equal(t, "institutional", result.Record["claim_type"])
}

func TestClaimProfessionalHonorsBilledParameter(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "member-1"}

	ev := scheduled("claim_professional", 17)
	ev.Parameters = map[string]any{"billed_amount": 250.0}

	result, err := h.ClaimProfessional(ev, entity, nil)
	require.NoError(t, err)
	assert.Equal(t, 250.0, result.Record["billed_amount"])
}

func TestEnrollmentAndPlanChangeShareContext(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "member-1"}

	enrolled, err := h.NewEnrollment(scheduled("new_enrollment", 19), entity, nil)
	require.NoError(t, err)

	planID := enrolled.Facts["plan_id"].(string)
	require.NotEmpty(t, planID)

	changed, err := h.PlanChange(scheduled("plan_change", 23), entity, map[string]any{"plan_id": planID})
	require.NoError(t, err)
	assert.Equal(t, planID, changed.Record["old_plan_id"])
}

func TestGapClosureResolvesOpenGap(t *testing.T) {
	h := New()
	entity := &models.Entity{ID: "member-1"}

	identified, err := h.GapIdentified(scheduled("gap_identified", 29), entity, nil)
	require.NoError(t, err)

	gapID := identified.Facts["open_gap_id"].(string)

	closed, err := h.GapClosed(scheduled("gap_closed", 31), entity, map[string]any{
		"open_gap_id":      gapID,
		"open_gap_measure": "CDC",
	})

	require.NoError(t, err)
	assert.Equal(t, gapID, closed.Record["gap_id"])
	assert.Equal(t, "CDC", closed.Record["measure"])
	assert.Equal(t, "closed", closed.Record["status"])
}
