package journey

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
	"github.com/healthsim/healthsim/pkg/skill"
)

func intPtr(v int) *int { return &v }

func testLogger() *slog.Logger { return slog.Default() }

func echoHandler(reg *registry.Registry, product models.Product, eventTypes ...string) {
	for _, et := range eventTypes {
		reg.Register(product, et, registry.HandlerFunc(func(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
			return &registry.Result{Record: map[string]any{
				"event_type": ev.EventType,
				"parameters": ev.Parameters,
			}}, nil
		}))
	}
}

func singlePhaseSpec(events ...*models.EventDefinition) *models.JourneySpecification {
	return &models.JourneySpecification{
		Name:         "test-journey",
		DurationDays: 120,
		Products:     []models.Product{models.ProductPatientSim},
		Phases: []*models.PhaseDefinition{
			{Name: "main", DurationDays: 120, Events: events},
		},
	}
}

func startDate() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestRunSchedulesDeclaredEvents(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "encounter", "lab_order")

	spec := singlePhaseSpec(
		&models.EventDefinition{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(0)}},
		&models.EventDefinition{EventType: "lab_order", Delay: models.DelaySpec{Days: intPtr(7)}},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	require.Len(t, result.Events, 2)
	assert.Equal(t, "encounter", result.Events[0].EventType)
	assert.Equal(t, startDate(), result.Events[0].Date)
	assert.Equal(t, "lab_order", result.Events[1].EventType)
	assert.Equal(t, startDate().AddDate(0, 0, 7), result.Events[1].Date)
	assert.Equal(t, models.TimelineComplete, result.State)
}

func TestPreviousEventAnchorChains(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "encounter", "diagnosis")

	spec := singlePhaseSpec(
		&models.EventDefinition{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(10)}},
		&models.EventDefinition{
			EventType: "diagnosis",
			Delay:     models.DelaySpec{Days: intPtr(3), RelativeTo: models.AnchorPreviousEvent},
		},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	require.Len(t, result.Events, 2)
	assert.Equal(t, startDate().AddDate(0, 0, 13), result.Events[1].Date)
}

func TestSkipIsolationOnHandlerError(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "good")
	reg.Register(models.ProductPatientSim, "bad", registry.HandlerFunc(func(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
		return nil, errors.New("boom")
	}))

	spec := singlePhaseSpec(
		&models.EventDefinition{EventType: "good", Delay: models.DelaySpec{Days: intPtr(0)}},
		&models.EventDefinition{EventType: "bad", Delay: models.DelaySpec{Days: intPtr(1)}},
		&models.EventDefinition{EventType: "good", Delay: models.DelaySpec{Days: intPtr(2)}},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	assert.Len(t, result.Events, 2)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, models.SkipHandlerError, result.Skipped[0].Reason)
	assert.Equal(t, "bad", result.Skipped[0].EventType)
	assert.Equal(t, models.TimelineComplete, result.State)
}

func TestMissingHandlerSkipsEvent(t *testing.T) {
	reg := registry.NewRegistry(testLogger())

	spec := singlePhaseSpec(
		&models.EventDefinition{EventType: "unknown", Delay: models.DelaySpec{Days: intPtr(0)}},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	assert.Empty(t, result.Events)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, models.SkipNoHandler, result.Skipped[0].Reason)
}

func TestPhaseGatingSkipsAllEventsWithoutContextMutation(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	reg.Register(models.ProductPatientSim, "encounter", registry.HandlerFunc(func(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
		return &registry.Result{Facts: map[string]any{"touched": true}}, nil
	}))

	spec := &models.JourneySpecification{
		Name:         "gated",
		DurationDays: 60,
		Products:     []models.Product{models.ProductPatientSim},
		Phases: []*models.PhaseDefinition{
			{
				Name:           "locked",
				DurationDays:   30,
				EntryCondition: &models.EventCondition{Field: "eligible", Operator: models.OperatorEq, Value: true},
				Events: []*models.EventDefinition{
					{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(0)}},
					{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(5)}},
				},
			},
		},
	}

	entity := &models.Entity{ID: "P1", Attributes: map[string]any{"eligible": false}}
	tl := NewTimeline(entity, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	assert.Empty(t, result.Events)
	assert.Len(t, result.Skipped, 2)

	for _, skipped := range result.Skipped {
		assert.Equal(t, models.SkipPhaseNotEntered, skipped.Reason)
	}

	assert.Empty(t, result.Context)
}

func TestConditionOnUnknownFieldSkipsOnlyThatEvent(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "encounter", "lab_order", "diagnosis")

	spec := singlePhaseSpec(
		&models.EventDefinition{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(0)}},
		&models.EventDefinition{
			EventType: "lab_order",
			Delay:     models.DelaySpec{Days: intPtr(1)},
			Condition: &models.EventCondition{Field: "never_set", Operator: models.OperatorEq, Value: true},
		},
		&models.EventDefinition{EventType: "diagnosis", Delay: models.DelaySpec{Days: intPtr(2)}},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	// The unresolvable condition loses exactly one event; the rest of the
	// timeline still materializes.
	require.Len(t, result.Events, 2)
	assert.Equal(t, "encounter", result.Events[0].EventType)
	assert.Equal(t, "diagnosis", result.Events[1].EventType)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, models.SkipConditionError, result.Skipped[0].Reason)
	assert.Equal(t, "lab_order", result.Skipped[0].EventType)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "never_set")
	assert.Equal(t, models.TimelineComplete, result.State)
}

func TestPhaseEntryConditionOnUnknownFieldSkipsPhaseAndRecordsError(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "encounter")

	spec := &models.JourneySpecification{
		Name:         "gated",
		DurationDays: 90,
		Products:     []models.Product{models.ProductPatientSim},
		Phases: []*models.PhaseDefinition{
			{
				Name:           "locked",
				DurationDays:   30,
				EntryCondition: &models.EventCondition{Field: "cohort", Operator: models.OperatorEq, Value: "a"},
				Events: []*models.EventDefinition{
					{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(0)}},
				},
			},
			{
				Name:         "open",
				DurationDays: 60,
				Events: []*models.EventDefinition{
					{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(0)}},
				},
			},
		},
	}

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	require.Len(t, result.Events, 1)
	assert.Equal(t, startDate().AddDate(0, 0, 30), result.Events[0].Date)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, models.SkipPhaseNotEntered, result.Skipped[0].Reason)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cohort")
}

func TestRepeatConditionReEvaluatesAgainstLatestContext(t *testing.T) {
	reg := registry.NewRegistry(testLogger())

	// The first occurrence sets a fact that turns the condition false for
	// the remaining occurrences.
	reg.Register(models.ProductPatientSim, "screening", registry.HandlerFunc(func(ev models.ScheduledEvent, entity *models.Entity, context map[string]any) (*registry.Result, error) {
		return &registry.Result{Facts: map[string]any{"screened": true}}, nil
	}))

	spec := singlePhaseSpec(
		&models.EventDefinition{
			EventType: "screening",
			Delay:     models.DelaySpec{Days: intPtr(0)},
			Condition: &models.EventCondition{Field: "screened", Operator: models.OperatorNe, Value: true},
			Repeat:    &models.RepeatSpec{Count: 3, IntervalDays: 10},
		},
	)

	entity := &models.Entity{ID: "P1", Attributes: map[string]any{"screened": false}}
	tl := NewTimeline(entity, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	assert.Len(t, result.Events, 1)
	assert.Len(t, result.Skipped, 2)

	for _, skipped := range result.Skipped {
		assert.Equal(t, models.SkipConditionFalse, skipped.Reason)
	}
}

func TestMaxEventsCircuitBreaker(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "ping")

	spec := singlePhaseSpec(
		&models.EventDefinition{
			EventType: "ping",
			Delay:     models.DelaySpec{Days: intPtr(0)},
			Repeat:    &models.RepeatSpec{Count: 100, IntervalDays: 1},
		},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger(), WithMaxEvents(10)).Run(tl)

	assert.Len(t, result.Events, 10)
	require.NotNil(t, result.Budget)
	assert.Equal(t, "max_events", result.Budget.Kind)
	assert.Equal(t, models.TimelineComplete, result.State)
}

func TestDayCapSkipsLateOccurrences(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "visit")

	spec := &models.JourneySpecification{
		Name:         "short",
		DurationDays: 30,
		Products:     []models.Product{models.ProductPatientSim},
		Events: []*models.EventDefinition{
			{
				EventType: "visit",
				Delay:     models.DelaySpec{Days: intPtr(0)},
				Repeat:    &models.RepeatSpec{Count: 5, IntervalDays: 10},
			},
		},
	}

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger()).Run(tl)

	// Days 0, 10, 20, 30 fit; day 40 exceeds the cap.
	assert.Len(t, result.Events, 4)
	require.NotNil(t, result.Budget)
	assert.Equal(t, "day_cap", result.Budget.Kind)
}

func TestSkillResolverSuppliesDefaults(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "lab_order")

	resolver := skill.StaticResolver{
		"labs/a1c": {"loinc": "4548-4", "priority": "routine"},
	}

	spec := singlePhaseSpec(
		&models.EventDefinition{
			EventType:  "lab_order",
			Delay:      models.DelaySpec{Days: intPtr(0)},
			SkillRef:   "labs/a1c",
			Parameters: map[string]any{"priority": "stat"},
		},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger(), WithSkillResolver(resolver)).Run(tl)

	require.Len(t, result.Events, 1)

	params := result.Events[0].Record["parameters"].(map[string]any)

	assert.Equal(t, "4548-4", params["loinc"])
	assert.Equal(t, "stat", params["priority"])
}

func TestSkillFallbackOnResolveError(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "lab_order")

	spec := singlePhaseSpec(
		&models.EventDefinition{
			EventType: "lab_order",
			Delay:     models.DelaySpec{Days: intPtr(0)},
			SkillRef:  "labs/missing",
			Fallback:  map[string]any{"loinc": "2345-7"},
		},
	)

	tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
	result := NewScheduler(reg, testLogger(), WithSkillResolver(skill.StaticResolver{})).Run(tl)

	require.Len(t, result.Events, 1)

	params := result.Events[0].Record["parameters"].(map[string]any)

	assert.Equal(t, "2345-7", params["loinc"])
}

func TestRunIsDeterministic(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductPatientSim, "visit")

	spec := singlePhaseSpec(
		&models.EventDefinition{
			EventType: "visit",
			Delay:     models.DelaySpec{MinDays: intPtr(5), MaxDays: intPtr(25)},
			Repeat:    &models.RepeatSpec{Count: 3},
		},
	)

	run := func() []time.Time {
		tl := NewTimeline(&models.Entity{ID: "P1"}, models.ProductPatientSim, spec, startDate(), 42)
		result := NewScheduler(reg, testLogger()).Run(tl)

		dates := make([]time.Time, 0, len(result.Events))
		for _, ev := range result.Events {
			dates = append(dates, ev.Date)
		}

		return dates
	}

	first := run()

	require.Len(t, first, 3)
	assert.Equal(t, first, run())
}

func TestDeliverMaterializesDerivedEventsInOrder(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	echoHandler(reg, models.ProductMemberSim, "claim_a", "claim_b")

	tl := NewTimeline(&models.Entity{ID: "MEM-1"}, models.ProductMemberSim, nil, startDate(), 42)

	day := startDate().AddDate(0, 0, 10)
	result := NewScheduler(reg, testLogger()).Deliver(tl, []*models.ScheduledEvent{
		{ID: "b", Product: models.ProductMemberSim, EventType: "claim_b", Date: day, Priority: 2, Derived: true},
		{ID: "a", Product: models.ProductMemberSim, EventType: "claim_a", Date: day, Priority: 1, Derived: true},
	})

	require.Len(t, result.Events, 2)
	assert.Equal(t, "claim_a", result.Events[0].EventType)
	assert.Equal(t, "claim_b", result.Events[1].EventType)
	assert.Equal(t, models.TimelineComplete, result.State)
}
