package batch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/healthsim/healthsim/pkg/handlers/membersim"
	"github.com/healthsim/healthsim/pkg/handlers/patientsim"
	"github.com/healthsim/healthsim/pkg/journey"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
	"github.com/healthsim/healthsim/pkg/trigger"
)

func intPtr(v int) *int { return &v }

func newRunner(t *testing.T, triggers ...*trigger.RegisteredTrigger) *Runner {
	t.Helper()

	logger := slog.Default()

	handlerReg := registry.NewRegistry(logger)
	patientsim.New().RegisterAll(handlerReg)
	membersim.New().RegisterAll(handlerReg)

	triggerReg, err := trigger.NewRegistry(triggers...)
	require.NoError(t, err)

	coordinator := trigger.NewCoordinator(triggerReg, logger)
	scheduler := journey.NewScheduler(handlerReg, logger, journey.WithTriggerSink(coordinator))

	return NewRunner(scheduler, coordinator, logger)
}

func diabeticFirstYear() *models.JourneySpecification {
	return &models.JourneySpecification{
		Name:         "diabetic-first-year",
		DurationDays: 365,
		Products:     []models.Product{models.ProductPatientSim},
		Phases: []*models.PhaseDefinition{
			{
				Name:         "initial_assessment",
				DurationDays: 30,
				Events: []*models.EventDefinition{
					{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(0)}},
				},
			},
			{
				Name:         "ongoing_management",
				DurationDays: 335,
				Events: []*models.EventDefinition{
					{
						EventType: "encounter",
						Delay:     models.DelaySpec{MinDays: intPtr(80), MaxDays: intPtr(100)},
						Repeat:    &models.RepeatSpec{Count: 3},
					},
				},
			},
		},
	}
}

func TestDiabeticFirstYearScenario(t *testing.T) {
	runner := newRunner(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	report, err := runner.Run(context.Background(), Request{
		Journey:    diabeticFirstYear(),
		Entities:   []*models.Entity{{ID: "P1"}},
		StartDate:  start,
		MasterSeed: 42,
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	result := report.Results[0]

	require.Len(t, result.Events, 4)
	assert.Equal(t, start, result.Events[0].Date)

	// The management encounters begin 80 to 100 days after the phase
	// opens on day 30, and each subsequent one lands 80 to 100 days after
	// the previous.
	prev := result.Events[0].Date

	for i, ev := range result.Events {
		assert.Equal(t, "encounter", ev.EventType)

		if i == 1 {
			gap := int(ev.Date.Sub(prev).Hours() / 24)
			assert.GreaterOrEqual(t, gap, 30+80)
			assert.LessOrEqual(t, gap, 30+100)
		}

		if i > 1 {
			gap := int(ev.Date.Sub(prev).Hours() / 24)
			assert.GreaterOrEqual(t, gap, 80)
			assert.LessOrEqual(t, gap, 100)
		}

		prev = ev.Date
	}
}

func TestRunIsByteIdenticalAcrossRuns(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	run := func() []byte {
		runner := newRunner(t)

		report, err := runner.Run(context.Background(), Request{
			Journey:    diabeticFirstYear(),
			Entities:   []*models.Entity{{ID: "P1"}, {ID: "P2"}, {ID: "P3"}},
			StartDate:  start,
			MasterSeed: 42,
			RunID:      "fixed",
		})
		require.NoError(t, err)

		body, err := json.Marshal(report.Results)
		require.NoError(t, err)

		return body
	}

	assert.Equal(t, run(), run())
}

func TestSeedChangesResults(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	run := func(seed int64) []byte {
		runner := newRunner(t)

		report, err := runner.Run(context.Background(), Request{
			Journey:    diabeticFirstYear(),
			Entities:   []*models.Entity{{ID: "P1"}},
			StartDate:  start,
			MasterSeed: seed,
			RunID:      "fixed",
		})
		require.NoError(t, err)

		body, err := json.Marshal(report.Results)
		require.NoError(t, err)

		return body
	}

	assert.NotEqual(t, run(42), run(43))
}

func TestCrossDomainClaimScenario(t *testing.T) {
	runner := newRunner(t, &trigger.RegisteredTrigger{
		SourceProduct:   models.ProductPatientSim,
		SourceEventType: "diagnosis",
		TargetProduct:   models.ProductMemberSim,
		TargetEventType: "claim_professional",
		DelayDays:       2,
		Priority:        1,
	})

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	spec := &models.JourneySpecification{
		Name:         "dx-to-claim",
		DurationDays: 30,
		Products:     []models.Product{models.ProductPatientSim, models.ProductMemberSim},
		Events: []*models.EventDefinition{
			{EventType: "diagnosis", Delay: models.DelaySpec{Days: intPtr(5)}},
		},
	}

	report, err := runner.Run(context.Background(), Request{
		Journey:    spec,
		Entities:   []*models.Entity{{ID: "P1"}},
		StartDate:  start,
		MasterSeed: 7,
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	primary := report.Results[0]
	linked := report.Results[1]

	require.Len(t, primary.Events, 1)
	assert.Equal(t, "diagnosis", primary.Events[0].EventType)
	assert.Equal(t, start.AddDate(0, 0, 5), primary.Events[0].Date)

	assert.Equal(t, models.ProductMemberSim, linked.Product)
	assert.Contains(t, linked.EntityID, "MEM-")
	require.Len(t, linked.Events, 1)
	assert.Equal(t, "claim_professional", linked.Events[0].EventType)
	assert.Equal(t, start.AddDate(0, 0, 7), linked.Events[0].Date)

	assert.Equal(t, 1, report.TriggersFired)
}

func TestReportCountsAcrossEntities(t *testing.T) {
	runner := newRunner(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	report, err := runner.Run(context.Background(), Request{
		Journey:    diabeticFirstYear(),
		Entities:   []*models.Entity{{ID: "P1"}, {ID: "P2"}},
		StartDate:  start,
		MasterSeed: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, report.Entities)
	assert.Equal(t, 2, report.Timelines)
	assert.Equal(t, 8, report.Generated)
	assert.Equal(t, "diabetic-first-year", report.JourneyName)
	assert.NotEmpty(t, report.RunID)
}

type failingResultRepository struct{}

func (failingResultRepository) SaveResult(_ context.Context, _ string, _ *models.ExecutionResult) error {
	return errors.New("output volume unavailable")
}

func TestPersistFailureMarksRunSpan(t *testing.T) {
	logger := slog.Default()

	handlerReg := registry.NewRegistry(logger)
	patientsim.New().RegisterAll(handlerReg)

	triggerReg, err := trigger.NewRegistry()
	require.NoError(t, err)

	coordinator := trigger.NewCoordinator(triggerReg, logger)
	scheduler := journey.NewScheduler(handlerReg, logger, journey.WithTriggerSink(coordinator))

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	runner := NewRunner(scheduler, coordinator, logger,
		WithTracer(provider.Tracer("test")),
		WithResultRepository(failingResultRepository{}),
	)

	_, err = runner.Run(context.Background(), Request{
		Journey:    diabeticFirstYear(),
		Entities:   []*models.Entity{{ID: "P1"}},
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MasterSeed: 42,
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var errorEventRecorded bool

	for _, ev := range spans[0].Events() {
		if ev.Name == "error_occurred" {
			errorEventRecorded = true
		}
	}

	assert.True(t, errorEventRecorded)
}

func TestRunRejectsInvalidJourney(t *testing.T) {
	runner := newRunner(t)

	spec := diabeticFirstYear()
	spec.Events = []*models.EventDefinition{{EventType: "encounter", Delay: models.DelaySpec{Days: intPtr(0)}}}

	_, err := runner.Run(context.Background(), Request{
		Journey:    spec,
		Entities:   []*models.Entity{{ID: "P1"}},
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MasterSeed: 1,
	})

	var configErr *models.ConfigurationError

	require.Error(t, err)
	assert.ErrorAs(t, err, &configErr)
}
