// Package batch runs a journey across a cohort of entities and merges the
// cross-domain derivations into linked-product timelines.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/healthsim/healthsim/pkg/eventbus"
	"github.com/healthsim/healthsim/pkg/events"
	"github.com/healthsim/healthsim/pkg/journey"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/otelhelper"
	"github.com/healthsim/healthsim/pkg/persistence"
	"github.com/healthsim/healthsim/pkg/trigger"
)

const defaultWorkers = 4

// Request describes one batch generation run.
type Request struct {
	Journey    *models.JourneySpecification
	Entities   []*models.Entity
	StartDate  time.Time
	MasterSeed int64
	RunID      string
}

// Report summarizes a completed batch run. Results hold the primary
// timelines in entity order followed by the linked-product timelines.
type Report struct {
	RunID              string                    `json:"run_id"`
	JourneyName        string                    `json:"journey_name"`
	Entities           int                       `json:"entities"`
	Timelines          int                       `json:"timelines"`
	Generated          int                       `json:"generated"`
	Skipped            int                       `json:"skipped"`
	Errors             int                       `json:"errors"`
	TriggersFired      int                       `json:"triggers_fired"`
	TriggersSuppressed int                       `json:"triggers_suppressed"`
	Duration           time.Duration             `json:"duration"`
	Results            []*models.ExecutionResult `json:"results"`
}

// Runner executes batch runs. Scheduling is parallel per entity; the
// cross-domain merge pass is single-threaded, so the output ordering never
// depends on goroutine interleaving.
type Runner struct {
	scheduler   *journey.Scheduler
	coordinator *trigger.Coordinator
	logger      *slog.Logger
	bus         eventbus.EventPublisher
	tracer      trace.Tracer
	results     persistence.ResultRepository
	workers     int
}

type Option func(*Runner)

// WithEventBus publishes run lifecycle events to the bus.
func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithTracer records a span per batch run.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithResultRepository persists every execution result after the run.
func WithResultRepository(repo persistence.ResultRepository) Option {
	return func(r *Runner) { r.results = repo }
}

// WithWorkers sets the scheduling concurrency.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func NewRunner(scheduler *journey.Scheduler, coordinator *trigger.Coordinator, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		scheduler:   scheduler,
		coordinator: coordinator,
		logger:      logger.With("module", "batch"),
		workers:     defaultWorkers,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run schedules the journey for every entity, drains the coordinator's
// cross-product derivations into linked timelines, and returns the merged
// report. Two runs with the same request produce identical reports.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.Journey.Validate(); err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	if r.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "batch.run",
			attribute.String(otelhelper.JourneyNameKey, req.Journey.Name),
			attribute.String(otelhelper.RunIDKey, runID),
			attribute.Int(otelhelper.BatchSizeKey, len(req.Entities)),
			attribute.Int64(otelhelper.MasterSeedKey, req.MasterSeed),
		)
		defer span.End()
	}

	started := time.Now()
	primary := req.Journey.PrimaryProduct()

	r.logger.Info("Starting batch run",
		"run_id", runID,
		"journey", req.Journey.Name,
		"entities", len(req.Entities),
		"master_seed", req.MasterSeed,
	)

	r.publishStarted(ctx, req, primary)

	results := r.runPrimaries(req, primary)
	results = append(results, r.mergeCross(req)...)

	report := r.buildReport(runID, req, results, time.Since(started))

	r.persistResults(ctx, runID, results)
	r.publishCompleted(ctx, report)

	r.logger.Info("Batch run complete",
		"run_id", runID,
		"timelines", report.Timelines,
		"generated", report.Generated,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)

	return report, nil
}

// runPrimaries schedules the journey on each entity's primary timeline.
// Workers write into index-ordered slots, so result order matches entity
// order regardless of completion order.
func (r *Runner) runPrimaries(req Request, primary models.Product) []*models.ExecutionResult {
	results := make([]*models.ExecutionResult, len(req.Entities))
	sem := make(chan struct{}, r.workers)

	var wg sync.WaitGroup

	for i, entity := range req.Entities {
		wg.Add(1)

		go func(ordinal int, entity *models.Entity) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			tl := journey.NewTimeline(entity, primary, req.Journey, req.StartDate, req.MasterSeed)
			tl.Ordinal = ordinal

			results[ordinal] = r.scheduler.Run(tl)
		}(i, entity)
	}

	wg.Wait()

	return results
}

// mergeCross drains the coordinator and delivers cross-product derivations
// into linked timelines. Derivations fired during delivery are drained in
// further passes; the trigger graph's acyclicity bounds the loop.
func (r *Runner) mergeCross(req Request) []*models.ExecutionResult {
	type timelineKey struct {
		personID string
		product  models.Product
	}

	timelines := make(map[timelineKey]*journey.Timeline)

	var order []timelineKey

	for {
		deliveries := r.coordinator.DrainCross()
		if len(deliveries) == 0 {
			break
		}

		for _, delivery := range deliveries {
			key := timelineKey{personID: delivery.PersonID, product: delivery.Product}

			tl, ok := timelines[key]
			if !ok {
				link := r.coordinator.LinkedEntityFor(delivery.PersonID)
				linked := &models.Entity{
					ID:         link.ProductIDs[delivery.Product],
					Attributes: delivery.Entity.Attributes,
				}

				tl = journey.NewTimeline(linked, delivery.Product, nil, req.StartDate, req.MasterSeed)
				timelines[key] = tl
				order = append(order, key)
			}

			r.scheduler.Deliver(tl, delivery.Events)
		}
	}

	results := make([]*models.ExecutionResult, 0, len(order))

	for _, key := range order {
		result := timelines[key].Result()
		result.JourneyName = req.Journey.Name
		results = append(results, result)
	}

	return results
}

func (r *Runner) buildReport(runID string, req Request, results []*models.ExecutionResult, duration time.Duration) *Report {
	report := &Report{
		RunID:       runID,
		JourneyName: req.Journey.Name,
		Entities:    len(req.Entities),
		Timelines:   len(results),
		Duration:    duration,
		Results:     results,
	}

	for _, result := range results {
		report.Generated += len(result.Events)
		report.Skipped += len(result.Skipped)
		report.Errors += len(result.Errors)
	}

	report.TriggersFired, report.TriggersSuppressed = r.coordinator.Stats()

	return report
}

func (r *Runner) persistResults(ctx context.Context, runID string, results []*models.ExecutionResult) {
	if r.results == nil {
		return
	}

	for _, result := range results {
		if err := r.results.SaveResult(ctx, runID, result); err != nil {
			otelhelper.SetError(trace.SpanFromContext(ctx), err,
				attribute.String(otelhelper.EntityIDKey, result.EntityID),
				attribute.String(otelhelper.ProductKey, string(result.Product)),
			)
			r.logger.Warn("Failed to persist execution result",
				"entity_id", result.EntityID,
				"product", result.Product,
				"error", err,
			)
		}
	}
}

func (r *Runner) publishStarted(ctx context.Context, req Request, primary models.Product) {
	if r.bus == nil {
		return
	}

	for _, entity := range req.Entities {
		event := events.JourneyStarted{
			BaseEvent:   events.NewBaseEvent(events.JourneyStartedEvent, entity.ID),
			JourneyName: req.Journey.Name,
			Product:     primary,
			StartDate:   req.StartDate,
			MasterSeed:  req.MasterSeed,
		}

		if err := r.bus.Publish(ctx, entity.ID, event); err != nil {
			r.logger.Warn("Failed to publish journey started event", "entity_id", entity.ID, "error", err)
		}
	}
}

func (r *Runner) publishCompleted(ctx context.Context, report *Report) {
	if r.bus == nil {
		return
	}

	for _, result := range report.Results {
		event := events.JourneyCompleted{
			BaseEvent:   events.NewBaseEvent(events.JourneyCompletedEvent, result.EntityID),
			JourneyName: report.JourneyName,
			Product:     result.Product,
			State:       result.State,
			Generated:   len(result.Events),
			Skipped:     len(result.Skipped),
			Errors:      len(result.Errors),
			Budget:      result.Budget,
		}

		if err := r.bus.Publish(ctx, result.EntityID, event); err != nil {
			r.logger.Warn("Failed to publish journey completed event", "entity_id", result.EntityID, "error", err)
		}

		r.publishPerEvent(ctx, result)
	}

	r.publishBatchCompleted(ctx, report)
}

func (r *Runner) publishPerEvent(ctx context.Context, result *models.ExecutionResult) {
	for _, ev := range result.Events {
		generated := events.EventGenerated{
			BaseEvent: events.NewBaseEvent(events.EventGeneratedEvent, result.EntityID),
			Product:   ev.Product,
			EventType: ev.EventType,
			Date:      ev.Date,
			Phase:     ev.Phase,
		}

		if err := r.bus.Publish(ctx, result.EntityID, generated); err != nil {
			r.logger.Warn("Failed to publish event generated event", "entity_id", result.EntityID, "error", err)
		}
	}

	for _, skipped := range result.Skipped {
		event := events.EventSkipped{
			BaseEvent: events.NewBaseEvent(events.EventSkippedEvent, result.EntityID),
			Product:   skipped.Product,
			EventType: skipped.EventType,
			Reason:    skipped.Reason,
			Detail:    skipped.Detail,
		}

		if err := r.bus.Publish(ctx, result.EntityID, event); err != nil {
			r.logger.Warn("Failed to publish event skipped event", "entity_id", result.EntityID, "error", err)
		}
	}
}

func (r *Runner) publishBatchCompleted(ctx context.Context, report *Report) {
	completed := events.BatchCompleted{
		BaseEvent:     events.NewBaseEvent(events.BatchCompletedEvent, ""),
		JourneyName:   report.JourneyName,
		Entities:      report.Entities,
		Timelines:     report.Timelines,
		Generated:     report.Generated,
		Skipped:       report.Skipped,
		TriggersFired: report.TriggersFired,
		Duration:      report.Duration,
	}

	if err := r.bus.Publish(ctx, report.RunID, completed); err != nil {
		r.logger.Warn("Failed to publish batch completed event", "run_id", report.RunID, "error", err)
	}
}
