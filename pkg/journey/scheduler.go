package journey

import (
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"

	"github.com/healthsim/healthsim/pkg/condition"
	"github.com/healthsim/healthsim/pkg/distribution"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/registry"
	"github.com/healthsim/healthsim/pkg/skill"
)

// DefaultMaxEvents is the per-timeline circuit breaker against
// misconfigured repeats.
const DefaultMaxEvents = 10000

// TriggerSink observes materialized events and returns derived events bound
// for the same timeline. Cross-product derivations are retained by the sink
// for its own merge pass.
type TriggerSink interface {
	OnGenerated(timeline *Timeline, event *models.GeneratedEvent, def *models.EventDefinition) []*models.ScheduledEvent
}

// Scheduler walks a timeline through NotStarted → PhaseActive → Complete.
// One failing event never aborts the rest of the timeline.
type Scheduler struct {
	registry  *registry.Registry
	resolver  skill.Resolver
	sink      TriggerSink
	logger    *slog.Logger
	maxEvents int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTriggerSink attaches the cross-domain trigger coordinator.
func WithTriggerSink(sink TriggerSink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithSkillResolver attaches the external skill resolver used to fill in
// default event parameters.
func WithSkillResolver(resolver skill.Resolver) Option {
	return func(s *Scheduler) { s.resolver = resolver }
}

// WithMaxEvents overrides the generated-event circuit breaker.
func WithMaxEvents(limit int) Option {
	return func(s *Scheduler) { s.maxEvents = limit }
}

func NewScheduler(reg *registry.Registry, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:  reg,
		logger:    logger.With("module", "scheduler"),
		maxEvents: DefaultMaxEvents,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run expands the timeline's journey specification into materialized
// events, then drains any derived events the trigger sink queued for this
// timeline. The computation is synchronous and pure: no I/O, no clock, no
// shared RNG, so two runs with identical inputs are byte-identical.
func (s *Scheduler) Run(tl *Timeline) *models.ExecutionResult {
	logger := s.logger.With(
		"journey", tl.Spec.Name,
		"entity_id", tl.Entity.ID,
		"product", tl.Product,
	)

	logger.Debug("Starting journey expansion", "start_date", tl.StartDate.Format(time.DateOnly))

	elapsedDays := 0

	for phaseIndex, phase := range tl.Spec.EffectivePhases() {
		if elapsedDays > tl.Spec.DurationDays {
			s.tripBudget(tl, "day_cap", tl.Spec.DurationDays)

			break
		}

		tl.State = models.TimelinePhaseActive

		entered, err := condition.Evaluate(phase.EntryCondition, tl.Entity, tl.Context)
		if err != nil {
			tl.recordError(err)
		}

		if !entered {
			logger.Debug("Phase entry condition false, skipping phase", "phase", phase.Name)
			s.skipPhase(tl, phase)

			elapsedDays += phase.DurationDays

			continue
		}

		phaseStart := tl.StartDate.AddDate(0, 0, elapsedDays)
		s.runPhase(tl, phase, phaseIndex, phaseStart, logger)

		elapsedDays += phase.DurationDays

		if tl.State == models.TimelineComplete {
			// Circuit breaker tripped mid-phase.
			return tl.Result()
		}
	}

	s.drainPending(tl)

	tl.State = models.TimelineComplete

	logger.Debug("Journey expansion complete",
		"events", len(tl.Executed),
		"skipped", len(tl.Skipped),
	)

	return tl.Result()
}

// Deliver queues externally derived events (the cross-domain merge pass)
// into the timeline and materializes them. Used for linked-product
// timelines that have no journey of their own.
func (s *Scheduler) Deliver(tl *Timeline, events []*models.ScheduledEvent) *models.ExecutionResult {
	tl.State = models.TimelinePhaseActive

	tl.Enqueue(events...)
	s.drainPending(tl)

	tl.State = models.TimelineComplete

	return tl.Result()
}

func (s *Scheduler) runPhase(tl *Timeline, phase *models.PhaseDefinition, phaseIndex int, phaseStart time.Time, logger *slog.Logger) {
	// The previous_event anchor refers to the previous definition's first
	// resolved date within the same phase.
	prevDate := phaseStart

	for eventIndex, def := range phase.Events {
		delaySeed := tl.seeds.Derive(tl.Entity.ID, phase.Name, strconv.Itoa(eventIndex))

		delayDays, err := distribution.ResolveDelayDays(def.Delay, delaySeed)
		if err != nil {
			tl.recordError(err)
			tl.recordSkip(&models.SkippedEvent{
				EventType: def.EventType,
				Product:   s.eventProduct(tl, def),
				Phase:     phase.Name,
				Reason:    models.SkipConfigError,
				Detail:    err.Error(),
			})

			continue
		}

		var anchor time.Time

		switch def.Delay.Anchor() {
		case models.AnchorJourneyStart:
			anchor = tl.StartDate
		case models.AnchorPreviousEvent:
			anchor = prevDate
		default:
			anchor = phaseStart
		}

		firstDate := anchor.AddDate(0, 0, delayDays)
		prevDate = firstDate

		occurrences := 1
		interval := 0

		if def.Repeat != nil {
			occurrences = def.Repeat.Count
			interval = def.Repeat.IntervalDays
		}

		date := firstDate

		for repeatIdx := 0; repeatIdx < occurrences; repeatIdx++ {
			if repeatIdx > 0 {
				// Without a fixed interval, each occurrence re-resolves the
				// delay relative to the previous occurrence's date.
				spacing := interval
				if spacing == 0 {
					repeatSeed := tl.seeds.Derive(tl.Entity.ID, phase.Name, strconv.Itoa(eventIndex), strconv.Itoa(repeatIdx))

					spacing, err = distribution.ResolveDelayDays(def.Delay, repeatSeed)
					if err != nil {
						tl.recordError(err)

						break
					}
				}

				date = date.AddDate(0, 0, spacing)
			}

			scheduled := models.ScheduledEvent{
				ID:         s.eventID(tl, phase.Name, eventIndex, repeatIdx),
				Product:    s.eventProduct(tl, def),
				EventType:  def.EventType,
				Date:       date,
				Phase:      phase.Name,
				PhaseIndex: phaseIndex,
				EventIndex: eventIndex,
				RepeatIdx:  repeatIdx,
				Seq:        tl.nextSeq(),
				Seed:       tl.seeds.Derive(tl.Entity.ID, phase.Name, strconv.Itoa(eventIndex), strconv.Itoa(repeatIdx), "handler"),
				Definition: def,
			}

			if !s.materialize(tl, scheduled, def, logger) {
				return
			}
		}
	}
}

// materialize runs one scheduled event through budget, condition, and
// handler. It returns false only when the event-count circuit breaker
// trips, which ends the whole timeline.
func (s *Scheduler) materialize(tl *Timeline, scheduled models.ScheduledEvent, def *models.EventDefinition, logger *slog.Logger) bool {
	if len(tl.Executed) >= s.maxEvents {
		s.tripBudget(tl, "max_events", s.maxEvents)
		tl.recordSkip(skipFor(scheduled, models.SkipBudgetExceeded, "max_events"))
		tl.State = models.TimelineComplete

		return false
	}

	if tl.Spec != nil && scheduled.Date.After(tl.StartDate.AddDate(0, 0, tl.Spec.DurationDays)) {
		s.tripBudget(tl, "day_cap", tl.Spec.DurationDays)
		tl.recordSkip(skipFor(scheduled, models.SkipBudgetExceeded, "day_cap"))

		return true
	}

	// Each repeat occurrence re-evaluates the condition against the latest
	// context, so a fact set by an earlier occurrence can prune later ones.
	if def != nil && def.Condition != nil {
		ok, err := condition.Evaluate(def.Condition, tl.Entity, tl.Context)
		if err != nil {
			tl.recordError(err)
			tl.recordSkip(skipFor(scheduled, models.SkipConditionError, err.Error()))

			return true
		}

		if !ok {
			tl.recordSkip(skipFor(scheduled, models.SkipConditionFalse, ""))

			return true
		}
	}

	handler, found := s.registry.Lookup(scheduled.Product, scheduled.EventType)
	if !found {
		tl.recordError(&models.HandlerError{Product: scheduled.Product, EventType: scheduled.EventType})
		tl.recordSkip(skipFor(scheduled, models.SkipNoHandler, ""))

		return true
	}

	scheduled.Parameters = s.resolveParameters(tl, def, scheduled.Parameters)

	result, err := handler.Handle(scheduled, tl.Entity, tl.Context)
	if err != nil {
		logger.Warn("Handler failed, skipping event",
			"event_type", scheduled.EventType,
			"date", scheduled.Date.Format(time.DateOnly),
			"error", err,
		)
		tl.recordError(&models.HandlerError{Product: scheduled.Product, EventType: scheduled.EventType, Err: err})
		tl.recordSkip(skipFor(scheduled, models.SkipHandlerError, err.Error()))

		return true
	}

	generated := &models.GeneratedEvent{
		ID:        scheduled.ID,
		Product:   scheduled.Product,
		EventType: scheduled.EventType,
		Date:      scheduled.Date,
		Phase:     scheduled.Phase,
		Seq:       scheduled.Seq,
	}

	if result != nil {
		generated.Record = result.Record
		generated.Facts = result.Facts
		tl.addFacts(result.Facts)
	}

	tl.Executed = append(tl.Executed, generated)

	if s.sink != nil {
		tl.Enqueue(s.sink.OnGenerated(tl, generated, def)...)
	}

	return true
}

// drainPending materializes derived events queued for this timeline in
// (date, priority, insertion) order. Derived events may trigger further
// derivations; the load-time acyclicity check guarantees termination.
func (s *Scheduler) drainPending(tl *Timeline) {
	for {
		next := tl.dequeue()
		if next == nil {
			return
		}

		if !s.materialize(tl, *next, next.Definition, s.logger) {
			return
		}
	}
}

func (s *Scheduler) skipPhase(tl *Timeline, phase *models.PhaseDefinition) {
	for _, def := range phase.Events {
		tl.recordSkip(&models.SkippedEvent{
			EventType: def.EventType,
			Product:   s.eventProduct(tl, def),
			Phase:     phase.Name,
			Reason:    models.SkipPhaseNotEntered,
		})
	}
}

// resolveParameters merges, lowest precedence first: resolved skill
// defaults, the definition's fallback block, and the definition's own
// parameters. Caller-supplied values always win.
func (s *Scheduler) resolveParameters(tl *Timeline, def *models.EventDefinition, base map[string]any) map[string]any {
	params := make(map[string]any)

	if def != nil {
		if def.SkillRef != "" && s.resolver != nil {
			defaults, err := s.resolver.Resolve(def.SkillRef)

			switch {
			case err != nil:
				for k, v := range def.Fallback {
					params[k] = v
				}
			default:
				for k, v := range defaults {
					params[k] = v
				}
			}
		}

		for k, v := range def.Parameters {
			params[k] = v
		}
	}

	for k, v := range base {
		params[k] = v
	}

	return params
}

func (s *Scheduler) eventProduct(tl *Timeline, def *models.EventDefinition) models.Product {
	if def != nil && def.Product != "" {
		return def.Product
	}

	return tl.Product
}

func (s *Scheduler) eventID(tl *Timeline, phaseName string, eventIndex, repeatIdx int) string {
	digest := tl.seeds.Digest(tl.Entity.ID, phaseName, strconv.Itoa(eventIndex), strconv.Itoa(repeatIdx), "id")

	return hex.EncodeToString(digest[:8])
}

func (s *Scheduler) tripBudget(tl *Timeline, kind string, limit int) {
	if tl.Budget != nil {
		return
	}

	tl.Budget = &models.BudgetTrip{Kind: kind, Limit: limit}
	tl.recordError(&models.BudgetExceededError{Kind: kind, Limit: limit})
}

func skipFor(scheduled models.ScheduledEvent, reason models.SkipReason, detail string) *models.SkippedEvent {
	return &models.SkippedEvent{
		EventType: scheduled.EventType,
		Product:   scheduled.Product,
		Date:      scheduled.Date,
		Phase:     scheduled.Phase,
		Reason:    reason,
		Detail:    detail,
	}
}
