// Package journey expands a journey specification into a timeline of dated,
// materialized events for one entity.
package journey

import (
	"sort"
	"time"

	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/seed"
)

// Timeline is the scheduler's working state for one (entity, product) pair.
// It is owned by a single run: no other goroutine may touch it while the
// scheduler walks it. Context accumulates facts from executed events and is
// append-only; nothing can retract a previously set fact.
type Timeline struct {
	Entity    *models.Entity
	Product   models.Product
	Spec      *models.JourneySpecification
	StartDate time.Time

	// Ordinal is the entity's position in the batch. Cross-domain merge
	// ordering uses it instead of goroutine arrival order.
	Ordinal int

	State    models.TimelineState
	Context  map[string]any
	Executed []*models.GeneratedEvent
	Skipped  []*models.SkippedEvent
	Errors   []string
	Budget   *models.BudgetTrip

	seeds   *seed.Manager
	pending []*models.ScheduledEvent
	seq     int
}

// NewTimeline builds an empty timeline. spec may be nil for timelines that
// only ever receive derived events from the trigger coordinator.
func NewTimeline(entity *models.Entity, product models.Product, spec *models.JourneySpecification, startDate time.Time, masterSeed int64) *Timeline {
	return &Timeline{
		Entity:    entity,
		Product:   product,
		Spec:      spec,
		StartDate: startDate,
		State:     models.TimelineNotStarted,
		Context:   make(map[string]any),
		seeds:     seed.NewManager(masterSeed),
	}
}

// Seeds exposes the timeline's seed manager for collaborators that derive
// their own sub-streams (e.g. trigger delay resolution).
func (t *Timeline) Seeds() *seed.Manager { return t.seeds }

// Enqueue inserts derived events into the pending queue.
func (t *Timeline) Enqueue(events ...*models.ScheduledEvent) {
	for _, ev := range events {
		ev.Seq = t.nextSeq()
		t.pending = append(t.pending, ev)
	}
}

// dequeue removes and returns the next pending event ordered by
// (date, priority, insertion sequence).
func (t *Timeline) dequeue() *models.ScheduledEvent {
	if len(t.pending) == 0 {
		return nil
	}

	sort.SliceStable(t.pending, func(i, j int) bool {
		a, b := t.pending[i], t.pending[j]

		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}

		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}

		return a.Seq < b.Seq
	})

	head := t.pending[0]
	t.pending = t.pending[1:]

	return head
}

func (t *Timeline) nextSeq() int {
	s := t.seq
	t.seq++

	return s
}

// addFacts merges handler-reported facts into the context. Keys can be set
// or overwritten, never removed.
func (t *Timeline) addFacts(facts map[string]any) {
	for k, v := range facts {
		t.Context[k] = v
	}
}

func (t *Timeline) recordSkip(s *models.SkippedEvent) {
	t.Skipped = append(t.Skipped, s)
}

func (t *Timeline) recordError(err error) {
	t.Errors = append(t.Errors, err.Error())
}

// Result snapshots the timeline into the artifact handed to external
// storage. Events are ordered by date, with materialization order breaking
// ties, so two runs with the same inputs produce identical results.
func (t *Timeline) Result() *models.ExecutionResult {
	events := make([]*models.GeneratedEvent, len(t.Executed))
	copy(events, t.Executed)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})

	journeyName := ""
	if t.Spec != nil {
		journeyName = t.Spec.Name
	}

	return &models.ExecutionResult{
		EntityID:    t.Entity.ID,
		Product:     t.Product,
		JourneyName: journeyName,
		StartDate:   t.StartDate,
		State:       t.State,
		Events:      events,
		Skipped:     t.Skipped,
		Errors:      t.Errors,
		Budget:      t.Budget,
		Context:     t.Context,
	}
}
