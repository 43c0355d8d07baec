package trigger

import (
	"encoding/hex"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/healthsim/healthsim/pkg/condition"
	"github.com/healthsim/healthsim/pkg/distribution"
	"github.com/healthsim/healthsim/pkg/journey"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/seed"
)

// LinkedEntity is the cross-domain unit of coordination: one stable person
// identifier with product-qualified IDs, created lazily the first time a
// cross-product trigger fires for that person. It lives for the duration
// of one batch run.
type LinkedEntity struct {
	PersonID   string
	ProductIDs map[models.Product]string
}

var productIDPrefixes = map[models.Product]string{
	models.ProductPatientSim:  "PAT",
	models.ProductMemberSim:   "MEM",
	models.ProductRxMemberSim: "RXM",
	models.ProductTrialSim:    "SUBJ",
}

// crossEvent is one derivation bound for another product's timeline,
// retained until the merge pass.
type crossEvent struct {
	personID  string
	entity    *models.Entity
	product   models.Product
	event     *models.ScheduledEvent
	ordinal   int // source entity's batch position
	sourceSeq int // source event's sequence within its timeline
}

// Coordinator observes materialized events, evaluates trigger rules, and
// produces derived events. Same-product derivations go straight back into
// the source timeline's pending queue; cross-product derivations are
// collected and delivered in a deterministic merge pass after all source
// timelines have completed, so each linked timeline has exactly one writer.
type Coordinator struct {
	registry *Registry
	logger   *slog.Logger

	mu         sync.Mutex
	linked     map[string]*LinkedEntity
	cross      []*crossEvent
	fired      int
	suppressed int
}

func NewCoordinator(reg *Registry, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		registry: reg,
		logger:   logger.With("module", "trigger_coordinator"),
		linked:   make(map[string]*LinkedEntity),
	}
}

// OnGenerated implements journey.TriggerSink. It is safe to call from
// concurrent per-entity workers: all cross-product state is mutex-guarded
// and the merge pass ordering never depends on arrival order.
func (c *Coordinator) OnGenerated(tl *journey.Timeline, event *models.GeneratedEvent, def *models.EventDefinition) []*models.ScheduledEvent {
	var local []*models.ScheduledEvent

	rules := c.collectRules(tl.Product, event, def)

	for i, rule := range rules {
		ok, err := condition.Evaluate(rule.condition, tl.Entity, tl.Context)
		if err != nil || !ok {
			// A false or failing condition silently suppresses this one
			// trigger without affecting others in the same rule set.
			c.countSuppressed()

			continue
		}

		delayDays, err := c.resolveDelay(tl, event, rule)
		if err != nil {
			c.logger.Warn("Trigger delay unresolvable, suppressing",
				"source", event.EventType,
				"target", rule.targetEventType,
				"error", err,
			)
			c.countSuppressed()

			continue
		}

		derived := &models.ScheduledEvent{
			ID:            derivedEventID(tl.Seeds(), event.ID, rule.targetEventType, i),
			EventType:     rule.targetEventType,
			Date:          event.Date.AddDate(0, 0, delayDays),
			Derived:       true,
			Priority:      rule.priority,
			SourceEventID: event.ID,
			Seed:          tl.Seeds().Derive(tl.Entity.ID, "trigger", event.ID, rule.targetEventType, "handler"),
			Parameters:    derivedParameters(rule.parameters, event),
		}

		if rule.targetProduct == "" || rule.targetProduct == tl.Product {
			derived.Product = tl.Product
			local = append(local, derived)
			c.countFired()

			continue
		}

		derived.Product = rule.targetProduct

		c.mu.Lock()
		link := c.linkLocked(tl.Entity.ID)
		derived.Parameters["linked_id"] = link.ProductIDs[rule.targetProduct]
		c.cross = append(c.cross, &crossEvent{
			personID:  tl.Entity.ID,
			entity:    tl.Entity,
			product:   rule.targetProduct,
			event:     derived,
			ordinal:   tl.Ordinal,
			sourceSeq: event.Seq,
		})
		c.fired++
		c.mu.Unlock()
	}

	return local
}

// resolvedRule is the uniform view over event-level TriggerSpecs and
// registry entries.
type resolvedRule struct {
	targetProduct   models.Product
	targetEventType string
	delayDays       int
	delay           *models.DelaySpec
	priority        int
	condition       *models.EventCondition
	parameters      map[string]any
}

func (c *Coordinator) collectRules(product models.Product, event *models.GeneratedEvent, def *models.EventDefinition) []resolvedRule {
	var rules []resolvedRule

	if def != nil {
		for _, t := range def.Triggers {
			rules = append(rules, resolvedRule{
				targetProduct:   t.TargetProduct,
				targetEventType: t.TargetEventType,
				delay:           t.Delay,
				priority:        t.Priority,
				condition:       t.Condition,
				parameters:      t.Parameters,
			})
		}
	}

	for _, t := range c.registry.TriggersFor(product, event.EventType) {
		rules = append(rules, resolvedRule{
			targetProduct:   t.TargetProduct,
			targetEventType: t.TargetEventType,
			delayDays:       t.DelayDays,
			priority:        t.Priority,
			condition:       t.Condition,
			parameters:      t.Parameters,
		})
	}

	return rules
}

func (c *Coordinator) resolveDelay(tl *journey.Timeline, event *models.GeneratedEvent, rule resolvedRule) (int, error) {
	if rule.delay == nil {
		return rule.delayDays, nil
	}

	seedVal := tl.Seeds().Derive(tl.Entity.ID, "trigger", event.ID, rule.targetEventType, "delay")

	return distribution.ResolveDelayDays(*rule.delay, seedVal)
}

// linkLocked resolves or lazily creates the person's linked identity.
// Product IDs derive from the person ID so linking is reproducible across
// runs. Callers must hold c.mu.
func (c *Coordinator) linkLocked(personID string) *LinkedEntity {
	if link, ok := c.linked[personID]; ok {
		return link
	}

	link := &LinkedEntity{
		PersonID:   personID,
		ProductIDs: make(map[models.Product]string, len(productIDPrefixes)),
	}

	for product, prefix := range productIDPrefixes {
		digest := seed.Digest(0, personID, string(product), "identity")
		link.ProductIDs[product] = prefix + "-" + strings.ToUpper(hex.EncodeToString(digest[:4]))
	}

	c.linked[personID] = link

	return link
}

// LinkedEntityFor returns the linked identity for a person, creating it if
// needed.
func (c *Coordinator) LinkedEntityFor(personID string) *LinkedEntity {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.linkLocked(personID)
}

// CrossDelivery is the merge-pass payload for one (person, product)
// timeline: every derived event bound for it, in deterministic order.
type CrossDelivery struct {
	PersonID string
	Entity   *models.Entity
	Product  models.Product
	Events   []*models.ScheduledEvent
}

// DrainCross returns all pending cross-product derivations grouped per
// (person, product), ordered by (fire date, priority, source entity
// ordinal, source event sequence). Call it only after every source
// timeline has run to completion: the single merge pass is what keeps each
// linked timeline single-writer.
func (c *Coordinator) DrainCross() []*CrossDelivery {
	c.mu.Lock()
	pending := c.cross
	c.cross = nil
	c.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]

		if !a.event.Date.Equal(b.event.Date) {
			return a.event.Date.Before(b.event.Date)
		}

		if a.event.Priority != b.event.Priority {
			return a.event.Priority < b.event.Priority
		}

		if a.ordinal != b.ordinal {
			return a.ordinal < b.ordinal
		}

		return a.sourceSeq < b.sourceSeq
	})

	type deliveryKey struct {
		personID string
		product  models.Product
	}

	grouped := make(map[deliveryKey]*CrossDelivery)

	var order []*CrossDelivery

	for _, ce := range pending {
		key := deliveryKey{personID: ce.personID, product: ce.product}

		delivery, ok := grouped[key]
		if !ok {
			delivery = &CrossDelivery{PersonID: ce.personID, Entity: ce.entity, Product: ce.product}
			grouped[key] = delivery
			order = append(order, delivery)
		}

		delivery.Events = append(delivery.Events, ce.event)
	}

	return order
}

// Stats reports how many triggers fired and how many were suppressed by
// their conditions.
func (c *Coordinator) Stats() (fired, suppressed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fired, c.suppressed
}

func (c *Coordinator) countFired() {
	c.mu.Lock()
	c.fired++
	c.mu.Unlock()
}

func (c *Coordinator) countSuppressed() {
	c.mu.Lock()
	c.suppressed++
	c.mu.Unlock()
}

func derivedEventID(seeds *seed.Manager, sourceEventID, targetEventType string, ruleIdx int) string {
	digest := seeds.Digest("trigger", sourceEventID, targetEventType, strconv.Itoa(ruleIdx), "id")

	return hex.EncodeToString(digest[:8])
}

func derivedParameters(ruleParams map[string]any, event *models.GeneratedEvent) map[string]any {
	params := make(map[string]any, len(ruleParams)+2)

	for k, v := range ruleParams {
		params[k] = v
	}

	params["source_event_id"] = event.ID
	params["source_event_type"] = event.EventType
	params["source_date"] = event.Date.Format(time.DateOnly)

	return params
}
