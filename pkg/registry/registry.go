// Package registry maps (product, event type) pairs to the handlers that
// materialize scheduled events into concrete domain records.
package registry

import (
	"log/slog"
	"sort"

	"github.com/healthsim/healthsim/pkg/models"
)

// Result is what a handler reports back: the opaque generated record and
// any derived facts to merge into the timeline's context. Handlers must be
// side-effect-free with respect to the timeline; facts are returned, never
// mutated in place.
type Result struct {
	Record map[string]any
	Facts  map[string]any
}

// Handler materializes one scheduled event for one entity. The context map
// is the accumulated fact view and must be treated as read-only.
type Handler interface {
	Handle(event models.ScheduledEvent, entity *models.Entity, context map[string]any) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(event models.ScheduledEvent, entity *models.Entity, context map[string]any) (*Result, error)

func (f HandlerFunc) Handle(event models.ScheduledEvent, entity *models.Entity, context map[string]any) (*Result, error) {
	return f(event, entity, context)
}

type handlerKey struct {
	product   models.Product
	eventType string
}

// Registry is the process-wide handler table. It is populated once at
// startup and read-only during a run.
type Registry struct {
	logger   *slog.Logger
	handlers map[handlerKey]Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[handlerKey]Handler),
	}
}

// Register binds a handler for (product, eventType), replacing any default
// already present so callers can override the built-in packs.
func (r *Registry) Register(product models.Product, eventType string, handler Handler) {
	key := handlerKey{product: product, eventType: eventType}

	if _, exists := r.handlers[key]; exists {
		r.logger.Debug("Replacing registered handler", "product", product, "event_type", eventType)
	}

	r.handlers[key] = handler
}

// Lookup returns the handler for (product, eventType).
func (r *Registry) Lookup(product models.Product, eventType string) (Handler, bool) {
	h, ok := r.handlers[handlerKey{product: product, eventType: eventType}]

	return h, ok
}

// Handles reports whether any handler is bound for (product, eventType).
func (r *Registry) Handles(product models.Product, eventType string) bool {
	_, ok := r.Lookup(product, eventType)

	return ok
}

// EventTypes returns the sorted event types registered for a product.
func (r *Registry) EventTypes(product models.Product) []string {
	var types []string

	for key := range r.handlers {
		if key.product == product {
			types = append(types, key.eventType)
		}
	}

	sort.Strings(types)

	return types
}
