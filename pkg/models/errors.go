package models

import "fmt"

// ConfigurationError marks an invalid specification or registry: bad
// distribution weights, unknown event types or products, cyclic trigger
// graphs. It is fatal and raised at load time, before any timeline work.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "configuration: " + e.Msg + ": " + e.Err.Error()
	}

	return "configuration: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError builds a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// EvaluationError marks a condition referencing a field present neither in
// the accumulated context nor in the entity's attributes. Non-fatal: the
// condition resolves false and the error is recorded on the result.
type EvaluationError struct {
	Field string
}

func (e *EvaluationError) Error() string {
	return "evaluation: field " + e.Field + " not found in context or entity attributes"
}

// HandlerError marks a handler failure or a missing handler registration.
// Non-fatal: the event is recorded as skipped and execution continues.
type HandlerError struct {
	Product   Product
	EventType string
	Err       error
}

func (e *HandlerError) Error() string {
	msg := fmt.Sprintf("handler: %s/%s", e.Product, e.EventType)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg + ": no handler registered"
}

func (e *HandlerError) Unwrap() error { return e.Err }

// BudgetExceededError marks a tripped circuit breaker: the journey day cap
// or the maximum generated-event count. Non-fatal: the timeline completes
// early and the trip is reported on the result.
type BudgetExceededError struct {
	Kind  string // "day_cap" or "max_events"
	Limit int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s (limit %d)", e.Kind, e.Limit)
}
