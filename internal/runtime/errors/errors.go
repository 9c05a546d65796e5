package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrUnregistered    = sterrors.New("mics: microservice is not registered")
	ErrServiceRequired = sterrors.New("mics: microservice is required")
	ErrBusRequired     = sterrors.New("mics: message bus is required")
	ErrHandlerRequired = sterrors.New("mics: handler function is required")
	ErrAlreadyStarted  = sterrors.New("mics: microservice has already been started")
	ErrNotInitializing = sterrors.New("mics: handlers can only be bound before the microservice runs")
	ErrNotEvent        = sterrors.New("mics: type does not implement an event")
	ErrNotBroadcast    = sterrors.New("mics: type does not implement a broadcast")
	ErrNilMessage      = sterrors.New("mics: message is required")
	ErrConfigRequired  = sterrors.New("mics: configuration is required")
	ErrLoggerRequired  = sterrors.New("mics: logger is required")
)

// ConfigValidationError wraps the aggregated problems found while validating a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "mics: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// HandlerError is returned by a microservice run loop when one of its handlers
// fails. It stops that microservice only.
type HandlerError struct {
	Service     string
	MessageType string
	Err         error
	// Panic holds the recovered value when the handler panicked.
	Panic any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("mics: handler for %s in %s panicked: %v", e.MessageType, e.Service, e.Panic)
	}
	return fmt.Sprintf("mics: handler for %s in %s failed: %v", e.MessageType, e.Service, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// IsHandlerError reports whether err carries a HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return sterrors.As(err, &he)
}
