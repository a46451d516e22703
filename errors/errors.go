// Package errors provides standardized error handling for prcore components.
// It classifies errors into transient, invalid and fatal so that consumers
// (transport loops, worker runtimes, the coordinator) can decide between
// retrying, dropping and surfacing without string matching at call sites.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration.
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrShuttingDown   = errors.New("shutting down")

	// Transport errors
	ErrNoConnection    = errors.New("no connection available")
	ErrConnectionLost  = errors.New("connection lost")
	ErrPublishFailed   = errors.New("publish failed")
	ErrConsumeFailed   = errors.New("consume setup failed")
	ErrUnknownKind     = errors.New("unknown message kind")
	ErrDecodeFailed    = errors.New("message decode failed")
	ErrDuplicateReader = errors.New("session already has a reader")

	// Data and definition errors
	ErrInvalidDefinition = errors.New("invalid column definition")
	ErrMissingColumn     = errors.New("column not present in event log")
	ErrInvalidCondition  = errors.New("invalid condition")
	ErrEmptyLog          = errors.New("event log contains no rows")

	// State errors
	ErrProjectNotFound   = errors.New("project not found")
	ErrPluginNotFound    = errors.New("plugin not registered in project")
	ErrInvalidTransition = errors.New("lifecycle transition not permitted")
	ErrSessionNotFound   = errors.New("streaming session not found")
	ErrRequestNotFound   = errors.New("pending request not found")
	ErrArtifactMissing   = errors.New("artifact not found")
	ErrUnknownAlgorithm  = errors.New("algorithm not registered")
	ErrProcessorFailed   = errors.New("processor returned no result")
	ErrWaitTimeout       = errors.New("wait for response timed out")
)

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify returns the error class for an error. Unclassified errors default
// to transient so callers may retry them.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ErrorTransient
}

// IsTransient checks if an error is transient and may be retried.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ErrorTransient
}

// IsInvalid checks if an error is due to invalid input.
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ErrorInvalid
}

// IsFatal checks if an error is fatal and should stop processing.
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ErrorFatal
}

func newClassified(class ErrorClass, err error, component, operation string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorTransient, Wrap(err, component, method, action), component, method)
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, Wrap(err, component, method, action), component, method)
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorFatal, Wrap(err, component, method, action), component, method)
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers do not need to import both error packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
