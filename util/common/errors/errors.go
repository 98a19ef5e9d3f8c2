package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Common errors that can be used across packages
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrFatal           = errors.New("fatal error")
	ErrRunAborted      = errors.New("run aborted")
)

// Kind classifies a failure for the retry policy.
type Kind int

const (
	// KindTransient failures are retried up to the configured maximum.
	KindTransient Kind = iota
	// KindPermanent failures abandon the item immediately.
	KindPermanent
	// KindResource failures are retried and pause admission of new items.
	KindResource
	// KindFatal failures abort the run before any work starts.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindResource:
		return "resource"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "transient", "":
		return KindTransient, nil
	case "permanent":
		return KindPermanent, nil
	case "resource":
		return KindResource, nil
	case "fatal":
		return KindFatal, nil
	}
	return KindTransient, fmt.Errorf("%w: unknown error kind %q", ErrInvalidArgument, s)
}

// Retryable reports whether an item failing with this kind may be attempted again.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindResource
}

// ItemError is a classified failure of one step for one artifact.
type ItemError struct {
	Op      string
	Name    string
	Kind    Kind
	Wrapped error
}

func (e *ItemError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s %s failed (%s): %v", e.Op, e.Name, e.Kind, e.Wrapped)
	}
	return fmt.Sprintf("%s %s failed (%s)", e.Op, e.Name, e.Kind)
}

func (e *ItemError) Unwrap() error {
	return e.Wrapped
}

// NewItemError creates a new ItemError with an explicit kind.
func NewItemError(op, name string, kind Kind, wrapped error) error {
	return &ItemError{
		Op:      op,
		Name:    name,
		Kind:    kind,
		Wrapped: wrapped,
	}
}

// Transient wraps err as a retryable failure.
func Transient(op, name string, err error) error {
	return NewItemError(op, name, KindTransient, err)
}

// Permanent wraps err as a non-retryable failure.
func Permanent(op, name string, err error) error {
	return NewItemError(op, name, KindPermanent, err)
}

// Classified wraps err with the kind Classify infers for it.
func Classified(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return NewItemError(op, name, KindOf(err), err)
}

// FatalError marks a run-level failure.
type FatalError struct {
	Op      string
	Wrapped error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Wrapped)
}

func (e *FatalError) Unwrap() []error {
	return []error{ErrFatal, e.Wrapped}
}

// Fatal wraps err as a run-level failure.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Op: op, Wrapped: err}
}

// KindOf returns the kind attached to err, or infers one with Classify.
func KindOf(err error) Kind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, ErrFatal) {
		return KindFatal
	}
	var itemErr *ItemError
	if errors.As(err, &itemErr) {
		return itemErr.Kind
	}
	return Classify(err)
}

var (
	resourceMarkers = []string{
		"no space left on device",
		"disk quota exceeded",
	}
	permanentMarkers = []string{
		"manifest unknown",
		"name unknown",
		"not found",
		"unauthorized",
		"access denied",
		"permission denied",
		"denied: ",
		"malformed",
		"invalid reference format",
		"unable to authenticate",
	}
	transientMarkers = []string{
		"toomanyrequests",
		"too many requests",
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"temporary failure",
		"service unavailable",
		"bad gateway",
		"unexpected eof",
	}
)

// Classify infers a kind from an unclassified error. Unknown errors are
// transient: a retry is bounded and cheaper than losing the item.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return KindResource
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	for _, m := range resourceMarkers {
		if strings.Contains(msg, m) {
			return KindResource
		}
	}
	// transient markers win over permanent ones: "dial tcp: lookup host: i/o timeout"
	// must not be read as "not found"
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return KindTransient
		}
	}
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return KindPermanent
		}
	}
	return KindTransient
}

// KindFromHTTPStatus maps a registry or depot HTTP status to a kind.
func KindFromHTTPStatus(code int) Kind {
	switch {
	case code == 401, code == 403, code == 404, code == 400, code == 410:
		return KindPermanent
	case code == 507:
		return KindResource
	default:
		return KindTransient
	}
}

// ValidationError represents an error that occurs during validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// FileError represents an error that occurs during file operations
type FileError struct {
	Path    string
	Op      string
	Wrapped error
}

func (e *FileError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s operation failed on %s: %v", e.Op, e.Path, e.Wrapped)
	}
	return fmt.Sprintf("%s operation failed on %s", e.Op, e.Path)
}

func (e *FileError) Unwrap() error {
	return e.Wrapped
}

// NewFileError creates a new FileError
func NewFileError(path, op string, wrapped error) error {
	return &FileError{
		Path:    path,
		Op:      op,
		Wrapped: wrapped,
	}
}

// Is reports whether target matches err.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
