package cacache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gophersatwork/cacache/integrity"
)

// Sentinel errors
var (
	// ErrNotFound is returned when a key has no index entry or a digest has
	// no content.
	ErrNotFound = errors.New("cache entry not found")

	// ErrIntegrity is returned when content does not match an expected digest.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrSize is returned when the number of bytes written does not match
	// the expected size.
	ErrSize = errors.New("size check failed")

	// ErrPutFinished is returned when a put handle is used after Commit or Abort.
	ErrPutFinished = errors.New("put already finished")

	// ErrWouldBlock is returned by async polls that cannot make progress yet.
	// Wait on Ready and poll again.
	ErrWouldBlock = errors.New("writer not ready")
)

// IntegrityError describes a digest mismatch.
type IntegrityError struct {
	Expected integrity.Integrity
	Actual   integrity.Integrity
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: expected %s, got %s", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrIntegrity) hold.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// SizeError describes a size mismatch.
type SizeError struct {
	Expected int64
	Actual   int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("size check failed: expected %d bytes, wrote %d", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrSize) hold.
func (e *SizeError) Is(target error) bool {
	return target == ErrSize
}

// ValidationError represents one or more invalid put options.
type ValidationError struct {
	Errors []error
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("validation failed: %v", ve.Errors[0])
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "validation failed with %d errors:\n", len(ve.Errors))
	for i, err := range ve.Errors {
		fmt.Fprintf(&buf, "  %d. %v\n", i+1, err)
	}
	return buf.String()
}

// Unwrap returns the underlying errors for use with errors.Is and errors.As.
func (ve *ValidationError) Unwrap() []error {
	return ve.Errors
}

// newValidationError creates a ValidationError from a slice of errors.
// Returns nil if the slice is empty.
func newValidationError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
