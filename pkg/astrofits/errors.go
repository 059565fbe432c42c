package astrofits

import (
	"errors"
	"fmt"
)

// Sentinel errors for the container core. Callers test them with errors.Is;
// wrapping sites add context with fmt.Errorf and %w.
var (
	// ErrRange reports a numeric keyword coercion whose stored magnitude
	// exceeds the range of the requested type.
	ErrRange = errors.New("value out of range for requested type")

	// ErrTypeMismatch reports a keyword coercion between incompatible kinds,
	// such as string to numeric.
	ErrTypeMismatch = errors.New("keyword type mismatch")

	// ErrKeywordNotFound reports a lookup of an absent keyword where the API
	// shape requires an error rather than a boolean.
	ErrKeywordNotFound = errors.New("keyword not found")

	// ErrStructural reports a violation of the container invariants: missing
	// or duplicate primary block, or an operation that needs a block the
	// container does not have.
	ErrStructural = errors.New("container structure violation")

	// ErrDuplicateSingleton reports an attempt to append a second astrometry
	// or photometry block to a container.
	ErrDuplicateSingleton = errors.New("singleton block already present")

	// ErrUnknownBlockSignature reports a block header matched by no
	// registered HDB variant.
	ErrUnknownBlockSignature = errors.New("unknown block signature")

	// ErrOutOfBounds reports a crop region exceeding the source extents.
	ErrOutOfBounds = errors.New("region out of bounds")

	// ErrInvalidArgument reports a malformed argument to a transform, such
	// as a binning factor that does not divide the image extents.
	ErrInvalidArgument = errors.New("invalid argument")
)

// UnsupportedOperationError reports a capability mismatch: an operation
// dispatched to a block variant that does not support it. This is a contract
// error on the caller's side and is always surfaced.
type UnsupportedOperationError struct {
	Op    Operation
	Block BlockType
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %s not supported by %s block", e.Op, e.Block)
}

// IncompatibleFrameError reports a calibration reference frame that failed
// validation against the target image. Frame identifies the offending
// reference (dark, bias or flat).
type IncompatibleFrameError struct {
	Frame  string
	Path   string
	Reason string
}

func (e *IncompatibleFrameError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("incompatible %s frame %s: %s", e.Frame, e.Path, e.Reason)
	}
	return fmt.Sprintf("incompatible %s frame: %s", e.Frame, e.Reason)
}
