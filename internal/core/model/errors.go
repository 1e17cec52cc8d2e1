package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by a processing run. None of them is retried.
var (
	ErrMissingIdentifier     = errors.New("missing identifier")
	ErrCoordinateOutOfRange  = errors.New("coordinate out of range")
	ErrUnresolvableFeature   = errors.New("unresolvable feature")
	ErrUnsupportedInputShape = errors.New("unsupported input shape")
	ErrOutputWriteFailed     = errors.New("output write failed")
	ErrInputReadFailed       = errors.New("input read failed")

	// causes of ErrUnresolvableFeature
	ErrMissingGeometry     = errors.New("missing geometry")
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
)

// FeatureError pins an ingestion failure to one input feature.
type FeatureError struct {
	Index    int
	RegionID RegionID
	Err      error
}

func (e *FeatureError) Error() string {
	if e.RegionID != "" {
		return fmt.Sprintf("feature %d (%s): %v", e.Index, e.RegionID, e.Err)
	}
	return fmt.Sprintf("feature %d: %v", e.Index, e.Err)
}

func (e *FeatureError) Unwrap() error { return e.Err }

// Kind names the error kind of err for diagnostics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingIdentifier):
		return "MissingIdentifier"
	case errors.Is(err, ErrCoordinateOutOfRange):
		return "CoordinateOutOfRange"
	case errors.Is(err, ErrUnresolvableFeature):
		return "UnresolvableFeature"
	case errors.Is(err, ErrUnsupportedInputShape):
		return "UnsupportedInputShape"
	case errors.Is(err, ErrOutputWriteFailed):
		return "OutputWriteFailed"
	case errors.Is(err, ErrInputReadFailed):
		return "InputReadFailed"
	default:
		return "Internal"
	}
}
