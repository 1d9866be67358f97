package gcrf

import "errors"

var (
	// ErrShapeMismatch is returned when inputs disagree on batch, height,
	// width or on the channel layout a field must have.
	ErrShapeMismatch = errors.New("gcrf: shape mismatch")

	// ErrInvalidConfiguration is returned by New and Config.Validate.
	ErrInvalidConfiguration = errors.New("gcrf: invalid configuration")

	// ErrUndefinedReduction reports a mean taken over an empty selection: an
	// empty classification pool or an offset with no valid destination pixel.
	// The affected values are NaN.
	ErrUndefinedReduction = errors.New("gcrf: undefined reduction")
)
