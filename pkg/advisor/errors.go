package advisor

import "errors"

var (
	// ErrInvalidQuantity is returned for quantities that are not a finite number above zero.
	ErrInvalidQuantity = errors.New("advisor: invalid quantity")
	ErrMissingField    = errors.New("advisor: crop type and residue type are required")
	ErrInference       = errors.New("advisor: inference service failed")
)
