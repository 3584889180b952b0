package detector

import "errors"

var (
	// ErrInvalidConfiguration is returned by New when the detector settings
	// cannot produce a usable detector.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidFrame is returned for empty, malformed or mis-sized frames.
	// The detector state is left untouched when it is returned.
	ErrInvalidFrame = errors.New("invalid frame")
)
