package photon

import "errors"

var (
	ErrInvalidCapacity = errors.New("photon: store capacity must be positive")
	ErrUnknownFormat   = errors.New("photon: unknown info texture format")
	ErrGridTooLarge    = errors.New("photon: hash grid exceeds the 32 bit index range")
)
