package lighttable

import "errors"

var (
	ErrNoLights    = errors.New("lighttable: scene has no active analytic or emissive lights")
	ErrNoPhotons   = errors.New("lighttable: photon budget must be positive")
	ErrUnknownMode = errors.New("lighttable: unknown distribution mode")
)
