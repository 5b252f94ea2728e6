package renderer

import "errors"

var (
	ErrGeometryChanged = errors.New("renderer: photon mapper does not support scene geometry changes")
	ErrInvalidOptions  = errors.New("renderer: invalid options")
	ErrUnknownVariant  = errors.New("renderer: unknown photon store variant")
	ErrNoFrame         = errors.New("renderer: no frame has been rendered")
)
