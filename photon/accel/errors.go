package accel

import "errors"

var (
	ErrRaytracingUnsupported = errors.New("accel: device does not support ray tracing")
	ErrEmptyPhotonBuffer     = errors.New("accel: photon buffer capacity must be non-zero")
	ErrInvalidCullingBits    = errors.New("accel: culling hash bits out of range")
	ErrIndexNotBuilt         = errors.New("accel: acceleration structure not built")
)
