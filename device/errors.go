package device

import "errors"

var (
	ErrDeviceNotInitialized = errors.New("device: not initialized")
	ErrOutOfMemory          = errors.New("device: out of memory")
	ErrOutOfBounds          = errors.New("device: access out of buffer bounds")
)
