package tracer

import "errors"

var (
	ErrNoScene      = errors.New("tracer: no scene attached")
	ErrNoLightTable = errors.New("tracer: light table not built")
	ErrNoStore      = errors.New("tracer: no photon store attached")
	ErrNoResources  = errors.New("tracer: frame resources not allocated")
)
