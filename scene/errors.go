package scene

import "errors"

var (
	ErrNoCamera        = errors.New("scene: no camera attached")
	ErrUnknownMaterial = errors.New("scene: triangle references unknown material")
)
