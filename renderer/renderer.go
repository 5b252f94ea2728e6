package renderer

import "github.com/SirKero/RTProgressivePhotonMapper/scene"

type Renderer interface {
	// Render frame.
	Render() error

	// Shutdown renderer and release any device resources.
	Close()

	// Get render statistics.
	Stats() FrameStats
}

// An input or output image of a render pass.
type Channel struct {
	Name        string
	Description string
	Optional    bool
}

// The images a pass consumes and produces.
type Reflection struct {
	Inputs  []Channel
	Outputs []Channel
}

// A render pass that can be driven by a render graph host.
type Pass interface {
	// Describe the pass inputs and outputs.
	Reflect() Reflection

	// Run one frame.
	Execute() error

	// Apply new options. Changes take effect on the next Execute call.
	Configure(opts Options) error

	// Bind a scene. Passing nil unbinds the current scene.
	SetScene(sc *scene.Scene) error
}
