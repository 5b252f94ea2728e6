package renderer

import (
	"time"

	"github.com/SirKero/RTProgressivePhotonMapper/photon"
)

type StageStat struct {
	// The pipeline stage name.
	Name string

	// Time spent in the stage.
	Time time.Duration
}

type PhotonStats struct {
	// Store occupancy after the build stage.
	Store photon.StoreStats

	// Photons indexed by each BLAS (AS variant only).
	BuildSize [photon.NumCategories]uint32

	// Radii used for the frame.
	Radius [photon.NumCategories]float32

	// Generation counters.
	Emitted   uint32
	Deposited uint32
	Rejected  uint32
	Culled    uint32
}

type FrameStats struct {
	// Iterations since the last reset, including this frame.
	Iteration uint32

	// True if the frame did not render, e.g. because the timer stopped.
	Skipped bool

	// Individual stage timings in execution order.
	Stages []StageStat

	Photons PhotonStats

	// Total render time for entire frame.
	RenderTime time.Duration
}
