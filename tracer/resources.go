package tracer

import (
	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/pkg/errors"
	"pgregory.net/rand"
)

// Per pixel visibility information consumed by the collect stage.
type GBufferTexel struct {
	// False if the camera path left the scene or never reached a diffuse
	// surface.
	Valid bool

	Position types.Vec3

	// Geometric normal facing the viewer.
	FaceNormal types.Vec3

	Albedo types.Vec3

	// Radiance emitted towards the camera along the path, already scaled
	// by the path throughput.
	Emission types.Vec3

	// Direction towards the previous path vertex.
	ViewDir types.Vec3

	// Product of the specular interactions between camera and Position.
	Throughput types.Vec3
}

// Frame sized device buffers shared by the pipeline stages.
type Resources struct {
	device *device.Device

	GBuffer *device.Texture2D[GBufferTexel]

	// Per pixel random seeds.
	Seeds *device.Texture2D[uint64]

	// Additive RGBA radiance output.
	Output *device.Texture2D[types.Vec4]
}

func NewResources(dev *device.Device) *Resources {
	return &Resources{
		device:  dev,
		GBuffer: device.NewTexture2D[GBufferTexel](dev, "tracer.gbuffer"),
		Seeds:   device.NewTexture2D[uint64](dev, "tracer.seeds"),
		Output:  device.NewTexture2D[types.Vec4](dev, "tracer.output"),
	}
}

// Frame dimensions.
func (r *Resources) Size() (int, int) {
	return r.Output.Width(), r.Output.Height()
}

// (Re)allocate all frame buffers for a width x height frame.
func (r *Resources) Resize(width, height int) error {
	if err := r.GBuffer.Allocate(width, height); err != nil {
		return errors.Wrap(err, "tracer: allocating gbuffer")
	}
	if err := r.Seeds.Allocate(width, height); err != nil {
		return errors.Wrap(err, "tracer: allocating seed buffer")
	}
	if err := r.Output.Allocate(width, height); err != nil {
		return errors.Wrap(err, "tracer: allocating output")
	}
	return nil
}

// Fill the seed buffer from a single master seed.
func (r *Resources) PrepareSeeds(seed uint64) {
	rng := rand.New(seed)
	data := r.Seeds.Data()
	for i := range data {
		data[i] = rng.Uint64()
	}
}

// Zero the output image.
func (r *Resources) ClearOutput() {
	r.Output.Clear()
}

func (r *Resources) Release() {
	r.GBuffer.Release()
	r.Seeds.Release()
	r.Output.Release()
}
