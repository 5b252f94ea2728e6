package tracer

import (
	"time"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"pgregory.net/rand"
)

// An alias for functions that can be used as part of the photon mapping
// pipeline.
type PipelineStage func(tr *Tracer, req *FrameRequest) (time.Duration, error)

// The list of pluggable stages that make up a frame.
type Pipeline struct {
	// Fill the G-buffer with the first diffuse surface seen by each pixel.
	Visibility PipelineStage

	// Mark the hash cells that gather queries can reach. Optional.
	Culling PipelineStage

	// Emit and trace photons into the store.
	Generate PipelineStage

	// Make the stored photons searchable.
	Build PipelineStage

	// Gather photons for every pixel into the output.
	Collect PipelineStage

	// Visualize stored photons instead of collecting them. Optional.
	Debug PipelineStage
}

type PipelineOptions struct {
	MaxSpecularBounces uint32
	Generate           GenerateOptions
	Collect            CollectOptions
	EnableCulling      bool
	EnableDebug        bool
}

type CollectOptions struct {
	// Categories to gather.
	Mask photon.CategoryMask

	// Skip photons whose face normal disagrees with the surface.
	FaceNormalRejection bool
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		MaxSpecularBounces: 10,
		Generate:           DefaultGenerateOptions(),
		Collect: CollectOptions{
			Mask:                photon.MaskAll,
			FaceNormalRejection: true,
		},
	}
}

func DefaultPipeline(opts PipelineOptions) *Pipeline {
	pipeline := &Pipeline{
		Visibility: VisibilityPass(opts.MaxSpecularBounces),
		Generate:   GeneratePhotons(opts.Generate),
		Build:      BuildPhotonIndex(),
		Collect:    CollectPhotons(opts.Collect),
	}
	if opts.EnableCulling {
		pipeline.Culling = CullingPass()
	}
	if opts.EnableDebug {
		pipeline.Debug = DebugPhotons(photon.MaskAll)
	}
	return pipeline
}

// Trace camera rays through specular surfaces up to the first diffuse hit
// and record it in the G-buffer.
func VisibilityPass(maxSpecularBounces uint32) PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		if tr.scene == nil {
			return 0, ErrNoScene
		}
		width, height := tr.resources.Size()
		if width == 0 || height == 0 {
			return 0, ErrNoResources
		}

		gbuffer := tr.resources.GBuffer.Data()
		seeds := tr.resources.Seeds.Data()
		cam := tr.scene.Camera
		k, err := tr.device.Kernel("visibility", func(th *device.Thread) {
			th.Rand.Seed(frameSeed(seeds[th.Index], req.Iteration))
			u := (float32(th.X) + th.Rand.Float32()) / float32(width)
			v := (float32(th.Y) + th.Rand.Float32()) / float32(height)
			gbuffer[th.Index] = tr.traceVisibility(cam.GenerateRay(u, v), maxSpecularBounces, &th.Rand)
		})
		if err != nil {
			return 0, err
		}
		return k.Exec2D(0, 0, width, height)
	}
}

func (tr *Tracer) traceVisibility(ray types.Ray, maxSpecularBounces uint32, rng *rand.Rand) GBufferTexel {
	texel := GBufferTexel{Throughput: types.Vec3{1, 1, 1}}
	for bounce := uint32(0); bounce <= maxSpecularBounces; bounce++ {
		hit, ok := tr.scene.Intersect(ray)
		if !ok {
			texel.Emission = texel.Emission.Add(tr.scene.BgColor.MulVec(texel.Throughput))
			return texel
		}

		mat := hit.Material
		if mat.IsEmissive() && hit.FrontFace {
			texel.Emission = texel.Emission.Add(mat.Emission.MulVec(texel.Throughput))
		}

		switch mat.Type {
		case scene.DiffuseMaterial:
			texel.Valid = true
			texel.Position = hit.Position
			texel.FaceNormal = hit.Normal
			texel.Albedo = mat.Diffuse
			texel.ViewDir = ray.Dir.Mul(-1)
			return texel
		case scene.SpecularMaterial:
			texel.Throughput = texel.Throughput.MulVec(mat.Specular)
			ray = spawnRay(hit.Position, hit.Normal, ray.Dir.Reflect(hit.Normal))
		case scene.RefractiveMaterial:
			dir, weight := scatterDielectric(ray.Dir, &hit, rng.Float32())
			texel.Throughput = texel.Throughput.MulVec(weight)
			ray = spawnRay(hit.Position, hit.Normal, dir)
		}
	}
	return texel
}

// Reset the culling table and mark the cells around every visible surface.
func CullingPass() PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		if tr.culling == nil {
			return 0, nil
		}
		if tr.scene == nil {
			return 0, ErrNoScene
		}
		width, height := tr.resources.Size()

		start := time.Now()
		globalRadius := req.Radius[photon.Global]
		tr.culling.Reset(globalRadius, tr.scene.Camera)
		markRadius := tr.culling.HashRadius(globalRadius)

		gbuffer := tr.resources.GBuffer.Data()
		k, err := tr.device.Kernel("cullPhotons", func(th *device.Thread) {
			if texel := &gbuffer[th.Index]; texel.Valid {
				tr.culling.Mark(texel.Position, markRadius)
			}
		})
		if err != nil {
			return 0, err
		}
		if _, err = k.Exec2D(0, 0, width, height); err != nil {
			return time.Since(start), err
		}
		return time.Since(start), nil
	}
}

// Run one thread per light table texel. Each thread emits a photon, traces
// it through the scene and hands its diffuse interactions to the store.
func GeneratePhotons(opts GenerateOptions) PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		switch {
		case tr.scene == nil:
			return 0, ErrNoScene
		case tr.table == nil:
			return 0, ErrNoLightTable
		case tr.store == nil:
			return 0, ErrNoStore
		}

		tr.counters.reset()
		table := tr.table
		k, err := tr.device.Kernel("generatePhotons", func(th *device.Thread) {
			ray, flux, ok := tr.emitPhoton(int(th.X), int(th.Y), &opts, &th.Rand)
			if !ok {
				return
			}
			tr.counters.emitted.Add(1)

			var buf [8]photon.Photon
			batch := tr.tracePhoton(ray, flux, &opts, &th.Rand, buf[:0])
			if len(batch) == 0 {
				return
			}
			tr.counters.deposited.Add(uint32(len(batch)))
			tr.store.InsertBatch(batch)
		})
		if err != nil {
			return 0, err
		}
		k.SetSeed(req.Seed)
		return k.Exec2D(0, 0, table.Width, table.Height)
	}
}

// Make the photons of this frame searchable.
func BuildPhotonIndex() PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		if tr.store == nil {
			return 0, ErrNoStore
		}
		start := time.Now()
		err := tr.store.BuildIndex()
		return time.Since(start), err
	}
}

// Gather photons for every valid G-buffer texel and add the estimate, plus
// the emission seen along the camera path, to the output.
func CollectPhotons(opts CollectOptions) PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		if tr.store == nil {
			return 0, ErrNoStore
		}
		width, height := tr.resources.Size()
		if width == 0 || height == 0 {
			return 0, ErrNoResources
		}

		gbuffer := tr.resources.GBuffer.Data()
		seeds := tr.resources.Seeds.Data()
		output := tr.resources.Output.Data()
		k, err := tr.device.Kernel("collectPhotons", func(th *device.Thread) {
			texel := &gbuffer[th.Index]
			radiance := texel.Emission
			if texel.Valid {
				th.Rand.Seed(frameSeed(seeds[th.Index]^collectSeedMix, req.Iteration))
				q := photon.Query{
					Position:            texel.Position,
					FaceNormal:          texel.FaceNormal,
					Albedo:              texel.Albedo,
					Radius:              req.Radius,
					Mask:                opts.Mask,
					FaceNormalRejection: opts.FaceNormalRejection,
					Rand:                &th.Rand,
				}
				est := tr.store.QueryRadiance(&q)
				radiance = radiance.Add(est.Total().MulVec(texel.Throughput))
			}
			addRadiance(&output[th.Index], radiance)
		})
		if err != nil {
			return 0, err
		}
		return k.Exec2D(0, 0, width, height)
	}
}

// Implemented by stores that can visualize their photons along a ray.
type PhotonDebugger interface {
	DebugRadiance(ray types.Ray, mask photon.CategoryMask) types.Vec3
}

// Render the flux of stored photons hit by primary rays up to the first
// surface. Stores without debug support render nothing.
func DebugPhotons(mask photon.CategoryMask) PipelineStage {
	return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		if tr.scene == nil {
			return 0, ErrNoScene
		}
		debugger, ok := tr.store.(PhotonDebugger)
		if !ok {
			return 0, nil
		}
		width, height := tr.resources.Size()

		cam := tr.scene.Camera
		output := tr.resources.Output.Data()
		k, err := tr.device.Kernel("debugPhotons", func(th *device.Thread) {
			ray := cam.GenerateRay((float32(th.X)+0.5)/float32(width), (float32(th.Y)+0.5)/float32(height))
			if hit, ok := tr.scene.Intersect(ray); ok {
				ray.TMax = hit.Dist
			}
			addRadiance(&output[th.Index], debugger.DebugRadiance(ray, mask))
		})
		if err != nil {
			return 0, err
		}
		return k.Exec2D(0, 0, width, height)
	}
}

const collectSeedMix = 0x5851F42D4C957F2D

// Derive the random seed of a pixel for a given iteration.
func frameSeed(pixelSeed uint64, iteration uint32) uint64 {
	return pixelSeed + uint64(iteration)*0x9E3779B97F4A7C15
}

func addRadiance(dst *types.Vec4, radiance types.Vec3) {
	*dst = types.Vec4{dst[0] + radiance[0], dst[1] + radiance[1], dst[2] + radiance[2], 1}
}
