package renderer

import (
	"image"
	"io"
	"time"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/lighttable"
	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/accel"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/hashgrid"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/stochastic"
	"github.com/SirKero/RTProgressivePhotonMapper/radius"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
	"github.com/SirKero/RTProgressivePhotonMapper/tracer"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var photonMapperReflection = Reflection{
	Inputs: []Channel{
		{Name: "vbuffer", Description: "Surface seen through each pixel", Optional: true},
		{Name: "viewW", Description: "World view direction", Optional: true},
		{Name: "thp", Description: "Throughput", Optional: true},
		{Name: "emissive", Description: "Emissive", Optional: true},
	},
	Outputs: []Channel{
		{Name: "PhotonImage", Description: "Caustic and global photon radiance"},
	},
}

var (
	_ Renderer = (*PhotonMapper)(nil)
	_ Pass     = (*PhotonMapper)(nil)
)

// Implemented by stores that expose their raw per category write counters.
type counterReader interface {
	ReadCounters(out []uint32) error
}

// A progressive photon mapper. It owns every device resource used for
// rendering and drives the tracer pipeline one frame per Execute call.
type PhotonMapper struct {
	logger  log.Logger
	session uuid.UUID

	device  *device.Device
	opts    Options
	pending PendingActions

	scene    *scene.Scene
	tracer   *tracer.Tracer
	pipeline *tracer.Pipeline

	store   photon.Store
	culling *accel.Culling
	table   *lighttable.Table

	radius *radius.Controller
	timer  *Timer
	accum  *Accumulator

	// Frames since the last reset.
	frameCount uint32

	// Frames rendered over the mapper lifetime. Seeds the photon streams.
	totalFrames uint64

	// Photons written per category by the last frame.
	photonCount [photon.NumCategories]uint32

	// Active photon budget and buffer capacities.
	numPhotons uint32
	capacity   [photon.NumCategories]uint32

	stats FrameStats
}

// Create a photon mapper on an initialized device.
func NewPhotonMapper(dev *device.Device, opts Options) (*PhotonMapper, error) {
	if !dev.Ready() {
		return nil, device.ErrDeviceNotInitialized
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	pm := &PhotonMapper{
		logger:     log.New("renderer"),
		session:    uuid.New(),
		device:     dev,
		opts:       opts,
		tracer:     tracer.NewTracer(dev),
		pipeline:   tracer.DefaultPipeline(opts.pipelineOptions()),
		radius:     radius.NewController(opts.radiusConfig()),
		timer:      NewTimer(opts.Timer),
		numPhotons: opts.Photons.NumPhotons,
		pending:    ResizeFrame | ResizeBuffers | RebuildLightTable | ResetIterations,
	}
	pm.logger.Infof("session %s: %s photon mapper on %s", pm.session, opts.Variant, dev.Name)
	return pm, nil
}

func (pm *PhotonMapper) Session() string {
	return pm.session.String()
}

func (pm *PhotonMapper) Options() Options {
	return pm.opts
}

// Deferred actions that the next Execute call will apply.
func (pm *PhotonMapper) Pending() PendingActions {
	return pm.pending
}

// Frames rendered since the last reset.
func (pm *PhotonMapper) Iteration() uint32 {
	return pm.frameCount
}

// Current gather radii.
func (pm *PhotonMapper) Radii() [photon.NumCategories]float32 {
	return pm.radius.Radii()
}

func (pm *PhotonMapper) LightTable() *lighttable.Table {
	return pm.table
}

func (pm *PhotonMapper) Store() photon.Store {
	return pm.store
}

func (pm *PhotonMapper) Timer() *Timer {
	return pm.timer
}

func (pm *PhotonMapper) Stats() FrameStats {
	return pm.stats
}

func (pm *PhotonMapper) Reflect() Reflection {
	return photonMapperReflection
}

// Restart progressive rendering on the next frame.
func (pm *PhotonMapper) ResetIterations() {
	pm.pending.Set(ResetIterations)
}

// Resize the photon buffers to the photon counts of the last frame plus
// the configured overestimate.
func (pm *PhotonMapper) FitBuffersToPhotonCount() {
	pm.pending.Set(NumPhotonsChanged | FitBuffers)
}

// Force a light table rebuild on the next frame.
func (pm *PhotonMapper) RebuildLightTable() {
	pm.pending.Set(RebuildLightTable)
}

// Bind a scene. All scene dependent resources are recreated on the next
// frame.
func (pm *PhotonMapper) SetScene(sc *scene.Scene) error {
	pm.releaseStore()
	pm.releaseCulling()
	pm.table = nil
	pm.tracer.SetLightTable(nil)

	pm.scene = sc
	pm.tracer.SetScene(sc)
	if sc == nil {
		return nil
	}

	// Updates raised while building the scene are not changes.
	sc.ConsumeUpdates()
	sc.Camera.SetupProjection(float32(pm.opts.FrameW) / float32(pm.opts.FrameH))

	pm.pending.Set(ResizeBuffers | RebuildLightTable | ResetIterations | RebuildCulling)
	pm.logger.Infof("bound scene with %d triangles, %d point lights and %d emissive triangles", len(sc.Triangles), len(sc.Lights), len(sc.ActiveMeshLights()))
	return nil
}

// Apply new options and raise the pending actions they require.
func (pm *PhotonMapper) Configure(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	old := pm.opts
	if opts == old {
		return nil
	}
	pm.opts = opts
	pm.pending.Set(OptionsChanged)

	if opts.Variant != old.Variant ||
		opts.Photons.InfoFormat != old.Photons.InfoFormat ||
		opts.HashGrid != old.HashGrid ||
		opts.Stochastic != old.Stochastic {
		pm.pending.Set(RebuildStore)
	}

	oldAccel, newAccel := old.Accel, opts.Accel
	if oldAccel.Build != newAccel.Build {
		pm.pending.Set(RebuildAS)
	}
	oldAccel.Build, oldAccel.Debug = newAccel.Build, newAccel.Debug
	if oldAccel != newAccel {
		pm.pending.Set(RebuildStore)
	}

	if opts.FrameW != old.FrameW || opts.FrameH != old.FrameH {
		pm.pending.Set(ResizeFrame | RebuildCulling)
	}
	if opts.Photons.NumPhotons != pm.numPhotons ||
		opts.Photons.CausticCapacity != pm.capacity[photon.Caustic] ||
		opts.Photons.GlobalCapacity != pm.capacity[photon.Global] {
		pm.pending.Set(NumPhotonsChanged)
	}
	if opts.Photons.LightTableMode != old.Photons.LightTableMode {
		pm.pending.Set(RebuildLightTable)
	}
	if opts.Culling != old.Culling {
		pm.pending.Set(RebuildCulling)
	}
	if opts.Timer != old.Timer {
		pm.timer.SetOptions(opts.Timer)
		pm.pending.Set(ResetTimer)
	}

	pm.radius.SetConfig(opts.radiusConfig())
	pm.pipeline = tracer.DefaultPipeline(opts.pipelineOptions())
	pm.logger.Infof("options changed; pending actions: %s", pm.pending)
	return nil
}

// Implements Renderer.
func (pm *PhotonMapper) Render() error {
	return pm.Execute()
}

// Render one progressive frame. Without a scene this is a no-op.
func (pm *PhotonMapper) Execute() error {
	start := time.Now()
	pm.stats = FrameStats{Iteration: pm.frameCount, Skipped: true}

	if pm.pending.Take(OptionsChanged) {
		pm.pending.Set(ResetIterations | ResetTimer)
	}
	if pm.scene == nil {
		return nil
	}

	updates := pm.scene.ConsumeUpdates()
	if updates&scene.GeometryChanged != 0 {
		return ErrGeometryChanged
	}
	if pm.pending.Take(ResetIterations) || pm.opts.Radius.AlwaysReset || updates&scene.CameraMoved != 0 {
		pm.frameCount = 0
		pm.pending.Set(ResetTimer)
	}

	if pm.timer.Check(pm.pending.Take(ResetTimer), pm.frameCount) {
		pm.stats.Iteration = pm.frameCount
		return nil
	}

	pm.readCounters()
	if pm.pending.Take(NumPhotonsChanged) {
		pm.changeNumPhotons()
	}
	if err := pm.prepareResources(); err != nil {
		return err
	}

	if pm.frameCount == 0 {
		pm.radius.Reset()
		pm.accum.Reset()
	}

	radii := pm.radius.Radii()
	stages, err := pm.renderFrame(radii)
	if err != nil {
		return err
	}

	trStats := pm.tracer.Stats()
	pm.stats = FrameStats{
		Iteration: pm.frameCount,
		Stages:    stages,
		Photons: PhotonStats{
			Store:     pm.store.Stats(),
			Radius:    radii,
			Emitted:   trStats.Emitted,
			Deposited: trStats.Deposited,
			Rejected:  trStats.Rejected,
			Culled:    trStats.Culled,
		},
		RenderTime: time.Since(start),
	}
	if as, ok := pm.store.(*accel.Store); ok {
		pm.stats.Photons.BuildSize = as.BuildSizes()
	}
	pm.reportDrops()
	return nil
}

// Run the tracer stages for one frame and fold the result into the
// accumulator.
func (pm *PhotonMapper) renderFrame(radii [photon.NumCategories]float32) ([]StageStat, error) {
	req := &tracer.FrameRequest{
		Iteration: pm.frameCount,
		Seed:      pm.opts.Seed + pm.totalFrames*0x9E3779B97F4A7C15,
		Radius:    radii,
	}
	pm.totalFrames++

	params := photon.FrameParams{
		Radius:          req.Radius,
		Iteration:       pm.frameCount,
		LastPhotonCount: pm.photonCount,
	}
	if err := pm.store.Clear(params); err != nil {
		return nil, err
	}
	pm.tracer.Resources().ClearOutput()

	p := pm.pipeline
	stages := []struct {
		name  string
		stage tracer.PipelineStage
	}{
		{"visibility", p.Visibility},
		{"culling", p.Culling},
		{"generate", p.Generate},
		{"build", p.Build},
	}
	if p.Debug != nil {
		// Debug frames replace the image and do not advance the iteration
		stages = append(stages, struct {
			name  string
			stage tracer.PipelineStage
		}{"debug", p.Debug})
	} else {
		stages = append(stages, struct {
			name  string
			stage tracer.PipelineStage
		}{"collect", p.Collect})
	}

	var stats []StageStat
	for _, s := range stages {
		if s.stage == nil {
			continue
		}
		elapsed, err := s.stage(pm.tracer, req)
		if err != nil {
			return nil, errors.Wrapf(err, "renderer: %s stage", s.name)
		}
		stats = append(stats, StageStat{Name: s.name, Time: elapsed})
	}

	if p.Debug != nil {
		pm.accum.Reset()
		pm.accum.Add(pm.tracer.Resources().Output.Data())
		return stats, nil
	}

	pm.accum.Add(pm.tracer.Resources().Output.Data())
	pm.frameCount++
	pm.radius.Advance(pm.frameCount)
	return stats, nil
}

// Copy the photon counters of the last frame.
func (pm *PhotonMapper) readCounters() {
	if pm.store == nil {
		return
	}
	if cr, ok := pm.store.(counterReader); ok {
		var out [photon.NumCategories]uint32
		if err := cr.ReadCounters(out[:]); err == nil {
			pm.photonCount = out
			return
		}
	}
	st := pm.store.Stats()
	for cat := range pm.photonCount {
		pm.photonCount[cat] = st.Stored[cat] + st.Dropped[cat]
	}
}

// Compare the requested photon budget and capacities with the active ones.
func (pm *PhotonMapper) changeNumPhotons() {
	if pm.opts.Photons.NumPhotons != pm.numPhotons {
		pm.numPhotons = pm.opts.Photons.NumPhotons
		pm.pending.Set(RebuildLightTable)
		pm.frameCount = 0
	}
	if pm.opts.Photons.CausticCapacity != pm.capacity[photon.Caustic] ||
		pm.opts.Photons.GlobalCapacity != pm.capacity[photon.Global] ||
		pm.pending.Has(FitBuffers) {
		pm.pending.Set(ResizeBuffers)
	}
}

// Apply the pending resource actions.
func (pm *PhotonMapper) prepareResources() error {
	if pm.pending.Take(ResizeFrame) || pm.accum == nil {
		w, h := int(pm.opts.FrameW), int(pm.opts.FrameH)
		if err := pm.tracer.Resize(w, h); err != nil {
			return err
		}
		pm.tracer.Resources().PrepareSeeds(pm.opts.Seed)
		pm.accum = NewAccumulator(w, h)
		pm.scene.Camera.SetupProjection(float32(w) / float32(h))
		pm.frameCount = 0
	}

	if pm.pending.Take(ResizeBuffers) {
		if pm.pending.Take(FitBuffers) && pm.photonCount[photon.Caustic] > 0 && pm.photonCount[photon.Global] > 0 {
			over := pm.opts.Photons.Overestimate
			pm.opts.Photons.CausticCapacity = uint32(float32(pm.photonCount[photon.Caustic]) * over)
			pm.opts.Photons.GlobalCapacity = uint32(float32(pm.photonCount[photon.Global]) * over)
		}
		pm.capacity = [photon.NumCategories]uint32{
			roundCapacity(pm.opts.Photons.CausticCapacity),
			roundCapacity(pm.opts.Photons.GlobalCapacity),
		}
		pm.opts.Photons.CausticCapacity = pm.capacity[photon.Caustic]
		pm.opts.Photons.GlobalCapacity = pm.capacity[photon.Global]
		pm.pending.Set(RebuildStore | RebuildAS)
		pm.logger.Debugf("photon buffers resized to caustic %d, global %d", pm.capacity[photon.Caustic], pm.capacity[photon.Global])
	}

	rebuildAS := pm.pending.Take(RebuildAS) && pm.opts.Variant == AccelStructure
	if pm.pending.Take(RebuildStore) || rebuildAS || pm.store == nil {
		if err := pm.createStore(); err != nil {
			return err
		}
	}

	if pm.pending.Take(RebuildLightTable) || pm.table == nil {
		table, err := tracer.BuildLightTable(pm.scene, pm.numPhotons, pm.opts.Photons.LightTableMode)
		if err != nil {
			return err
		}
		pm.table = table
		pm.tracer.SetLightTable(table)
		pm.logger.Infof("light table %dx%d: %d analytic and %d emissive photons", table.Width, table.Height, table.AnalyticPhotons, table.EmissivePhotons)
	}

	rebuildCulling := pm.pending.Take(RebuildCulling)
	switch {
	case pm.opts.Culling.Enabled && (pm.culling == nil || rebuildCulling):
		pm.releaseCulling()
		culling, err := accel.NewCulling(pm.device, pm.opts.cullingOptions())
		if err != nil {
			return err
		}
		pm.culling = culling
		pm.tracer.SetCulling(culling)
	case !pm.opts.Culling.Enabled && pm.culling != nil:
		pm.releaseCulling()
	}
	return nil
}

// Round a capacity up to whole info texture columns.
func roundCapacity(n uint32) uint32 {
	return uint32(photon.TextureWidth(int(n)) * photon.InfoTextureHeight)
}

func (pm *PhotonMapper) createStore() error {
	pm.releaseStore()

	var (
		store photon.Store
		err   error
	)
	o := &pm.opts
	switch o.Variant {
	case HashGrid:
		store, err = hashgrid.New(pm.device, hashgrid.Options{
			Capacity:           pm.capacity,
			BucketBits:         o.HashGrid.BucketBits,
			PhotonsPerBucket:   o.HashGrid.PhotonsPerBucket,
			ProbeIterations:    o.HashGrid.ProbeIterations,
			InfoFormat:         o.Photons.InfoFormat,
			CollectProbability: o.HashGrid.CollectProbability,
		})
	case AccelStructure:
		store, err = accel.New(pm.device, accel.Options{
			Capacity:             pm.capacity,
			Overestimate:         o.Photons.Overestimate,
			Build:                o.Accel.Build,
			Geometry:             accel.NoDuplicateAnyHit,
			InfoFormat:           o.Photons.InfoFormat,
			StochasticCollect:    o.Accel.StochasticCollect,
			MaxPhotons:           [photon.NumCategories]uint32{o.Accel.MaxPhotons, o.Accel.MaxPhotons},
			StochasticIterations: o.Accel.StochasticIterations,
		})
	case StochasticHashGrid:
		store, err = stochastic.New(pm.device, stochastic.Options{
			BucketBits:     o.Stochastic.BucketBits,
			SlotsPerBucket: o.Stochastic.SlotsPerBucket,
			Decay:          o.Stochastic.Decay,
			InfoFormat:     o.Photons.InfoFormat,
			Seed:           o.Seed,
		})
	default:
		err = errors.Wrapf(ErrUnknownVariant, "%d", o.Variant)
	}
	if err != nil {
		return err
	}

	pm.store = store
	pm.tracer.SetStore(store)
	pm.logger.Debugf("created %s photon store", o.Variant)
	return nil
}

// Warn about photons lost to full buffers on the first frame after a reset.
func (pm *PhotonMapper) reportDrops() {
	if pm.frameCount != 1 {
		return
	}
	st := pm.stats.Photons.Store
	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		if st.Dropped[cat] > 0 {
			pm.logger.Warningf("%s map dropped %d of %d photons; consider a larger buffer", cat, st.Dropped[cat], st.Stored[cat]+st.Dropped[cat])
		}
	}
}

// The tone mapped average of the frames since the last reset.
func (pm *PhotonMapper) Image() (*image.RGBA, error) {
	if pm.accum == nil || pm.accum.Frames() == 0 {
		return nil, ErrNoFrame
	}
	w, h := pm.accum.Size()
	return Tonemap(pm.accum.Pixels(), w, h, pm.opts.Exposure), nil
}

// The linear average of the frames since the last reset.
func (pm *PhotonMapper) Accumulator() *Accumulator {
	return pm.accum
}

// Write the recorded frame times.
func (pm *PhotonMapper) WriteTimes(w io.Writer) error {
	return pm.timer.WriteTimes(w, pm.opts.Variant.timesName())
}

func (pm *PhotonMapper) releaseStore() {
	if pm.store != nil {
		pm.store.Release()
		pm.store = nil
		pm.tracer.SetStore(nil)
	}
}

func (pm *PhotonMapper) releaseCulling() {
	if pm.culling != nil {
		pm.culling.Release()
		pm.culling = nil
		pm.tracer.SetCulling(nil)
	}
}

// Release all device resources.
func (pm *PhotonMapper) Close() {
	pm.releaseStore()
	pm.releaseCulling()
	pm.tracer.Close()
	pm.accum = nil
}
