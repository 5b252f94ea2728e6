package tracer

import (
	"math"
	"sync"
	"testing"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/lighttable"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/accel"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/hashgrid"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

// A store that keeps every inserted photon.
type captureStore struct {
	mu      sync.Mutex
	photons []photon.Photon
}

func (s *captureStore) Clear(photon.FrameParams) error {
	s.photons = s.photons[:0]
	return nil
}

func (s *captureStore) InsertBatch(photons []photon.Photon) {
	s.mu.Lock()
	s.photons = append(s.photons, photons...)
	s.mu.Unlock()
}

func (s *captureStore) BuildIndex() error                           { return nil }
func (s *captureStore) QueryRadiance(*photon.Query) photon.Radiance { return photon.Radiance{} }
func (s *captureStore) Stats() photon.StoreStats                    { return photon.StoreStats{} }
func (s *captureStore) Release()                                    {}

func createTestDevice(t *testing.T) *device.Device {
	dev := device.NewCPUDevice("test", 4)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	return dev
}

// A huge horizontal quad at height y.
func plane(y float32, material uint32) []scene.Triangle {
	const l = 1000
	a, b, c, d := types.XYZ(-l, y, -l), types.XYZ(-l, y, l), types.XYZ(l, y, l), types.XYZ(l, y, -l)
	return []scene.Triangle{
		{Vertices: [3]types.Vec3{a, b, c}, Material: material},
		{Vertices: [3]types.Vec3{a, c, d}, Material: material},
	}
}

func pointLightScene(t *testing.T, materials []scene.Material, tris []scene.Triangle) *scene.Scene {
	lights := []scene.PointLight{{Position: types.XYZ(0, 1, 0), Intensity: types.Vec3{1, 1, 1}}}
	sc, err := scene.NewScene(scene.NewCamera(45), materials, tris, lights)
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func generate(t *testing.T, tr *Tracer, numPhotons uint32, opts GenerateOptions) *captureStore {
	table, err := BuildLightTable(tr.Scene(), numPhotons, lighttable.Power)
	if err != nil {
		t.Fatal(err)
	}
	store := &captureStore{}
	tr.SetLightTable(table)
	tr.SetStore(store)

	req := &FrameRequest{Seed: 7, Radius: [photon.NumCategories]float32{0.05, 0.1}}
	if _, err = GeneratePhotons(opts)(tr, req); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestGeneratePhotonsConservesFlux(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	sc := pointLightScene(t, []scene.Material{scene.Diffuse(types.Vec3{})}, plane(0, 0))
	tr := NewTracer(dev)
	tr.SetScene(sc)
	defer tr.Close()

	specs := []float32{0, 0.5}
	for specIndex, rejection := range specs {
		opts := DefaultGenerateOptions()
		opts.GlobalRejection = rejection
		store := generate(t, tr, 100000, opts)

		var sum float64
		for _, p := range store.photons {
			if p.Category != photon.Global {
				t.Fatalf("[spec %d] expected only global photons; got %s", specIndex, p.Category)
			}
			sum += float64(p.Flux[0])
		}

		// Half of the emitted flux heads towards the floor
		exp := 4 * math.Pi * 0.5
		if math.Abs(sum-exp)/exp > 0.03 {
			t.Errorf("[spec %d] expected deposited flux %f; got %f", specIndex, exp, sum)
		}

		stats := tr.Stats()
		if stats.Emitted != tr.LightTable().AnalyticPhotons {
			t.Errorf("[spec %d] expected %d emitted photons; got %d", specIndex, tr.LightTable().AnalyticPhotons, stats.Emitted)
		}
		if stats.Deposited != uint32(len(store.photons)) {
			t.Errorf("[spec %d] expected deposited counter %d; got %d", specIndex, len(store.photons), stats.Deposited)
		}
		if rejection == 0 && stats.Rejected != 0 {
			t.Errorf("[spec %d] expected no rejected photons; got %d", specIndex, stats.Rejected)
		}
		if rejection > 0 && stats.Rejected == 0 {
			t.Errorf("[spec %d] expected some rejected photons", specIndex)
		}
	}
}

func TestGeneratePhotonsCausticPaths(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	materials := []scene.Material{
		scene.Diffuse(types.Vec3{}),
		scene.Mirror(types.Vec3{1, 1, 1}),
	}
	tris := append(plane(2, 0), plane(0, 1)...)
	sc := pointLightScene(t, materials, tris)
	tr := NewTracer(dev)
	tr.SetScene(sc)
	defer tr.Close()

	opts := DefaultGenerateOptions()
	opts.GlobalRejection = 0
	store := generate(t, tr, 20000, opts)

	var counts [photon.NumCategories]int
	for _, p := range store.photons {
		counts[p.Category]++
		if math.Abs(float64(p.Position[1]-2)) > 1e-3 {
			t.Fatalf("expected photons on the ceiling only; got one at %v", p.Position)
		}
		if p.Category == photon.Caustic && p.Dir[1] <= 0 {
			t.Fatalf("expected caustic photons to arrive from the mirror below; got dir %v", p.Dir)
		}
	}

	total := float64(len(store.photons))
	if diff := math.Abs(float64(counts[photon.Caustic]-counts[photon.Global])) / total; diff > 0.03 {
		t.Fatalf("expected caustic and global photons to split evenly; got %d caustic, %d global", counts[photon.Caustic], counts[photon.Global])
	}
}

func TestCausticMapModes(t *testing.T) {
	specs := []struct {
		mode         CausticMapMode
		lastSpecular bool
		diffuseSeen  bool
		exp          bool
	}{
		{CausticSpecularOnly, false, false, false},
		{CausticSpecularOnly, true, false, true},
		{CausticSpecularOnly, true, true, false},
		{CausticLastSpecular, true, true, true},
		{CausticLastSpecular, false, true, false},
	}
	for specIndex, spec := range specs {
		if got := spec.mode.isCaustic(spec.lastSpecular, spec.diffuseSeen); got != spec.exp {
			t.Errorf("[spec %d] expected %s caustic test to return %t; got %t", specIndex, spec.mode, spec.exp, got)
		}
	}

	for _, mode := range []CausticMapMode{CausticSpecularOnly, CausticLastSpecular} {
		parsed, err := ParseCausticMapMode(mode.String())
		if err != nil || parsed != mode {
			t.Fatalf("expected %q to parse back to itself; got %v (%v)", mode, parsed, err)
		}
	}
}

func TestCornellBoxFrame(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	sc, err := scene.NewCornellBox(scene.DefaultCornellBoxOptions())
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTracer(dev)
	tr.SetScene(sc)
	defer tr.Close()

	const size = 24
	if err = tr.Resize(size, size); err != nil {
		t.Fatal(err)
	}
	tr.Resources().PrepareSeeds(1)

	table, err := BuildLightTable(sc, 20000, lighttable.Power)
	if err != nil {
		t.Fatal(err)
	}
	tr.SetLightTable(table)

	store, err := hashgrid.New(dev, hashgrid.Options{
		Capacity:           [photon.NumCategories]uint32{50000, 50000},
		BucketBits:         16,
		PhotonsPerBucket:   16,
		ProbeIterations:    4,
		InfoFormat:         photon.Float32,
		CollectProbability: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Release()
	tr.SetStore(store)

	req := &FrameRequest{Seed: 3, Radius: [photon.NumCategories]float32{0.05, 0.1}}
	if err = store.Clear(photon.FrameParams{Radius: req.Radius}); err != nil {
		t.Fatal(err)
	}

	pipeline := DefaultPipeline(DefaultPipelineOptions())
	for _, stage := range []PipelineStage{pipeline.Visibility, pipeline.Generate, pipeline.Build, pipeline.Collect} {
		if _, err = stage(tr, req); err != nil {
			t.Fatal(err)
		}
	}

	if !tr.Resources().GBuffer.At(size/2, size/2).Valid {
		t.Fatal("expected the center pixel to see the back wall")
	}

	used := 0
	for _, v := range table.Indices {
		if v != 0 {
			used++
		}
	}
	if emitted := tr.Stats().Emitted; emitted != uint32(used) {
		t.Fatalf("expected one emitted photon per used table texel (%d); got %d", used, emitted)
	}

	var valid, lit int
	for i, texel := range tr.Resources().GBuffer.Data() {
		out := tr.Resources().Output.Data()[i]
		for c := 0; c < 3; c++ {
			if math.IsNaN(float64(out[c])) || math.IsInf(float64(out[c]), 0) {
				t.Fatalf("expected finite radiance at pixel %d; got %v", i, out)
			}
		}
		if !texel.Valid {
			continue
		}
		valid++
		if out[0]+out[1]+out[2] > 0 {
			lit++
		}
	}
	if valid == 0 || lit < valid/2 {
		t.Fatalf("expected most visible pixels to receive photons; %d of %d lit", lit, valid)
	}
}

func TestCullingPass(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	sc, err := scene.NewCornellBox(scene.DefaultCornellBoxOptions())
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTracer(dev)
	tr.SetScene(sc)
	defer tr.Close()

	// A single pixel frame only sees a tiny part of the box
	if err = tr.Resize(1, 1); err != nil {
		t.Fatal(err)
	}
	tr.Resources().PrepareSeeds(1)

	cullOpts := accel.DefaultCullingOptions()
	cullOpts.Enabled = true
	cullOpts.HashBits = 16
	culling, err := accel.NewCulling(dev, cullOpts)
	if err != nil {
		t.Fatal(err)
	}
	defer culling.Release()
	tr.SetCulling(culling)

	req := &FrameRequest{Seed: 5, Radius: [photon.NumCategories]float32{0.05, 0.1}}
	if _, err = VisibilityPass(10)(tr, req); err != nil {
		t.Fatal(err)
	}
	if _, err = CullingPass()(tr, req); err != nil {
		t.Fatal(err)
	}
	if culling.Marked() == 0 {
		t.Fatal("expected the visible surface to mark culling cells")
	}

	store := generate(t, tr, 20000, DefaultGenerateOptions())
	stats := tr.Stats()
	if stats.Culled <= stats.Deposited {
		t.Fatalf("expected most photons to be culled; culled %d, deposited %d", stats.Culled, stats.Deposited)
	}
	for _, p := range store.photons {
		if !culling.Keep(p.Position) {
			t.Fatalf("expected deposited photon at %v to lie in a marked cell", p.Position)
		}
	}
}

func TestStagesRequireInputs(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	tr := NewTracer(dev)
	defer tr.Close()
	req := &FrameRequest{}

	if _, err := GeneratePhotons(DefaultGenerateOptions())(tr, req); err != ErrNoScene {
		t.Fatalf("expected ErrNoScene; got %v", err)
	}

	sc, err := scene.NewCornellBox(scene.DefaultCornellBoxOptions())
	if err != nil {
		t.Fatal(err)
	}
	tr.SetScene(sc)
	if _, err = GeneratePhotons(DefaultGenerateOptions())(tr, req); err != ErrNoLightTable {
		t.Fatalf("expected ErrNoLightTable; got %v", err)
	}
	if _, err = VisibilityPass(10)(tr, req); err != ErrNoResources {
		t.Fatalf("expected ErrNoResources; got %v", err)
	}
	if _, err = CollectPhotons(CollectOptions{})(tr, req); err != ErrNoStore {
		t.Fatalf("expected ErrNoStore; got %v", err)
	}
}
