package accel

import (
	"errors"
	"math"
	"testing"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/google/go-cmp/cmp"
	"pgregory.net/rand"
)

func createTestDevice(t *testing.T) *device.Device {
	dev := device.NewCPUDevice("test", 4)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	return dev
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Capacity = [photon.NumCategories]uint32{100, 100}
	opts.InfoFormat = photon.Float32
	return opts
}

func testPhoton(cat photon.Category, pos types.Vec3) photon.Photon {
	return photon.Photon{
		Position:   pos,
		Dir:        types.XYZ(0, -1, 0),
		Flux:       types.Vec3{1, 1, 1},
		FaceNormal: types.XYZ(0, 1, 0),
		Category:   cat,
	}
}

func testQuery(mask photon.CategoryMask, pos types.Vec3) *photon.Query {
	return &photon.Query{
		Position:   pos,
		FaceNormal: types.XYZ(0, 1, 0),
		Albedo:     types.Vec3{1, 1, 1},
		Radius:     [photon.NumCategories]float32{0.1, 0.1},
		Mask:       mask,
	}
}

func frame(iteration uint32) photon.FrameParams {
	return photon.FrameParams{
		Radius:    [photon.NumCategories]float32{0.1, 0.1},
		Iteration: iteration,
	}
}

// Parameters of a frame that follows one which wrote lastCount photons.
func frameAfter(iteration uint32, lastCount [photon.NumCategories]uint32) photon.FrameParams {
	params := frame(iteration)
	params.LastPhotonCount = lastCount
	return params
}

func TestNewPreconditions(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	opts := testOptions()
	opts.Capacity[photon.Caustic] = 0
	if _, err := New(dev, opts); !errors.Is(err, ErrEmptyPhotonBuffer) {
		t.Fatalf("expected ErrEmptyPhotonBuffer; got %v", err)
	}

	dev.Features &^= device.FeatureRaytracing
	if _, err := New(dev, testOptions()); err != ErrRaytracingUnsupported {
		t.Fatalf("expected ErrRaytracingUnsupported; got %v", err)
	}
}

func TestGatherMasks(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	store, err := New(dev, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Release()

	if err = store.Clear(frame(0)); err != nil {
		t.Fatal(err)
	}
	pos := types.XYZ(0.5, 0, 0.5)
	store.InsertBatch([]photon.Photon{
		testPhoton(photon.Caustic, pos),
		testPhoton(photon.Global, pos.Add(types.XYZ(0.05, 0, 0))),
		testPhoton(photon.Global, pos.Add(types.XYZ(-0.05, 0, 0.05))),
		// Inside the box but outside the sphere
		testPhoton(photon.Global, pos.Add(types.XYZ(0.09, 0, 0.09))),
	})
	if err = store.BuildIndex(); err != nil {
		t.Fatal(err)
	}

	unit := float32(1 / (math.Pi * math.Pi * 0.01))
	specs := []struct {
		mask photon.CategoryMask
		exp  [photon.NumCategories]float32
	}{
		{photon.MaskCaustic, [photon.NumCategories]float32{unit, 0}},
		{photon.MaskGlobal, [photon.NumCategories]float32{0, 2 * unit}},
		{photon.MaskAll, [photon.NumCategories]float32{unit, 2 * unit}},
	}

	for specIndex, spec := range specs {
		rad := store.QueryRadiance(testQuery(spec.mask, pos))
		for cat, exp := range spec.exp {
			if got := rad[cat][0]; math.Abs(float64(got-exp)) > 1e-3*float64(unit) {
				t.Errorf("[spec %d] expected %s radiance %f; got %f", specIndex, photon.Category(cat), exp, got)
			}
		}
	}
}

func TestBuildSizeTruncation(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	store, err := New(dev, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Release()

	insert := func(n int) {
		batch := make([]photon.Photon, n)
		for i := range batch {
			batch[i] = testPhoton(photon.Global, types.XYZ(float32(i), 0, 0))
		}
		store.InsertBatch(batch)
	}

	// First frame indexes the full capacity
	if err = store.Clear(frame(0)); err != nil {
		t.Fatal(err)
	}
	insert(20)
	if err = store.BuildIndex(); err != nil {
		t.Fatal(err)
	}
	if got := store.BuildSizes()[photon.Global]; got != 100 {
		t.Fatalf("expected first frame build size to be the capacity 100; got %d", got)
	}

	// Second frame sizes for 20 * 1.1 = 22 photons
	if err = store.Clear(frameAfter(1, [photon.NumCategories]uint32{0, 20})); err != nil {
		t.Fatal(err)
	}
	insert(30)
	if err = store.BuildIndex(); err != nil {
		t.Fatal(err)
	}

	expStats := photon.StoreStats{
		Stored:   [photon.NumCategories]uint32{0, 22},
		Dropped:  [photon.NumCategories]uint32{0, 8},
		Capacity: [photon.NumCategories]uint32{100, 100},
	}
	if diff := cmp.Diff(expStats, store.Stats()); diff != "" {
		t.Fatalf("unexpected stats (-want +got):\n%s", diff)
	}

	counters := make([]uint32, photon.NumCategories)
	if err = store.ReadCounters(counters); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0, 30}, counters); diff != "" {
		t.Fatalf("expected counters to keep the full photon count (-want +got):\n%s", diff)
	}

	// Third frame grows from the observed 30 photons
	if err = store.Clear(frameAfter(2, [photon.NumCategories]uint32{counters[0], counters[1]})); err != nil {
		t.Fatal(err)
	}
	if got := store.BuildSizes()[photon.Global]; got != 33 {
		t.Fatalf("expected build size 33; got %d", got)
	}
}

func TestStochasticCollect(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	opts := testOptions()
	opts.StochasticCollect = true
	opts.StochasticIterations = 5
	store, err := New(dev, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Release()

	pos := types.XYZ(0, 0, 0)
	batch := make([]photon.Photon, 10)
	for i := range batch {
		batch[i] = testPhoton(photon.Global, pos.Add(types.XYZ(float32(i)*0.005, 0, 0)))
		batch[i].Flux = types.Vec3{float32(i + 1), 0, 0}
	}

	if err = store.Clear(frameAfter(1, [photon.NumCategories]uint32{0, 10})); err != nil {
		t.Fatal(err)
	}
	store.InsertBatch(batch)
	if err = store.BuildIndex(); err != nil {
		t.Fatal(err)
	}
	if !store.StochasticActive() {
		t.Fatal("expected stochastic collection to be active on iteration 1")
	}
	if got := store.Stats().Stored[photon.Global]; got != 10 {
		t.Fatalf("expected all 10 photons to be indexed; got %d", got)
	}

	unit := 1 / (math.Pi * math.Pi * 0.01)
	full := 55 * unit
	q := testQuery(photon.MaskGlobal, pos)
	q.Rand = rand.New(3)

	const trials = 20000
	var sum float64
	for i := 0; i < trials; i++ {
		sum += float64(store.QueryRadiance(q)[photon.Global][0])
	}
	if mean := sum / trials; math.Abs(mean-full)/full > 0.02 {
		t.Fatalf("expected stochastic estimate mean %f; got %f", full, mean)
	}

	if err = store.Clear(frameAfter(5, [photon.NumCategories]uint32{0, 10})); err != nil {
		t.Fatal(err)
	}
	if store.StochasticActive() {
		t.Fatal("expected stochastic collection to switch off after 5 iterations")
	}
}

func TestReservoirKeepsBound(t *testing.T) {
	rng := rand.New(11)
	counts := make([]int, 12)
	const trials = 30000
	for i := 0; i < trials; i++ {
		r := reservoir{slots: make([]uint32, 0, 3)}
		for prim := uint32(0); prim < 12; prim++ {
			r.offer(prim, rng.Float32())
		}
		if len(r.slots) != 3 || r.seen != 12 {
			t.Fatalf("expected 3 slots after 12 offers; got %d (seen %d)", len(r.slots), r.seen)
		}
		for _, prim := range r.slots {
			counts[prim]++
		}
	}

	// Each primitive is kept with probability 3/12
	exp := float64(trials) * 3 / 12
	for prim, c := range counts {
		if math.Abs(float64(c)-exp)/exp > 0.05 {
			t.Errorf("expected primitive %d to be kept ~%.0f times; got %d", prim, exp, c)
		}
	}
}
