package lighttable

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestPowerModeDistribution(t *testing.T) {
	lights := Lights{
		MeshLights: 1,
		Triangles: []TriangleLight{
			{Flux: 10, Area: 1},
			{Flux: 20, Area: 1},
			{Flux: 70, Area: 1},
		},
	}

	table, err := Build(2000000, lights, Power)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]uint32{200000, 400000, 1400000}, table.PhotonsPerTriangle); diff != "" {
		t.Fatalf("unexpected per triangle photon counts (-want +got):\n%s", diff)
	}
	if table.EmissivePhotons != 2000000 || table.AnalyticPhotons != 0 {
		t.Fatalf("expected 2000000 emissive and 0 analytic photons; got %d and %d", table.EmissivePhotons, table.AnalyticPhotons)
	}
	if table.Width != 3920 || table.Height != DispatchHeight {
		t.Fatalf("expected a 3920x512 table; got %dx%d", table.Width, table.Height)
	}
	if table.NumPhotons != 3920*512 {
		t.Fatalf("expected realized photon count %d; got %d", 3920*512, table.NumPhotons)
	}
	if table.EmissiveInvPdf != 3 {
		t.Fatalf("expected emissive inverse pdf 3; got %f", table.EmissiveInvPdf)
	}
	assertBudgetConserved(t, table)
}

func TestAnalyticShareAndLayout(t *testing.T) {
	lights := Lights{
		Analytic:   3,
		MeshLights: 1,
		Triangles:  []TriangleLight{{Flux: 1, Area: 1}},
	}

	table, err := Build(1000, lights, Power)
	if err != nil {
		t.Fatal(err)
	}

	// 750 is already divisible by 3 and still receives another full share
	if table.AnalyticPhotons != 753 {
		t.Fatalf("expected 753 analytic photons; got %d", table.AnalyticPhotons)
	}
	if table.AnalyticPhotons%3 != 0 {
		t.Fatalf("expected analytic photons to be divisible by the analytic light count; got %d", table.AnalyticPhotons)
	}
	if diff := cmp.Diff([]uint32{247}, table.PhotonsPerTriangle); diff != "" {
		t.Fatalf("unexpected per triangle photon counts (-want +got):\n%s", diff)
	}
	if table.Width != 16 {
		t.Fatalf("expected table width 16; got %d", table.Width)
	}

	perLight := map[int32]int{}
	for _, v := range table.Indices {
		if v < 0 {
			perLight[v]++
		}
	}
	if diff := cmp.Diff(map[int32]int{-1: 251, -2: 251, -3: 251}, perLight); diff != "" {
		t.Fatalf("expected every analytic light to get an equal share (-want +got):\n%s", diff)
	}

	type spec struct {
		x, y int
		exp  int32
	}
	specs := []spec{
		{0, 0, -1},
		{11, 15, -2}, // entry 251 is the first one of light 2
		{0, 47, -3},  // last analytic entry in block 2
		{1, 47, 0},   // rest of block 2 stays unused
		{0, 48, 1},   // emissive entries start at block 3
		{6, 63, 1},   // entry 246 is the last one
		{7, 63, 0},
	}
	for specIndex, spec := range specs {
		if got := table.Indices[spec.x+spec.y*table.Width]; got != spec.exp {
			t.Errorf("[spec %d] expected entry (%d, %d) to be %d; got %d", specIndex, spec.x, spec.y, spec.exp, got)
		}
	}

	sample, ok := table.Lookup(11, 15)
	if !ok || !sample.Analytic || sample.Light != 1 {
		t.Fatalf("expected lookup to decode analytic light 1; got %+v (ok: %t)", sample, ok)
	}
	sample, ok = table.Lookup(0, 48)
	if !ok || sample.Analytic || sample.Light != 0 {
		t.Fatalf("expected lookup to decode emissive triangle 0; got %+v (ok: %t)", sample, ok)
	}
	if _, ok = table.Lookup(7, 63); ok {
		t.Fatal("expected unused entry to be reported as invalid")
	}

	expInvPdf := float32(1000) * 3 / 753
	if table.AnalyticInvPdf != expInvPdf {
		t.Fatalf("expected analytic inverse pdf %f; got %f", expInvPdf, table.AnalyticInvPdf)
	}
	assertBudgetConserved(t, table)
}

func TestMinimumOnePhotonPerTriangle(t *testing.T) {
	lights := Lights{
		MeshLights: 1,
		Triangles: []TriangleLight{
			{Flux: 1, Area: 0},
			{Flux: 0, Area: 5}, // inactive
			{Flux: 1, Area: 2},
		},
	}

	table, err := Build(100, lights, Area)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0, 2}, table.ActiveTriangles); diff != "" {
		t.Fatalf("unexpected active triangles (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{1, 100}, table.PhotonsPerTriangle); diff != "" {
		t.Fatalf("unexpected per triangle photon counts (-want +got):\n%s", diff)
	}
	if table.EmissivePhotons != 101 {
		t.Fatalf("expected realized emissive count 101; got %d", table.EmissivePhotons)
	}
	assertBudgetConserved(t, table)
}

func TestAreaModeWithDegenerateTriangles(t *testing.T) {
	lights := Lights{
		MeshLights: 1,
		Triangles: []TriangleLight{
			{Flux: 1, Area: 0},
			{Flux: 3, Area: 0},
		},
	}

	table, err := Build(100, lights, Area)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{25, 75}, table.PhotonsPerTriangle); diff != "" {
		t.Fatalf("expected zero area triangles to be weighted by flux (-want +got):\n%s", diff)
	}
	if table.EmissivePhotons != 100 {
		t.Fatalf("expected realized emissive count 100; got %d", table.EmissivePhotons)
	}
	assertBudgetConserved(t, table)
}

func TestBudgetConservation(t *testing.T) {
	type spec struct {
		numPhotons uint32
		lights     Lights
		mode       Mode
	}
	specs := []spec{
		{1, Lights{Analytic: 1}, Power},
		{1000, Lights{Analytic: 2}, Power},
		{4096, Lights{Analytic: 4}, Area},
		{262144, Lights{Analytic: 1, MeshLights: 2, Triangles: []TriangleLight{{3, 1}, {1, 1}, {0.5, 4}}}, Power},
		{500000, Lights{Analytic: 7, MeshLights: 1, Triangles: []TriangleLight{{1, 1}, {1, 1}}}, Area},
		{12345, Lights{MeshLights: 1, Triangles: []TriangleLight{{0.001, 0.1}, {1000, 0.2}, {1, 0.3}}}, Power},
	}

	for specIndex, spec := range specs {
		table, err := Build(spec.numPhotons, spec.lights, spec.mode)
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if spec.lights.Analytic > 0 && table.AnalyticPhotons%uint32(spec.lights.Analytic) != 0 {
			t.Fatalf("[spec %d] expected analytic photons %d to be divisible by %d", specIndex, table.AnalyticPhotons, spec.lights.Analytic)
		}
		if table.Overflow != 0 {
			t.Fatalf("[spec %d] expected all entries to fit in the table; %d overflowed", specIndex, table.Overflow)
		}
		assertBudgetConserved(t, table)
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := Build(100, Lights{Triangles: []TriangleLight{{Flux: 0, Area: 1}}}, Power); err != ErrNoLights {
		t.Fatalf("expected ErrNoLights; got %v", err)
	}
	if _, err := Build(0, Lights{Analytic: 1}, Power); err != ErrNoPhotons {
		t.Fatalf("expected ErrNoPhotons; got %v", err)
	}
	if _, err := ParseMode("volume"); errors.Cause(err) != ErrUnknownMode {
		t.Fatalf("expected ErrUnknownMode; got %v", err)
	}
	if mode, err := ParseMode("Area"); err != nil || mode != Area {
		t.Fatalf("expected to parse area mode; got %v, %v", mode, err)
	}
}

// Every assigned photon occupies exactly one table entry.
func assertBudgetConserved(t *testing.T, table *Table) {
	t.Helper()

	var analytic, emissive uint32
	perTri := make([]uint32, len(table.PhotonsPerTriangle))
	for _, v := range table.Indices {
		switch {
		case v < 0:
			analytic++
		case v > 0:
			emissive++
			perTri[v-1]++
		}
	}

	if analytic != table.AnalyticPhotons || emissive != table.EmissivePhotons {
		t.Fatalf("expected table to hold %d analytic and %d emissive entries; got %d and %d", table.AnalyticPhotons, table.EmissivePhotons, analytic, emissive)
	}
	if table.TotalPhotons > table.NumPhotons {
		t.Fatalf("expected assigned photons %d to fit in the dispatch of %d", table.TotalPhotons, table.NumPhotons)
	}
	if table.EmissivePhotons > 0 {
		if diff := cmp.Diff(table.PhotonsPerTriangle, perTri); diff != "" {
			t.Fatalf("table entries do not match per triangle counts (-want +got):\n%s", diff)
		}
	}
}
