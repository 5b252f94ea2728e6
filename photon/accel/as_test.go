package accel

import (
	"sort"
	"testing"

	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
)

type instHit struct {
	ID   uint32
	Prim uint32
}

func TestTLASTrace(t *testing.T) {
	boxes := [][]types.AABB{
		{
			types.AABBFromSphere(types.XYZ(0, 0, 0), 0.5),
			types.AABBFromSphere(types.XYZ(3, 0, 0), 0.5),
		},
		{
			types.AABBFromSphere(types.XYZ(0, 0, 0), 0.25),
			types.AABBFromSphere(types.XYZ(0, 3, 0), 0.25),
		},
	}

	for _, flags := range []BuildFlags{FastTrace, FastBuild} {
		instances := make([]Instance, len(boxes))
		for i := range boxes {
			instances[i] = Instance{
				BLAS:       BuildBLAS(boxes[i], NoDuplicateAnyHit, flags),
				InstanceID: uint32(i),
				Mask:       photon.Category(i).Mask(),
				Transform:  mgl32.Ident4(),
			}
		}
		tlas := BuildTLAS(instances)

		specs := []struct {
			mask photon.CategoryMask
			ray  types.Ray
			exp  []instHit
		}{
			{photon.MaskAll, types.Ray{Origin: types.XYZ(0, 0, 0), Dir: types.XYZ(0, 1, 0), TMin: GatherTMin, TMax: GatherTMax}, []instHit{{0, 0}, {1, 0}}},
			{photon.MaskCaustic, types.Ray{Origin: types.XYZ(0, 0, 0), Dir: types.XYZ(0, 1, 0), TMin: GatherTMin, TMax: GatherTMax}, []instHit{{0, 0}}},
			{photon.MaskGlobal, types.Ray{Origin: types.XYZ(0, 0, 0), Dir: types.XYZ(0, 1, 0), TMin: GatherTMin, TMax: GatherTMax}, []instHit{{1, 0}}},
			{photon.MaskAll, types.Ray{Origin: types.XYZ(3, 0.1, 0), Dir: types.XYZ(0, 1, 0), TMin: GatherTMin, TMax: GatherTMax}, []instHit{{0, 1}}},
			{photon.MaskAll, types.Ray{Origin: types.XYZ(0, -5, 0), Dir: types.XYZ(0, 1, 0), TMin: 0, TMax: 100}, []instHit{{0, 0}, {1, 0}, {1, 1}}},
			{photon.MaskAll, types.Ray{Origin: types.XYZ(1.5, 0, 0), Dir: types.XYZ(0, 1, 0), TMin: GatherTMin, TMax: GatherTMax}, nil},
		}

		for specIndex, spec := range specs {
			var got []instHit
			tlas.Trace(spec.ray, spec.mask, func(id, prim uint32) bool {
				got = append(got, instHit{id, prim})
				return true
			})
			sort.Slice(got, func(i, j int) bool {
				if got[i].ID != got[j].ID {
					return got[i].ID < got[j].ID
				}
				return got[i].Prim < got[j].Prim
			})
			if diff := cmp.Diff(spec.exp, got); diff != "" {
				t.Errorf("[%s spec %d] unexpected hits (-want +got):\n%s", flags, specIndex, diff)
			}
		}
	}
}

func TestTLASTransform(t *testing.T) {
	blas := BuildBLAS([]types.AABB{types.AABBFromSphere(types.XYZ(0, 0, 0), 0.5)}, NoDuplicateAnyHit, FastTrace)
	tlas := BuildTLAS([]Instance{{
		BLAS:      blas,
		Mask:      photon.MaskAll,
		Transform: mgl32.Translate3D(10, 0, 0),
	}})

	hits := 0
	count := func(uint32, uint32) bool {
		hits++
		return true
	}
	tlas.Trace(types.Ray{Origin: types.XYZ(10, 0, 0), Dir: types.XYZ(0, 1, 0), TMin: GatherTMin, TMax: GatherTMax}, photon.MaskAll, count)
	tlas.Trace(types.Ray{Origin: types.XYZ(0, 0, 0), Dir: types.XYZ(0, 1, 0), TMin: GatherTMin, TMax: GatherTMax}, photon.MaskAll, count)
	if hits != 1 {
		t.Fatalf("expected the translated instance to be hit once; got %d hits", hits)
	}
}

func TestTraceTermination(t *testing.T) {
	var boxes []types.AABB
	for i := 0; i < 10; i++ {
		boxes = append(boxes, types.AABBFromSphere(types.XYZ(0, 0, 0), 1))
	}
	tlas := BuildTLAS([]Instance{{BLAS: BuildBLAS(boxes, NoDuplicateAnyHit, FastBuild), Mask: photon.MaskAll, Transform: mgl32.Ident4()}})

	hits := 0
	tlas.Trace(types.Ray{Origin: types.XYZ(0, 0, 0), Dir: types.XYZ(1, 0, 0), TMin: GatherTMin, TMax: GatherTMax}, photon.MaskAll, func(uint32, uint32) bool {
		hits++
		return hits < 4
	})
	if hits != 4 {
		t.Fatalf("expected traversal to stop after 4 hits; got %d", hits)
	}
}

func TestParseBuildFlags(t *testing.T) {
	for _, name := range []string{"fastTrace", "fastBuild"} {
		flags, err := ParseBuildFlags(name)
		if err != nil {
			t.Fatal(err)
		}
		if flags.String() != name {
			t.Fatalf("expected %q; got %q", name, flags.String())
		}
	}
	if _, err := ParseBuildFlags("refit"); err == nil {
		t.Fatal("expected an error for an unknown build flag")
	}
}
