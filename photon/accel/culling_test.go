package accel

import (
	"errors"
	"testing"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

type boxProjector struct{}

// Points with |x| <= 1 are on screen.
func (boxProjector) Project(p types.Vec3) (types.Vec3, bool) {
	return types.XYZ(p[0], 0, 0.5), true
}

func TestCullingBits(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	for _, bits := range []uint32{9, 33} {
		opts := DefaultCullingOptions()
		opts.HashBits = bits
		if _, err := NewCulling(dev, opts); !errors.Is(err, ErrInvalidCullingBits) {
			t.Fatalf("expected ErrInvalidCullingBits for %d bits; got %v", bits, err)
		}
	}

	opts := DefaultCullingOptions()
	opts.HashBits = 11
	c, err := NewCulling(dev, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()
	if c.Side() != 45 {
		t.Fatalf("expected culling texture side 45; got %d", c.Side())
	}
}

func TestCullingMarks(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	opts := DefaultCullingOptions()
	opts.HashBits = 16
	c, err := NewCulling(dev, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()

	// Cells are 0.2 wide
	c.Reset(0.1, nil)
	c.Mark(types.XYZ(0.15, 0.05, 0.05), 0.1)

	specs := []struct {
		p   types.Vec3
		exp bool
	}{
		{types.XYZ(0.15, 0.05, 0.05), true},
		// Neighbour cell reachable by the gather sphere
		{types.XYZ(0.21, 0.05, 0.05), true},
		{types.XYZ(0.15, -0.01, -0.01), true},
		// Far away
		{types.XYZ(5.1, 3.1, -7.1), false},
	}
	for specIndex, spec := range specs {
		if got := c.Keep(spec.p); got != spec.exp {
			t.Errorf("[spec %d] expected Keep(%v) to be %t; got %t", specIndex, spec.p, spec.exp, got)
		}
	}
	if c.Marked() != 8 {
		t.Fatalf("expected 8 marked cells; got %d", c.Marked())
	}

	c.Reset(0.1, nil)
	if c.Marked() != 0 {
		t.Fatalf("expected reset to clear all marks; got %d", c.Marked())
	}
}

func TestCullingFixedRadiusAndProjection(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	opts := DefaultCullingOptions()
	opts.HashBits = 16
	opts.UseFixedCellRadius = true
	opts.CellRadius = 0.5
	opts.UseProjection = true
	c, err := NewCulling(dev, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()

	if r := c.HashRadius(0.1); r != 0.5 {
		t.Fatalf("expected fixed hash radius 0.5; got %f", r)
	}
	if r := c.HashRadius(0.7); r != 0.7 {
		t.Fatalf("expected global radius 0.7 to win; got %f", r)
	}

	// Cells are 1 wide; the marked cell spans x in [1, 2)
	c.Reset(0.1, boxProjector{})
	c.Mark(types.XYZ(1.5, 0.5, 0.5), 0.1)

	if !c.Keep(types.XYZ(1.005, 0.5, 0.5)) {
		t.Fatal("expected photon within the projection test bound to be kept")
	}
	if c.Keep(types.XYZ(1.5, 0.5, 0.5)) {
		t.Fatal("expected photon projecting outside the screen to be culled")
	}
}
