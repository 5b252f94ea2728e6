package renderer

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/google/go-cmp/cmp"
)

func TestAccumulatorMean(t *testing.T) {
	acc := NewAccumulator(2, 1)

	frames := [][]types.Vec4{
		{{1, 2, 3, 1}, {0, 0, 0, 0}},
		{{3, 2, 1, 1}, {4, 4, 4, 4}},
		{{2, 2, 2, 1}, {2, 2, 2, 2}},
	}
	for _, frame := range frames {
		acc.Add(frame)
	}

	if acc.Frames() != 3 {
		t.Fatalf("expected 3 frames; got %d", acc.Frames())
	}
	exp := []types.Vec4{{2, 2, 2, 1}, {2, 2, 2, 2}}
	if diff := cmp.Diff(exp, acc.Pixels()); diff != "" {
		t.Fatalf("unexpected mean (-want +got):\n%s", diff)
	}

	acc.Reset()
	if acc.Frames() != 0 {
		t.Fatalf("expected reset to clear the frame count; got %d", acc.Frames())
	}
	if diff := cmp.Diff([]types.Vec4{{}, {}}, acc.Pixels()); diff != "" {
		t.Fatalf("expected reset to clear the mean (-want +got):\n%s", diff)
	}
}

func TestTonemap(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	specs := []struct {
		in       float32
		exposure float32
		exp      uint8
	}{
		{0, 1, 0},
		{-1, 1, 0},
		{nan, 1, 0},
		{inf, 1, 255},
		// 1/(1+1) = 0.5; 0.5^(1/2.2) * 255 = 186.3
		{1, 1, 186},
		{0.5, 2, 186},
		{1e9, 1, 255},
	}
	for specIndex, spec := range specs {
		img := Tonemap([]types.Vec4{{spec.in, spec.in, spec.in, 1}}, 1, 1, spec.exposure)
		px := img.RGBAAt(0, 0)
		if px.R != spec.exp || px.G != spec.exp || px.B != spec.exp || px.A != 255 {
			t.Errorf("[spec %d] expected channel value %d; got %v", specIndex, spec.exp, px)
		}
	}
}

func TestTonemapIsMonotonic(t *testing.T) {
	var last uint8
	for v := float32(0); v < 50; v += 0.25 {
		got := tonemapChannel(v, 1)
		if got < last {
			t.Fatalf("expected tone mapping to be monotonic; %f maps to %d after %d", v, got, last)
		}
		last = got
	}
}

func TestWritePNG(t *testing.T) {
	img := Tonemap([]types.Vec4{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}, {1, 1, 1, 1}}, 2, 2, 1)

	var buf bytes.Buffer
	if err := WritePNG(&buf, img); err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := decoded.Bounds(); got != img.Bounds() {
		t.Fatalf("expected decoded bounds %v; got %v", img.Bounds(), got)
	}
	r, g, b, _ := decoded.At(1, 1).RGBA()
	if r>>8 != 186 || g>>8 != 186 || b>>8 != 186 {
		t.Fatalf("expected white pixel to survive encoding; got %d %d %d", r>>8, g>>8, b>>8)
	}
}
