package renderer

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/SirKero/RTProgressivePhotonMapper/types"
)

// Running average of the frames rendered since the last reset.
type Accumulator struct {
	width, height int
	frames        uint32
	mean          []types.Vec4
}

func NewAccumulator(width, height int) *Accumulator {
	return &Accumulator{
		width:  width,
		height: height,
		mean:   make([]types.Vec4, width*height),
	}
}

func (a *Accumulator) Size() (int, int) {
	return a.width, a.height
}

// Number of frames in the average.
func (a *Accumulator) Frames() uint32 {
	return a.frames
}

func (a *Accumulator) Reset() {
	a.frames = 0
	for i := range a.mean {
		a.mean[i] = types.Vec4{}
	}
}

// Fold a frame into the average.
func (a *Accumulator) Add(frame []types.Vec4) {
	a.frames++
	w := 1 / float32(a.frames)
	for i := range a.mean {
		m := &a.mean[i]
		for c := 0; c < 4; c++ {
			m[c] += (frame[i][c] - m[c]) * w
		}
	}
}

// The averaged frame, row-major.
func (a *Accumulator) Pixels() []types.Vec4 {
	return a.mean
}

// Tone map linear radiance with the Reinhard operator and apply a 2.2
// gamma. NaN and non-positive values map to black.
func Tonemap(pixels []types.Vec4, width, height int, exposure float32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := pixels[x+y*width]
			img.SetRGBA(x, y, color.RGBA{
				R: tonemapChannel(p[0], exposure),
				G: tonemapChannel(p[1], exposure),
				B: tonemapChannel(p[2], exposure),
				A: 255,
			})
		}
	}
	return img
}

func tonemapChannel(v, exposure float32) uint8 {
	v *= exposure
	if v <= 0 || math.IsNaN(float64(v)) {
		return 0
	}
	if math.IsInf(float64(v), 1) {
		return 255
	}
	mapped := math.Pow(float64(v/(1+v)), 1/2.2)
	return uint8(math.Min(255, math.Round(mapped*255)))
}

// Encode an image as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
