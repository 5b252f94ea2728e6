package lighttable

import (
	"math"
	"strings"

	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/pkg/errors"
)

const (
	// Fixed Y extent of the photon generation dispatch.
	DispatchHeight = 512

	// Edge of the square blocks the table is filled in.
	BlockSize = 16

	blockSizeSq = BlockSize * BlockSize
)

// Selects how the emissive photon budget is split across triangles.
type Mode uint8

const (
	// Proportional to emitted flux.
	Power Mode = iota

	// Proportional to surface area.
	Area
)

func (m Mode) String() string {
	switch m {
	case Power:
		return "power"
	case Area:
		return "area"
	}
	return "unknown"
}

// Parse a mode name.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "power":
		return Power, nil
	case "area":
		return Area, nil
	}
	return 0, errors.Wrapf(ErrUnknownMode, "%q", name)
}

// Implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// An emissive triangle candidate.
type TriangleLight struct {
	// Scalar emitted flux. Triangles with zero flux are ignored.
	Flux float32

	Area float32
}

// The light set a table is built for.
type Lights struct {
	// Number of active analytic lights.
	Analytic int

	// Number of emissive meshes. Together with Analytic it determines the
	// analytic share of the budget.
	MeshLights int

	Triangles []TriangleLight
}

// A decoded table entry.
type Sample struct {
	// True for analytic lights, false for emissive triangles.
	Analytic bool

	// Analytic light index or index into Table.ActiveTriangles.
	Light uint32
}

// Maps photon generation threads to lights. Each cell holds a signed light
// index: -(i+1) for analytic light i, +(i+1) for active emissive triangle i
// and 0 for unused threads.
type Table struct {
	Width  int
	Height int

	Indices []int32

	// Photons assigned to each active emissive triangle.
	PhotonsPerTriangle []uint32

	// Index into Lights.Triangles for each active emissive triangle.
	ActiveTriangles []uint32

	AnalyticPhotons uint32
	EmissivePhotons uint32

	// Photons actually assigned to lights (analytic + emissive).
	TotalPhotons uint32

	// Size of the dispatch (Width * Height); replaces the requested budget.
	NumPhotons uint32

	AnalyticInvPdf float32
	EmissiveInvPdf float32

	// Writes that fell outside the table.
	Overflow int
}

// Build a light sample table for a budget of numPhotons.
func Build(numPhotons uint32, lights Lights, mode Mode) (*Table, error) {
	if numPhotons == 0 {
		return nil, ErrNoPhotons
	}
	if mode != Power && mode != Area {
		return nil, errors.Wrapf(ErrUnknownMode, "%d", mode)
	}

	t := &Table{Height: DispatchHeight}
	for triIndex, tri := range lights.Triangles {
		if tri.Flux > 0 {
			t.ActiveTriangles = append(t.ActiveTriangles, uint32(triIndex))
		}
	}
	if lights.Analytic == 0 && len(t.ActiveTriangles) == 0 {
		return nil, ErrNoLights
	}

	// Split the budget evenly between analytic lights and emissive meshes
	// and round the analytic part up so every analytic light gets the
	// same number of photons.
	var emissive uint32
	if lights.Analytic > 0 {
		numAnalytic := uint32(lights.Analytic)
		percentAnalytic := float32(lights.Analytic) / float32(lights.Analytic+lights.MeshLights)
		t.AnalyticPhotons = uint32(float32(numPhotons) * percentAnalytic)
		t.AnalyticPhotons += numAnalytic - t.AnalyticPhotons%numAnalytic
		if t.AnalyticPhotons < numPhotons {
			emissive = numPhotons - t.AnalyticPhotons
		}
	} else {
		emissive = numPhotons
	}

	if emissive > 0 && len(t.ActiveTriangles) > 0 {
		t.distributeEmissive(emissive, lights.Triangles, mode)
	}

	t.TotalPhotons = t.AnalyticPhotons + t.EmissivePhotons
	if t.AnalyticPhotons > 0 {
		t.AnalyticInvPdf = float32(t.TotalPhotons) * float32(lights.Analytic) / float32(t.AnalyticPhotons)
	}
	if t.EmissivePhotons > 0 {
		t.EmissiveInvPdf = float32(t.TotalPhotons) * float32(len(t.ActiveTriangles)) / float32(t.EmissivePhotons)
	}

	// Round the width up to whole blocks. Mixed tables get at least one
	// spare block column so the emissive blocks always fit.
	xPhotons := t.TotalPhotons/DispatchHeight + 1
	if xPhotons%BlockSize == 0 && t.AnalyticPhotons > 0 {
		xPhotons += BlockSize
	} else {
		xPhotons += BlockSize - xPhotons%BlockSize
	}
	t.Width = int(xPhotons)
	t.NumPhotons = xPhotons * DispatchHeight
	t.Indices = make([]int32, t.Width*t.Height)

	t.fillAnalytic(uint32(lights.Analytic))
	t.fillEmissive()

	if len(t.PhotonsPerTriangle) == 0 {
		// Kernels index this buffer unconditionally
		t.PhotonsPerTriangle = []uint32{0}
	}

	logger := log.New("lighttable")
	logger.Debugf(
		"light table %dx%d: analytic %d, emissive %d over %d triangles, realized %d (requested %d)",
		t.Width, t.Height, t.AnalyticPhotons, t.EmissivePhotons, len(t.ActiveTriangles), t.NumPhotons, numPhotons,
	)
	if t.Overflow > 0 {
		logger.Warningf("light table dropped %d entries outside of the %dx%d table", t.Overflow, t.Width, t.Height)
	}

	return t, nil
}

// Assign ceil(budget * weight / totalWeight) photons, at least one, to each
// active triangle. The realized emissive count is the sum of the per
// triangle counts. Area weights fall back to flux weights when every active
// triangle is degenerate.
func (t *Table) distributeEmissive(budget uint32, tris []TriangleLight, mode Mode) {
	weight := func(tri TriangleLight) float32 {
		if mode == Area {
			return tri.Area
		}
		return tri.Flux
	}
	sumWeights := func() (total float32) {
		for _, triIndex := range t.ActiveTriangles {
			total += weight(tris[triIndex])
		}
		return total
	}

	totalWeight := sumWeights()
	if totalWeight <= 0 && mode == Area {
		mode = Power
		totalWeight = sumWeights()
	}
	photonsPerWeight := float32(budget) / totalWeight

	t.PhotonsPerTriangle = make([]uint32, len(t.ActiveTriangles))
	for i, triIndex := range t.ActiveTriangles {
		photons := uint32(math.Ceil(float64(weight(tris[triIndex]) * photonsPerWeight)))
		if photons == 0 {
			photons = 1
		}
		t.PhotonsPerTriangle[i] = photons
		t.EmissivePhotons += photons
	}
}

// Top-left texel of a 16x16 block. Blocks are laid out row-major in bands
// BlockSize rows high.
func (t *Table) blockStart(block uint32) (x, y uint32) {
	block *= BlockSize
	return block % uint32(t.Width), (block / uint32(t.Width)) * BlockSize
}

func (t *Table) set(block, x, y uint32, v int32) {
	bx, by := t.blockStart(block)
	idx := uint64(bx+x) + uint64(by+y)*uint64(t.Width)
	if idx >= uint64(len(t.Indices)) {
		t.Overflow++
		return
	}
	t.Indices[idx] = v
}

// Fill blocks from block 0 on with analytic light entries; each light owns a
// contiguous run of AnalyticPhotons/numLights entries.
func (t *Table) fillAnalytic(numLights uint32) {
	if numLights == 0 || t.AnalyticPhotons == 0 {
		return
	}

	step := t.AnalyticPhotons / numLights
	var current uint32
	for block := uint32(0); current < t.AnalyticPhotons; block++ {
		for y := uint32(0); y < BlockSize && current < t.AnalyticPhotons; y++ {
			for x := uint32(0); x < BlockSize && current < t.AnalyticPhotons; x++ {
				t.set(block, x, y, -int32(current/step+1))
				current++
			}
		}
	}
}

// Fill emissive entries starting at the first block after the analytic ones.
func (t *Table) fillEmissive() {
	if t.EmissivePhotons == 0 {
		return
	}

	var firstBlock uint32
	if t.AnalyticPhotons > 0 {
		firstBlock = t.AnalyticPhotons/blockSizeSq + 1
	}

	var activeTri, inTri uint32
	numTris := uint32(len(t.PhotonsPerTriangle))
	for block := firstBlock; activeTri < numTris; block++ {
		for y := uint32(0); y < BlockSize && activeTri < numTris; y++ {
			for x := uint32(0); x < BlockSize && activeTri < numTris; x++ {
				t.set(block, x, y, int32(activeTri+1))
				inTri++
				if inTri >= t.PhotonsPerTriangle[activeTri] {
					activeTri++
					inTri = 0
				}
			}
		}
	}
}

// Decode the entry for generation thread (x, y). Returns false for unused
// threads.
func (t *Table) Lookup(x, y int) (Sample, bool) {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		return Sample{}, false
	}
	v := t.Indices[x+y*t.Width]
	switch {
	case v < 0:
		return Sample{Analytic: true, Light: uint32(-v - 1)}, true
	case v > 0:
		return Sample{Light: uint32(v - 1)}, true
	}
	return Sample{}, false
}
