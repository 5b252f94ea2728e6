// Package radius implements the progressive gather radius schedule.
package radius

import (
	"math"

	"github.com/SirKero/RTProgressivePhotonMapper/photon"
)

const (
	DefaultCausticRadius float32 = 0.01
	DefaultGlobalRadius  float32 = 0.05
	DefaultAlpha         float32 = 0.7

	// Radius floor of the acceleration structure variant.
	MinRadiusAccel float32 = 1e-5

	// Radius floor of the hash grid variants.
	MinRadiusHash float32 = 1e-4
)

// Shrink a radius after iteration n (counted from 1) following Knaus and
// Zwicker: r * sqrt((n + alpha) / (n + 1)).
func Shrink(r float32, n uint32, alpha float32) float32 {
	it := float32(n)
	return r * float32(math.Sqrt(float64((it+alpha)/(it+1))))
}

// Radius schedule parameters.
type Config struct {
	// Radius at iteration 0 per category.
	Start [photon.NumCategories]float32

	// SPPM alpha per category.
	Alpha [photon.NumCategories]float32

	// Radii never shrink below this value.
	MinRadius float32

	// Shrink radii after every iteration. If false the radii stay fixed.
	Progressive bool
}

func DefaultConfig(minRadius float32) Config {
	return Config{
		Start:       [photon.NumCategories]float32{DefaultCausticRadius, DefaultGlobalRadius},
		Alpha:       [photon.NumCategories]float32{DefaultAlpha, DefaultAlpha},
		MinRadius:   minRadius,
		Progressive: true,
	}
}

// Tracks the current gather radius per category.
type Controller struct {
	cfg       Config
	radius    [photon.NumCategories]float32
	iteration uint32
}

func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	c.Reset()
	return c
}

// Replace the schedule parameters. Current radii are kept until the next
// Reset.
func (c *Controller) SetConfig(cfg Config) {
	c.cfg = cfg
}

func (c *Controller) Config() Config {
	return c.cfg
}

// Restore the start radii.
func (c *Controller) Reset() {
	c.radius = c.cfg.Start
	c.iteration = 0
}

// Shrink the radii after completing iteration n.
func (c *Controller) Advance(n uint32) {
	c.iteration = n
	if !c.cfg.Progressive {
		return
	}
	for cat := range c.radius {
		c.radius[cat] = max(Shrink(c.radius[cat], n, c.cfg.Alpha[cat]), c.cfg.MinRadius)
	}
}

// Current radius for category cat.
func (c *Controller) Radius(cat photon.Category) float32 {
	return c.radius[cat]
}

// Current radii of all categories.
func (c *Controller) Radii() [photon.NumCategories]float32 {
	return c.radius
}

// Iteration passed to the last Advance call.
func (c *Controller) Iteration() uint32 {
	return c.iteration
}
