package renderer

import (
	"io"
	"strings"

	"github.com/SirKero/RTProgressivePhotonMapper/lighttable"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/accel"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/stochastic"
	"github.com/SirKero/RTProgressivePhotonMapper/radius"
	"github.com/SirKero/RTProgressivePhotonMapper/tracer"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The photon store implementation used by a photon mapper.
type Variant uint8

const (
	HashGrid Variant = iota
	AccelStructure
	StochasticHashGrid
)

func (v Variant) String() string {
	switch v {
	case HashGrid:
		return "hash"
	case AccelStructure:
		return "rt"
	case StochasticHashGrid:
		return "stochhash"
	}
	return "unknown"
}

// Header prefix of the timing log.
func (v Variant) timesName() string {
	switch v {
	case AccelStructure:
		return "RTPM"
	case StochasticHashGrid:
		return "StochHash"
	}
	return "Hash"
}

// Parse a variant name.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(name) {
	case "hash", "hashppm":
		return HashGrid, nil
	case "rt", "rtpm", "accel":
		return AccelStructure, nil
	case "stochhash", "stochastic", "stochhashppm":
		return StochasticHashGrid, nil
	}
	return 0, errors.Wrapf(ErrUnknownVariant, "%q", name)
}

// Implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

type PhotonOptions struct {
	// Photons emitted per frame. The light table may round this up.
	NumPhotons uint32 `yaml:"numPhotons"`

	LightTableMode lighttable.Mode `yaml:"lightTableMode"`

	// Maximum photon path length.
	MaxBounces uint32 `yaml:"maxBounces"`

	// Probability of discarding a global photon at a diffuse hit.
	GlobalRejection float32 `yaml:"globalRejection"`

	// Scales the flux of emissive triangles.
	EmissiveScale float32 `yaml:"emissiveScale"`

	CausticMapMode tracer.CausticMapMode `yaml:"causticMapMode"`

	// Photon buffer capacity per category.
	CausticCapacity uint32 `yaml:"causticCapacity"`
	GlobalCapacity  uint32 `yaml:"globalCapacity"`

	// Buffers fitted to the last photon count get this much headroom. The
	// AS variant also sizes its BLAS builds with it.
	Overestimate float32 `yaml:"overestimate"`

	InfoFormat photon.InfoFormat `yaml:"infoFormat"`
}

type CollectOptions struct {
	Caustic bool `yaml:"caustic"`
	Global  bool `yaml:"global"`

	// Reject photons stored on surfaces facing away from the query point.
	FaceNormalRejection bool `yaml:"faceNormalRejection"`

	// Bounces through specular surfaces when tracing camera rays.
	MaxSpecularBounces uint32 `yaml:"maxSpecularBounces"`
}

type RadiusOptions struct {
	Caustic float32 `yaml:"caustic"`
	Global  float32 `yaml:"global"`

	CausticAlpha float32 `yaml:"causticAlpha"`
	GlobalAlpha  float32 `yaml:"globalAlpha"`

	// Shrink the radii after every frame.
	Progressive bool `yaml:"progressive"`

	// Reset the iteration count at every frame.
	AlwaysReset bool `yaml:"alwaysReset"`
}

type HashGridOptions struct {
	BucketBits       uint32 `yaml:"bucketBits"`
	PhotonsPerBucket uint32 `yaml:"photonsPerBucket"`
	ProbeIterations  uint32 `yaml:"probeIterations"`

	// Probability of evaluating each candidate at gather time.
	CollectProbability float32 `yaml:"collectProbability"`
}

type StochasticOptions struct {
	BucketBits     uint32  `yaml:"bucketBits"`
	SlotsPerBucket uint32  `yaml:"slotsPerBucket"`
	Decay          float32 `yaml:"decay"`
}

type AccelOptions struct {
	Build accel.BuildFlags `yaml:"build"`

	StochasticCollect    bool   `yaml:"stochasticCollect"`
	MaxPhotons           uint32 `yaml:"maxPhotons"`
	StochasticIterations uint32 `yaml:"stochasticIterations"`

	// Render the stored photons instead of gathering them.
	Debug bool `yaml:"debug"`
}

type CullingOptions struct {
	Enabled            bool    `yaml:"enabled"`
	HashBits           uint32  `yaml:"hashBits"`
	UseFixedCellRadius bool    `yaml:"useFixedCellRadius"`
	CellRadius         float32 `yaml:"cellRadius"`
	UseProjection      bool    `yaml:"useProjection"`
	ProjectionTest     float32 `yaml:"projectionTest"`
}

type TimerOptions struct {
	Enabled bool `yaml:"enabled"`

	// Stop after this many seconds; 0 disables the time bound.
	Seconds float64 `yaml:"seconds"`

	// Stop after this many frames; 0 disables the iteration bound.
	MaxIterations uint32 `yaml:"maxIterations"`

	// Keep the elapsed time of every frame.
	RecordTimes bool `yaml:"recordTimes"`
}

type Options struct {
	Variant Variant `yaml:"variant"`

	// Frame dims.
	FrameW uint32 `yaml:"width"`
	FrameH uint32 `yaml:"height"`

	// Exposure for tonemapping.
	Exposure float32 `yaml:"exposure"`

	// Base seed of all random streams.
	Seed uint64 `yaml:"seed"`

	Photons    PhotonOptions     `yaml:"photons"`
	Collect    CollectOptions    `yaml:"collect"`
	Radius     RadiusOptions     `yaml:"radius"`
	HashGrid   HashGridOptions   `yaml:"hashGrid"`
	Stochastic StochasticOptions `yaml:"stochastic"`
	Accel      AccelOptions      `yaml:"accel"`
	Culling    CullingOptions    `yaml:"culling"`
	Timer      TimerOptions      `yaml:"timer"`
}

// Default options for a photon store variant.
func DefaultOptions(variant Variant) Options {
	const numPhotons = 2000000

	culling := accel.DefaultCullingOptions()
	accelOpts := accel.DefaultOptions()
	stochOpts := stochastic.DefaultOptions()

	opts := Options{
		Variant:  variant,
		FrameW:   512,
		FrameH:   512,
		Exposure: 1,
		Photons: PhotonOptions{
			NumPhotons:      numPhotons,
			LightTableMode:  lighttable.Power,
			MaxBounces:      10,
			GlobalRejection: 0.3,
			EmissiveScale:   1,
			CausticMapMode:  tracer.CausticSpecularOnly,
			CausticCapacity: numPhotons / 4,
			GlobalCapacity:  numPhotons / 2,
			Overestimate:    accel.DefaultOverestimate,
			InfoFormat:      photon.Float32,
		},
		Collect: CollectOptions{
			Caustic:            true,
			Global:             true,
			MaxSpecularBounces: 10,
		},
		Radius: RadiusOptions{
			Caustic:      radius.DefaultCausticRadius,
			Global:       radius.DefaultGlobalRadius,
			CausticAlpha: radius.DefaultAlpha,
			GlobalAlpha:  radius.DefaultAlpha,
			Progressive:  true,
		},
		HashGrid: HashGridOptions{
			BucketBits:         20,
			PhotonsPerBucket:   8,
			ProbeIterations:    10,
			CollectProbability: 1,
		},
		Stochastic: StochasticOptions{
			BucketBits:     stochOpts.BucketBits,
			SlotsPerBucket: stochOpts.SlotsPerBucket,
			Decay:          stochOpts.Decay,
		},
		Accel: AccelOptions{
			Build:                accel.FastBuild,
			StochasticCollect:    true,
			MaxPhotons:           accelOpts.MaxPhotons[photon.Global],
			StochasticIterations: accelOpts.StochasticIterations,
		},
		Culling: CullingOptions{
			Enabled:            variant == AccelStructure,
			HashBits:           culling.HashBits,
			UseFixedCellRadius: culling.UseFixedCellRadius,
			CellRadius:         culling.CellRadius,
			UseProjection:      culling.UseProjection,
			ProjectionTest:     culling.ProjectionTest,
		},
		Timer: TimerOptions{
			Seconds: 60,
		},
	}
	return opts
}

// Load options from a YAML document on top of base. Unknown fields are
// rejected.
func LoadOptions(r io.Reader, base Options) (Options, error) {
	opts := base
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return base, errors.Wrap(err, "renderer: could not parse options")
	}
	if err := opts.Validate(); err != nil {
		return base, err
	}
	return opts, nil
}

// Write options as a YAML document.
func (o Options) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(o); err != nil {
		return err
	}
	return enc.Close()
}

// Check that all options are within their supported ranges.
func (o *Options) Validate() error {
	invalid := func(field string, format string, args ...interface{}) error {
		return errors.Wrapf(ErrInvalidOptions, field+": "+format, args...)
	}
	inRange := func(field string, v, lo, hi uint32) error {
		if v < lo || v > hi {
			return invalid(field, "%d outside of [%d, %d]", v, lo, hi)
		}
		return nil
	}

	if o.Variant > StochasticHashGrid {
		return invalid("variant", "%d", o.Variant)
	}
	if o.FrameW == 0 || o.FrameH == 0 {
		return invalid("frame", "%dx%d", o.FrameW, o.FrameH)
	}
	if o.Photons.NumPhotons == 0 {
		return invalid("photons.numPhotons", "must be positive")
	}
	if o.Photons.GlobalRejection < 0 || o.Photons.GlobalRejection >= 1 {
		return invalid("photons.globalRejection", "%f outside of [0, 1)", o.Photons.GlobalRejection)
	}
	if o.Photons.Overestimate < 1 || o.Photons.Overestimate > 5 {
		return invalid("photons.overestimate", "%f outside of [1, 5]", o.Photons.Overestimate)
	}
	if o.Variant != StochasticHashGrid && (o.Photons.CausticCapacity == 0 || o.Photons.GlobalCapacity == 0) {
		return invalid("photons", "buffer capacities must be positive")
	}
	if o.Radius.Caustic <= 0 || o.Radius.Global <= 0 {
		return invalid("radius", "start radii must be positive")
	}
	if a := o.Radius.CausticAlpha; a <= 0 || a > 1 {
		return invalid("radius.causticAlpha", "%f outside of (0, 1]", a)
	}
	if a := o.Radius.GlobalAlpha; a <= 0 || a > 1 {
		return invalid("radius.globalAlpha", "%f outside of (0, 1]", a)
	}

	switch o.Variant {
	case HashGrid:
		if err := inRange("hashGrid.bucketBits", o.HashGrid.BucketBits, 2, 31); err != nil {
			return err
		}
		if err := inRange("hashGrid.photonsPerBucket", o.HashGrid.PhotonsPerBucket, 2, 32); err != nil {
			return err
		}
		if err := inRange("hashGrid.probeIterations", o.HashGrid.ProbeIterations, 0, 100); err != nil {
			return err
		}
	case StochasticHashGrid:
		if err := inRange("stochastic.bucketBits", o.Stochastic.BucketBits, 2, 31); err != nil {
			return err
		}
		if err := inRange("stochastic.slotsPerBucket", o.Stochastic.SlotsPerBucket, 1, 32); err != nil {
			return err
		}
		if o.Stochastic.Decay <= 0 {
			return invalid("stochastic.decay", "must be positive")
		}
	case AccelStructure:
		if m := o.Accel.MaxPhotons; m < 3 || m > 27 || (m+1)%4 != 0 {
			return invalid("accel.maxPhotons", "%d not one of 3, 7, ..., 27", m)
		}
	}

	if o.Culling.Enabled {
		if err := inRange("culling.hashBits", o.Culling.HashBits, accel.MinCullingHashBits, accel.MaxCullingHashBits); err != nil {
			return err
		}
		if o.Culling.ProjectionTest < 1 || o.Culling.ProjectionTest > 1.5 {
			return invalid("culling.projectionTest", "%f outside of [1, 1.5]", o.Culling.ProjectionTest)
		}
	}
	if o.Timer.Seconds < 0 {
		return invalid("timer.seconds", "must not be negative")
	}
	return nil
}

// Radius schedule for these options.
func (o *Options) radiusConfig() radius.Config {
	minRadius := radius.MinRadiusHash
	if o.Variant == AccelStructure {
		minRadius = radius.MinRadiusAccel
	}
	return radius.Config{
		Start:       [photon.NumCategories]float32{o.Radius.Caustic, o.Radius.Global},
		Alpha:       [photon.NumCategories]float32{o.Radius.CausticAlpha, o.Radius.GlobalAlpha},
		MinRadius:   minRadius,
		Progressive: o.Radius.Progressive,
	}
}

func (o *Options) cullingOptions() accel.CullingOptions {
	return accel.CullingOptions{
		Enabled:            o.Culling.Enabled,
		HashBits:           o.Culling.HashBits,
		UseFixedCellRadius: o.Culling.UseFixedCellRadius,
		CellRadius:         o.Culling.CellRadius,
		UseProjection:      o.Culling.UseProjection,
		ProjectionTest:     o.Culling.ProjectionTest,
	}
}

// Tracer pipeline settings for these options.
func (o *Options) pipelineOptions() tracer.PipelineOptions {
	var mask photon.CategoryMask
	if o.Collect.Caustic {
		mask |= photon.Caustic.Mask()
	}
	if o.Collect.Global {
		mask |= photon.Global.Mask()
	}
	return tracer.PipelineOptions{
		MaxSpecularBounces: o.Collect.MaxSpecularBounces,
		Generate: tracer.GenerateOptions{
			MaxBounces:      o.Photons.MaxBounces,
			GlobalRejection: o.Photons.GlobalRejection,
			EmissiveScale:   o.Photons.EmissiveScale,
			CausticMode:     o.Photons.CausticMapMode,
		},
		Collect: tracer.CollectOptions{
			Mask:                mask,
			FaceNormalRejection: o.Collect.FaceNormalRejection,
		},
		EnableCulling: o.Culling.Enabled,
		EnableDebug:   o.Variant == AccelStructure && o.Accel.Debug,
	}
}
