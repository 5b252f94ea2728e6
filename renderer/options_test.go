package renderer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/SirKero/RTProgressivePhotonMapper/lighttable"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/accel"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestDefaultOptionsAreValid(t *testing.T) {
	for _, variant := range []Variant{HashGrid, AccelStructure, StochasticHashGrid} {
		opts := DefaultOptions(variant)
		if err := opts.Validate(); err != nil {
			t.Fatalf("[%s] expected default options to be valid; got %v", variant, err)
		}
		if opts.Culling.Enabled != (variant == AccelStructure) {
			t.Fatalf("[%s] unexpected culling default %t", variant, opts.Culling.Enabled)
		}
	}
}

func TestParseVariant(t *testing.T) {
	specs := []struct {
		in  string
		exp Variant
	}{
		{"hash", HashGrid},
		{"HashPPM", HashGrid},
		{"rt", AccelStructure},
		{"rtpm", AccelStructure},
		{"stochhash", StochasticHashGrid},
		{"stochastic", StochasticHashGrid},
	}
	for specIndex, spec := range specs {
		got, err := ParseVariant(spec.in)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", specIndex, err)
		}
		if got != spec.exp {
			t.Fatalf("[spec %d] expected %s; got %s", specIndex, spec.exp, got)
		}
	}

	if _, err := ParseVariant("kd-tree"); errors.Cause(err) != ErrUnknownVariant {
		t.Fatalf("expected ErrUnknownVariant; got %v", err)
	}
}

func TestOptionsYAMLRoundTrip(t *testing.T) {
	opts := DefaultOptions(AccelStructure)
	opts.Seed = 42
	opts.Photons.LightTableMode = lighttable.Area
	opts.Photons.InfoFormat = photon.Float16
	opts.Accel.Build = accel.FastTrace
	opts.Accel.MaxPhotons = 7

	var buf bytes.Buffer
	if err := opts.WriteYAML(&buf); err != nil {
		t.Fatal(err)
	}
	for _, exp := range []string{"variant: rt", "lightTableMode: area", "build: fastTrace"} {
		if !strings.Contains(buf.String(), exp) {
			t.Fatalf("expected YAML output to contain %q; got:\n%s", exp, buf.String())
		}
	}

	got, err := LoadOptions(&buf, DefaultOptions(HashGrid))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(opts, got); diff != "" {
		t.Fatalf("options changed after a YAML round trip (-want +got):\n%s", diff)
	}
}

func TestLoadOptionsOverridesBase(t *testing.T) {
	doc := `
width: 64
height: 32
photons:
  numPhotons: 1000
radius:
  progressive: false
`
	base := DefaultOptions(HashGrid)
	got, err := LoadOptions(strings.NewReader(doc), base)
	if err != nil {
		t.Fatal(err)
	}

	exp := base
	exp.FrameW, exp.FrameH = 64, 32
	exp.Photons.NumPhotons = 1000
	exp.Radius.Progressive = false
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected options (-want +got):\n%s", diff)
	}

	if got, err = LoadOptions(strings.NewReader(""), base); err != nil || got != base {
		t.Fatalf("expected an empty document to keep the base options; got %v", err)
	}
}

func TestLoadOptionsErrors(t *testing.T) {
	specs := []string{
		"unknownField: 1",
		"variant: kd-tree",
		"photons:\n  numPhotons: 0",
		"width: [1, 2]",
	}

	base := DefaultOptions(HashGrid)
	for specIndex, doc := range specs {
		got, err := LoadOptions(strings.NewReader(doc), base)
		if err == nil {
			t.Fatalf("[spec %d] expected an error", specIndex)
		}
		if got != base {
			t.Fatalf("[spec %d] expected the base options to be returned on error", specIndex)
		}
	}
}

func TestValidate(t *testing.T) {
	specs := []struct {
		descr  string
		mutate func(o *Options)
	}{
		{"empty frame", func(o *Options) { o.FrameW = 0 }},
		{"no photons", func(o *Options) { o.Photons.NumPhotons = 0 }},
		{"rejection of 1", func(o *Options) { o.Photons.GlobalRejection = 1 }},
		{"overestimate below 1", func(o *Options) { o.Photons.Overestimate = 0.9 }},
		{"zero capacity", func(o *Options) { o.Photons.GlobalCapacity = 0 }},
		{"zero radius", func(o *Options) { o.Radius.Caustic = 0 }},
		{"alpha above 1", func(o *Options) { o.Radius.GlobalAlpha = 1.5 }},
		{"one bucket bit", func(o *Options) { o.HashGrid.BucketBits = 1 }},
		{"32 bucket bits", func(o *Options) { o.HashGrid.BucketBits = 32 }},
		{"one photon per bucket", func(o *Options) { o.HashGrid.PhotonsPerBucket = 1 }},
		{"too many probes", func(o *Options) { o.HashGrid.ProbeIterations = 101 }},
		{"negative timer", func(o *Options) { o.Timer.Seconds = -1 }},
		{"unknown variant", func(o *Options) { o.Variant = 7 }},
		{"culling bits", func(o *Options) {
			o.Culling.Enabled = true
			o.Culling.HashBits = 4
		}},
		{"projection test", func(o *Options) {
			o.Culling.Enabled = true
			o.Culling.ProjectionTest = 2
		}},
	}

	for specIndex, spec := range specs {
		opts := DefaultOptions(HashGrid)
		spec.mutate(&opts)
		if err := opts.Validate(); errors.Cause(err) != ErrInvalidOptions {
			t.Errorf("[spec %d: %s] expected ErrInvalidOptions; got %v", specIndex, spec.descr, err)
		}
	}

	for _, m := range []uint32{0, 4, 5, 31} {
		opts := DefaultOptions(AccelStructure)
		opts.Accel.MaxPhotons = m
		if err := opts.Validate(); errors.Cause(err) != ErrInvalidOptions {
			t.Errorf("expected max photons %d to be rejected; got %v", m, err)
		}
	}
	for _, m := range []uint32{3, 7, 11, 27} {
		opts := DefaultOptions(AccelStructure)
		opts.Accel.MaxPhotons = m
		if err := opts.Validate(); err != nil {
			t.Errorf("expected max photons %d to be accepted; got %v", m, err)
		}
	}

	// Culling settings are ignored while culling is off
	opts := DefaultOptions(HashGrid)
	opts.Culling.HashBits = 0
	if err := opts.Validate(); err != nil {
		t.Fatalf("expected disabled culling settings to be ignored; got %v", err)
	}
}

func TestPipelineOptionsMask(t *testing.T) {
	specs := []struct {
		caustic, global bool
		exp             photon.CategoryMask
	}{
		{true, true, photon.MaskAll},
		{true, false, photon.Caustic.Mask()},
		{false, true, photon.Global.Mask()},
		{false, false, 0},
	}
	for specIndex, spec := range specs {
		opts := DefaultOptions(HashGrid)
		opts.Collect.Caustic = spec.caustic
		opts.Collect.Global = spec.global
		if got := opts.pipelineOptions().Collect.Mask; got != spec.exp {
			t.Errorf("[spec %d] expected mask %d; got %d", specIndex, spec.exp, got)
		}
	}

	opts := DefaultOptions(HashGrid)
	opts.Accel.Debug = true
	if opts.pipelineOptions().EnableDebug {
		t.Fatal("expected debug output to be limited to the AS variant")
	}
	opts.Variant = AccelStructure
	if !opts.pipelineOptions().EnableDebug {
		t.Fatal("expected debug output to be enabled for the AS variant")
	}
}
