package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/SirKero/RTProgressivePhotonMapper/asset"
	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/renderer"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Render a progressive sequence of frames and save the averaged image.
func RenderFrames(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}

	dev, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer dev.Close()

	sc, err := scene.NewCornellBox(scene.CornellBoxOptions{
		CeilingLight: !ctx.Bool("no-area-light"),
		PointLight:   ctx.Bool("point-light"),
		Caustics:     !ctx.Bool("no-caustics"),
	})
	if err != nil {
		return err
	}

	pm, err := renderer.NewPhotonMapper(dev, opts)
	if err != nil {
		return err
	}
	defer pm.Close()
	if err = pm.SetScene(sc); err != nil {
		return err
	}

	frames := ctx.Int("frames")
	logger.Noticef("rendering %d frame(s) at %dx%d with the %s photon store", frames, opts.FrameW, opts.FrameH, opts.Variant)
	start := time.Now()
	for frame := 0; frame < frames; frame++ {
		if err = pm.Render(); err != nil {
			return err
		}
		if pm.Timer().Stopped() {
			logger.Noticef("time budget reached after %d iterations", pm.Iteration())
			break
		}
		if frame == 0 && ctx.Bool("fit-buffers") {
			pm.FitBuffersToPhotonCount()
		}
		logger.Infof("frame %d: %s", frame, pm.Stats().RenderTime)
	}
	logger.Noticef("rendered %d iterations in %s", pm.Iteration(), time.Since(start))

	displayFrameStats(pm.Stats())

	if err = saveImage(pm, ctx.String("out")); err != nil {
		return err
	}
	if timesFile := ctx.String("times"); timesFile != "" {
		if err = saveTimes(pm, timesFile); err != nil {
			return err
		}
	}
	return nil
}

// Build the render options from the defaults of the selected variant, an
// optional config file and the command line overrides.
func loadOptions(ctx *cli.Context) (renderer.Options, error) {
	variant, err := renderer.ParseVariant(ctx.String("variant"))
	if err != nil {
		return renderer.Options{}, err
	}
	opts := renderer.DefaultOptions(variant)

	if cfgFile := ctx.String("config"); cfgFile != "" {
		res, err := asset.Open(cfgFile)
		if err != nil {
			return opts, err
		}
		defer res.Close()

		if opts, err = renderer.LoadOptions(res, opts); err != nil {
			return opts, err
		}
		logger.Infof("loaded options from %s", res.Path())
	}

	if ctx.IsSet("width") {
		opts.FrameW = uint32(ctx.Int("width"))
	}
	if ctx.IsSet("height") {
		opts.FrameH = uint32(ctx.Int("height"))
	}
	if ctx.IsSet("exposure") {
		opts.Exposure = float32(ctx.Float64("exposure"))
	}
	if ctx.IsSet("seed") {
		opts.Seed = uint64(ctx.Int64("seed"))
	}
	if ctx.IsSet("photons") {
		n := uint32(ctx.Int("photons"))
		opts.Photons.NumPhotons = n
		opts.Photons.CausticCapacity = n / 4
		opts.Photons.GlobalCapacity = n / 2
	}
	if ctx.IsSet("seconds") || ctx.IsSet("max-iterations") {
		opts.Timer.Enabled = true
		opts.Timer.Seconds = ctx.Float64("seconds")
		opts.Timer.MaxIterations = uint32(ctx.Int("max-iterations"))
	}
	if ctx.String("times") != "" {
		opts.Timer.Enabled = true
		opts.Timer.RecordTimes = true
	}

	return opts, opts.Validate()
}

// Pick the first device whose name matches the device flag and initialize it.
func openDevice(ctx *cli.Context) (*device.Device, error) {
	var dev *device.Device
	if workers := ctx.Int("workers"); workers > 0 {
		dev = device.NewCPUDevice("cpu", workers)
	} else {
		devList, err := device.SelectDevices(device.AllDevices, ctx.String("device"))
		if err != nil {
			return nil, err
		}
		if len(devList) == 0 {
			return nil, errors.New("no suitable device found")
		}
		dev = devList[0]
	}
	if ctx.Bool("no-raytracing") {
		dev.Features &^= device.FeatureRaytracing
	}

	if err := dev.Init(); err != nil {
		return nil, err
	}
	logger.Noticef(`using device "%s" with %d workers`, dev.Name, dev.Workers)
	return dev, nil
}

func saveImage(pm *renderer.PhotonMapper, imgFile string) error {
	img, err := pm.Image()
	if err != nil {
		return err
	}

	f, err := os.Create(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = renderer.WritePNG(f, img); err != nil {
		return err
	}
	logger.Noticef("wrote image to %s", imgFile)
	return nil
}

func saveTimes(pm *renderer.PhotonMapper, timesFile string) error {
	f, err := os.Create(timesFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = pm.WriteTimes(f); err != nil {
		return err
	}
	logger.Noticef("wrote %d frame times to %s", len(pm.Timer().Times()), timesFile)
	return nil
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Stage", "Time"})
	for _, stat := range stats.Stages {
		table.Append([]string{stat.Name, stat.Time.String()})
	}
	table.SetFooter([]string{"TOTAL", stats.RenderTime.String()})
	table.Render()

	ph := stats.Photons
	photons := tablewriter.NewWriter(&buf)
	photons.SetAutoFormatHeaders(false)
	photons.SetAutoWrapText(false)
	photons.SetHeader([]string{"Map", "Stored", "Dropped", "Capacity", "Radius"})
	for cat := photon.Category(0); cat < photon.NumCategories; cat++ {
		photons.Append([]string{
			cat.String(),
			fmt.Sprintf("%d", ph.Store.Stored[cat]),
			fmt.Sprintf("%d", ph.Store.Dropped[cat]),
			fmt.Sprintf("%d", ph.Store.Capacity[cat]),
			fmt.Sprintf("%.6f", ph.Radius[cat]),
		})
	}
	photons.Render()

	logger.Noticef(
		"iteration %d: emitted %d, deposited %d, rejected %d, culled %d photons\n%s",
		stats.Iteration, ph.Emitted, ph.Deposited, ph.Rejected, ph.Culled, buf.String(),
	)
}
