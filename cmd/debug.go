package cmd

import (
	"github.com/SirKero/RTProgressivePhotonMapper/renderer"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
	"github.com/urfave/cli"
)

// Render a single frame that shows the stored photons instead of the
// gathered radiance.
func Debug(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}
	opts.Variant = renderer.AccelStructure
	opts.Accel.Debug = true
	if err = opts.Validate(); err != nil {
		return err
	}

	dev, err := openDevice(ctx)
	if err != nil {
		logger.Error(err)
		return err
	}
	defer dev.Close()

	sc, err := scene.NewCornellBox(scene.DefaultCornellBoxOptions())
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

	if err = pm.Render(); err != nil {
		logger.Error(err)
		return err
	}
	displayFrameStats(pm.Stats())

	return saveImage(pm, ctx.String("out"))
}
