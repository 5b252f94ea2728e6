package main

import (
	"fmt"
	"os"

	"github.com/SirKero/RTProgressivePhotonMapper/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	optionFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "variant",
			Value: "rt",
			Usage: "photon store: hash, stochhash or rt",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load render options from a YAML file or http(s) URL",
		},
		cli.IntFlag{
			Name:  "width",
			Value: 512,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 512,
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "photons",
			Value: 2000000,
			Usage: "photons emitted per frame",
		},
		cli.Float64Flag{
			Name:  "exposure",
			Value: 1.0,
			Usage: "camera exposure for tone-mapping",
		},
		cli.Int64Flag{
			Name:  "seed",
			Usage: "seed for all random streams",
		},
		cli.Float64Flag{
			Name:  "seconds",
			Usage: "stop rendering after this many seconds",
		},
		cli.IntFlag{
			Name:  "max-iterations",
			Usage: "stop rendering after this many iterations",
		},
		cli.StringFlag{
			Name:  "times",
			Usage: "record frame times and write them to this file",
		},
	}

	deviceFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "device, d",
			Usage: "use the first device whose name contains this value",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "use a cpu device with this many workers",
		},
		cli.BoolFlag{
			Name:  "no-raytracing",
			Usage: "mask the ray tracing capability of the device",
		},
		cli.StringFlag{
			Name:  "out, o",
			Value: "frame.png",
			Usage: "image filename for the rendered frame",
		},
	}

	app := cli.NewApp()
	app.Name = "ppm"
	app.Usage = "render scenes using progressive photon mapping"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "set the log level (debug, info, notice, warning, error)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available compute devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "render",
			Usage: "render the built-in Cornell box",
			Description: `
Render a number of progressive frames of the Cornell box and save the average
of all frames since the last reset as a PNG image.

Options are taken from the defaults of the selected photon store variant, then
from the optional YAML config file and finally from the command line flags.`,
			Flags: append(append(optionFlags, deviceFlags...),
				cli.IntFlag{
					Name:  "frames, n",
					Value: 16,
					Usage: "number of progressive frames",
				},
				cli.BoolFlag{
					Name:  "fit-buffers",
					Usage: "fit the photon buffers to the photon count of the first frame",
				},
				cli.BoolFlag{
					Name:  "point-light",
					Usage: "add a point light below the ceiling",
				},
				cli.BoolFlag{
					Name:  "no-area-light",
					Usage: "remove the emissive ceiling quad",
				},
				cli.BoolFlag{
					Name:  "no-caustics",
					Usage: "replace the mirror and glass blocks with diffuse ones",
				},
			),
			Action: cmd.RenderFrames,
		},
		{
			Name:   "debug",
			Usage:  "render the stored photons of a single frame",
			Flags:  append(optionFlags, deviceFlags...),
			Action: cmd.Debug,
		},
		{
			Name:   "config",
			Usage:  "print the effective render options as YAML",
			Flags:  optionFlags,
			Action: cmd.PrintConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
