package cmd

import (
	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/urfave/cli"
)

var logger = log.New("ppm")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}

	if name := ctx.GlobalString("log-level"); name != "" {
		level, err := log.ParseLevel(name)
		if err != nil {
			logger.Warning(err)
			return
		}
		log.SetLevel(level)
	}
}
