package cmd

import (
	"os"

	"github.com/urfave/cli"
)

// Print the effective render options as YAML. The output can be edited and
// passed back with --config.
func PrintConfig(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}
	return opts.WriteYAML(os.Stdout)
}
