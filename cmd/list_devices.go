package cmd

import (
	"bytes"
	"fmt"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List available compute devices.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	platforms, err := device.GetPlatformInfo()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\nSystem provides %d platform(s):\n\n", len(platforms)))
	for pIdx, platformInfo := range platforms {
		buf.WriteString(fmt.Sprintf("[Platform %02d]\n  Name    %s\n  Vendor  %s\n  Version %s\n\n", pIdx, platformInfo.Name, platformInfo.Vendor, platformInfo.Version))

		table := tablewriter.NewWriter(&buf)
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		table.SetHeader([]string{"Device", "Name", "Type", "Workers", "Speed (GFlops)", "Memory (MiB)", "Features"})
		for dIdx, dev := range platformInfo.Devices {
			table.Append([]string{
				fmt.Sprintf("%02d", dIdx),
				dev.Name,
				dev.Type.String(),
				fmt.Sprintf("%d", dev.Workers),
				fmt.Sprintf("%d", dev.Speed),
				fmt.Sprintf("%d", dev.MemoryBytes>>20),
				dev.Features.String(),
			})
		}
		table.Render()
		buf.WriteString("\n")
	}

	logger.Notice(buf.String())
	return nil
}
