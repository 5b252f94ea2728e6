package device

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Information about the host platform and the devices it exposes.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []*Device
}

func (pl PlatformInfo) String() string {
	var buf bytes.Buffer

	buf.WriteString(
		fmt.Sprintf(
			"Name:       %s\nVendor:     %s\nVersion:    %s\nDevices:\n",
			pl.Name,
			pl.Vendor,
			pl.Version,
		),
	)

	for dIdx, d := range pl.Devices {
		buf.WriteString(fmt.Sprintf("  Device %02d:\n", dIdx))
		buf.WriteString(indentRegex.ReplaceAllString(d.String(), "    "))
		buf.WriteString("\n\n")
	}

	return buf.String()
}

// Get information about the host CPU and memory and expose it as a single
// software platform with one CPU device.
func GetPlatformInfo() ([]PlatformInfo, error) {
	cpuInfo, err := cpu.Info()
	if err != nil {
		return nil, errors.Wrap(err, "device: could not query cpu info")
	}

	logical, err := cpu.Counts(true)
	if err != nil || logical <= 0 {
		logical = runtime.NumCPU()
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return nil, errors.Wrap(err, "device: could not query memory info")
	}

	name, vendor := "cpu", "unknown"
	var mhz float64
	if len(cpuInfo) > 0 {
		name = strings.TrimSpace(cpuInfo[0].ModelName)
		vendor = cpuInfo[0].VendorID
		mhz = cpuInfo[0].Mhz
	}

	dev := NewCPUDevice(name, logical)
	dev.MemoryBytes = vmem.Available
	dev.clockSpeed = uint32(mhz)
	dev.detectSpeed()

	return []PlatformInfo{
		{
			Name:    "software",
			Vendor:  vendor,
			Version: fmt.Sprintf("%s/%s %s", runtime.GOOS, runtime.GOARCH, runtime.Version()),
			Devices: []*Device{dev},
		},
	}, nil
}

// Scan all available platforms and select devices that match the given query.
func SelectDevices(typeMask DeviceType, matchName string) ([]*Device, error) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		return nil, err
	}
	list := make([]*Device, 0)
	for _, p := range platforms {
		for _, d := range p.Devices {
			// Match type
			if d.Type&typeMask != d.Type {
				continue
			}

			// Match name
			if matchName != "" && !strings.Contains(d.Name, matchName) {
				continue
			}

			list = append(list, d)
		}
	}
	return list, nil
}

// Calculate theoretical device speed as: compute units * 2ops/cycle * clock speed
func (d *Device) detectSpeed() {
	d.Speed = d.compUnits * 2 * d.clockSpeed / 1000
}
