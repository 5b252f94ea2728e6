package device

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/SirKero/RTProgressivePhotonMapper/log"
)

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

// Optional device capabilities.
type Feature uint32

const (
	FeatureAtomics Feature = 1 << iota
	FeatureRaytracing
)

var (
	indentRegex = regexp.MustCompile("(?m)^")
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	panic("device: unsupported device type")
}

func (f Feature) String() string {
	var names []string
	if f&FeatureAtomics != 0 {
		names = append(names, "atomics")
	}
	if f&FeatureRaytracing != 0 {
		names = append(names, "raytracing")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// A software compute device. Kernels are dispatched as tiles over a pool
// of worker goroutines.
type Device struct {
	Name string
	Type DeviceType

	// Number of worker goroutines used for kernel dispatches.
	Workers int

	// Supported capabilities.
	Features Feature

	// Speed estimate in GFlops.
	Speed uint32

	// Memory budget for buffer allocations; 0 disables the check.
	MemoryBytes uint64

	compUnits  uint32
	clockSpeed uint32

	logger      log.Logger
	initialized atomic.Bool
	allocated   atomic.Int64
}

// A list of devices.
type DeviceList []*Device

// Create a CPU device with the given number of workers. If workers is <= 0
// one worker per logical CPU is used.
func NewCPUDevice(name string, workers int) *Device {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Device{
		Name:      name,
		Type:      CpuDevice,
		Workers:   workers,
		Features:  FeatureAtomics | FeatureRaytracing,
		compUnits: uint32(workers),
	}
}

// Implements Stringer.
func (d *Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d workers, %d Mhz clock, %d GFlops approximate speed\nMemory: %d MiB\nFeatures: %s",
		d.Name,
		d.Type.String(),
		d.Workers,
		d.clockSpeed,
		d.Speed,
		d.MemoryBytes>>20,
		d.Features,
	)
}

// Initialize device.
func (d *Device) Init() error {
	// Already initialized
	if d.initialized.Load() {
		return nil
	}

	if d.Workers <= 0 {
		return fmt.Errorf("device (%s): invalid worker count %d", d.Name, d.Workers)
	}

	d.logger = log.New("device")
	d.initialized.Store(true)
	d.logger.Debugf("initialized device %q with %d workers (features: %s)", d.Name, d.Workers, d.Features)
	return nil
}

// Shut down the device.
func (d *Device) Close() {
	if !d.initialized.Swap(false) {
		return
	}
	d.logger.Debugf("closed device %q; %d bytes still allocated", d.Name, d.allocated.Load())
}

// Check whether the device was initialized.
func (d *Device) Ready() bool {
	return d.initialized.Load()
}

// Check device capabilities.
func (d *Device) Supports(f Feature) bool {
	return d.Features&f == f
}

// Bytes currently held by buffers allocated on this device.
func (d *Device) AllocatedBytes() int64 {
	return d.allocated.Load()
}

// Create a kernel that runs fn for every thread of a dispatch.
func (d *Device) Kernel(name string, fn KernelFunc) (*Kernel, error) {
	if !d.Ready() {
		return nil, ErrDeviceNotInitialized
	}
	if fn == nil {
		return nil, fmt.Errorf("device (%s): kernel %s has no body", d.Name, name)
	}
	return &Kernel{
		device: d,
		name:   name,
		fn:     fn,
	}, nil
}

// Reserve memory for an allocation.
func (d *Device) reserve(name string, bytes int64) error {
	if !d.Ready() {
		return ErrDeviceNotInitialized
	}
	total := d.allocated.Add(bytes)
	if d.MemoryBytes != 0 && total > int64(d.MemoryBytes) {
		d.allocated.Add(-bytes)
		return fmt.Errorf("device (%s): could not allocate buffer %s of size %d: %w", d.Name, name, bytes, ErrOutOfMemory)
	}
	return nil
}

func (d *Device) release(bytes int64) {
	d.allocated.Add(-bytes)
}
