package photon

import (
	"testing"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
)

func createTestDevice(t *testing.T) *device.Device {
	dev := device.NewCPUDevice("test", 2)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	return dev
}
