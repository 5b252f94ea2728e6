// Package tracer implements the device stages of a photon mapping frame:
// visibility, photon culling, photon generation and photon collection.
package tracer

import (
	"sync/atomic"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/lighttable"
	"github.com/SirKero/RTProgressivePhotonMapper/log"
	"github.com/SirKero/RTProgressivePhotonMapper/photon"
	"github.com/SirKero/RTProgressivePhotonMapper/photon/accel"
	"github.com/SirKero/RTProgressivePhotonMapper/scene"
)

// Per frame parameters handed to every pipeline stage.
type FrameRequest struct {
	// Progressive iteration (0 after a reset).
	Iteration uint32

	// Seed for this frame's random streams.
	Seed uint64

	// Gather radius per category.
	Radius [photon.NumCategories]float32
}

// Counters of the last generation stage.
type Stats struct {
	// Photons emitted from lights.
	Emitted uint32

	// Photons handed to the store.
	Deposited uint32

	// Global photons dropped by the rejection probability.
	Rejected uint32

	// Photons dropped because no gather query can reach them.
	Culled uint32
}

type counters struct {
	emitted, deposited, rejected, culled atomic.Uint32
}

func (c *counters) reset() {
	c.emitted.Store(0)
	c.deposited.Store(0)
	c.rejected.Store(0)
	c.culled.Store(0)
}

// Binds a device, a scene and the frame resources together. Pipeline
// stages operate on a Tracer.
type Tracer struct {
	logger log.Logger
	device *device.Device

	scene     *scene.Scene
	resources *Resources
	table     *lighttable.Table
	store     photon.Store
	culling   *accel.Culling

	counters counters
}

// Create a tracer for dev.
func NewTracer(dev *device.Device) *Tracer {
	return &Tracer{
		logger:    log.New("tracer"),
		device:    dev,
		resources: NewResources(dev),
	}
}

func (tr *Tracer) Device() *device.Device {
	return tr.device
}

func (tr *Tracer) Scene() *scene.Scene {
	return tr.scene
}

func (tr *Tracer) SetScene(sc *scene.Scene) {
	tr.scene = sc
}

func (tr *Tracer) Resources() *Resources {
	return tr.resources
}

// Allocate frame resources for a width x height output.
func (tr *Tracer) Resize(width, height int) error {
	if err := tr.resources.Resize(width, height); err != nil {
		return err
	}
	tr.logger.Debugf("allocated frame resources for %dx%d", width, height)
	return nil
}

func (tr *Tracer) LightTable() *lighttable.Table {
	return tr.table
}

func (tr *Tracer) SetLightTable(table *lighttable.Table) {
	tr.table = table
}

func (tr *Tracer) Store() photon.Store {
	return tr.store
}

func (tr *Tracer) SetStore(store photon.Store) {
	tr.store = store
}

// Set the culling table consulted during photon generation. nil disables
// culling.
func (tr *Tracer) SetCulling(c *accel.Culling) {
	tr.culling = c
}

func (tr *Tracer) Culling() *accel.Culling {
	return tr.culling
}

// Counters of the last generation stage.
func (tr *Tracer) Stats() Stats {
	return Stats{
		Emitted:   tr.counters.emitted.Load(),
		Deposited: tr.counters.deposited.Load(),
		Rejected:  tr.counters.rejected.Load(),
		Culled:    tr.counters.culled.Load(),
	}
}

// Release frame resources. The store, light table and culling table are
// owned by the caller.
func (tr *Tracer) Close() {
	tr.resources.Release()
}
