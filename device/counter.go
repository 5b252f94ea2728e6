package device

import (
	"fmt"
	"sync/atomic"
)

// A buffer of atomic uint32 counters (the equivalent of a structured
// uint buffer accessed with InterlockedAdd).
type CounterBuffer struct {
	device   *Device
	name     string
	counters []atomic.Uint32
}

// Create an empty counter buffer.
func NewCounterBuffer(d *Device, name string) *CounterBuffer {
	return &CounterBuffer{device: d, name: name}
}

// Get buffer name.
func (c *CounterBuffer) Name() string {
	return c.name
}

// Allocate count zeroed counters.
func (c *CounterBuffer) Allocate(count int) error {
	c.Release()
	if err := c.device.reserve(c.name, int64(count)*4); err != nil {
		return err
	}
	c.counters = make([]atomic.Uint32, count)
	return nil
}

// Get number of counters.
func (c *CounterBuffer) Len() int {
	return len(c.counters)
}

// Atomically add delta to counter i and return its previous value.
func (c *CounterBuffer) Add(i int, delta uint32) uint32 {
	return c.counters[i].Add(delta) - delta
}

// Atomically increment counter i only while it is below limit. Returns the
// previous value and whether the increment happened.
func (c *CounterBuffer) IncrementBelow(i int, limit uint32) (uint32, bool) {
	for {
		cur := c.counters[i].Load()
		if cur >= limit {
			return cur, false
		}
		if c.counters[i].CompareAndSwap(cur, cur+1) {
			return cur, true
		}
	}
}

func (c *CounterBuffer) Load(i int) uint32 {
	return c.counters[i].Load()
}

func (c *CounterBuffer) Store(i int, v uint32) {
	c.counters[i].Store(v)
}

// Zero all counters.
func (c *CounterBuffer) Reset() {
	for i := range c.counters {
		c.counters[i].Store(0)
	}
}

// Copy counters to host memory.
func (c *CounterBuffer) ReadData(hostBuffer []uint32) error {
	if len(hostBuffer) > len(c.counters) {
		return fmt.Errorf("device (%s): cannot read %d counters from %s holding %d: %w", c.device.Name, len(hostBuffer), c.name, len(c.counters), ErrOutOfBounds)
	}
	for i := range hostBuffer {
		hostBuffer[i] = c.counters[i].Load()
	}
	return nil
}

// Release buffer.
func (c *CounterBuffer) Release() {
	if c.counters != nil {
		c.device.release(int64(len(c.counters)) * 4)
		c.counters = nil
	}
}
