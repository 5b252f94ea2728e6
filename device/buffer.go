package device

import (
	"fmt"
	"unsafe"
)

// A typed device buffer. Kernels access the backing slice through Data();
// host code goes through WriteData/ReadData.
type Buffer[T any] struct {
	// Associated Device.
	device *Device

	// A name for identifying the buffer.
	name string

	data []T
}

// Create an empty buffer.
func NewBuffer[T any](d *Device, name string) *Buffer[T] {
	return &Buffer[T]{
		device: d,
		name:   name,
	}
}

// Get buffer name.
func (b *Buffer[T]) Name() string {
	return b.name
}

// Get number of elements.
func (b *Buffer[T]) Len() int {
	return len(b.data)
}

// Get buffer size in bytes.
func (b *Buffer[T]) Size() int {
	var zero T
	return len(b.data) * int(unsafe.Sizeof(zero))
}

// Device-side view of the buffer contents.
func (b *Buffer[T]) Data() []T {
	return b.data
}

// Allocate a zero-initialized buffer holding count elements.
func (b *Buffer[T]) Allocate(count int) error {
	// If the buffer is already allocated release it
	b.Release()

	if count < 0 {
		return fmt.Errorf("device (%s): invalid element count %d for buffer %s", b.device.Name, count, b.name)
	}

	var zero T
	if err := b.device.reserve(b.name, int64(count)*int64(unsafe.Sizeof(zero))); err != nil {
		return err
	}

	b.data = make([]T, count)
	return nil
}

// Allocate a buffer with enough capacity to fit the given data.
func (b *Buffer[T]) AllocateToFitData(data []T) error {
	return b.Allocate(len(data))
}

// Allocate a buffer large enough to hold data and copy data into it.
func (b *Buffer[T]) AllocateAndWriteData(data []T) error {
	if err := b.Allocate(len(data)); err != nil {
		return err
	}
	copy(b.data, data)
	return nil
}

// Write data to the device buffer starting at element offset.
func (b *Buffer[T]) WriteData(data []T, offset int) error {
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("device (%s): insufficient buffer space (%d) in %s for copying %d elements at offset %d: %w", b.device.Name, len(b.data), b.name, len(data), offset, ErrOutOfBounds)
	}
	copy(b.data[offset:], data)
	return nil
}

// Read data from device buffer into the supplied host buffer starting at
// element srcOffset. Returns the number of copied elements.
func (b *Buffer[T]) ReadData(srcOffset int, hostBuffer []T) (int, error) {
	if srcOffset < 0 || srcOffset > len(b.data) {
		return 0, fmt.Errorf("device (%s): invalid read offset %d for buffer %s: %w", b.device.Name, srcOffset, b.name, ErrOutOfBounds)
	}
	return copy(hostBuffer, b.data[srcOffset:]), nil
}

// Reset all elements to their zero value.
func (b *Buffer[T]) Clear() {
	clear(b.data)
}

// Release buffer.
func (b *Buffer[T]) Release() {
	if b.data != nil {
		b.device.release(int64(b.Size()))
		b.data = nil
	}
}
