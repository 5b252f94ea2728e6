package device

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferAllocateAndRead(t *testing.T) {
	dev := createTestDevice(t, 1)
	defer dev.Close()

	buf := NewBuffer[uint32](dev, "test")
	if err := buf.AllocateAndWriteData([]uint32{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if buf.Size() != 16 {
		t.Fatalf("expected buffer size to be 16; got %d", buf.Size())
	}
	if dev.AllocatedBytes() != 16 {
		t.Fatalf("expected device to track 16 allocated bytes; got %d", dev.AllocatedBytes())
	}

	if err := buf.WriteData([]uint32{9, 9}, 1); err != nil {
		t.Fatal(err)
	}

	out := make([]uint32, 4)
	if _, err := buf.ReadData(0, out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{1, 9, 9, 4}, out); diff != "" {
		t.Fatalf("unexpected buffer contents (-want +got):\n%s", diff)
	}

	if err := buf.WriteData([]uint32{1, 2}, 3); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds; got %v", err)
	}

	buf.Release()
	if dev.AllocatedBytes() != 0 {
		t.Fatalf("expected released memory to be returned; %d bytes still allocated", dev.AllocatedBytes())
	}
}

func TestBufferMemoryBudget(t *testing.T) {
	dev := createTestDevice(t, 1)
	defer dev.Close()
	dev.MemoryBytes = 64

	buf := NewBuffer[float32](dev, "big")
	if err := buf.Allocate(32); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}
	if err := buf.Allocate(16); err != nil {
		t.Fatal(err)
	}
}

func TestTexture2D(t *testing.T) {
	dev := createTestDevice(t, 1)
	defer dev.Close()

	tex := NewTexture2D[int32](dev, "tex")
	if err := tex.Allocate(4, 3); err != nil {
		t.Fatal(err)
	}
	tex.Set(3, 2, -5)
	if v := tex.At(3, 2); v != -5 {
		t.Fatalf("expected texel to be -5; got %d", v)
	}
	if idx := tex.Index(3, 2); idx != 11 {
		t.Fatalf("expected linear index 11; got %d", idx)
	}
}

func TestCounterBuffer(t *testing.T) {
	dev := createTestDevice(t, 1)
	defer dev.Close()

	counters := NewCounterBuffer(dev, "counters")
	if err := counters.Allocate(2); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				counters.Add(0, 1)
				counters.IncrementBelow(1, 100)
			}
		}()
	}
	wg.Wait()

	out := make([]uint32, 2)
	if err := counters.ReadData(out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{8000, 100}, out); diff != "" {
		t.Fatalf("unexpected counter values (-want +got):\n%s", diff)
	}

	counters.Reset()
	if prev := counters.Add(0, 1); prev != 0 {
		t.Fatalf("expected Add to return the previous value 0; got %d", prev)
	}
}
