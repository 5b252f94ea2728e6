package device

// A 2D texture stored row-major on top of a Buffer.
type Texture2D[T any] struct {
	*Buffer[T]
	width, height int
}

// Create an empty texture.
func NewTexture2D[T any](d *Device, name string) *Texture2D[T] {
	return &Texture2D[T]{Buffer: NewBuffer[T](d, name)}
}

// Allocate a zero-initialized width x height texture.
func (t *Texture2D[T]) Allocate(width, height int) error {
	if err := t.Buffer.Allocate(width * height); err != nil {
		return err
	}
	t.width, t.height = width, height
	return nil
}

// Allocate and upload texel data; len(data) must equal width*height.
func (t *Texture2D[T]) AllocateAndWriteData(width, height int, data []T) error {
	if err := t.Allocate(width, height); err != nil {
		return err
	}
	return t.WriteData(data, 0)
}

func (t *Texture2D[T]) Width() int {
	return t.width
}

func (t *Texture2D[T]) Height() int {
	return t.height
}

// Linear index of texel (x, y).
func (t *Texture2D[T]) Index(x, y int) int {
	return x + y*t.width
}

// Fetch texel.
func (t *Texture2D[T]) At(x, y int) T {
	return t.data[x+y*t.width]
}

// Store texel.
func (t *Texture2D[T]) Set(x, y int, v T) {
	t.data[x+y*t.width] = v
}

// Release texture.
func (t *Texture2D[T]) Release() {
	t.Buffer.Release()
	t.width, t.height = 0, 0
}
