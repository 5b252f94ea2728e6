package photon

import (
	"math"
	"strings"

	"github.com/SirKero/RTProgressivePhotonMapper/device"
	"github.com/SirKero/RTProgressivePhotonMapper/types"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Fixed Y extent of all photon textures.
const InfoTextureHeight = 512

// Precision of the flux/direction textures.
type InfoFormat uint8

const (
	Float16 InfoFormat = iota
	Float32
)

func (f InfoFormat) String() string {
	switch f {
	case Float16:
		return "16bit"
	case Float32:
		return "32bit"
	}
	return "unknown"
}

// Parse an info format name ("16bit" or "32bit").
func ParseInfoFormat(name string) (InfoFormat, error) {
	switch strings.ToLower(name) {
	case "16bit", "16", "float16":
		return Float16, nil
	case "32bit", "32", "float32":
		return Float32, nil
	}
	return 0, errors.Wrapf(ErrUnknownFormat, "%q", name)
}

// Implements encoding.TextMarshaler.
func (f InfoFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Implements encoding.TextUnmarshaler.
func (f *InfoFormat) UnmarshalText(text []byte) error {
	v, err := ParseInfoFormat(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Width of a photon texture able to hold capacity photons.
func TextureWidth(capacity int) int {
	return (capacity + InfoTextureHeight - 1) / InfoTextureHeight
}

type infoTexel32 struct {
	Flux types.Vec3
	Dir  types.Vec3
}

type infoTexel16 struct {
	Flux [3]float16.Float16
	Dir  [3]float16.Float16
}

// Flux and direction of stored photons in either 16 or 32 bit precision.
type InfoTexture struct {
	format InfoFormat
	wide   *device.Texture2D[infoTexel32]
	half   *device.Texture2D[infoTexel16]
}

func NewInfoTexture(dev *device.Device, name string, format InfoFormat) *InfoTexture {
	return &InfoTexture{
		format: format,
		wide:   device.NewTexture2D[infoTexel32](dev, name),
		half:   device.NewTexture2D[infoTexel16](dev, name),
	}
}

func (t *InfoTexture) Format() InfoFormat {
	return t.format
}

// Allocate a zeroed texture for capacity photons.
func (t *InfoTexture) Allocate(capacity int) error {
	t.Release()
	if t.format == Float16 {
		return t.half.Allocate(TextureWidth(capacity), InfoTextureHeight)
	}
	return t.wide.Allocate(TextureWidth(capacity), InfoTextureHeight)
}

// Number of texels.
func (t *InfoTexture) Len() int {
	if t.format == Float16 {
		return t.half.Len()
	}
	return t.wide.Len()
}

// Size in bytes.
func (t *InfoTexture) Size() int {
	return t.half.Size() + t.wide.Size()
}

func (t *InfoTexture) Store(i int, flux, dir types.Vec3) {
	if t.format == Float16 {
		t.half.Data()[i] = infoTexel16{
			Flux: [3]float16.Float16{float16.Fromfloat32(flux[0]), float16.Fromfloat32(flux[1]), float16.Fromfloat32(flux[2])},
			Dir:  [3]float16.Float16{float16.Fromfloat32(dir[0]), float16.Fromfloat32(dir[1]), float16.Fromfloat32(dir[2])},
		}
		return
	}
	t.wide.Data()[i] = infoTexel32{Flux: flux, Dir: dir}
}

func (t *InfoTexture) Load(i int) (flux, dir types.Vec3) {
	if t.format == Float16 {
		texel := &t.half.Data()[i]
		return types.Vec3{texel.Flux[0].Float32(), texel.Flux[1].Float32(), texel.Flux[2].Float32()},
			types.Vec3{texel.Dir[0].Float32(), texel.Dir[1].Float32(), texel.Dir[2].Float32()}
	}
	texel := &t.wide.Data()[i]
	return texel.Flux, texel.Dir
}

func (t *InfoTexture) Clear() {
	t.half.Clear()
	t.wide.Clear()
}

func (t *InfoTexture) Release() {
	t.half.Release()
	t.wide.Release()
}

// A photon position with its face normal packed into the fourth channel.
type PackedPosition struct {
	Position types.Vec3
	Normal   uint32
}

func PackPosition(pos, faceNormal types.Vec3) PackedPosition {
	return PackedPosition{Position: pos, Normal: EncodeNormal(faceNormal)}
}

func (p PackedPosition) FaceNormal() types.Vec3 {
	return DecodeNormal(p.Normal)
}

// Encode a unit vector as two 16 bit unorm octahedral coordinates.
func EncodeNormal(n types.Vec3) uint32 {
	l1 := abs32(n[0]) + abs32(n[1]) + abs32(n[2])
	if l1 == 0 {
		return 0
	}
	u, v := n[0]/l1, n[1]/l1
	if n[2] < 0 {
		u, v = (1-abs32(v))*signNotZero(u), (1-abs32(u))*signNotZero(v)
	}
	return uint32(toUnorm16(u)) | uint32(toUnorm16(v))<<16
}

// Decode a normal packed with EncodeNormal.
func DecodeNormal(packed uint32) types.Vec3 {
	if packed == 0 {
		return types.Vec3{}
	}
	u := fromUnorm16(uint16(packed))
	v := fromUnorm16(uint16(packed >> 16))
	n := types.Vec3{u, v, 1 - abs32(u) - abs32(v)}
	if n[2] < 0 {
		n[0], n[1] = (1-abs32(v))*signNotZero(u), (1-abs32(u))*signNotZero(v)
	}
	return n.Normalize()
}

func toUnorm16(f float32) uint16 {
	f = max(-1, min(1, f))
	return uint16(math.Round(float64((f*0.5 + 0.5) * 65535)))
}

func fromUnorm16(u uint16) float32 {
	return float32(u)/65535*2 - 1
}

func signNotZero(f float32) float32 {
	if f < 0 {
		return -1
	}
	return 1
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
