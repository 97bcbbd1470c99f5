// Package convert turns captured PCM buffers from a device's native format
// into the engine's canonical mix format (interleaved float32).
//
// A Converter is owned by exactly one capture pipeline and is not safe for
// concurrent use. Convert is allocation-free after warm-up so it can be
// called from a realtime audio callback.
package convert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Encoding identifies the wire encoding of a PCM sample.
type Encoding uint8

const (
	EncodingF32 Encoding = iota // 32-bit little-endian IEEE float
	EncodingS16                 // 16-bit little-endian signed
	EncodingS32                 // 32-bit little-endian signed
)

func (e Encoding) String() string {
	switch e {
	case EncodingF32:
		return "f32"
	case EncodingS16:
		return "s16"
	case EncodingS32:
		return "s32"
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// BytesPerSample returns the size of one sample on the wire.
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingS16:
		return 2
	default:
		return 4
	}
}

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Encoding)
}

// Valid reports whether the format is usable at all.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

var (
	ErrUnsupported  = errors.New("convert: unsupported source format")
	ErrShortBuffer  = errors.New("convert: buffer is not a whole number of frames")
	ErrNotCanonical = errors.New("convert: destination must be float32")
)

// Needed reports whether a Converter is required between src and dst.
// Equal formats pass through untouched.
func Needed(src, dst Format) bool {
	return src != dst
}

// Converter converts PCM buffers from src to dst. dst must be float32
// encoded; sample rate and channel count may differ from src.
type Converter struct {
	src, dst Format

	resampler *Resampler // nil when rates match

	decoded []float32
	remixed []float32
}

// New builds a converter from src to dst, or fails with ErrUnsupported /
// ErrNotCanonical when there is no viable conversion path.
func New(src, dst Format) (*Converter, error) {
	if !src.Valid() || !dst.Valid() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupported, src, dst)
	}
	if dst.Encoding != EncodingF32 {
		return nil, fmt.Errorf("%w: got %s", ErrNotCanonical, dst.Encoding)
	}
	switch src.Encoding {
	case EncodingF32, EncodingS16, EncodingS32:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, src.Encoding)
	}

	c := &Converter{src: src, dst: dst}
	if src.SampleRate != dst.SampleRate {
		c.resampler = NewResampler(src.SampleRate, dst.SampleRate, dst.Channels)
	}
	return c, nil
}

// Source returns the format Convert expects its input in.
func (c *Converter) Source() Format { return c.src }

// Destination returns the format Convert produces.
func (c *Converter) Destination() Format { return c.dst }

// Convert decodes one captured buffer and returns it in the destination
// format. The returned slice is reused by the next call; callers must copy
// anything they want to keep. A malformed buffer returns an error and
// produces no output.
func (c *Converter) Convert(in []byte) ([]float32, error) {
	frameBytes := c.src.Encoding.BytesPerSample() * c.src.Channels
	if len(in) == 0 || len(in)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes, frame is %d", ErrShortBuffer, len(in), frameBytes)
	}

	samples := len(in) / c.src.Encoding.BytesPerSample()
	if cap(c.decoded) < samples {
		c.decoded = make([]float32, samples)
	}
	decoded := c.decoded[:samples]
	decode(c.src.Encoding, in, decoded)

	remixed := c.remix(decoded)
	if c.resampler == nil {
		return remixed, nil
	}
	return c.resampler.Process(remixed), nil
}

// decode expands raw little-endian samples into float32 in [-1,1].
func decode(enc Encoding, in []byte, out []float32) {
	switch enc {
	case EncodingF32:
		for i := range out {
			bits := binary.LittleEndian.Uint32(in[i*4 : i*4+4])
			out[i] = math.Float32frombits(bits)
		}
	case EncodingS16:
		for i := range out {
			s := int16(binary.LittleEndian.Uint16(in[i*2 : i*2+2]))
			out[i] = float32(s) / 32768.0
		}
	case EncodingS32:
		for i := range out {
			s := int32(binary.LittleEndian.Uint32(in[i*4 : i*4+4]))
			out[i] = float32(float64(s) / 2147483648.0)
		}
	}
}

// remix maps src channel frames onto dst channel frames. Mono fans out to
// every destination channel; anything wider than the destination is
// averaged down first.
func (c *Converter) remix(in []float32) []float32 {
	srcCh, dstCh := c.src.Channels, c.dst.Channels
	if srcCh == dstCh {
		return in
	}

	frames := len(in) / srcCh
	if cap(c.remixed) < frames*dstCh {
		c.remixed = make([]float32, frames*dstCh)
	}
	out := c.remixed[:frames*dstCh]

	switch {
	case srcCh == 1:
		for f := 0; f < frames; f++ {
			s := in[f]
			for ch := 0; ch < dstCh; ch++ {
				out[f*dstCh+ch] = s
			}
		}
	case dstCh == 1:
		inv := float32(1.0) / float32(srcCh)
		for f := 0; f < frames; f++ {
			sum := float32(0)
			base := f * srcCh
			for ch := 0; ch < srcCh; ch++ {
				sum += in[base+ch]
			}
			out[f] = sum * inv
		}
	default:
		// Average everything down to mono, then fan out. Keeps the level
		// stable for exotic channel layouts.
		inv := float32(1.0) / float32(srcCh)
		for f := 0; f < frames; f++ {
			sum := float32(0)
			base := f * srcCh
			for ch := 0; ch < srcCh; ch++ {
				sum += in[base+ch]
			}
			s := sum * inv
			for ch := 0; ch < dstCh; ch++ {
				out[f*dstCh+ch] = s
			}
		}
	}
	return out
}

// Float32ToInt16 clamps and scales a float32 sample to 16-bit PCM.
func Float32ToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767.0)
}
