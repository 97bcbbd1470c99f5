package dualmix

import (
	"dualmix/convert"
	"dualmix/devices"
)

// Canonical mix format: both buses and every converted input channel use
// interleaved float32 at this rate and width.
const (
	SampleRate  = 48000
	MixChannels = 2
)

// Canonical returns the canonical mix format.
func Canonical() convert.Format {
	return convert.Format{SampleRate: SampleRate, Channels: MixChannels, Encoding: convert.EncodingF32}
}

// CaptureFunc receives one captured buffer in the device's native format.
// It is invoked on the hardware audio thread and must not block.
type CaptureFunc func(data []byte)

// RenderFunc fills out with canonical interleaved samples for one render
// quantum. It is invoked on the hardware audio thread and must not block.
type RenderFunc func(out []float32)

// Stream is one opened capture or render path. Start and Stop are
// idempotent; Stop blocks until the callback has quiesced, which is what
// lets the control plane guarantee nothing flows after teardown.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend opens device streams. The production backend is malgo; tests
// substitute a fake so the engine can be driven deterministically.
type Backend interface {
	// OpenCapture opens dev at its declared native format. The stream is
	// created stopped.
	OpenCapture(dev devices.Device, fn CaptureFunc) (Stream, error)

	// OpenRender opens dev for canonical-format output. The stream is
	// created stopped.
	OpenRender(dev devices.Device, fn RenderFunc) (Stream, error)
}
