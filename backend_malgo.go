package dualmix

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"dualmix/convert"
	"dualmix/devices"
)

// MalgoBackend opens capture and render streams through the miniaudio
// context shared with the device directory.
type MalgoBackend struct {
	ctx malgo.Context
}

// NewMalgoBackend wraps the directory's context; streams opened here must
// be closed before the directory is.
func NewMalgoBackend(dir *devices.MalgoDirectory) *MalgoBackend {
	return &MalgoBackend{ctx: dir.Context()}
}

func malgoFormat(e convert.Encoding) (malgo.FormatType, error) {
	switch e {
	case convert.EncodingF32:
		return malgo.FormatF32, nil
	case convert.EncodingS16:
		return malgo.FormatS16, nil
	case convert.EncodingS32:
		return malgo.FormatS32, nil
	}
	return malgo.FormatUnknown, fmt.Errorf("no device format for %s", e)
}

// OpenCapture implements Backend.
func (b *MalgoBackend) OpenCapture(dev devices.Device, fn CaptureFunc) (Stream, error) {
	id, err := devices.ParseID(dev.ID)
	if err != nil {
		return nil, err
	}
	format, err := malgoFormat(dev.Native.Encoding)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(dev.Native.Channels)
	cfg.SampleRate = uint32(dev.Native.SampleRate)
	cfg.Capture.DeviceID = id.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			fn(pInput)
		},
	}

	device, err := malgo.InitDevice(b.ctx, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device %s: %w", dev.Name, err)
	}
	return &malgoStream{device: device}, nil
}

// OpenRender implements Backend.
func (b *MalgoBackend) OpenRender(dev devices.Device, fn RenderFunc) (Stream, error) {
	id, err := devices.ParseID(dev.ID)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = MixChannels
	cfg.SampleRate = SampleRate
	cfg.Playback.DeviceID = id.Pointer()

	var scratch []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			samples := int(frameCount) * MixChannels
			if cap(scratch) < samples {
				scratch = make([]float32, samples)
			}
			out := scratch[:samples]
			fn(out)
			for i, s := range out {
				binary.LittleEndian.PutUint32(pOutput[i*4:], math.Float32bits(s))
			}
		},
	}

	device, err := malgo.InitDevice(b.ctx, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init render device %s: %w", dev.Name, err)
	}
	return &malgoStream{device: device}, nil
}

type malgoStream struct {
	device  *malgo.Device
	started bool
}

func (s *malgoStream) Start() error {
	if s.started {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	s.started = true
	return nil
}

// Stop halts the device. malgo blocks until the data callback has
// returned, which gives the engine its no-buffers-after-stop guarantee.
func (s *malgoStream) Stop() error {
	if !s.started {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("stop device: %w", err)
	}
	s.started = false
	return nil
}

func (s *malgoStream) Close() error {
	s.device.Uninit()
	return nil
}
