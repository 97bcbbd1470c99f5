package dualmix

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"dualmix/convert"
	"dualmix/devices"
	"dualmix/metrics"
)

// fanTarget is one side of the fan-out: a bus plus this channel's private
// queue into that bus's mixer.
type fanTarget struct {
	bus   *OutputBus
	queue *sampleQueue
}

// InputChannel owns one capture pipeline: the device stream, the optional
// format converter, the channel gain, and the fan-out into both buses.
//
// Control methods run with the engine mutex held. onCapture runs on the
// device's audio thread and touches only the converter (exclusively
// owned), callback-local scratch, atomics, and the queues.
type InputChannel struct {
	device devices.Device
	gain   *gainControl

	converter *convert.Converter // nil when native already matches canonical
	stream    Stream

	captureActive bool
	targets       [2]fanTarget

	// faults counts capture buffers dropped on conversion failure. Never
	// surfaced synchronously; the buffer is dropped and audio continues.
	faults atomic.Uint64

	decoded []float32 // pass-through decode scratch
	scaled  []float32 // post-gain scratch
}

// queueCapacity holds about two thirds of a second of canonical audio per
// bus, enough to ride out scheduling jitter without hoarding stale sound.
const queueCapacity = 1 << 16

func newInputChannel(dev devices.Device, volume float64) *InputChannel {
	return &InputChannel{
		device: dev,
		gain:   newGainControl(volume, 1.0),
	}
}

// configure opens the capture device and builds the converter when the
// native format differs from the canonical mix format. On error the
// channel holds no resources.
func (ch *InputChannel) configure(backend Backend) error {
	canonical := Canonical()
	if convert.Needed(ch.device.Native, canonical) {
		conv, err := convert.New(ch.device.Native, canonical)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFormatNegotiationFailed, ch.device.Native, err)
		}
		ch.converter = conv
	}

	stream, err := backend.OpenCapture(ch.device, ch.onCapture)
	if err != nil {
		ch.converter = nil
		return fmt.Errorf("%w: %s: %v", ErrDeviceBindingFailed, ch.device.Name, err)
	}
	ch.stream = stream
	return nil
}

// attach registers this channel's queues with both buses. Must follow a
// successful configure.
func (ch *InputChannel) attach(master, monitor *OutputBus) {
	ch.targets[0] = fanTarget{bus: master, queue: newSampleQueue(queueCapacity)}
	ch.targets[1] = fanTarget{bus: monitor, queue: newSampleQueue(queueCapacity)}
	master.attach(ch.targets[0].queue)
	monitor.attach(ch.targets[1].queue)
}

// start registers the capture callback with the hardware. Idempotent.
func (ch *InputChannel) start() error {
	if ch.captureActive {
		return nil
	}
	if err := ch.stream.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeviceBindingFailed, ch.device.Name, err)
	}
	ch.captureActive = true
	return nil
}

// stop halts capture. It returns only after the capture callback has
// quiesced, so callers may tear down bus-side resources immediately after.
func (ch *InputChannel) stop() {
	if !ch.captureActive {
		return
	}
	ch.stream.Stop()
	ch.captureActive = false
}

// teardown detaches from both buses and releases the capture handle.
// Call only after stop has returned.
func (ch *InputChannel) teardown() {
	for _, t := range ch.targets {
		if t.bus != nil {
			t.bus.detach(t.queue)
		}
	}
	ch.targets = [2]fanTarget{}
	if ch.stream != nil {
		ch.stream.Close()
		ch.stream = nil
	}
}

// Faults returns the number of capture buffers dropped on conversion
// failure.
func (ch *InputChannel) Faults() uint64 { return ch.faults.Load() }

// onCapture is the realtime capture callback: convert to the canonical
// format, scale by the channel's current effective volume (one atomic
// read), and fan a copy out to each bus. A bus that is not running gets
// nothing queued. Errors never cross this boundary.
func (ch *InputChannel) onCapture(data []byte) {
	var samples []float32
	if ch.converter != nil {
		converted, err := ch.converter.Convert(data)
		if err != nil {
			ch.faults.Add(1)
			metrics.ConversionFault(ch.device.ID)
			return
		}
		samples = converted
	} else {
		if len(data)%4 != 0 {
			ch.faults.Add(1)
			metrics.ConversionFault(ch.device.ID)
			return
		}
		n := len(data) / 4
		if cap(ch.decoded) < n {
			ch.decoded = make([]float32, n)
		}
		samples = ch.decoded[:n]
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	}
	if len(samples) == 0 {
		return
	}

	gain := ch.gain.Effective()
	if cap(ch.scaled) < len(samples) {
		ch.scaled = make([]float32, len(samples))
	}
	scaled := ch.scaled[:len(samples)]
	for i, s := range samples {
		scaled[i] = s * gain
	}

	for _, t := range ch.targets {
		if t.bus != nil {
			t.bus.accept(t.queue, scaled)
		}
	}
}
