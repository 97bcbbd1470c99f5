package dualmix

import (
	"fmt"
	"sync/atomic"

	"dualmix/devices"
	"dualmix/metrics"
)

// BusRole names one of the two output feeds.
type BusRole string

const (
	BusMaster  BusRole = "master"
	BusMonitor BusRole = "monitor"
)

// Tap receives every mixed buffer after the bus gain, e.g. for recording
// the master feed. It runs on the render thread and must not block.
type Tap func(samples []float32)

// OutputBus owns one render path: a mixing callback bound to a single
// render device, a gain stage, and the set of channel queues feeding it.
//
// Control methods (Bind, Unbind, Start, Stop, attach, detach) are called
// only with the engine mutex held. The render callback reads nothing but
// atomics and the published queue snapshot.
type OutputBus struct {
	role    BusRole
	backend Backend
	gain    *gainControl

	device *devices.Device
	stream Stream

	running atomic.Bool
	inputs  atomic.Pointer[[]*sampleQueue]

	// delivered counts buffers accepted into this bus's mix inputs. It
	// freezes the moment the bus (or its feeding channels) stop.
	delivered atomic.Uint64

	tap atomic.Pointer[Tap]

	scratch []float32 // render-thread scratch, touched only by the callback
}

func newOutputBus(role BusRole, backend Backend, boost float64) *OutputBus {
	b := &OutputBus{
		role:    role,
		backend: backend,
		gain:    newGainControl(1.0, boost),
	}
	empty := make([]*sampleQueue, 0)
	b.inputs.Store(&empty)
	return b
}

// Role returns which feed this bus is.
func (b *OutputBus) Role() BusRole { return b.role }

// IsRunning reports whether the render path is live. Safe from any thread.
func (b *OutputBus) IsRunning() bool { return b.running.Load() }

// Delivered returns the number of buffers accepted into the mix input.
func (b *OutputBus) Delivered() uint64 { return b.delivered.Load() }

// SetTap installs or clears (nil) the post-gain tap.
func (b *OutputBus) SetTap(t Tap) {
	if t == nil {
		b.tap.Store(nil)
		return
	}
	b.tap.Store(&t)
}

func (b *OutputBus) isBound() bool { return b.device != nil }

func (b *OutputBus) boundDeviceID() string {
	if b.device == nil {
		return ""
	}
	return b.device.ID
}

// bind stops the bus if running, rebinds the render target, and leaves the
// bus stopped. On failure the bus ends up unbound.
func (b *OutputBus) bind(dev devices.Device) error {
	b.unbind()

	stream, err := b.backend.OpenRender(dev, b.render)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeviceBindingFailed, dev.Name, err)
	}

	d := dev
	b.device = &d
	b.stream = stream
	return nil
}

// unbind stops the bus and clears its target. Always safe.
func (b *OutputBus) unbind() {
	b.stop()
	if b.stream != nil {
		b.stream.Close()
		b.stream = nil
	}
	b.device = nil
}

// start is idempotent; starting an unbound bus fails with ErrNotBound and
// has no side effect.
func (b *OutputBus) start() error {
	if b.running.Load() {
		return nil
	}
	if b.stream == nil {
		return fmt.Errorf("%s bus: %w", b.role, ErrNotBound)
	}
	if err := b.stream.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeviceBindingFailed, b.device.Name, err)
	}
	b.running.Store(true)
	return nil
}

// stop is idempotent and always safe. The running flag flips first so
// capture fan-out starts discarding before the render callback drains out.
func (b *OutputBus) stop() {
	if !b.running.Load() {
		return
	}
	b.running.Store(false)
	if b.stream != nil {
		b.stream.Stop()
	}
}

// attach hooks a channel queue into the mix via a copy-on-write snapshot.
func (b *OutputBus) attach(q *sampleQueue) {
	old := *b.inputs.Load()
	next := make([]*sampleQueue, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, q)
	b.inputs.Store(&next)
}

// detach removes a channel queue. After detach returns, nothing from that
// queue can reach the render callback, queued residue included.
func (b *OutputBus) detach(q *sampleQueue) {
	old := *b.inputs.Load()
	next := make([]*sampleQueue, 0, len(old))
	for _, in := range old {
		if in != q {
			next = append(next, in)
		}
	}
	b.inputs.Store(&next)
}

// accept is called by a channel's capture callback offering one converted,
// volume-scaled buffer. Buffers for a bus that is not running are
// discarded immediately, never queued.
func (b *OutputBus) accept(q *sampleQueue, samples []float32) {
	if !b.running.Load() {
		metrics.BufferDropped(string(b.role))
		return
	}
	q.write(samples)
	b.delivered.Add(1)
	metrics.BufferDelivered(string(b.role))
}

// render is the realtime mix callback: additively combine whatever each
// attached queue has for this quantum, apply the bus gain, hard-clip.
func (b *OutputBus) render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	if !b.running.Load() {
		return
	}

	if cap(b.scratch) < len(out) {
		b.scratch = make([]float32, len(out))
	}
	scratch := b.scratch[:len(out)]

	for _, q := range *b.inputs.Load() {
		n := q.read(scratch)
		for i := 0; i < n; i++ {
			out[i] += scratch[i]
		}
	}

	gain := b.gain.Effective()
	for i := range out {
		s := out[i] * gain
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = s
	}

	if t := b.tap.Load(); t != nil {
		(*t)(out)
	}
}
