package dualmix

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"dualmix/devices"
)

// fakeBackend stands in for the hardware layer so engine behavior can be
// driven deterministically: tests push capture buffers and pull render
// quanta by hand instead of waiting on real audio clocks.
type fakeBackend struct {
	mu       sync.Mutex
	captures map[string]*fakeCapture
	renders  map[string]*fakeRender
	failOpen map[string]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		captures: make(map[string]*fakeCapture),
		renders:  make(map[string]*fakeRender),
		failOpen: make(map[string]error),
	}
}

func (b *fakeBackend) failDevice(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOpen[id] = errors.New("device open refused")
}

func (b *fakeBackend) OpenCapture(dev devices.Device, fn CaptureFunc) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failOpen[dev.ID]; ok {
		return nil, err
	}
	c := &fakeCapture{fn: fn}
	b.captures[dev.ID] = c
	return c, nil
}

func (b *fakeBackend) OpenRender(dev devices.Device, fn RenderFunc) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failOpen[dev.ID]; ok {
		return nil, err
	}
	r := &fakeRender{fn: fn}
	b.renders[dev.ID] = r
	return r, nil
}

func (b *fakeBackend) capture(id string) *fakeCapture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captures[id]
}

func (b *fakeBackend) render(id string) *fakeRender {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renders[id]
}

type fakeStream struct {
	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

func (s *fakeStream) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

type fakeCapture struct {
	fakeStream
	fn CaptureFunc
}

// push delivers one capture buffer the way hardware would: only while the
// stream is started.
func (c *fakeCapture) push(data []byte) {
	if c.isStarted() {
		c.fn(data)
	}
}

// pushFloats encodes samples as little-endian float32 and pushes them.
func (c *fakeCapture) pushFloats(samples []float32) {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	c.push(data)
}

type fakeRender struct {
	fakeStream
	fn RenderFunc
}

// pull asks the render callback for one quantum of n samples.
func (r *fakeRender) pull(n int) []float32 {
	out := make([]float32, n)
	if r.isStarted() {
		r.fn(out)
	}
	return out
}

// fakeDirectory is a mutable device list with change notification.
type fakeDirectory struct {
	mu      sync.Mutex
	capture []devices.Device
	render  []devices.Device
	subs    []func()
}

func newFakeDirectory(capture, render []devices.Device) *fakeDirectory {
	return &fakeDirectory{capture: capture, render: render}
}

func (d *fakeDirectory) List(dir devices.Direction) ([]devices.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dir == devices.Capture {
		return append([]devices.Device(nil), d.capture...), nil
	}
	return append([]devices.Device(nil), d.render...), nil
}

func (d *fakeDirectory) OnChange(fn func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
	i := len(d.subs) - 1
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.subs[i] = nil
	}
}

// removeCapture drops a capture device and fires change callbacks.
func (d *fakeDirectory) removeCapture(id string) {
	d.mu.Lock()
	kept := d.capture[:0]
	for _, dev := range d.capture {
		if dev.ID != id {
			kept = append(kept, dev)
		}
	}
	d.capture = kept
	subs := append(([]func())(nil), d.subs...)
	d.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

func canonicalDevice(id, name string, dir devices.Direction) devices.Device {
	return devices.Device{ID: id, Name: name, Direction: dir, Native: Canonical()}
}
