package devices

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// MalgoDirectory is the production Directory backed by a shared miniaudio
// context. Hot-plug detection polls device counts; polling backs off while
// nothing changes and snaps back to the base interval on a change.
type MalgoDirectory struct {
	ctx *malgo.AllocatedContext

	mu        sync.Mutex
	subs      map[int]func()
	nextSub   int
	isRunning bool
	stop      chan struct{}

	baseInterval    time.Duration
	maxInterval     time.Duration
	currentInterval time.Duration
	noChangeCount   int

	lastCaptureCount int
	lastRenderCount  int
}

// NewMalgoDirectory initializes the miniaudio context and starts the
// hot-plug poller.
func NewMalgoDirectory() (*MalgoDirectory, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	d := &MalgoDirectory{
		ctx:             ctx,
		subs:            make(map[int]func()),
		stop:            make(chan struct{}),
		baseInterval:    250 * time.Millisecond,
		maxInterval:     2 * time.Second,
		currentInterval: 250 * time.Millisecond,
	}

	d.lastCaptureCount, d.lastRenderCount = d.counts()
	d.isRunning = true
	go d.pollLoop()

	return d, nil
}

// Context exposes the shared malgo context so the backend can open devices
// without initializing a second one.
func (d *MalgoDirectory) Context() malgo.Context { return d.ctx.Context }

// List implements Directory.
func (d *MalgoDirectory) List(dir Direction) ([]Device, error) {
	return listWithContext(d.ctx.Context, dir)
}

// OnChange implements Directory. The callback fires on the poller
// goroutine, never on an audio thread.
func (d *MalgoDirectory) OnChange(fn func()) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// Close stops the poller and releases the miniaudio context. Must be
// called after every stream opened from this context has been closed.
func (d *MalgoDirectory) Close() error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	close(d.stop)
	d.mu.Unlock()

	if err := d.ctx.Uninit(); err != nil {
		d.ctx.Free()
		return fmt.Errorf("failed to uninit audio context: %w", err)
	}
	d.ctx.Free()
	return nil
}

func (d *MalgoDirectory) counts() (capture, render int) {
	if infos, err := d.ctx.Context.Devices(malgo.Capture); err == nil {
		capture = len(infos)
	}
	if infos, err := d.ctx.Context.Devices(malgo.Playback); err == nil {
		render = len(infos)
	}
	return capture, render
}

func (d *MalgoDirectory) pollLoop() {
	timer := time.NewTimer(d.currentInterval)
	defer timer.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-timer.C:
		}

		capture, render := d.counts()

		d.mu.Lock()
		changed := capture != d.lastCaptureCount || render != d.lastRenderCount
		d.lastCaptureCount = capture
		d.lastRenderCount = render

		if changed {
			d.noChangeCount = 0
			d.currentInterval = d.baseInterval
		} else {
			d.noChangeCount++
			if d.noChangeCount > 10 {
				next := time.Duration(float64(d.currentInterval) * 1.5)
				if next > d.maxInterval {
					next = d.maxInterval
				}
				d.currentInterval = next
			}
		}

		var subs []func()
		if changed {
			subs = make([]func(), 0, len(d.subs))
			for _, fn := range d.subs {
				subs = append(subs, fn)
			}
		}
		interval := d.currentInterval
		d.mu.Unlock()

		if changed {
			slog.Debug("device list changed", "capture", capture, "render", render)
			for _, fn := range subs {
				fn()
			}
		}

		timer.Reset(interval)
	}
}
