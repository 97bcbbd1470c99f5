// Package dualmix mixes an arbitrary set of capture devices into two
// independent output feeds: a Master feed for recording or broadcast and a
// Monitor feed for live listening. Each input and each output carries its
// own volume, boost, and mute; devices can be added, removed, and rebound
// while the engine runs.
//
// All control methods are safe for concurrent use; they serialize on one
// mutex and may block on hardware open/close. Audio callbacks never take
// that mutex.
package dualmix

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"dualmix/devices"
	"dualmix/events"
	"dualmix/metrics"
)

// State is the engine's control-plane phase.
type State int

const (
	StateIdle        State = iota // no bus running
	StateConfiguring              // transient, inside a bind/add/remove
	StateRunning                  // master bound and started
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds everything the engine needs at construction. There is no
// implicit global settings object; callers pass configuration in and
// persist change notifications from the event bus.
type Config struct {
	Backend   Backend
	Directory devices.Directory

	// Events receives engine notifications. Optional; a private bus is
	// created when nil.
	Events *events.Bus

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// DefaultInputVolume is applied to newly added inputs. Zero means 1.0.
	DefaultInputVolume float64

	// MasterBoost and MonitorBoost are the initial output boost
	// multipliers. Values below 1 are raised to 1.
	MasterBoost  float64
	MonitorBoost float64
}

// Engine owns both output buses and the set of input channels, and
// enforces the reconfiguration protocol between them.
type Engine struct {
	id  uuid.UUID
	log *slog.Logger

	mu     sync.Mutex
	closed bool

	backend   Backend
	directory devices.Directory
	events    *events.Bus

	master  *OutputBus
	monitor *OutputBus

	channels map[string]*InputChannel
	running  bool
	state    State

	defaultInputVolume float64

	deviceEvents chan struct{}
	cancelWatch  func()
}

// NewEngine creates an engine with both buses present but unbound.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("directory is required")
	}
	if cfg.Events == nil {
		cfg.Events = events.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultInputVolume <= 0 {
		cfg.DefaultInputVolume = 1.0
	}

	e := &Engine{
		id:                 uuid.New(),
		log:                cfg.Logger,
		backend:            cfg.Backend,
		directory:          cfg.Directory,
		events:             cfg.Events,
		master:             newOutputBus(BusMaster, cfg.Backend, cfg.MasterBoost),
		monitor:            newOutputBus(BusMonitor, cfg.Backend, cfg.MonitorBoost),
		channels:           make(map[string]*InputChannel),
		state:              StateIdle,
		defaultInputVolume: cfg.DefaultInputVolume,
		deviceEvents:       make(chan struct{}, 1),
	}

	e.cancelWatch = cfg.Directory.OnChange(e.onDeviceListChanged)
	return e, nil
}

// ID returns the engine's identity.
func (e *Engine) ID() uuid.UUID { return e.id }

// Events returns the engine's notification bus.
func (e *Engine) Events() *events.Bus { return e.events }

// Master returns the master bus for read-only inspection (role, counters,
// tap). All mutation goes through engine methods.
func (e *Engine) Master() *OutputBus { return e.master }

// Monitor returns the monitor bus for read-only inspection.
func (e *Engine) Monitor() *OutputBus { return e.monitor }

// SetMasterDevice rebinds the Master feed. Binding Master to the device
// Monitor currently holds clears Monitor's binding first and announces it
// on the event bus. Rebinding the already-bound device is a no-op.
// Any real rebind stops everything, rebinds, and restarts the engine if
// any input channels exist.
func (e *Engine) SetMasterDevice(dev devices.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	if e.master.boundDeviceID() == dev.ID {
		return nil
	}
	e.state = StateConfiguring

	if e.monitor.boundDeviceID() == dev.ID {
		e.monitor.unbind()
		e.log.Warn("monitor binding cleared, master took its device", "device", dev.Name)
		e.events.Publish(events.MonitorUnboundEvent{DeviceID: dev.ID})
	}

	e.stopLocked()
	if err := e.master.bind(dev); err != nil {
		e.state = StateIdle
		return err
	}
	metrics.EngineRestart()

	// Volume and mute carry over: the new render path reads the same
	// published effective gain.
	e.master.gain.publish()

	if len(e.channels) > 0 {
		if err := e.startLocked(); err != nil {
			return err
		}
	} else {
		e.state = StateIdle
	}
	e.publishStateLocked()
	return nil
}

// SetMonitorDevice rebinds the Monitor feed, or disables monitoring when
// dev is nil; disabling leaves Master untouched. Binding Monitor to
// Master's current device clears Master's binding (last writer wins).
func (e *Engine) SetMonitorDevice(dev *devices.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	if dev == nil {
		if !e.monitor.isBound() {
			return nil
		}
		e.monitor.unbind()
		e.publishStateLocked()
		return nil
	}

	if e.monitor.boundDeviceID() == dev.ID {
		return nil
	}
	e.state = StateConfiguring

	if e.master.boundDeviceID() == dev.ID {
		e.stopLocked()
		e.master.unbind()
		e.log.Warn("master binding cleared, monitor took its device", "device", dev.Name)
		e.events.Publish(events.MasterUnboundEvent{DeviceID: dev.ID})
	}

	e.stopLocked()
	if err := e.monitor.bind(*dev); err != nil {
		e.state = StateIdle
		return err
	}
	metrics.EngineRestart()
	e.monitor.gain.publish()

	if len(e.channels) > 0 && e.master.isBound() {
		if err := e.startLocked(); err != nil {
			return err
		}
	} else {
		e.state = StateIdle
	}
	e.publishStateLocked()
	return nil
}

// AddInput brings a capture device into the mix. Adding a device that is
// already present is a no-op. On configuration failure nothing is added.
func (e *Engine) AddInput(dev devices.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	if _, exists := e.channels[dev.ID]; exists {
		return nil
	}
	e.state = StateConfiguring

	ch := newInputChannel(dev, e.defaultInputVolume)
	if err := ch.configure(e.backend); err != nil {
		e.restoreStateLocked()
		return err
	}

	ch.attach(e.master, e.monitor)
	e.channels[dev.ID] = ch
	metrics.SetInputsActive(len(e.channels))

	if e.running {
		if err := ch.start(); err != nil {
			ch.teardown()
			delete(e.channels, dev.ID)
			metrics.SetInputsActive(len(e.channels))
			e.restoreStateLocked()
			return err
		}
	} else if e.master.isBound() {
		if err := e.startLocked(); err != nil {
			ch.teardown()
			delete(e.channels, dev.ID)
			metrics.SetInputsActive(len(e.channels))
			e.restoreStateLocked()
			return err
		}
	} else {
		e.state = StateIdle
	}

	e.log.Info("input added", "device", dev.Name, "format", dev.Native.String())
	e.events.Publish(events.InputAddedEvent{DeviceID: dev.ID, Name: dev.Name})
	e.publishStateLocked()
	return nil
}

// RemoveInput drops a capture device from the mix. Removing an absent
// device is a no-op. The engine stays running while Master remains bound,
// even with zero inputs; silence is a valid running state.
func (e *Engine) RemoveInput(deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	ch, exists := e.channels[deviceID]
	if !exists {
		return nil
	}
	e.state = StateConfiguring

	ch.stop()
	if faults := ch.Faults(); faults > 0 {
		e.events.Publish(events.ConversionFaultsEvent{DeviceID: deviceID, Faults: faults})
	}
	ch.teardown()
	delete(e.channels, deviceID)
	metrics.SetInputsActive(len(e.channels))
	metrics.DeleteDeviceMetrics(deviceID)
	e.restoreStateLocked()

	e.log.Info("input removed", "device", deviceID)
	e.events.Publish(events.InputRemovedEvent{DeviceID: deviceID})
	e.publishStateLocked()
	return nil
}

// Start begins engine-wide operation. It requires Master to be bound.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.running {
		return nil
	}
	if !e.master.isBound() {
		return fmt.Errorf("cannot start engine: %w", ErrNotBound)
	}
	if err := e.startLocked(); err != nil {
		return err
	}
	e.publishStateLocked()
	return nil
}

// Stop halts everything: channels first, then buses, so no bus ever waits
// on a channel that is already gone. Idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if !e.running {
		return nil
	}
	e.stopLocked()
	e.publishStateLocked()
	return nil
}

// IsRunning reports whether the engine is in the Running state.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CurrentState returns the control-plane phase.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsInputActive reports whether a device is currently in the mix with its
// capture callback registered.
func (e *Engine) IsInputActive(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[deviceID]
	return ok && ch.captureActive
}

// InputIDs returns the ids of all devices currently in the mix.
func (e *Engine) InputIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.channels))
	for id := range e.channels {
		ids = append(ids, id)
	}
	return ids
}

// InputFaults returns the conversion fault count for one input.
func (e *Engine) InputFaults(deviceID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.channels[deviceID]; ok {
		return ch.Faults()
	}
	return 0
}

// SetInputVolume adjusts one input's level without disturbing audio flow.
// The new effective gain is picked up by the very next capture callback.
func (e *Engine) SetInputVolume(deviceID string, level float64) error {
	return e.updateInput(deviceID, func(ch *InputChannel) { ch.gain.setLevel(level) })
}

// SetInputBoost adjusts one input's boost multiplier.
func (e *Engine) SetInputBoost(deviceID string, boost float64) error {
	return e.updateInput(deviceID, func(ch *InputChannel) { ch.gain.setBoost(boost) })
}

// SetInputMuted mutes or unmutes one input. Level and boost are retained
// and come back intact on unmute.
func (e *Engine) SetInputMuted(deviceID string, muted bool) error {
	return e.updateInput(deviceID, func(ch *InputChannel) { ch.gain.setMuted(muted) })
}

// InputVolume returns one input's full volume state.
func (e *Engine) InputVolume(deviceID string) (VolumeState, error) {
	var vs VolumeState
	err := e.withInput(deviceID, func(ch *InputChannel) { vs = ch.gain.snapshot() })
	return vs, err
}

func (e *Engine) withInput(deviceID string, fn func(*InputChannel)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	ch, ok := e.channels[deviceID]
	if !ok {
		return fmt.Errorf("input %q: %w", deviceID, ErrNotBound)
	}
	fn(ch)
	return nil
}

// updateInput is withInput plus a change notification, for mutations a
// persistence collaborator needs to see.
func (e *Engine) updateInput(deviceID string, fn func(*InputChannel)) error {
	if err := e.withInput(deviceID, fn); err != nil {
		return err
	}
	e.notifyChanged()
	return nil
}

// SetMasterVolume adjusts the Master feed level. Monitor is unaffected.
func (e *Engine) SetMasterVolume(level float64) error {
	return e.updateBus(e.master, func(g *gainControl) { g.setLevel(level) })
}

// SetMasterBoost adjusts the Master feed boost.
func (e *Engine) SetMasterBoost(boost float64) error {
	return e.updateBus(e.master, func(g *gainControl) { g.setBoost(boost) })
}

// SetMasterMuted mutes or unmutes the Master feed.
func (e *Engine) SetMasterMuted(muted bool) error {
	return e.updateBus(e.master, func(g *gainControl) { g.setMuted(muted) })
}

// SetMonitorVolume adjusts the Monitor feed level. Master is unaffected.
func (e *Engine) SetMonitorVolume(level float64) error {
	return e.updateBus(e.monitor, func(g *gainControl) { g.setLevel(level) })
}

// SetMonitorBoost adjusts the Monitor feed boost.
func (e *Engine) SetMonitorBoost(boost float64) error {
	return e.updateBus(e.monitor, func(g *gainControl) { g.setBoost(boost) })
}

// SetMonitorMuted mutes or unmutes the Monitor feed; the Monitor stream
// keeps running and renders silence.
func (e *Engine) SetMonitorMuted(muted bool) error {
	return e.updateBus(e.monitor, func(g *gainControl) { g.setMuted(muted) })
}

// MasterVolume returns the Master feed volume state.
func (e *Engine) MasterVolume() VolumeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master.gain.snapshot()
}

// MonitorVolume returns the Monitor feed volume state.
func (e *Engine) MonitorVolume() VolumeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor.gain.snapshot()
}

func (e *Engine) withBus(b *OutputBus, fn func(*gainControl)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	fn(b.gain)
	return nil
}

// updateBus is withBus plus a change notification.
func (e *Engine) updateBus(b *OutputBus, fn func(*gainControl)) error {
	if err := e.withBus(b, fn); err != nil {
		return err
	}
	e.notifyChanged()
	return nil
}

// notifyChanged tells subscribers some persistable state moved. Gain
// setters call it outside the mutex; a stale Running snapshot here is
// harmless since subscribers re-read the engine anyway.
func (e *Engine) notifyChanged() {
	e.events.Publish(events.EngineStateChangedEvent{Running: e.IsRunning()})
}

// MasterDeviceID returns the bound master device id, or "" when unbound.
func (e *Engine) MasterDeviceID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master.boundDeviceID()
}

// MonitorDeviceID returns the bound monitor device id, or "" when unbound.
func (e *Engine) MonitorDeviceID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor.boundDeviceID()
}

// Close stops the engine and releases every stream. The engine cannot be
// reused afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	e.stopLocked()
	for id, ch := range e.channels {
		ch.teardown()
		delete(e.channels, id)
	}
	metrics.SetInputsActive(0)
	e.master.unbind()
	e.monitor.unbind()

	if e.cancelWatch != nil {
		e.cancelWatch()
	}
	e.closed = true
	return nil
}

// startLocked brings the graph up in dependency order: Master bus, then
// Monitor (if bound), then every channel, so no channel ever produces a
// buffer with nowhere valid to land.
func (e *Engine) startLocked() error {
	if err := e.master.start(); err != nil {
		e.state = StateIdle
		return err
	}
	if e.monitor.isBound() {
		if err := e.monitor.start(); err != nil {
			// Monitor trouble must not take down the master feed.
			e.log.Error("monitor bus failed to start", "error", err)
		}
	}
	for id, ch := range e.channels {
		if err := ch.start(); err != nil {
			// One bad channel never affects the others or either bus.
			e.log.Error("input failed to start", "device", id, "error", err)
		}
	}
	e.running = true
	e.state = StateRunning
	return nil
}

// stopLocked reverses startLocked: channels first, then buses.
func (e *Engine) stopLocked() {
	for _, ch := range e.channels {
		ch.stop()
	}
	e.master.stop()
	e.monitor.stop()
	e.running = false
	e.state = StateIdle
}

// restoreStateLocked leaves Configuring for whatever the running flag says.
func (e *Engine) restoreStateLocked() {
	if e.running {
		e.state = StateRunning
	} else {
		e.state = StateIdle
	}
}

func (e *Engine) publishStateLocked() {
	e.restoreStateLocked()
	e.events.Publish(events.EngineStateChangedEvent{Running: e.running})
}
