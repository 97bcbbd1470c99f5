// Package events carries the engine's change notifications. The engine
// publishes here; the UI layer and the settings persistence collaborator
// subscribe. Handlers run on dispatcher goroutines, never on audio threads.
package events

// Event type constants for kelindar/event.
const (
	TypeEngineStateChanged uint32 = iota + 1
	TypeMonitorUnbound
	TypeInputAdded
	TypeInputRemoved
	TypeDeviceListChanged
	TypeConversionFaults
	TypeMasterUnbound
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// EngineStateChangedEvent fires after any control-plane mutation that a
// persistence collaborator would want to write back: bindings, input set,
// gain state, running state.
type EngineStateChangedEvent struct {
	Running bool
}

func (e EngineStateChangedEvent) Type() uint32 { return TypeEngineStateChanged }

// MonitorUnboundEvent fires when binding the Master bus steals the device
// the Monitor bus was bound to. This is the observable side effect of the
// never-two-buses-on-one-device rule.
type MonitorUnboundEvent struct {
	DeviceID string
}

func (e MonitorUnboundEvent) Type() uint32 { return TypeMonitorUnbound }

// MasterUnboundEvent is the mirror image: binding the Monitor bus took the
// device Master was bound to, leaving the engine without a master feed
// until it is rebound.
type MasterUnboundEvent struct {
	DeviceID string
}

func (e MasterUnboundEvent) Type() uint32 { return TypeMasterUnbound }

// InputAddedEvent fires after a capture device joins the mix.
type InputAddedEvent struct {
	DeviceID string
	Name     string
}

func (e InputAddedEvent) Type() uint32 { return TypeInputAdded }

// InputRemovedEvent fires after a capture device leaves the mix.
type InputRemovedEvent struct {
	DeviceID string
}

func (e InputRemovedEvent) Type() uint32 { return TypeInputRemoved }

// DeviceListChangedEvent fires when the device directory reports hot-plug.
// The engine does not react on its own; the owning controller decides
// whether to remove inputs whose device disappeared.
type DeviceListChangedEvent struct{}

func (e DeviceListChangedEvent) Type() uint32 { return TypeDeviceListChanged }

// ConversionFaultsEvent reports how many capture buffers an input dropped
// to conversion failures over its lifetime, published when the input
// leaves the mix.
type ConversionFaultsEvent struct {
	DeviceID string
	Faults   uint64
}

func (e ConversionFaultsEvent) Type() uint32 { return TypeConversionFaults }
