package dualmix

import "errors"

var (
	// ErrDeviceBindingFailed means the platform refused the device handle:
	// device removed, held exclusively, or permission denied.
	ErrDeviceBindingFailed = errors.New("device binding failed")

	// ErrFormatNegotiationFailed means there is no viable conversion path
	// between a device's native format and the canonical mix format.
	ErrFormatNegotiationFailed = errors.New("format negotiation failed")

	// ErrNotBound is returned by Start on a bus with no bound device.
	ErrNotBound = errors.New("bus is not bound to a device")

	// ErrEngineClosed is returned by every control call after Close.
	ErrEngineClosed = errors.New("engine is closed")
)
