package dualmix

import (
	"dualmix/devices"
	"dualmix/events"
)

// onDeviceListChanged runs on the directory's watch goroutine. It must not
// touch engine state directly; it coalesces into a signal channel the
// owner drains at its leisure.
func (e *Engine) onDeviceListChanged() {
	select {
	case e.deviceEvents <- struct{}{}:
	default:
	}
	e.events.Publish(events.DeviceListChangedEvent{})
}

// DeviceEvents signals when the system device list changed. Notifications
// coalesce; a single receive may cover several changes, so receivers
// should re-list rather than diff.
func (e *Engine) DeviceEvents() <-chan struct{} {
	return e.deviceEvents
}

// IsDeviceGone reports whether a capture device id no longer appears in
// the system device list.
func (e *Engine) IsDeviceGone(deviceID string) (bool, error) {
	list, err := e.directory.List(devices.Capture)
	if err != nil {
		return false, err
	}
	return !devices.Contains(list, deviceID), nil
}

// PruneGoneInputs removes every input whose device has disappeared from
// the system. It returns the ids it removed. The mix keeps flowing for the
// survivors throughout.
func (e *Engine) PruneGoneInputs() ([]string, error) {
	list, err := e.directory.List(devices.Capture)
	if err != nil {
		return nil, err
	}

	var pruned []string
	for _, id := range e.InputIDs() {
		if devices.Contains(list, id) {
			continue
		}
		if err := e.RemoveInput(id); err != nil {
			return pruned, err
		}
		pruned = append(pruned, id)
	}
	return pruned, nil
}
