package dualmix

import "dualmix/devices"

// RestoreInput pairs a capture device with the volume it should come back
// with.
type RestoreInput struct {
	Device devices.Device
	Volume VolumeState
}

// RestoreState captures everything needed to rebuild a mix after a
// restart: output bindings, output volumes, and the input roster.
type RestoreState struct {
	Master  *devices.Device
	Monitor *devices.Device

	MasterVolume  VolumeState
	MonitorVolume VolumeState

	Inputs []RestoreInput
}

// Restore rebuilds the engine from a saved state. Devices that are no
// longer present are skipped with a log line rather than failing the
// whole restore; the engine comes up with whatever subset still exists.
func (e *Engine) Restore(st RestoreState) error {
	if st.Master != nil {
		if err := e.SetMasterDevice(*st.Master); err != nil {
			e.log.Warn("restore: master device unavailable",
				"device", st.Master.Name, "error", err)
		} else {
			e.withBus(e.master, func(g *gainControl) { g.apply(st.MasterVolume) })
		}
	}

	if st.Monitor != nil {
		if err := e.SetMonitorDevice(st.Monitor); err != nil {
			e.log.Warn("restore: monitor device unavailable",
				"device", st.Monitor.Name, "error", err)
		} else {
			e.withBus(e.monitor, func(g *gainControl) { g.apply(st.MonitorVolume) })
		}
	}

	for _, in := range st.Inputs {
		if err := e.AddInput(in.Device); err != nil {
			e.log.Warn("restore: input unavailable",
				"device", in.Device.Name, "error", err)
			continue
		}
		e.withInput(in.Device.ID, func(ch *InputChannel) { ch.gain.apply(in.Volume) })
	}
	return nil
}
