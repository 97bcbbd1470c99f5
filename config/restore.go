package config

import (
	"sort"

	"dualmix"
	"dualmix/convert"
	"dualmix/devices"
)

// ParseEncoding maps a settings-file encoding name to the wire encoding.
func ParseEncoding(name string) (convert.Encoding, bool) {
	switch name {
	case "", "f32":
		return convert.EncodingF32, true
	case "s16":
		return convert.EncodingS16, true
	case "s32":
		return convert.EncodingS32, true
	}
	return convert.EncodingF32, false
}

func (v Volume) state() dualmix.VolumeState {
	return dualmix.VolumeState{Level: v.Level, Boost: v.Boost, Muted: v.Muted}
}

// nativeFor merges a declared format override onto the directory's view of
// the device. Fields left at zero keep the directory's values.
func (in Input) nativeFor(dev devices.Device) convert.Format {
	f := dev.Native
	if in.SampleRate > 0 {
		f.SampleRate = in.SampleRate
	}
	if in.Channels > 0 {
		f.Channels = in.Channels
	}
	if enc, ok := ParseEncoding(in.Encoding); ok && in.Encoding != "" {
		f.Encoding = enc
	}
	return f
}

// RestoreState resolves settings against the current device lists into an
// engine restore plan. Inputs and outputs that are not present right now
// are simply not part of the plan; the engine comes up with what exists.
func RestoreState(s Settings, capture, render []devices.Device) dualmix.RestoreState {
	st := dualmix.RestoreState{
		MasterVolume:  s.MasterVolume.state(),
		MonitorVolume: s.MonitorVolume.state(),
	}

	if dev, ok := devices.FindByID(render, s.MasterDeviceID); ok {
		st.Master = &dev
	}
	if dev, ok := devices.FindByID(render, s.MonitorDeviceID); ok {
		st.Monitor = &dev
	}

	for _, in := range s.Inputs {
		dev, ok := devices.FindByID(capture, in.DeviceID)
		if !ok {
			continue
		}
		dev.Native = in.nativeFor(dev)
		st.Inputs = append(st.Inputs, dualmix.RestoreInput{
			Device: dev,
			Volume: in.Volume.state(),
		})
	}
	return st
}

// Snapshot captures an engine's current wiring back into settings form so
// it can be persisted. File-level fields (log path, metrics address) are
// taken from prev.
func Snapshot(prev Settings, e *dualmix.Engine, capture []devices.Device) Settings {
	s := prev
	s.MasterDeviceID = e.MasterDeviceID()
	s.MonitorDeviceID = e.MonitorDeviceID()
	s.MasterVolume = volumeOf(e.MasterVolume())
	s.MonitorVolume = volumeOf(e.MonitorVolume())

	declared := make(map[string]Input, len(prev.Inputs))
	for _, in := range prev.Inputs {
		declared[in.DeviceID] = in
	}

	ids := e.InputIDs()
	sort.Strings(ids) // stable file output across snapshots
	s.Inputs = make([]Input, 0, len(ids))
	for _, id := range ids {
		vs, err := e.InputVolume(id)
		if err != nil {
			continue
		}
		in := Input{DeviceID: id, Volume: volumeOf(vs)}
		if dev, ok := devices.FindByID(capture, id); ok {
			in.Name = dev.Name
		}
		// a hand-declared native format survives the write-back
		if old, ok := declared[id]; ok {
			in.SampleRate = old.SampleRate
			in.Channels = old.Channels
			in.Encoding = old.Encoding
		}
		s.Inputs = append(s.Inputs, in)
	}
	return s
}

func volumeOf(v dualmix.VolumeState) Volume {
	return Volume{Level: v.Level, Boost: v.Boost, Muted: v.Muted}
}
