package config

import (
	"io"
	"log/slog"
	"testing"

	"dualmix"
	"dualmix/devices"
)

type nopStream struct{}

func (nopStream) Start() error { return nil }
func (nopStream) Stop() error  { return nil }
func (nopStream) Close() error { return nil }

type nopBackend struct{}

func (nopBackend) OpenCapture(dev devices.Device, fn dualmix.CaptureFunc) (dualmix.Stream, error) {
	return nopStream{}, nil
}

func (nopBackend) OpenRender(dev devices.Device, fn dualmix.RenderFunc) (dualmix.Stream, error) {
	return nopStream{}, nil
}

type staticDirectory struct {
	capture, render []devices.Device
}

func (d staticDirectory) List(dir devices.Direction) ([]devices.Device, error) {
	if dir == devices.Capture {
		return d.capture, nil
	}
	return d.render, nil
}

func (d staticDirectory) OnChange(fn func()) func() { return func() {} }

func TestSnapshotRoundTripsEngineState(t *testing.T) {
	native := devices.DefaultNative
	mic := devices.Device{ID: "usb", Name: "USB Mic", Direction: devices.Capture, Native: native}
	spk := devices.Device{ID: "spk", Name: "Speakers", Direction: devices.Render, Native: native}

	e, err := dualmix.NewEngine(dualmix.Config{
		Backend:   nopBackend{},
		Directory: staticDirectory{capture: []devices.Device{mic}, render: []devices.Device{spk}},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if err := e.SetMasterDevice(spk); err != nil {
		t.Fatal(err)
	}
	if err := e.AddInput(mic); err != nil {
		t.Fatal(err)
	}
	if err := e.SetInputVolume("usb", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMasterMuted(true); err != nil {
		t.Fatal(err)
	}

	prev := Defaults()
	prev.LogPath = "/var/log/mix.log"
	prev.Inputs = []Input{
		{DeviceID: "usb", SampleRate: 44100, Channels: 1, Encoding: "s16"},
	}

	s := Snapshot(prev, e, []devices.Device{mic})
	if s.LogPath != prev.LogPath {
		t.Errorf("LogPath = %q, want carried over from prev", s.LogPath)
	}
	if s.MasterDeviceID != "spk" {
		t.Errorf("MasterDeviceID = %q, want spk", s.MasterDeviceID)
	}
	if s.MonitorDeviceID != "" {
		t.Errorf("MonitorDeviceID = %q, want empty", s.MonitorDeviceID)
	}
	if !s.MasterVolume.Muted {
		t.Error("MasterVolume.Muted not captured")
	}
	if len(s.Inputs) != 1 {
		t.Fatalf("Inputs = %d, want 1", len(s.Inputs))
	}
	in := s.Inputs[0]
	if in.DeviceID != "usb" || in.Name != "USB Mic" {
		t.Errorf("input = %+v, want usb / USB Mic", in)
	}
	if in.Volume.Level != 0.5 {
		t.Errorf("input level = %v, want 0.5", in.Volume.Level)
	}
	if in.SampleRate != 44100 || in.Channels != 1 || in.Encoding != "s16" {
		t.Errorf("declared format lost in snapshot: %+v", in)
	}

	// the snapshot must re-apply cleanly through the restore path
	st := RestoreState(s, []devices.Device{mic}, []devices.Device{spk})
	if st.Master == nil || st.Master.ID != "spk" {
		t.Errorf("restore master = %+v, want spk", st.Master)
	}
	if len(st.Inputs) != 1 || st.Inputs[0].Volume.Level != 0.5 {
		t.Errorf("restore inputs = %+v, want usb at 0.5", st.Inputs)
	}
}
