// Package devices enumerates audio endpoints and reports hot-plug changes.
// The mixing engine only ever consumes the Directory interface; the malgo
// implementation here is the production directory.
package devices

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"

	"dualmix/convert"
)

// Direction says which way audio flows through a device.
type Direction int

const (
	Capture Direction = iota
	Render
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "render"
}

// Device is an opaque reference to one audio endpoint. The engine holds it
// by value and never mutates it.
type Device struct {
	ID        string
	Name      string
	Direction Direction
	Native    convert.Format
}

// Directory enumerates devices and notifies on hot-plug. Implementations
// may invoke the change callback from any thread; consumers must hand the
// event off to their own control goroutine.
type Directory interface {
	List(dir Direction) ([]Device, error)
	OnChange(fn func()) (cancel func())
}

// ParseID decodes the hex device ID back into a malgo device ID.
func ParseID(idHex string) (malgo.DeviceID, error) {
	raw, err := hex.DecodeString(idHex)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("bad device id %q: %w", idHex, err)
	}
	var id malgo.DeviceID
	copy(id[:], raw)
	return id, nil
}

// DefaultNative is the format a device is assumed to produce or consume
// when the platform does not expose a more specific one. Settings may
// declare the true native format per device; the engine converts from
// whatever the directory reports.
var DefaultNative = convert.Format{SampleRate: 48000, Channels: 2, Encoding: convert.EncodingF32}

func fromInfo(info malgo.DeviceInfo, dir Direction) Device {
	d := Device{
		ID:        hex.EncodeToString(info.ID[:]),
		Name:      info.Name(),
		Direction: dir,
		Native:    DefaultNative,
	}
	if f, ok := nativeFromInfo(info); ok {
		d.Native = f
	}
	return d
}

// nativeFromInfo picks the first declared data format the conversion path
// can consume. Enumeration-only infos carry no formats; those fall back to
// DefaultNative.
func nativeFromInfo(info malgo.DeviceInfo) (convert.Format, bool) {
	n := int(info.FormatCount)
	if n > len(info.Formats) {
		n = len(info.Formats)
	}
	for _, df := range info.Formats[:n] {
		enc, ok := encodingFor(malgo.FormatType(df.Format))
		if !ok || df.Channels == 0 || df.SampleRate == 0 {
			continue
		}
		return convert.Format{
			SampleRate: int(df.SampleRate),
			Channels:   int(df.Channels),
			Encoding:   enc,
		}, true
	}
	return convert.Format{}, false
}

func encodingFor(f malgo.FormatType) (convert.Encoding, bool) {
	switch f {
	case malgo.FormatF32:
		return convert.EncodingF32, true
	case malgo.FormatS16:
		return convert.EncodingS16, true
	case malgo.FormatS32:
		return convert.EncodingS32, true
	}
	return convert.EncodingF32, false
}

func listWithContext(ctx malgo.Context, dir Direction) ([]Device, error) {
	kind := malgo.Capture
	if dir == Render {
		kind = malgo.Playback
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s devices: %w", dir, err)
	}
	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		// Devices() returns summary infos; ask for the full record to get
		// the declared data formats.
		if full, err := ctx.DeviceInfo(kind, info.ID, malgo.Shared); err == nil {
			info = full
		}
		d := fromInfo(info, dir)
		slog.Debug("found device", "direction", dir.String(), "name", d.Name, "native", d.Native)
		out = append(out, d)
	}
	return out, nil
}

// Contains reports whether the list has a device with the given id.
func Contains(list []Device, id string) bool {
	for _, d := range list {
		if d.ID == id {
			return true
		}
	}
	return false
}

// FindByID returns the device with the given id, if present.
func FindByID(list []Device, id string) (Device, bool) {
	for _, d := range list {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// FindByName returns the first device whose name matches exactly.
func FindByName(list []Device, name string) (Device, bool) {
	for _, d := range list {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}
