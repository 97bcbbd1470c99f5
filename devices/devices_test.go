package devices

import (
	"encoding/hex"
	"testing"

	"github.com/gen2brain/malgo"

	"dualmix/convert"
)

func TestParseID_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 8)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	idHex := hex.EncodeToString(raw)

	id, err := ParseID(idHex)
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	for i := range raw {
		if id[i] != raw[i] {
			t.Fatalf("ParseID() byte %d = %#x, want %#x", i, id[i], raw[i])
		}
	}
}

func TestParseID_RejectsBadHex(t *testing.T) {
	t.Parallel()

	if _, err := ParseID("not-hex"); err == nil {
		t.Fatal("ParseID() accepted malformed input")
	}
}

func TestContains(t *testing.T) {
	t.Parallel()

	list := []Device{
		{ID: "aa", Name: "Mic", Direction: Capture},
		{ID: "bb", Name: "Speakers", Direction: Render},
	}

	if !Contains(list, "aa") {
		t.Error("Contains() = false for present device")
	}
	if Contains(list, "cc") {
		t.Error("Contains() = true for absent device")
	}
}

func TestFindByName(t *testing.T) {
	t.Parallel()

	list := []Device{
		{ID: "aa", Name: "Mic"},
		{ID: "bb", Name: "Speakers"},
	}

	d, ok := FindByName(list, "Speakers")
	if !ok || d.ID != "bb" {
		t.Fatalf("FindByName() = %+v, %v; want device bb", d, ok)
	}
	if _, ok := FindByName(list, "Missing"); ok {
		t.Error("FindByName() found a device that does not exist")
	}
}

func TestNativeFromInfoPicksDeclaredFormat(t *testing.T) {
	t.Parallel()

	var info malgo.DeviceInfo
	info.FormatCount = 2
	info.Formats = []malgo.DataFormat{
		{
			Format:     malgo.FormatS16,
			Channels:   1,
			SampleRate: 44100,
		},
		{
			Format:     malgo.FormatF32,
			Channels:   2,
			SampleRate: 48000,
		},
	}

	f, ok := nativeFromInfo(info)
	if !ok {
		t.Fatal("nativeFromInfo() found no usable format")
	}
	want := convert.Format{SampleRate: 44100, Channels: 1, Encoding: convert.EncodingS16}
	if f != want {
		t.Errorf("nativeFromInfo() = %v, want %v", f, want)
	}
}

func TestNativeFromInfoSkipsUnusableFormats(t *testing.T) {
	t.Parallel()

	var info malgo.DeviceInfo
	info.FormatCount = 2
	info.Formats = []malgo.DataFormat{
		{
			Format:     malgo.FormatU8, // no decode path
			Channels:   2,
			SampleRate: 48000,
		},
		{
			Format:     malgo.FormatS32,
			Channels:   2,
			SampleRate: 96000,
		},
	}

	f, ok := nativeFromInfo(info)
	if !ok {
		t.Fatal("nativeFromInfo() found no usable format")
	}
	want := convert.Format{SampleRate: 96000, Channels: 2, Encoding: convert.EncodingS32}
	if f != want {
		t.Errorf("nativeFromInfo() = %v, want %v", f, want)
	}
}

func TestNativeFromInfoEmptyFallsBack(t *testing.T) {
	t.Parallel()

	// enumeration-only info: no formats declared
	var info malgo.DeviceInfo
	if _, ok := nativeFromInfo(info); ok {
		t.Error("nativeFromInfo() invented a format from an empty info")
	}
}

func TestDefaultNativeIsCanonicalShaped(t *testing.T) {
	t.Parallel()

	if DefaultNative.Encoding != convert.EncodingF32 {
		t.Errorf("DefaultNative.Encoding = %v, want f32", DefaultNative.Encoding)
	}
	if !DefaultNative.Valid() {
		t.Error("DefaultNative is not a valid format")
	}
}
