package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"dualmix"
)

func TestSinkWritesPlayableWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")

	s, err := NewSink(path)
	if err != nil {
		t.Fatal(err)
	}

	tap := s.Tap()
	quantum := make([]float32, 512*dualmix.MixChannels)
	for i := range quantum {
		quantum[i] = 0.5
	}
	for i := 0; i < 4; i++ {
		tap(quantum)
	}

	waitFrames(t, s, 4*512)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if got := s.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		t.Fatal("recording is not a valid WAV file")
	}
	if dec.SampleRate != dualmix.SampleRate {
		t.Errorf("sample rate = %d, want %d", dec.SampleRate, dualmix.SampleRate)
	}
	if dec.NumChans != dualmix.MixChannels {
		t.Errorf("channels = %d, want %d", dec.NumChans, dualmix.MixChannels)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if got := len(buf.Data); got != 4*512*dualmix.MixChannels {
		t.Fatalf("decoded %d samples, want %d", got, 4*512*dualmix.MixChannels)
	}
	// 0.5 scales to about half of int16 full scale
	halfScale := 0.5 * 32767
	want := int(halfScale)
	if s0 := buf.Data[0]; s0 < want-1 || s0 > want+1 {
		t.Errorf("sample = %d, want ~%d", s0, want)
	}
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	s, err := NewSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func waitFrames(t *testing.T, s *Sink, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Frames() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("writer stuck at %d frames, want %d", s.Frames(), want)
}
