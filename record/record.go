// Package record writes a bus feed to a WAV file. The tap side is
// realtime-safe: buffers are handed to a writer goroutine over a bounded
// channel and dropped, counted, when the writer falls behind.
package record

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"dualmix"
	"dualmix/convert"
)

const (
	bitDepth  = 16
	queueSize = 256
)

// Sink records canonical-format audio to a 16-bit PCM WAV file.
type Sink struct {
	file *os.File
	enc  *wav.Encoder

	samples chan []float32
	pool    sync.Pool

	dropped atomic.Uint64
	written atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewSink creates the file and starts the writer goroutine.
func NewSink(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating recording %s: %w", path, err)
	}

	s := &Sink{
		file:    f,
		enc:     wav.NewEncoder(f, dualmix.SampleRate, bitDepth, dualmix.MixChannels, 1),
		samples: make(chan []float32, queueSize),
	}
	s.pool.New = func() any { return make([]float32, 0, 4096) }

	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Tap returns the callback to install on a bus. It copies the buffer
// (render scratch is reused by the caller) and never blocks; a full
// writer queue costs a dropped buffer, not a glitch.
func (s *Sink) Tap() dualmix.Tap {
	return func(samples []float32) {
		buf := s.pool.Get().([]float32)[:0]
		buf = append(buf, samples...)
		select {
		case s.samples <- buf:
		default:
			s.pool.Put(buf)
			s.dropped.Add(1)
		}
	}
}

// Dropped returns the number of buffers lost to writer backpressure.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Frames returns the number of frames written so far.
func (s *Sink) Frames() uint64 { return s.written.Load() }

// Close drains pending buffers, finalizes the WAV header, and closes the
// file. The tap must be uninstalled from the bus before Close.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.samples)
		s.wg.Wait()

		if err := s.enc.Close(); err != nil {
			s.closeErr = fmt.Errorf("finalizing recording: %w", err)
		}
		if err := s.file.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("closing recording: %w", err)
		}
	})
	return s.closeErr
}

func (s *Sink) writeLoop() {
	defer s.wg.Done()

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: dualmix.MixChannels,
			SampleRate:  dualmix.SampleRate,
		},
		SourceBitDepth: bitDepth,
	}

	for samples := range s.samples {
		if cap(buf.Data) < len(samples) {
			buf.Data = make([]int, len(samples))
		}
		buf.Data = buf.Data[:len(samples)]
		for i, f := range samples {
			buf.Data[i] = int(convert.Float32ToInt16(f))
		}
		if err := s.enc.Write(buf); err == nil {
			s.written.Add(uint64(len(samples) / dualmix.MixChannels))
		}
		s.pool.Put(samples)
	}
}
