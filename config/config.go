// Package config loads, persists, and watches the mixer's settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Volume mirrors one gain stage in the settings file.
type Volume struct {
	Level float64 `toml:"level"`
	Boost float64 `toml:"boost"`
	Muted bool    `toml:"muted"`
}

// Input describes one capture device to bring into the mix at startup.
// SampleRate, Channels, and Encoding may declare the device's true native
// format when the platform default is wrong; zero values mean "use the
// directory's default".
type Input struct {
	DeviceID string `toml:"device_id"`
	Name     string `toml:"name,omitempty"`
	Volume   Volume `toml:"volume"`

	SampleRate int    `toml:"sample_rate,omitempty"`
	Channels   int    `toml:"channels,omitempty"`
	Encoding   string `toml:"encoding,omitempty"` // "f32", "s16", "s32"
}

// Settings is the full persisted state of the mixer.
type Settings struct {
	LogPath     string `toml:"log_path,omitempty"`
	Debug       bool   `toml:"debug,omitempty"`
	MetricsAddr string `toml:"metrics_addr,omitempty"`

	MasterDeviceID  string `toml:"master_device_id,omitempty"`
	MonitorDeviceID string `toml:"monitor_device_id,omitempty"`
	MasterVolume    Volume `toml:"master_volume"`
	MonitorVolume   Volume `toml:"monitor_volume"`

	DefaultInputVolume float64 `toml:"default_input_volume"`

	Inputs []Input `toml:"inputs,omitempty"`

	RecordPath string `toml:"record_path,omitempty"`
}

// Defaults returns the settings used when no file exists yet.
func Defaults() Settings {
	return Settings{
		MetricsAddr:        ":9090",
		MasterVolume:       Volume{Level: 1, Boost: 1},
		MonitorVolume:      Volume{Level: 1, Boost: 1},
		DefaultInputVolume: 1,
	}
}

// Load reads settings from path, falling back to defaults when the file
// does not exist. Environment variables override file values afterwards.
func Load(path string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// first run
	case err != nil:
		return s, fmt.Errorf("reading settings %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	}

	applyEnv(&s)
	return s, nil
}

// Save writes settings atomically: temp file in the same directory, then
// rename over the target.
func Save(path string, s Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("installing settings: %w", err)
	}
	return nil
}

func applyEnv(s *Settings) {
	if v := os.Getenv("DUALMIX_LOG_PATH"); v != "" {
		s.LogPath = v
	}
	if v := os.Getenv("DUALMIX_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Debug = b
		}
	}
	if v := os.Getenv("DUALMIX_METRICS_ADDR"); v != "" {
		s.MetricsAddr = v
	}
	if v := os.Getenv("DUALMIX_MASTER_DEVICE"); v != "" {
		s.MasterDeviceID = v
	}
	if v := os.Getenv("DUALMIX_MONITOR_DEVICE"); v != "" {
		s.MonitorDeviceID = v
	}
	if v := os.Getenv("DUALMIX_RECORD_PATH"); v != "" {
		s.RecordPath = v
	}
}
