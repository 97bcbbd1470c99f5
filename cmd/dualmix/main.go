// Command dualmix runs the dual-feed mixer: a set of capture devices mixed
// into a Master output and an independent Monitor output, driven by a
// settings file and controllable at runtime through that file.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"dualmix"
	"dualmix/config"
	"dualmix/devices"
	"dualmix/events"
	"dualmix/logging"
	"dualmix/record"
)

var (
	settingsPath string
	logPath      string
	debug        bool
)

func main() {
	root := &cobra.Command{
		Use:           "dualmix",
		Short:         "Dual-feed audio mixer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&settingsPath, "settings", "s", defaultSettingsPath(), "settings file")
	root.PersistentFlags().StringVar(&logPath, "log", "", "log file (rotated); empty logs to stdout only")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(devicesCmd(), runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "dualmix.toml"
	}
	return dir + "/dualmix/settings.toml"
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture and render devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := devices.NewMalgoDirectory()
			if err != nil {
				return err
			}
			defer dir.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "DIRECTION\tID\tNAME\tNATIVE")
			for _, d := range []devices.Direction{devices.Capture, devices.Render} {
				list, err := dir.List(d)
				if err != nil {
					return err
				}
				for _, dev := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", dev.Direction, dev.ID, dev.Name, dev.Native)
				}
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var recordPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the mixer and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			if logPath != "" {
				settings.LogPath = logPath
			}
			if debug {
				settings.Debug = true
			}
			if recordPath != "" {
				settings.RecordPath = recordPath
			}
			if err := logging.Setup(settings.LogPath, settings.Debug); err != nil {
				return err
			}
			defer logging.Close()

			return run(settings)
		},
	}
	cmd.Flags().StringVar(&recordPath, "record", "", "record the master feed to this WAV file")
	return cmd
}

func run(settings config.Settings) error {
	log := slog.Default()

	dir, err := devices.NewMalgoDirectory()
	if err != nil {
		return fmt.Errorf("audio context: %w", err)
	}
	defer dir.Close()

	engine, err := dualmix.NewEngine(dualmix.Config{
		Backend:            dualmix.NewMalgoBackend(dir),
		Directory:          dir,
		Logger:             log,
		DefaultInputVolume: settings.DefaultInputVolume,
		MasterBoost:        settings.MasterVolume.Boost,
		MonitorBoost:       settings.MonitorVolume.Boost,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	capture, err := dir.List(devices.Capture)
	if err != nil {
		return err
	}
	render, err := dir.List(devices.Render)
	if err != nil {
		return err
	}
	if err := engine.Restore(config.RestoreState(settings, capture, render)); err != nil {
		return err
	}
	if engine.MasterDeviceID() == "" {
		log.Warn("no master device bound; use the settings file to pick one",
			"settings", settingsPath)
	}

	var sink *record.Sink
	if settings.RecordPath != "" {
		sink, err = record.NewSink(settings.RecordPath)
		if err != nil {
			return err
		}
		engine.Master().SetTap(sink.Tap())
		log.Info("recording master feed", "path", settings.RecordPath)
	}

	if settings.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: settings.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		log.Info("metrics listening", "addr", settings.MetricsAddr)
	}

	reload := make(chan config.Settings, 1)
	watcher, err := config.Watch(settingsPath, log, func(s config.Settings) {
		select {
		case reload <- s:
		default:
		}
	})
	if err != nil {
		log.Warn("settings watching disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	// persistence collaborator: every engine state change gets written back
	// to the settings file, coalesced and skipped when nothing moved
	persist := make(chan struct{}, 1)
	unsub := engine.Events().Subscribe(func(events.EngineStateChangedEvent) {
		select {
		case persist <- struct{}{}:
		default:
		}
	})
	defer unsub()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case s := <-reload:
			applySettings(engine, dir, s, log)
			settings = s

		case <-persist:
			capture, err := dir.List(devices.Capture)
			if err != nil {
				log.Warn("persist: device list failed", "error", err)
				continue
			}
			snap := config.Snapshot(settings, engine, capture)
			if reflect.DeepEqual(snap, settings) {
				continue
			}
			if err := config.Save(settingsPath, snap); err != nil {
				log.Warn("persist: settings save failed", "error", err)
				continue
			}
			settings = snap

		case <-engine.DeviceEvents():
			pruned, err := engine.PruneGoneInputs()
			if err != nil {
				log.Warn("device list refresh failed", "error", err)
				continue
			}
			for _, id := range pruned {
				log.Info("input device unplugged", "device", id)
			}

		case sig := <-stop:
			log.Info("shutting down", "signal", sig.String())
			if sink != nil {
				engine.Master().SetTap(nil)
				engine.Stop()
				if err := sink.Close(); err != nil {
					log.Error("finalizing recording failed", "error", err)
				} else {
					log.Info("recording finalized", "frames", sink.Frames(), "dropped", sink.Dropped())
				}
			}
			return nil
		}
	}
}

// applySettings pushes a reloaded settings file into the running engine.
// Volume changes apply live; device rebinds go through the engine's full
// reconfiguration path.
func applySettings(e *dualmix.Engine, dir *devices.MalgoDirectory, s config.Settings, log *slog.Logger) {
	capture, err := dir.List(devices.Capture)
	if err != nil {
		log.Warn("settings apply: device list failed", "error", err)
		return
	}
	render, err := dir.List(devices.Render)
	if err != nil {
		log.Warn("settings apply: device list failed", "error", err)
		return
	}

	st := config.RestoreState(s, capture, render)

	if st.Master != nil && st.Master.ID != e.MasterDeviceID() {
		if err := e.SetMasterDevice(*st.Master); err != nil {
			log.Warn("settings apply: master rebind failed", "error", err)
		}
	}
	monitorID := ""
	if st.Monitor != nil {
		monitorID = st.Monitor.ID
	}
	if monitorID != e.MonitorDeviceID() {
		if err := e.SetMonitorDevice(st.Monitor); err != nil {
			log.Warn("settings apply: monitor rebind failed", "error", err)
		}
	}

	e.SetMasterVolume(st.MasterVolume.Level)
	e.SetMasterBoost(st.MasterVolume.Boost)
	e.SetMasterMuted(st.MasterVolume.Muted)
	e.SetMonitorVolume(st.MonitorVolume.Level)
	e.SetMonitorBoost(st.MonitorVolume.Boost)
	e.SetMonitorMuted(st.MonitorVolume.Muted)

	wanted := make(map[string]bool, len(st.Inputs))
	for _, in := range st.Inputs {
		wanted[in.Device.ID] = true
		if err := e.AddInput(in.Device); err != nil {
			log.Warn("settings apply: input add failed", "device", in.Device.Name, "error", err)
			continue
		}
		e.SetInputVolume(in.Device.ID, in.Volume.Level)
		e.SetInputBoost(in.Device.ID, in.Volume.Boost)
		e.SetInputMuted(in.Device.ID, in.Volume.Muted)
	}
	for _, id := range e.InputIDs() {
		if !wanted[id] {
			if err := e.RemoveInput(id); err != nil {
				log.Warn("settings apply: input remove failed", "device", id, "error", err)
			}
		}
	}
}
