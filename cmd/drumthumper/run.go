package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/drumthumper/internal/bluez"
	"github.com/srg/drumthumper/internal/config"
	"github.com/srg/drumthumper/internal/engine"
	"github.com/srg/drumthumper/internal/hotplug"
	"github.com/srg/drumthumper/internal/loop"
	"github.com/srg/drumthumper/internal/midi"
	"github.com/srg/drumthumper/internal/orchestrator"
	"github.com/srg/drumthumper/internal/registry"
	"github.com/srg/drumthumper/internal/scheduler"
	"github.com/srg/drumthumper/internal/transport"
	"github.com/srg/drumthumper/internal/watchdog"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the MIDI peripheral and play until interrupted",
	Long: fmt.Sprintf(`Connects to the BLE-MIDI peripheral, opens its MIDI output port and plays
drum samples for incoming notes. The audio stream is watched for output
device changes and restarted when it does not recover on its own.

Examples:
  # Use the built-in peripheral address
  drumthumper run

  # Another peripheral, with a status endpoint
  drumthumper run --address %s --status-addr :9100`, config.DefaultAddress),
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("address", "", "Peripheral address (overrides config)")
	runCmd.Flags().Int("port", 0, "MIDI output port to read (overrides config)")
	runCmd.Flags().Int("mtu", 0, "MTU to request (overrides config)")
	runCmd.Flags().String("status-addr", "", "Serve /status and /metrics on this address")
	runCmd.Flags().Bool("no-hotplug", false, "Disable audio hot-plug monitoring")
}

// applyRunFlags overlays explicitly set flags on cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Address, _ = flags.GetString("address")
	}
	if flags.Changed("port") {
		cfg.MIDIPort, _ = flags.GetInt("port")
	}
	if flags.Changed("mtu") {
		cfg.RequestMTU, _ = flags.GetInt("mtu")
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr, _ = flags.GetString("status-addr")
	}
	if noHotplug, _ := flags.GetBool("no-hotplug"); noHotplug {
		cfg.Hotplug = false
	}
	return cfg.Validate()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()

	player := engine.NewPlayer(logger)
	if err := player.Setup(); err != nil {
		return fmt.Errorf("failed to set up audio stream: %w", err)
	}
	defer func() { _ = player.Teardown() }()

	// the owner loop outlives ctx so teardown can still run on it
	owner := loop.New("drumthumper-owner", 0, logger)
	owner.Start(context.Background())
	defer owner.Stop()

	sched := scheduler.New(clockwork.NewRealClock(), logger)
	defer sched.Stop()

	wd := watchdog.New(player, sched, owner, cfg.RestartDelay, logger)
	defer wd.Stop()
	if cfg.Hotplug {
		startHotplug(ctx, hotplug.NewMonitor(logger), out, wd, logger)
	} else {
		logger.Info("Audio hot-plug monitoring disabled")
	}

	checker, closeChecker := newAdapterChecker(cfg, logger)
	defer closeChecker()

	progress := NewProgressPrinter(out, fmt.Sprintf("Connecting to %s", cfg.Address), "starting")
	defer progress.Stop()

	nav := newConsoleNavigator(out, cfg.MIDIPort, player, progress, logger)
	player.SetPadListener(nav.onPad)

	orch := orchestrator.New(cfg.Address, midi.DefaultSelector(), orchestrator.Deps{
		Connector: transport.NewConnector(nil, transport.Options{
			RequestMTU:     cfg.RequestMTU,
			ConnectTimeout: cfg.ConnectTimeout,
		}, logger),
		Opener:    midi.NewSession(cfg.MessageBuffer, logger),
		Navigator: nav,
		Loop:      owner,
		Registry:  registry.New(logger),
		Checker:   checker,
		Progress:  func(p orchestrator.Phase) { progress.SetPhase(string(p)) },
	}, logger)
	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()

	if cfg.StatusAddr != "" {
		srv := newStatusServer(cfg.StatusAddr, cfg.Address, orch, player, logger)
		loop.Go(ctx, "status-server", func(ctx context.Context) {
			if err := srv.Run(ctx); err != nil {
				logger.WithField("error", err).Error("Status server failed")
			}
		})
	}

	progress.Start()
	orch.Connect()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Shutting down...")
			return nil
		case <-hup:
			fmt.Fprintln(out, "Reconnecting...")
			orch.Connect()
		}
	}
}

// startHotplug feeds audio device-set changes from src to the watchdog.
func startHotplug(ctx context.Context, src hotplug.Source, out io.Writer, wd *watchdog.Watchdog, logger *logrus.Logger) {
	var registered atomic.Bool
	handler := func(added bool) {
		// the first call is the registration callback, not a real change
		if registered.Swap(true) {
			printDeviceSetChange(out, added)
		}
		wd.OnDeviceSetChanged(added)
	}

	loop.Go(ctx, "audio-hotplug", func(ctx context.Context) {
		if err := src.Start(ctx, handler); err != nil {
			logger.WithField("error", err).Warn("Audio hot-plug monitoring unavailable: " + FormatUserError(err))
		}
	})
}

// newAdapterChecker connects to BlueZ when the adapter check is enabled.
// Without a system bus the check is skipped rather than failing the run.
func newAdapterChecker(cfg *config.Config, logger *logrus.Logger) (orchestrator.AdapterChecker, func()) {
	if !cfg.CheckAdapter {
		return nil, func() {}
	}
	bus, err := bluez.NewSystemBus()
	if err != nil {
		logger.WithField("error", err).Warn("Bluetooth adapter check disabled")
		return nil, func() {}
	}
	return bluez.NewChecker(bus, cfg.Adapter, logger), func() { _ = bus.Close() }
}
