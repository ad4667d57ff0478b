package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/drumthumper/internal/bluez"
	"github.com/srg/drumthumper/internal/orchestrator"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the Bluetooth adapter is ready",
	Long: `Reads the adapter power state from BlueZ over the system D-Bus and prints
the effective configuration. Exits non-zero when the adapter is off or missing.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Duration("timeout", 5*time.Second, "D-Bus call timeout")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Peripheral:   %s (MIDI port %d, MTU %d)\n", cfg.Address, cfg.MIDIPort, cfg.RequestMTU)
	fmt.Fprintf(out, "Adapter:      %s\n", cfg.Adapter)

	bus, err := bluez.NewSystemBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	return checkAdapter(ctx, cmd, bluez.NewChecker(bus, cfg.Adapter, logger))
}

func checkAdapter(ctx context.Context, cmd *cobra.Command, checker orchestrator.AdapterChecker) error {
	enabled, err := checker.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		warnColor.Fprintln(cmd.OutOrStdout(), "Bluetooth:    powered off")
		return orchestrator.ErrAdapterDisabled
	}
	okColor.Fprintln(cmd.OutOrStdout(), "Bluetooth:    powered on")
	return nil
}
