package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/srg/drumthumper/internal/config"
	"github.com/srg/drumthumper/internal/engine"
	"github.com/srg/drumthumper/internal/hotplug"
	"github.com/srg/drumthumper/internal/loop"
	"github.com/srg/drumthumper/internal/orchestrator"
	"github.com/srg/drumthumper/internal/scheduler"
	"github.com/srg/drumthumper/internal/testutils"
	"github.com/srg/drumthumper/internal/watchdog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunFlagsCmd(args ...string) (*cobra.Command, error) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().String("address", "", "")
	cmd.Flags().Int("port", 0, "")
	cmd.Flags().Int("mtu", 0, "")
	cmd.Flags().String("status-addr", "", "")
	cmd.Flags().Bool("no-hotplug", false, "")
	return cmd, cmd.Flags().Parse(args)
}

func TestApplyRunFlags(t *testing.T) {
	t.Run("unset flags keep config", func(t *testing.T) {
		cmd, err := newRunFlagsCmd()
		require.NoError(t, err)

		cfg := config.DefaultConfig()
		require.NoError(t, applyRunFlags(cmd, cfg))
		assert.Equal(t, config.DefaultAddress, cfg.Address)
		assert.Equal(t, config.DefaultRequestMTU, cfg.RequestMTU)
		assert.True(t, cfg.Hotplug)
	})

	t.Run("set flags override", func(t *testing.T) {
		cmd, err := newRunFlagsCmd(
			"--address", "AA:BB:CC:DD:EE:FF", "--port", "1", "--mtu", "185",
			"--status-addr", ":9100", "--no-hotplug",
		)
		require.NoError(t, err)

		cfg := config.DefaultConfig()
		require.NoError(t, applyRunFlags(cmd, cfg))
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Address)
		assert.Equal(t, 1, cfg.MIDIPort)
		assert.Equal(t, 185, cfg.RequestMTU)
		assert.Equal(t, ":9100", cfg.StatusAddr)
		assert.False(t, cfg.Hotplug)
	})

	t.Run("invalid override rejected", func(t *testing.T) {
		cmd, err := newRunFlagsCmd("--mtu", "10")
		require.NoError(t, err)

		assert.Error(t, applyRunFlags(cmd, config.DefaultConfig()))
	})
}

func TestStartHotplug_FeedsWatchdog(t *testing.T) {
	logger := testutils.NewLogger()
	clock := clockwork.NewFakeClock()

	owner := loop.New("hotplug-test", 0, logger)
	owner.Start(context.Background())
	defer owner.Stop()

	sched := scheduler.New(clock, logger)
	defer sched.Stop()

	player := engine.NewPlayer(logger)
	require.NoError(t, player.Setup())

	wd := watchdog.New(player, sched, owner, 3*time.Second, logger)
	defer wd.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	src := hotplug.NewManual(logger)
	startHotplug(ctx, src, &out, wd, logger)
	<-src.Ready()

	// the stream dies and does not reopen on its own
	player.StreamFailed(false)
	require.True(t, src.Inject(false))
	require.NoError(t, owner.Call(func() {}))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(3 * time.Second)

	assert.Eventually(t, func() bool {
		return player.Stats().Restarts == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, player.Stats().StreamOpen)

	// registration callback is not printed
	assert.Equal(t, "Audio output device removed\n", out.String())
}

func TestStartHotplug_SourceFailureIsLogged(t *testing.T) {
	logger := testutils.NewLogger()
	owner := loop.New("hotplug-test", 0, logger)
	owner.Start(context.Background())
	defer owner.Stop()

	sched := scheduler.New(clockwork.NewFakeClock(), logger)
	defer sched.Stop()
	wd := watchdog.New(engine.NewPlayer(logger), sched, owner, 0, logger)
	defer wd.Stop()

	done := make(chan struct{})
	src := failingSource{err: hotplug.ErrUnsupported, done: done}

	var out bytes.Buffer
	startHotplug(context.Background(), src, &out, wd, logger)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hot-plug source was not started")
	}
	assert.Empty(t, out.String())
}

type failingSource struct {
	err  error
	done chan struct{}
}

func (s failingSource) Start(context.Context, hotplug.Handler) error {
	close(s.done)
	return s.err
}

type stubAdapter struct {
	enabled bool
	err     error
}

func (s stubAdapter) Enabled(context.Context) (bool, error) { return s.enabled, s.err }

func TestCheckAdapter(t *testing.T) {
	tests := []struct {
		name    string
		checker stubAdapter
		wantErr error
		output  string
	}{
		{name: "powered on", checker: stubAdapter{enabled: true}, output: "Bluetooth:    powered on\n"},
		{name: "powered off", checker: stubAdapter{}, wantErr: orchestrator.ErrAdapterDisabled, output: "Bluetooth:    powered off\n"},
		{name: "bus error", checker: stubAdapter{err: errors.New("dbus: timeout")}, wantErr: errors.New("dbus: timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&out)

			err := checkAdapter(context.Background(), cmd, tt.checker)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr.Error(), err.Error())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.output, out.String())
		})
	}
}
