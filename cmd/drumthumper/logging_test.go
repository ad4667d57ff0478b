package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggingCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drumthumper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\nmidi_port: 1\n"), 0o600))

	tests := []struct {
		name  string
		args  []string
		level logrus.Level
		port  int
	}{
		{name: "defaults", level: logrus.InfoLevel},
		{name: "verbose", args: []string{"--verbose"}, level: logrus.DebugLevel},
		{name: "log level wins over verbose", args: []string{"--verbose", "--log-level", "error"}, level: logrus.ErrorLevel},
		{name: "config file", args: []string{"--config", path}, level: logrus.WarnLevel, port: 1},
		{name: "flag wins over file", args: []string{"--config", path, "--log-level", "debug"}, level: logrus.DebugLevel, port: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, logger, err := loadConfig(newLoggingCmd(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.level, logger.GetLevel())
			assert.Equal(t, tt.port, cfg.MIDIPort)
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	_, _, err := loadConfig(newLoggingCmd(t, "--log-level", "trace"))
	assert.ErrorContains(t, err, "invalid log level")

	_, _, err = loadConfig(newLoggingCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorContains(t, err, "failed to read config")
}
