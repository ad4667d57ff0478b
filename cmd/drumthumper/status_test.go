package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/srg/drumthumper/internal/engine"
	"github.com/srg/drumthumper/internal/orchestrator"
	"github.com/srg/drumthumper/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedState orchestrator.State

func (s fixedState) State() orchestrator.State { return orchestrator.State(s) }

func TestStatusServer(t *testing.T) {
	player := engine.NewPlayer(testutils.NewLogger())
	require.NoError(t, player.Setup())
	player.Trigger(engine.Kick)
	player.Trigger(engine.Kick)
	player.Trigger(engine.Snare)

	srv := newStatusServer(":0", "24:0A:C4:A5:72:6A", fixedState(orchestrator.Open), player, testutils.NewLogger())

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body statusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "24:0A:C4:A5:72:6A", body.Address)
		assert.Equal(t, "open", body.State)
		assert.True(t, body.StreamOpen)
		assert.Equal(t, int64(2), body.Triggers["kick"])
		assert.Equal(t, int64(1), body.Triggers["snare"])
		assert.Equal(t, int64(0), body.Triggers["hihat-closed"])
	})

	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "midi_device_open")
	})
}
