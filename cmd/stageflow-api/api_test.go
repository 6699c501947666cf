package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rathbookie/stageflow/pkg/channels/gochannel"
	"github.com/rathbookie/stageflow/pkg/eventbus"
	"github.com/rathbookie/stageflow/pkg/persistence/file"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)
	p := file.NewPersistence(t.TempDir())

	t.Cleanup(func() {
		_ = bus.Close()
		_ = p.Close(t.Context())
	})

	return NewAPI(logger, p, bus, "")
}

func TestAPI_App(t *testing.T) {
	api := newTestAPI(t)
	app := api.App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Seeding(t *testing.T) {
	api := newTestAPI(t)

	require.NoError(t, api.SeedDefault(t.Context()))

	// Seeding twice keeps a single default.
	require.NoError(t, api.SeedDefault(t.Context()))

	presetsPath := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(presetsPath, []byte(`
presets:
  - name: Content Review
    stages:
      - name: Draft
      - name: Published
        is_terminal: true
    transitions:
      - from: Draft
        to: Published
        role: TASK_CREATOR
`), 0o600))

	require.NoError(t, api.SeedPresets(t.Context(), presetsPath))

	workflows, err := api.workflowService.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, workflows, 2)
}

func TestNewGraphCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.NotNil(t, newGraphCache(logger, ""))
	assert.NotNil(t, newGraphCache(logger, "not a url"))
	assert.NotNil(t, newGraphCache(logger, "redis://localhost:6379/0"))
}
