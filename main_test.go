package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/startlights/settings"
)

func TestConstants(t *testing.T) {
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "Start Lights Reaction Trial Server", AppName)
}

// runWithArgs parses args with the real command but captures the merged
// settings instead of starting a server.
func runWithArgs(t *testing.T, args ...string) settings.Settings {
	t.Helper()
	t.Chdir(t.TempDir())

	var got settings.Settings
	cmd := newCommand()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		_, s, err := loadSettings(c)
		got = s
		return err
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"startlights"}, args...)))
	return got
}

func TestFlagsOverrideSettings(t *testing.T) {
	s := runWithArgs(t,
		"--host", "0.0.0.0",
		"--port", "9999",
		"--config-dir", "/etc/startlights",
		"--debug",
		"--sqlite", "",
		"--archive-dir", "/var/lib/startlights",
		"--ngrok",
		"--ngrok-auth", "secret",
	)

	assert.Equal(t, "0.0.0.0:9999", s.Server.Addr())
	assert.Equal(t, "/etc/startlights", s.Configs.Directory)
	assert.Equal(t, "debug", s.Logging.Level)
	assert.Empty(t, s.Upload.SQLitePath)
	assert.Equal(t, "/var/lib/startlights", s.Upload.ArchiveDir)
	assert.True(t, s.Ngrok.Enabled)
	assert.Equal(t, "secret", s.Ngrok.Authtoken)
}

func TestFlagDefaults(t *testing.T) {
	s := runWithArgs(t)

	assert.Equal(t, "localhost:8080", s.Server.Addr())
	assert.Equal(t, "configs", s.Configs.Directory)
	assert.Equal(t, "info", s.Logging.Level)
	assert.False(t, s.Ngrok.Enabled)
}

func testSettings(t *testing.T) settings.Settings {
	t.Helper()
	dir := t.TempDir()
	return settings.Settings{
		Server:  settings.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Logging: settings.LoggingConfig{Level: "debug"},
		Configs: settings.ConfigsConfig{Directory: "configs"},
		Sessions: settings.SessionsConfig{
			CleanupInterval: time.Hour,
			MaxIdle:         24 * time.Hour,
		},
		Upload: settings.UploadConfig{
			Timeout:    time.Second,
			SQLitePath: filepath.Join(dir, "db", "records.db"),
			ArchiveDir: filepath.Join(dir, "archive"),
		},
	}
}

func TestNewApp(t *testing.T) {
	a, err := newApp(testSettings(t), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.start(ctx)
	defer a.shutdown()

	assert.ElementsMatch(t, []string{"sqlite", "file"}, a.dispatcher.Sinks())
	require.NotNil(t, a.store)

	info, err := a.service.CreateSession(ctx, "classic")
	require.NoError(t, err)
	assert.Equal(t, "classic", info.ConfigName)

	state, err := a.service.Start(ctx, info.ID)
	require.NoError(t, err)
	assert.True(t, state.TriggerEnabled)

	records, err := a.service.ListRecords(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	rec := httptest.NewRecorder()
	a.handler("http://127.0.0.1:8080").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_InvalidConfigDir(t *testing.T) {
	s := testSettings(t)
	s.Configs.Directory = "/non/existent/path"

	_, err := newApp(s, zap.NewNop())
	assert.Error(t, err)
}

func TestNewApp_InvalidUploadEndpoint(t *testing.T) {
	s := testSettings(t)
	s.Upload.SQLitePath = ""
	s.Upload.Endpoint = "ftp://example.com/upload"

	_, err := newApp(s, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenSinks_ArchiveServesRecords(t *testing.T) {
	s := testSettings(t)
	s.Upload.SQLitePath = ""
	s.Upload.Endpoint = "https://example.com/api/sessions/{session_id}/upload"

	a := &app{settings: s, logger: zap.NewNop()}
	sinks, store, err := a.openSinks()
	require.NoError(t, err)

	names := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		names = append(names, sink.Name())
	}
	assert.Equal(t, []string{"file", "http"}, names)
	assert.NotNil(t, store)
	assert.Nil(t, a.store)
}

func TestAPIAvailable(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	assert.True(t, apiAvailable(healthy.URL))
	assert.False(t, apiAvailable(broken.URL))
	assert.False(t, apiAvailable(""))
}

func TestSessionCleanupRoutineDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		sessionCleanupRoutine(context.Background(), nil, settings.SessionsConfig{}, zap.NewNop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup routine should return when disabled")
	}
}
