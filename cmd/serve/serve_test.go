package serve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/testutil"
)

func serveSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	return &conf.Settings{
		Main:     conf.MainSettings{Profile: conf.ProfileTesting, SecretKey: "test-secret"},
		Database: conf.DatabaseSettings{URL: "sqlite://:memory:"},
		Upload: conf.UploadSettings{
			Dir:               filepath.Join(dir, "static", "uploads"),
			MaxSize:           conf.DefaultMaxUploadSize,
			AllowedExtensions: conf.DefaultAllowedExtensions,
		},
		// unsupported format, the service starts without a model
		Model: conf.ModelSettings{
			Path:      filepath.Join(dir, "models", "brain_tumor_model.bin"),
			ImageSize: 224,
			Classes:   conf.DefaultClasses,
		},
		WebServer: conf.WebServerSettings{Listen: "127.0.0.1:0"},
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	settings := serveSettings(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, settings) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(settings.Upload.Dir)
		return err == nil
	}, testutil.DefaultTestTimeout, 10*time.Millisecond)
	cancel()

	require.NoError(t, testutil.WaitForError(t, done, testutil.LongTestTimeout, "Run did not return after cancel"))

	assert.DirExists(t, filepath.Dir(settings.Model.Path))
}

func TestRunRejectsBadDatabaseURL(t *testing.T) {
	settings := serveSettings(t)
	settings.Database.URL = "postgres://localhost/db"

	err := Run(t.Context(), settings)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	settings := &conf.Settings{
		Upload: conf.UploadSettings{Dir: filepath.Join(dir, "uploads")},
		Model:  conf.ModelSettings{Path: filepath.Join(dir, "models", "m.tflite")},
	}
	require.NoError(t, ensureDirectories(settings))
	assert.DirExists(t, settings.Upload.Dir)
	assert.DirExists(t, filepath.Join(dir, "models"))

	// relative model file in the working directory needs nothing
	require.NoError(t, ensureDirectories(&conf.Settings{Model: conf.ModelSettings{Path: "model.tflite"}}))
}
