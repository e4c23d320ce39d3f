package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetConfig isolates a test from the global viper state and the host environment.
func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, b := range getEnvBindings() {
		t.Setenv(b.EnvVar, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	resetConfig(t)

	settings, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, ProfileDevelopment, settings.Main.Profile)
	assert.NotEmpty(t, settings.Main.SecretKey, "missing secret is replaced by a generated one")
	assert.Equal(t, "sqlite:///brain_tumor.db", settings.Database.URL)
	assert.Equal(t, "static/uploads", settings.Upload.Dir)
	assert.Equal(t, int64(16*1024*1024), settings.Upload.MaxSize)
	assert.Equal(t, DefaultAllowedExtensions, settings.Upload.AllowedExtensions)
	assert.Equal(t, "models/brain_tumor_model.tflite", settings.Model.Path)
	assert.Equal(t, 224, settings.Model.ImageSize)
	assert.Equal(t, DefaultClasses, settings.Model.Classes)
	assert.Equal(t, "auto", settings.Model.Outputs)
	assert.Equal(t, ":5000", settings.WebServer.ListenAddress())
	assert.Equal(t, 200*time.Millisecond, settings.Database.SlowQueryThreshold)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)

	assert.Same(t, settings, GetSettings())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	resetConfig(t)
	t.Setenv("DATABASE_URL", "sqlite:///tmp/other.db")
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_CONTENT_LENGTH", "1048576")
	t.Setenv("UPLOAD_FOLDER", "/srv/uploads")
	t.Setenv("MODEL_PATH", "/models/brain.onnx")

	settings, err := Load(writeConfig(t, "database:\n  url: sqlite:///from-file.db\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///tmp/other.db", settings.Database.URL, "environment beats config file")
	assert.Equal(t, "from-env", settings.Main.SecretKey)
	assert.Equal(t, ":8080", settings.WebServer.ListenAddress())
	assert.Equal(t, int64(1048576), settings.Upload.MaxSize)
	assert.Equal(t, "/srv/uploads", settings.Upload.Dir)
	assert.Equal(t, "/models/brain.onnx", settings.Model.Path)
}

func TestLoadConfigFileValues(t *testing.T) {
	resetConfig(t)

	path := writeConfig(t, `
main:
  profile: production
  debug: true
  secretkey: file-secret
model:
  classes: [a, b, c]
  imagesize: 128
  outputs: logits
webserver:
  listen: 127.0.0.1:9000
mqtt:
  enabled: true
  broker: tcp://broker:1883
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.False(t, settings.Main.Debug, "production profile disables debug")
	assert.Equal(t, "file-secret", settings.Main.SecretKey)
	assert.Equal(t, []string{"a", "b", "c"}, settings.Model.Classes)
	assert.Equal(t, 128, settings.Model.ImageSize)
	assert.Equal(t, "logits", settings.Model.Outputs)
	assert.Equal(t, "127.0.0.1:9000", settings.WebServer.ListenAddress())
	assert.True(t, settings.MQTT.Enabled)
	assert.Equal(t, "braintumor/predictions", settings.MQTT.Topic)
}

func TestLoadTestingProfile(t *testing.T) {
	resetConfig(t)

	settings, err := Load(writeConfig(t, "main:\n  profile: testing\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite://:memory:", settings.Database.URL)
	assert.False(t, settings.Telemetry.Enabled)
	assert.Contains(t, settings.Upload.Dir, "braintumor-uploads")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	resetConfig(t)

	_, err := Load(writeConfig(t, "model:\n  classes: [only]\ndatabase:\n  url: postgres://x/y\n"))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestLoadMissingFile(t *testing.T) {
	resetConfig(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWriteDefaultConfig(t *testing.T) {
	resetConfig(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.Error(t, WriteDefaultConfig(path, false), "existing file is not overwritten")
	require.NoError(t, WriteDefaultConfig(path, true))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, settings.Main.SecretKey)
	assert.Equal(t, DefaultClasses, settings.Model.Classes)
	assert.Equal(t, time.Hour, settings.Database.ConnMaxLifetime)
}

func TestGenerateRandomSecret(t *testing.T) {
	a := GenerateRandomSecret()
	b := GenerateRandomSecret()
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
