package conf

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsOverridesFileAndEnvironment(t *testing.T) {
	resetConfig(t)
	t.Setenv("MODEL_PATH", "/env/model.tflite")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("model", "", "")
	flags.String("listen", "", "")
	flags.Bool("verbose", false, "") // not annotated
	require.NoError(t, AnnotateFlag(flags, "model", "model.path"))
	require.NoError(t, AnnotateFlag(flags, "listen", "webserver.listen"))
	require.NoError(t, flags.Parse([]string{"--model", "/flag/model.onnx"}))

	require.NoError(t, BindFlags(flags))

	settings, err := Load(writeConfig(t, "model:\n  path: /file/model.tflite\nwebserver:\n  listen: 127.0.0.1:7000\n"))
	require.NoError(t, err)

	assert.Equal(t, "/flag/model.onnx", settings.Model.Path, "a set flag beats env and file")
	assert.Equal(t, "127.0.0.1:7000", settings.WebServer.ListenAddress(), "an unset flag keeps the file value")
}

func TestAnnotateUnknownFlag(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("x", pflag.ContinueOnError)
	assert.Error(t, AnnotateFlag(flags, "missing", "model.path"))
}
