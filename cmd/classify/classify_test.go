package classify

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mriscan/braintumor-go/internal/classifier"
	"github.com/mriscan/braintumor-go/internal/conf"
)

func writeScan(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 4)})
		}
	}
	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func modelSettings() *conf.ModelSettings {
	return &conf.ModelSettings{ImageSize: 224, Classes: conf.DefaultClasses, Outputs: classifier.OutputsAuto}
}

func TestClassifyImage(t *testing.T) {
	t.Parallel()

	model, err := classifier.NewStatic(modelSettings(), 0.1, 0.1, 0.7, 0.1)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, classifyImage(t.Context(), &out, model, writeScan(t), false))
	assert.Equal(t, "No Tumor\t70.00%\n", out.String())
}

func TestClassifyImageAllClasses(t *testing.T) {
	t.Parallel()

	model, err := classifier.NewStatic(modelSettings(), 0.6, 0.2, 0.1, 0.1)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, classifyImage(t.Context(), &out, model, writeScan(t), true))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Glioma Tumor\t60.00%", lines[0])
	assert.Contains(t, lines[2], "Meningioma Tumor")
	assert.Contains(t, lines[2], "20.00%")
	assert.Contains(t, lines[4], "Pituitary Tumor")
}

func TestClassifyImageWithoutModel(t *testing.T) {
	t.Parallel()

	model, err := classifier.NewHandle(nil, modelSettings())
	require.NoError(t, err)

	var out bytes.Buffer
	err = classifyImage(t.Context(), &out, model, writeScan(t), false)
	require.ErrorIs(t, err, classifier.ErrModelNotLoaded)
	assert.Empty(t, out.String())
}

func TestClassifyImageUnreadable(t *testing.T) {
	t.Parallel()

	model, err := classifier.NewStatic(modelSettings(), 0.1, 0.1, 0.7, 0.1)
	require.NoError(t, err)

	notAnImage := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(notAnImage, []byte("not a png"), 0o600))

	var out bytes.Buffer
	assert.Error(t, classifyImage(t.Context(), &out, model, notAnImage, false))
	assert.Error(t, classifyImage(t.Context(), &out, model, filepath.Join(t.TempDir(), "missing.png"), false))
	assert.Empty(t, out.String())
}
