package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/mriscan/braintumor-go/internal/errors"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func paletted(src image.Image) *image.Paletted {
	p := image.NewPaletted(src.Bounds(), color.Palette{color.Black, color.NRGBA{G: 255, A: 255}})
	for y := src.Bounds().Min.Y; y < src.Bounds().Max.Y; y++ {
		for x := src.Bounds().Min.X; x < src.Bounds().Max.X; x++ {
			p.Set(x, y, src.At(x, y))
		}
	}
	return p
}

func writeImage(t *testing.T, name string, encode func(io.Writer) error) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, encode(f))
	require.NoError(t, f.Close())
	return path
}

func TestPreprocessShapeAndRange(t *testing.T) {
	t.Parallel()

	src := solid(300, 180, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	path := writeImage(t, "scan.png", func(w io.Writer) error { return png.Encode(w, src) })

	tensor, err := Preprocess(path, 224)
	require.NoError(t, err)

	assert.Equal(t, [4]int{1, 224, 224, 3}, tensor.Shape)
	assert.Equal(t, 224*224*3, tensor.Len())
	for i := 0; i < tensor.Len(); i += Channels {
		require.InDelta(t, 1.0, tensor.Data[i], 0.01)
		require.InDelta(t, 0.0, tensor.Data[i+1], 0.01)
		require.InDelta(t, 0.0, tensor.Data[i+2], 0.01)
	}
}

func TestPreprocessAcceptedFormats(t *testing.T) {
	t.Parallel()

	src := solid(16, 16, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	encoders := map[string]func(io.Writer) error{
		"scan.png":  func(w io.Writer) error { return png.Encode(w, src) },
		"scan.jpg":  func(w io.Writer) error { return jpeg.Encode(w, src, &jpeg.Options{Quality: 100}) },
		"scan.gif":  func(w io.Writer) error { return gif.Encode(w, paletted(src), nil) },
		"scan.bmp":  func(w io.Writer) error { return bmp.Encode(w, src) },
		"scan.tiff": func(w io.Writer) error { return tiff.Encode(w, src, nil) },
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := writeImage(t, name, encode)

			tensor, err := Preprocess(path, 8)
			require.NoError(t, err)
			assert.Equal(t, [4]int{1, 8, 8, 3}, tensor.Shape)
			// lossy encoders may drift slightly from pure green
			assert.InDelta(t, 1.0, tensor.Data[1], 0.05)
			assert.InDelta(t, 0.0, tensor.Data[0], 0.05)
		})
	}
}

func TestPreprocessImagePixelOrder(t *testing.T) {
	t.Parallel()

	// left column blue, right column white; no resampling at identical size
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{B: 255, A: 255})
	img.Set(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	tensor, err := PreprocessImage(img, 2)
	require.NoError(t, err)
	require.Equal(t, 12, tensor.Len())

	assert.InDeltaSlice(t, []float32{0, 0, 1}, tensor.Data[0:3], 0.01)
	assert.InDeltaSlice(t, []float32{1, 1, 1}, tensor.Data[3:6], 0.01)
}

func TestPreprocessImageDropsAlpha(t *testing.T) {
	t.Parallel()

	img := solid(4, 4, color.NRGBA{R: 255, G: 128, B: 0, A: 128})
	tensor, err := PreprocessImage(img, 4)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, tensor.Data[0], 0.01)
	assert.InDelta(t, 128.0/255, tensor.Data[1], 0.01)
}

func TestPreprocessImageInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := PreprocessImage(solid(4, 4, color.White), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = PreprocessImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 224)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageDecode))
}

func TestPreprocessRejectsNonImage(t *testing.T) {
	t.Parallel()

	path := writeImage(t, "notes.png", func(w io.Writer) error {
		_, err := io.WriteString(w, "definitely not an image")
		return err
	})

	assert.NotPanics(t, func() {
		_, err := Preprocess(path, 224)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryImageDecode))
	})
}

func TestPreprocessMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Preprocess(filepath.Join(t.TempDir(), "missing.png"), 224)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestDecodeTruncatedImage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(64, 64, color.White)))
	truncated := buf.Bytes()[:buf.Len()/2]

	_, _, err := Decode(bytes.NewReader(truncated))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageDecode))
	assert.False(t, strings.Contains(err.Error(), "panic"))
}

func TestTensorChannelsFirst(t *testing.T) {
	t.Parallel()

	// 1x2 image: pixel 0 is (1,2,3), pixel 1 is (4,5,6)
	tensor := Tensor{
		Data:  []float32{1, 2, 3, 4, 5, 6},
		Shape: [4]int{1, 1, 2, Channels},
	}
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, tensor.ChannelsFirst())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Data, "source is left untouched")
}
