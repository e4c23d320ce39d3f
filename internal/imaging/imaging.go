// Package imaging turns uploaded scan images into model input tensors.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif" // register decoders for every accepted upload type
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
)

// Channels is the number of colour channels in a tensor (RGB).
const Channels = 3

// MaxPixels bounds the decoded source image to keep memory use predictable.
const MaxPixels = 64 * 1024 * 1024

// Tensor is a batch of one image in NHWC layout with values in [0,1].
type Tensor struct {
	Data  []float32
	Shape [4]int // batch, height, width, channels
}

// Len returns the number of elements in the tensor.
func (t Tensor) Len() int {
	return len(t.Data)
}

// ChannelsFirst returns the data reordered to NCHW, one full plane per channel.
func (t Tensor) ChannelsFirst() []float32 {
	out := make([]float32, len(t.Data))
	plane := len(t.Data) / Channels
	for i := range plane {
		for c := range Channels {
			out[c*plane+i] = t.Data[i*Channels+c]
		}
	}
	return out
}

// Preprocess decodes the image file at path and converts it to a size×size tensor.
func Preprocess(path string, size int) (Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tensor{}, errors.New(err).
			Component("imaging").
			Category(errors.CategoryFileIO).
			Context("operation", "open_image").
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	img, format, err := Decode(f)
	if err != nil {
		return Tensor{}, err
	}

	GetLogger().Debug("image decoded",
		logger.String("format", format),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()))

	return PreprocessImage(img, size)
}

// Decode reads a png, jpeg, gif, bmp or tiff image. Images larger than MaxPixels are rejected.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.New(err).
			Component("imaging").
			Category(errors.CategoryFileIO).
			Context("operation", "read_image").
			Build()
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", decodeError(err, "")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, decodeError(errors.NewStd("image has no pixels"), format)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, format, errors.Newf("image too large: %dx%d", cfg.Width, cfg.Height).
			Component("imaging").
			Category(errors.CategoryLimit).
			Context("format", format).
			Build()
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, decodeError(err, format)
	}
	return img, format, nil
}

// PreprocessImage resizes img to size×size with bilinear interpolation and
// scales RGB values to [0,1]. Alpha is discarded.
func PreprocessImage(img image.Image, size int) (Tensor, error) {
	if size <= 0 {
		return Tensor{}, errors.Newf("invalid target size %d", size).
			Component("imaging").
			Category(errors.CategoryValidation).
			Build()
	}
	if img == nil || img.Bounds().Empty() {
		return Tensor{}, decodeError(errors.NewStd("image has no pixels"), "")
	}

	start := time.Now()
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	bounds := resized.Bounds()

	t := Tensor{
		Data:  make([]float32, size*size*Channels),
		Shape: [4]int{1, size, size, Channels},
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c, _ := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			t.Data[i] = float32(c.R) / 255
			t.Data[i+1] = float32(c.G) / 255
			t.Data[i+2] = float32(c.B) / 255
			i += Channels
		}
	}

	GetLogger().Trace("image preprocessed",
		logger.Int("size", size),
		logger.Duration("duration", time.Since(start)))
	return t, nil
}

func decodeError(err error, format string) error {
	b := errors.New(err).
		Component("imaging").
		Category(errors.CategoryImageDecode)
	if format != "" {
		b = b.Context("format", format)
	}
	return b.Build()
}
