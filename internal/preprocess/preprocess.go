// Package preprocess turns an uploaded or captured photo into the fixed-shape
// tensor the plastic classifier expects.
package preprocess

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/plastic-classifier/internal/model"
)

// ErrDecode is returned when the input is not a JPEG or PNG raster image, or
// declares more pixels than the caller allows.
var ErrDecode = errors.New("image could not be decoded")

// DefaultMaxPixels bounds the declared width*height of an input before it is
// decoded. A small compressed file can declare a huge canvas.
const DefaultMaxPixels = 40_000_000

// Filter is the resampling kernel used to reach 224x224. It is fixed because
// the choice changes predictions bit for bit.
const Filter = resize.Bicubic

// Normalize decodes r and converts it into a 1x224x224x3 tensor in [0, 1].
func Normalize(r io.Reader) (model.Tensor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.Tensor{}, &decodeError{cause: err}
	}
	return NormalizeBytesLimit(data, DefaultMaxPixels)
}

func NormalizeBytes(data []byte) (model.Tensor, error) {
	return NormalizeBytesLimit(data, DefaultMaxPixels)
}

// NormalizeBytesLimit rejects images declaring more than maxPixels pixels
// before decoding them.
func NormalizeBytesLimit(data []byte, maxPixels int) (model.Tensor, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, &decodeError{cause: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Tensor{}, &decodeError{cause: errors.New("image has no pixels")}
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return model.Tensor{}, &decodeError{cause: errors.Errorf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, &decodeError{cause: err}
	}
	return NormalizeImage(img)
}

// decodeError matches ErrDecode under errors.Is and unwraps to the decoder's
// own error.
type decodeError struct {
	cause error
}

func (e *decodeError) Error() string {
	return ErrDecode.Error() + ": " + e.cause.Error()
}

func (e *decodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *decodeError) Unwrap() error {
	return e.cause
}

// Cause lets errors.Cause reach the decoder's error.
func (e *decodeError) Cause() error {
	return e.cause
}

// NormalizeImage runs the pipeline on an already decoded image.
func NormalizeImage(img image.Image) (model.Tensor, error) {
	b := img.Bounds()
	if b.Empty() {
		return model.Tensor{}, &decodeError{cause: errors.New("image has no pixels")}
	}

	rgb := toRGB(img)
	resized := resize.Resize(model.ImageSize, model.ImageSize, rgb, Filter)

	data := make([]float32, model.TensorLen)
	rb := resized.Bounds()
	i := 0
	for y := rb.Min.Y; y < rb.Min.Y+model.ImageSize; y++ {
		for x := rb.Min.X; x < rb.Min.X+model.ImageSize; x++ {
			c := color.RGBAModel.Convert(resized.At(x, y)).(color.RGBA)
			data[i] = float32(c.R) / 255.0
			data[i+1] = float32(c.G) / 255.0
			data[i+2] = float32(c.B) / 255.0
			i += model.Channels
		}
	}

	return model.NewTensor(data), nil
}

// toRGB drops alpha by keeping each pixel's straight (non-premultiplied)
// color and making it opaque. Gray and paletted images expand to R=G=B.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.Pix[i] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
			i += 4
		}
	}
	return out
}
