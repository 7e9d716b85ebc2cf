package preprocess

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/plastic-classifier/internal/model"
)

// gradient produces a deterministic RGB pattern so resampling has something
// to interpolate.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func assertTensorInvariants(t *testing.T, tensor model.Tensor) {
	t.Helper()
	assert.Equal(t, []int64{1, 224, 224, 3}, tensor.Shape)
	require.Len(t, tensor.Data, 224*224*3)
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %v at %d outside [0, 1]", v, i)
		}
	}
	assert.NoError(t, tensor.Validate())
}

func TestNormalizeJPEG(t *testing.T) {
	tensor, err := NormalizeBytes(encodeJPEG(t, gradient(512, 512)))
	require.NoError(t, err)
	assertTensorInvariants(t, tensor)
}

func TestNormalizeNonSquarePNG(t *testing.T) {
	tensor, err := NormalizeBytes(encodePNG(t, gradient(640, 300)))
	require.NoError(t, err)
	assertTensorInvariants(t, tensor)
}

func TestNormalizeUpscalesSmallImage(t *testing.T) {
	tensor, err := NormalizeBytes(encodePNG(t, gradient(7, 5)))
	require.NoError(t, err)
	assertTensorInvariants(t, tensor)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	data := encodeJPEG(t, gradient(333, 257))

	first, err := NormalizeBytes(data)
	require.NoError(t, err)
	second, err := NormalizeBytes(data)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
}

func TestNormalizeGrayscaleExpandsToRGB(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 50, 40))
	for i := range img.Pix {
		img.Pix[i] = 128
	}

	tensor, err := NormalizeBytes(encodePNG(t, img))
	require.NoError(t, err)
	assertTensorInvariants(t, tensor)

	want := float32(128) / 255
	for i := 0; i < len(tensor.Data); i += 3 {
		require.InDelta(t, want, tensor.Data[i], 1e-6)
		require.InDelta(t, want, tensor.Data[i+1], 1e-6)
		require.InDelta(t, want, tensor.Data[i+2], 1e-6)
	}
}

func TestNormalizeDiscardsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 200
		img.Pix[i+1] = 100
		img.Pix[i+2] = 50
		img.Pix[i+3] = 0
	}

	tensor, err := NormalizeBytes(encodePNG(t, img))
	require.NoError(t, err)
	assertTensorInvariants(t, tensor)

	assert.InDelta(t, float32(200)/255, tensor.Data[0], 1e-6)
	assert.InDelta(t, float32(100)/255, tensor.Data[1], 1e-6)
	assert.InDelta(t, float32(50)/255, tensor.Data[2], 1e-6)
}

func TestNormalizeChannelLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
		img.Pix[i+3] = 255
	}

	tensor, err := NormalizeImage(img)
	require.NoError(t, err)

	// NHWC: every third value starting at 0 is red.
	assert.InDelta(t, 1.0, tensor.Data[0], 1e-6)
	assert.InDelta(t, 0.0, tensor.Data[1], 1e-6)
	assert.InDelta(t, 0.0, tensor.Data[2], 1e-6)
	assert.InDelta(t, 1.0, tensor.Data[len(tensor.Data)-3], 1e-6)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	inputs := map[string][]byte{
		"empty":     {},
		"text":      []byte("definitely not an image"),
		"truncated": encodeJPEG(t, gradient(64, 64))[:40],
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeBytes(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}
}

func TestNormalizeImageRejectsEmpty(t *testing.T) {
	_, err := NormalizeImage(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestNormalizeKeepsDecoderCause(t *testing.T) {
	_, err := NormalizeBytes([]byte("definitely not an image"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.True(t, errors.Is(err, image.ErrFormat))
	assert.Equal(t, image.ErrFormat, errors.Cause(err))
	assert.Contains(t, err.Error(), image.ErrFormat.Error())
}

// withDimensions rewrites the IHDR chunk of an encoded PNG so it declares
// w x h pixels while the payload stays tiny.
func withDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestNormalizeRejectsOversizedDeclaration(t *testing.T) {
	data := withDimensions(t, encodePNG(t, gradient(1, 1)), 100_000, 100_000)
	require.Less(t, len(data), 1024)

	_, err := NormalizeBytes(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Contains(t, err.Error(), "100000x100000")
}

func TestNormalizeBytesLimit(t *testing.T) {
	data := encodePNG(t, gradient(100, 100))

	_, err := NormalizeBytesLimit(data, 5000)
	assert.True(t, errors.Is(err, ErrDecode))

	tensor, err := NormalizeBytesLimit(data, 100*100)
	require.NoError(t, err)
	assertTensorInvariants(t, tensor)

	_, err = NormalizeBytesLimit(data, 0)
	assert.NoError(t, err)
}
