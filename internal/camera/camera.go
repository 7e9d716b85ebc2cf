// Package camera grabs a single still from a local video device so it can go
// through the same pipeline as an uploaded photo.
package camera

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when the device opened but produced no image.
var ErrNoFrame = errors.New("camera returned no frame")

// warmupFrames are read and discarded first; many webcams deliver dark or
// half-exposed frames right after opening.
const warmupFrames = 5

// Capture opens deviceID, reads one frame and returns it JPEG encoded.
func Capture(deviceID int) ([]byte, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "open camera %d", deviceID)
	}
	defer webcam.Close()

	img := gocv.NewMat()
	defer img.Close()

	for i := 0; i <= warmupFrames; i++ {
		if ok := webcam.Read(&img); !ok {
			return nil, errors.Errorf("cannot read device %d", deviceID)
		}
	}
	if img.Empty() {
		return nil, ErrNoFrame
	}

	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	defer buf.Close()

	frame := make([]byte, len(buf.GetBytes()))
	copy(frame, buf.GetBytes())
	return frame, nil
}
