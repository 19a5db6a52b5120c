package camera

import (
	"fmt"
	"image"
	"sync"

	"facegate-go/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// WebcamSource reads frames from a local webcam via OpenCV.
type WebcamSource struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewWebcamSource creates an unopened webcam source.
func NewWebcamSource() *WebcamSource {
	return &WebcamSource{}
}

// Open acquires the device and applies the preferred resolution and frame
// rate. The driver may negotiate different values; that is not an error.
func (w *WebcamSource) Open(cfg config.CameraConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to open video device %d: %w", cfg.DeviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	actualW := capture.Get(gocv.VideoCaptureFrameWidth)
	actualH := capture.Get(gocv.VideoCaptureFrameHeight)
	if int(actualW) != cfg.Width || int(actualH) != cfg.Height {
		log.Debugf("Camera negotiated %dx%d instead of %dx%d",
			int(actualW), int(actualH), cfg.Width, cfg.Height)
	}

	w.capture = capture
	return nil
}

// Read grabs the next frame from the device.
func (w *WebcamSource) Read() (image.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture == nil {
		return nil, ErrNoFrame
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := w.capture.Read(&mat); !ok || mat.Empty() {
		return nil, ErrNoFrame
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (w *WebcamSource) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture == nil {
		return nil
	}
	err := w.capture.Close()
	w.capture = nil
	return err
}
