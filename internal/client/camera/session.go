package camera

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"facegate-go/config"

	log "github.com/sirupsen/logrus"
)

// ErrNoFrame is returned when the source has no frame to capture, either
// because the session is not running or the device has not delivered a
// frame yet.
var ErrNoFrame = errors.New("no frame available")

// FrameSource is a device that can be opened and read frame by frame.
// The gocv webcam implements it; tests use an in-memory source.
type FrameSource interface {
	Open(cfg config.CameraConfig) error
	// Read returns the current frame or ErrNoFrame when none is buffered.
	Read() (image.Image, error)
	Close() error
}

// Session owns a frame source for the duration of one flow. Exactly one
// flow uses the camera at a time; the previous owner stops its session
// before the next one starts.
type Session struct {
	source FrameSource
	cfg    config.CameraConfig

	mu      sync.Mutex
	active  bool
	lastErr error
}

// NewSession wraps a frame source. The source is not opened until Start.
func NewSession(source FrameSource, cfg config.CameraConfig) *Session {
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}
	return &Session{source: source, cfg: cfg}
}

// Start opens the frame source. Calling Start while a stream is active is a
// no-op. Failure is recorded and observable via Err.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	if err := s.source.Open(s.cfg); err != nil {
		s.lastErr = fmt.Errorf("failed to open camera: %w", err)
		log.Errorf("Camera start failed: %v", s.lastErr)
		return s.lastErr
	}

	s.active = true
	s.lastErr = nil
	log.Debugf("Camera session started (%dx%d @ %d fps)", s.cfg.Width, s.cfg.Height, s.cfg.FPS)
	return nil
}

// Stop releases the device. Safe to call when not started.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	if err := s.source.Close(); err != nil {
		log.Warnf("Failed to close camera source: %v", err)
	}
	s.active = false
	log.Debug("Camera session stopped")
}

// Active reports whether the session currently owns the device.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Err returns the last acquisition error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// CaptureFrame encodes the current frame as a fixed-quality JPEG. The
// returned pixels always carry the true, unmirrored camera orientation;
// mirroring is applied only in PreviewFrame.
func (s *Session) CaptureFrame() ([]byte, error) {
	img, err := s.currentFrame()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// CaptureDataURI captures a frame and wraps it as a JPEG data URI for the
// backend API.
func (s *Session) CaptureDataURI() (string, error) {
	data, err := s.CaptureFrame()
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// PreviewFrame returns a horizontally mirrored copy of the current frame.
// The mirror is a display-only transform for user comfort and never touches
// the capture path.
func (s *Session) PreviewFrame() (image.Image, error) {
	img, err := s.currentFrame()
	if err != nil {
		return nil, err
	}
	return mirrorHorizontal(img), nil
}

func (s *Session) currentFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrNoFrame
	}
	img, err := s.source.Read()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNoFrame
	}
	return img, nil
}

// mirrorHorizontal flips an image along its vertical axis.
func mirrorHorizontal(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(bounds.Max.X-1-(x-bounds.Min.X), y, src.At(x, y))
		}
	}
	return dst
}
