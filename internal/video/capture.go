//go:build gocv

package video

import (
	"fmt"
	"image"
	"os"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

func init() {
	Register(func(source string) (Source, error) {
		return NewCaptureSource(source), nil
	})
}

// CaptureSource reads frames through OpenCV: a webcam index ("0"), a video file or an RTSP URL.
type CaptureSource struct {
	source string

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func NewCaptureSource(source string) *CaptureSource {
	return &CaptureSource{source: source}
}

func (s *CaptureSource) Open() error {
	var device interface{} = s.source
	if idx, err := strconv.Atoi(s.source); err == nil {
		device = idx
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("open capture %s: %w", s.source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open capture %s: device not opened", s.source)
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	s.mu.Lock()
	s.capture = capture
	s.mat = gocv.NewMat()
	s.mu.Unlock()
	return nil
}

func (s *CaptureSource) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, ErrClosed
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		if s.Finite() {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read capture %s: no frame", s.source)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.mat.Close()
	s.capture = nil
	return err
}

// Finite is true for regular files; devices and network streams are live.
func (s *CaptureSource) Finite() bool {
	info, err := os.Stat(s.source)
	return err == nil && info.Mode().IsRegular()
}

func (s *CaptureSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return ErrClosed
	}
	s.capture.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

func (s *CaptureSource) String() string { return s.source }
