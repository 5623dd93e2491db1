// Package video provides frame sources for the pipeline.
package video

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"time"

	xdraw "golang.org/x/image/draw"
)

var (
	// ErrEndOfStream is returned by Read when a finite source has no more frames.
	ErrEndOfStream = errors.New("video: end of stream")
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("video: source closed")
)

// Frame is one decoded video frame. Image MUST NOT be modified after the frame is published.
type Frame struct {
	Image     image.Image
	Index     int64
	Timestamp time.Time
}

// Source is a camera, a file or any other producer of frames.
type Source interface {
	Open() error
	// Read blocks until the next frame is decoded.
	Read() (image.Image, error)
	Close() error
	// Finite reports whether the source ends (a file) rather than failing (a live camera).
	Finite() bool
	// Rewind seeks back to the first frame of a finite source.
	Rewind() error
	String() string
}

// Opener builds a Source from a configured source string.
type Opener func(source string) (Source, error)

var openers []Opener

// Register adds an Opener tried by NewSource after the built-in directory source.
func Register(o Opener) {
	openers = append(openers, o)
}

// NewSource picks a Source implementation for the given source string. A directory is served by
// DirSource; anything else is offered to registered openers.
func NewSource(source string) (Source, error) {
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return NewDirSource(source), nil
	}

	for _, open := range openers {
		src, err := open(source)
		if err == nil && src != nil {
			return src, nil
		}
	}

	return nil, fmt.Errorf("unsupported video source %q (capture devices and files require the gocv build tag)", source)
}

// Resize scales img to width x height. Images that already match are returned unchanged.
func Resize(img image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// EncodeJPEG compresses img with the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
