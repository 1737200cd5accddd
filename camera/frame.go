// Package camera produces still frames for classification. A Source owns
// the device handle; only the capture controller reads from it.
package camera

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoFrame is returned when the device produced nothing usable.
	ErrNoFrame = errors.New("no frame available")
	// ErrDeviceMissing is returned when the device cannot be opened.
	ErrDeviceMissing = errors.New("camera device not available")
)

// Frame represents a single still image with metadata
type Frame struct {
	// Seq is the monotonic sequence number for this source
	Seq uint64
	// Timestamp is when the frame was grabbed
	Timestamp time.Time
	// Width and Height in pixels, zero when unknown
	Width  int
	Height int
	// Data holds the encoded image
	Data []byte
	// MIMEType of Data, e.g. image/jpeg
	MIMEType string
}

// Source yields still frames on demand.
type Source interface {
	// Grab acquires a single frame. Errors wrap ErrDeviceMissing or ErrNoFrame.
	Grab(ctx context.Context) (Frame, error)
	// Ready checks that the device can currently be acquired.
	Ready(ctx context.Context) error
	Close() error
}

// Quality is the user-selectable capture quality.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Dimensions returns the capture size for the quality level.
func (q Quality) Dimensions() (width, height int) {
	switch q {
	case QualityLow:
		return 640, 360
	case QualityHigh:
		return 1920, 1080
	default:
		return 1280, 720
	}
}

// Valid reports whether q is one of the known levels.
func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

// SniffMIME guesses the image type from its magic bytes.
func SniffMIME(b []byte) string {
	switch {
	case len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8:
		return "image/jpeg"
	case len(b) >= 8 && string(b[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return "image/webp"
	}
	return ""
}
