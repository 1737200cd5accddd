// Package classifier maps a camera frame to a sign label with a confidence
// score. Backends are interchangeable behind the Classifier interface.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosley/signspeak/camera"
	"github.com/bosley/signspeak/signs"
)

var (
	ErrEmptyFrame      = errors.New("empty frame")
	ErrUnknownProvider = errors.New("unknown classifier provider")
)

// Prediction is the raw classifier output.
type Prediction struct {
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
}

// Classifier is the opaque recognition capability.
type Classifier interface {
	Classify(ctx context.Context, frame camera.Frame) (Prediction, error)
}

// Result is a finished classification. It is a value type and is never
// modified after construction.
type Result struct {
	Label       string    `json:"prediction"`
	Confidence  int       `json:"confidence"`
	Description string    `json:"description"`
	CapturedAt  time.Time `json:"timestamp"`
}

// NewResult attaches the guide description and capture time to p.
func NewResult(p Prediction, at time.Time) Result {
	return Result{
		Label:       p.Label,
		Confidence:  clampConfidence(p.Confidence),
		Description: signs.Describe(p.Label),
		CapturedAt:  at,
	}
}

// Options selects and configures a backend.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	Latency  time.Duration
}

// New builds the backend named by opts.Provider.
func New(opts Options) (Classifier, error) {
	switch opts.Provider {
	case "", "random":
		return NewRandom(opts.Latency), nil
	case "gemini":
		return NewGemini(opts.APIKey, opts.Model), nil
	case "anthropic":
		return NewAnthropic(opts.APIKey, opts.Model), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, opts.Provider)
}

func clampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
