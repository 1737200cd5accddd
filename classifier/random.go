package classifier

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bosley/signspeak/camera"
	"github.com/bosley/signspeak/signs"
)

// Random is a placeholder backend: it ignores the image content and picks
// a sign from the core vocabulary with a confidence between 60 and 99.
type Random struct {
	Labels  []string
	Latency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(latency time.Duration) *Random {
	return &Random{
		Labels:  signs.Core,
		Latency: latency,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Random) Classify(ctx context.Context, frame camera.Frame) (Prediction, error) {
	if len(frame.Data) == 0 {
		return Prediction{}, ErrEmptyFrame
	}

	if r.Latency > 0 {
		t := time.NewTimer(r.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Prediction{}, ctx.Err()
		case <-t.C:
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return Prediction{
		Label:      r.Labels[r.rng.Intn(len(r.Labels))],
		Confidence: r.rng.Intn(40) + 60,
	}, nil
}
