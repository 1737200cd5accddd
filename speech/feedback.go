// Package speech turns classification results into spoken audio. Automatic
// speech is gated on confidence; manual requests always speak. A new
// request cancels whatever utterance is still playing.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bosley/signspeak/classifier"
	"github.com/bosley/signspeak/metrics"
)

// TestPhrase is spoken by TestVoice.
const TestPhrase = "Hello, this is a test of the voice settings."

// Voice renders text as audio. Say blocks until playback finishes or ctx
// is cancelled.
type Voice interface {
	Say(ctx context.Context, text string, p Profile) error
}

// ShouldSpeak is the auto-speak gate: enabled and strictly above threshold.
func ShouldSpeak(r classifier.Result, p Profile) bool {
	return p.AutoSpeak && r.Confidence > p.ConfidenceThreshold
}

// Feedback owns at most one in-progress utterance.
type Feedback struct {
	voice Voice

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	current string
	wg      sync.WaitGroup
}

func NewFeedback(v Voice) *Feedback {
	return &Feedback{voice: v}
}

// MaybeSpeak speaks r.Label when the gate passes and reports whether it did.
func (f *Feedback) MaybeSpeak(r classifier.Result, p Profile) bool {
	if !ShouldSpeak(r, p) {
		slog.Debug("Auto-speak skipped",
			"label", r.Label,
			"confidence", r.Confidence,
			"threshold", p.ConfidenceThreshold,
			"autoSpeak", p.AutoSpeak)
		return false
	}
	f.start("auto", r.Label, p)
	return true
}

// Speak always speaks text, bypassing the confidence gate.
func (f *Feedback) Speak(text string, p Profile) {
	f.start("manual", text, p)
}

// TestVoice previews a profile with the fixed sample phrase.
func (f *Feedback) TestVoice(p Profile) {
	f.start("test", TestPhrase, p)
}

// Speaking returns the text currently being spoken, if any.
func (f *Feedback) Speaking() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.cancel != nil
}

// Cancel stops the in-progress utterance. Safe to call at any time.
func (f *Feedback) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

// Close cancels playback and waits for the playback goroutine to exit.
func (f *Feedback) Close() {
	f.Cancel()
	f.wg.Wait()
}

func (f *Feedback) stopLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
		f.current = ""
	}
}

func (f *Feedback) start(kind, text string, p Profile) {
	f.mu.Lock()
	if f.cancel != nil {
		slog.Debug("Preempting utterance", "previous", f.current, "next", text)
		metrics.Utterances.WithLabelValues("preempted").Inc()
	}
	f.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	f.seq++
	id := f.seq
	f.cancel = cancel
	f.current = text
	f.wg.Add(1)
	f.mu.Unlock()

	metrics.Utterances.WithLabelValues(kind).Inc()

	go func() {
		defer f.wg.Done()
		defer cancel()

		if err := f.voice.Say(ctx, text, p); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Failed to speak", "error", err, "kind", kind, "text", text)
		}

		f.mu.Lock()
		if f.seq == id {
			f.cancel = nil
			f.current = ""
		}
		f.mu.Unlock()
	}()
}
