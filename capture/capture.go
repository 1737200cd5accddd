package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bosley/signspeak/camera"
	"github.com/bosley/signspeak/classifier"
	"github.com/bosley/signspeak/events"
	"github.com/bosley/signspeak/metrics"
	"github.com/bosley/signspeak/session"
)

// Capture grabs one frame and classifies it. It is rejected while another
// capture is running. On success the result is published to history, then
// offered to speech, then queued for persistence, and the controller
// returns to the state it was in before (Recording stays Recording).
//
// A classifier failure yields the placeholder result alongside
// ErrClassification and is not recorded. If the session ends or the
// controller is reset before the capture completes, nothing is published
// and ErrSessionEnded or ErrDiscarded is returned.
func (c *Controller) Capture(ctx context.Context) (Outcome, error) {
	id, ok := c.deps.Session.Current()
	if !ok {
		return Outcome{}, ErrNotAuthenticated
	}

	// Work is bound to the caller, the session and the controller
	// generation.
	cctx, cancel := context.WithCancel(id.Context())
	defer cancel()

	c.mu.Lock()
	if c.state == Capturing {
		c.mu.Unlock()
		metrics.Captures.WithLabelValues("rejected").Inc()
		return Outcome{}, ErrCaptureInFlight
	}
	c.returnState = Idle
	if c.state == Recording {
		c.returnState = Recording
	}
	c.state = Capturing
	c.cancelInflight = cancel
	gen := c.gen
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(id.UserID, events.TypeState, snap)

	unregister := context.AfterFunc(ctx, cancel)
	defer unregister()

	frame, err := c.deps.Source.Grab(cctx)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, c.abort(id, gen, ctx.Err())
		}
		return Outcome{}, c.deviceFailed(id, gen, err)
	}

	if c.deps.Archive != nil {
		if path, err := c.deps.Archive.Save(id.UserID, frame); err != nil {
			slog.Warn("Failed to archive frame", "error", err, "userID", id.UserID)
		} else {
			slog.Debug("Archived frame", "path", path, "userID", id.UserID)
		}
	}

	pred, err := c.classify(cctx, frame)
	if err != nil && ctx.Err() != nil {
		return Outcome{}, c.abort(id, gen, ctx.Err())
	}
	return c.complete(id, gen, frame.Timestamp, pred, err)
}

// abort restores the pre-capture state after the caller gave up.
func (c *Controller) abort(id session.Identity, gen uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(gen)
	if stale := c.staleLocked(id, gen); stale != nil {
		c.abandonLocked(gen)
		metrics.Captures.WithLabelValues("discarded").Inc()
		return stale
	}
	c.state = c.returnState
	metrics.Captures.WithLabelValues("discarded").Inc()
	slog.Info("Capture cancelled by caller", "userID", id.UserID, "error", err)
	return err
}

func (c *Controller) classify(ctx context.Context, frame camera.Frame) (classifier.Prediction, error) {
	if c.deps.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deps.ClassifyTimeout)
		defer cancel()
	}

	start := time.Now()
	pred, err := c.deps.Classifier.Classify(ctx, frame)
	metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	return pred, err
}

// staleLocked reports why a capture started under id/gen must be dropped.
func (c *Controller) staleLocked(id session.Identity, gen uint64) error {
	if c.deps.Session.Epoch() != id.Epoch || id.Context().Err() != nil {
		return ErrSessionEnded
	}
	if gen != c.gen {
		return ErrDiscarded
	}
	return nil
}

// abandonLocked leaves Capturing when the session ended before anything
// reset the controller.
func (c *Controller) abandonLocked(gen uint64) {
	if gen == c.gen && c.state == Capturing {
		c.state = Idle
	}
}

// releaseLocked forgets the cancel func of the capture started under gen.
// A newer capture's func is left alone.
func (c *Controller) releaseLocked(gen uint64) {
	if gen == c.gen {
		c.cancelInflight = nil
	}
}

func (c *Controller) deviceFailed(id session.Identity, gen uint64, err error) error {
	c.mu.Lock()
	c.releaseLocked(gen)
	if stale := c.staleLocked(id, gen); stale != nil {
		c.abandonLocked(gen)
		c.mu.Unlock()
		metrics.Captures.WithLabelValues("discarded").Inc()
		return stale
	}
	c.state = Error
	c.reason = deviceReason(err)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.Captures.WithLabelValues("device_unavailable").Inc()
	slog.Error("Failed to grab frame", "error", err, "userID", id.UserID)
	c.publish(id.UserID, events.TypeState, snap)
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// complete applies a classifier outcome. The lock is held while the result
// is published so that a concurrent Reset or sign-out observes either all
// of it or none of it.
func (c *Controller) complete(id session.Identity, gen uint64, capturedAt time.Time, pred classifier.Prediction, classifyErr error) (Outcome, error) {
	if capturedAt.IsZero() {
		capturedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(gen)

	if stale := c.staleLocked(id, gen); stale != nil {
		c.abandonLocked(gen)
		metrics.Captures.WithLabelValues("discarded").Inc()
		slog.Debug("Discarding stale capture", "userID", id.UserID, "reason", stale)
		return Outcome{}, stale
	}

	c.state = c.returnState

	if classifyErr != nil {
		placeholder := classifier.Result{Label: ErrorPlaceholder, Confidence: 0, CapturedAt: capturedAt}
		c.prediction = placeholder.Label
		c.confidence = 0
		metrics.Captures.WithLabelValues("classification_failed").Inc()
		slog.Error("Failed to classify frame", "error", classifyErr, "userID", id.UserID)
		c.publish(id.UserID, events.TypeState, c.snapshotLocked())
		return Outcome{Result: placeholder}, fmt.Errorf("%w: %v", ErrClassification, classifyErr)
	}

	result := classifier.NewResult(pred, capturedAt)
	c.prediction = result.Label
	c.confidence = result.Confidence

	prefs := c.deps.Prefs.Current()
	entry := c.deps.History.Prepend(result)
	spoken := c.deps.Speaker.MaybeSpeak(result, prefs.Profile)
	if prefs.SaveHistory {
		c.deps.History.Persist(id.Context(), id.UserID, result)
	}

	metrics.Captures.WithLabelValues("ok").Inc()
	slog.Info("Sign recognized",
		"userID", id.UserID,
		"label", result.Label,
		"confidence", result.Confidence,
		"spoken", spoken)

	out := Outcome{Result: result, Entry: entry, Spoken: spoken}
	c.publish(id.UserID, events.TypeResult, out)
	c.publish(id.UserID, events.TypeState, c.snapshotLocked())
	return out, nil
}
