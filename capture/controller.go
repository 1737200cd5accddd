// Package capture drives the capture-to-feedback pipeline for the signed-in
// user: grab a frame, classify it, then publish the result to history,
// speech and persistence.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/signspeak/camera"
	"github.com/bosley/signspeak/classifier"
	"github.com/bosley/signspeak/events"
	"github.com/bosley/signspeak/history"
	"github.com/bosley/signspeak/session"
	"github.com/bosley/signspeak/settings"
	"github.com/bosley/signspeak/speech"
)

// ErrorPlaceholder is shown in place of a prediction when classification
// fails.
const ErrorPlaceholder = "Error processing image"

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrCaptureInFlight   = errors.New("capture already in progress")
	ErrDeviceUnavailable = errors.New("camera unavailable")
	ErrClassification    = errors.New("classification failed")
	ErrSessionEnded      = errors.New("session ended during capture")
	ErrDiscarded         = errors.New("capture discarded by reset")
	ErrNotAuthenticated  = session.ErrNotAuthenticated
)

type State int

const (
	Idle State = iota
	Recording
	Capturing
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Capturing:
		return "capturing"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is the admitted identity the controller works for.
type Session interface {
	Current() (session.Identity, bool)
	Epoch() uint64
}

type Speaker interface {
	MaybeSpeak(r classifier.Result, p speech.Profile) bool
}

type History interface {
	Prepend(r classifier.Result) history.Entry
	Persist(ctx context.Context, userID string, r classifier.Result)
}

type Preferences interface {
	Current() settings.Settings
}

type Archiver interface {
	Save(userID string, f camera.Frame) (string, error)
}

// Snapshot is the controller's display state.
type Snapshot struct {
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
	Prediction string `json:"prediction"`
	Confidence int    `json:"confidence"`
}

// Outcome is what a successful capture produced.
type Outcome struct {
	Result classifier.Result `json:"result"`
	Entry  history.Entry     `json:"entry"`
	Spoken bool              `json:"spoken"`
}

// Deps are the controller's collaborators. Archive and Events are optional.
type Deps struct {
	Source     camera.Source
	Classifier classifier.Classifier
	Session    Session
	Speaker    Speaker
	History    History
	Prefs      Preferences
	Archive    Archiver
	Events     events.Publisher

	// ClassifyTimeout bounds a single classifier call; zero means none.
	ClassifyTimeout time.Duration
}

type Controller struct {
	deps Deps

	mu          sync.Mutex
	state       State
	returnState State
	reason      string
	prediction  string
	confidence  int
	// gen changes on Reset so in-flight captures can tell they were dropped
	gen uint64
	// cancelInflight stops the running capture's grab and classify calls
	cancelInflight context.CancelFunc

	now func() time.Time
}

func NewController(deps Deps) *Controller {
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	return &Controller{deps: deps, state: Idle, now: time.Now}
}

// Start begins a recording session. Valid from Idle or Error.
func (c *Controller) Start() error {
	id, ok := c.deps.Session.Current()
	if !ok {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	switch c.state {
	case Idle, Error:
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, st)
	}
	c.state = Recording
	c.reason = ""
	c.prediction = ""
	c.confidence = 0
	snap := c.snapshotLocked()
	c.mu.Unlock()

	slog.Info("Recording started", "userID", id.UserID)
	c.publish(id.UserID, events.TypeState, snap)
	return nil
}

// Stop ends recording. A stop during a capture that began while recording
// makes the capture return to Idle. Stop is a no-op in any other state.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.state {
	case Recording:
		c.state = Idle
	case Capturing:
		c.returnState = Idle
	default:
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	slog.Info("Recording stopped", "state", snap.State)
	if id, ok := c.deps.Session.Current(); ok {
		c.publish(id.UserID, events.TypeState, snap)
	}
}

// Reset returns to Idle and clears the display. A capture in flight is
// cancelled and completes without effect.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.cancelInflight != nil {
		c.cancelInflight()
		c.cancelInflight = nil
	}
	c.state = Idle
	c.returnState = Idle
	c.reason = ""
	c.prediction = ""
	c.confidence = 0
	c.gen++
	c.mu.Unlock()

	slog.Debug("Capture controller reset")
}

// Retry re-acquires the camera after a device failure.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Error {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, st)
	}
	gen := c.gen
	c.mu.Unlock()

	err := c.deps.Source.Ready(ctx)

	c.mu.Lock()
	if gen != c.gen || c.state != Error {
		c.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		c.reason = deviceReason(err)
		c.mu.Unlock()
		slog.Warn("Camera still unavailable", "error", err)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	c.state = Idle
	c.reason = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()

	slog.Info("Camera available again")
	if id, ok := c.deps.Session.Current(); ok {
		c.publish(id.UserID, events.TypeState, snap)
	}
	return nil
}

// Snapshot returns the current display state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:      c.state.String(),
		Reason:     c.reason,
		Prediction: c.prediction,
		Confidence: c.confidence,
	}
}

func (c *Controller) publish(userID, typ string, payload any) {
	c.deps.Events.Publish(events.New(typ, userID, payload))
}

func deviceReason(err error) string {
	return "Camera unavailable: " + err.Error()
}
