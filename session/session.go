// Package session gates the pipeline on an authenticated identity. There
// is at most one session per process; admitting a new identity ends the
// previous one, and ending a session tears down everything it produced.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/signspeak/auth"
	"github.com/bosley/signspeak/history"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// Identity is the admitted user. Epoch changes on every admit and revoke,
// so work started under one identity can detect that it is stale.
type Identity struct {
	UserID string
	Email  string
	Epoch  uint64

	ctx context.Context
}

// Context is cancelled when the session ends.
func (i Identity) Context() context.Context {
	if i.ctx == nil {
		return context.Background()
	}
	return i.ctx
}

type Verifier interface {
	Verify(token string) (auth.Claims, error)
}

// History is the part of the history store a session drives.
type History interface {
	LoadPersisted(ctx context.Context, userID string) []history.Entry
	Clear()
}

// Canceler stops in-progress speech.
type Canceler interface {
	Cancel()
}

type Gate struct {
	verifier Verifier
	history  History
	voice    Canceler

	mu       sync.Mutex
	current  *Identity
	cancel   context.CancelFunc
	epoch    uint64
	onRevoke []func(Identity)
}

func NewGate(v Verifier, h History, voice Canceler) *Gate {
	return &Gate{verifier: v, history: h, voice: voice}
}

// OnRevoke registers fn to run, in order, whenever a session ends.
func (g *Gate) OnRevoke(fn func(Identity)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRevoke = append(g.onRevoke, fn)
}

// Admit verifies token, ends any existing session, and loads the user's
// persisted history into the local list. The returned entries are the
// full fetch; a failed fetch yields none.
func (g *Gate) Admit(ctx context.Context, token string) (Identity, []history.Entry, error) {
	claims, err := g.verifier.Verify(token)
	if err != nil {
		return Identity{}, nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	g.Revoke()

	sessCtx, cancel := context.WithCancel(context.Background())

	g.mu.Lock()
	g.epoch++
	id := Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Epoch:  g.epoch,
		ctx:    sessCtx,
	}
	g.current = &id
	g.cancel = cancel
	g.mu.Unlock()

	slog.Info("Session admitted", "userID", id.UserID, "email", id.Email, "epoch", id.Epoch)

	loadCtx, stop := context.WithCancel(sessCtx)
	defer stop()
	unregister := context.AfterFunc(ctx, stop)
	defer unregister()

	entries := g.history.LoadPersisted(loadCtx, id.UserID)
	return id, entries, nil
}

// Revoke ends the current session: the session context is cancelled,
// revoke hooks run, speech stops and the local history is cleared. Calling
// it without a session does nothing.
func (g *Gate) Revoke() {
	g.mu.Lock()
	if g.current == nil {
		g.mu.Unlock()
		return
	}
	id := *g.current
	cancel := g.cancel
	g.current = nil
	g.cancel = nil
	g.epoch++
	hooks := append([]func(Identity){}, g.onRevoke...)
	g.mu.Unlock()

	cancel()
	// Hooks reset the controller, which waits out any completing capture,
	// so speech and history are cleared after anything it published.
	for _, fn := range hooks {
		fn(id)
	}
	if g.voice != nil {
		g.voice.Cancel()
	}
	g.history.Clear()

	slog.Info("Session revoked", "userID", id.UserID, "epoch", id.Epoch)
}

func (g *Gate) Current() (Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return Identity{}, false
	}
	return *g.current, true
}

func (g *Gate) IsAuthenticated() bool {
	_, ok := g.Current()
	return ok
}

// Epoch returns the current session epoch.
func (g *Gate) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// Verify checks token without admitting it and reports whether it belongs
// to the admitted identity.
func (g *Gate) Verify(token string) (Identity, error) {
	claims, err := g.verifier.Verify(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	id, ok := g.Current()
	if !ok || id.UserID != claims.UserID {
		return Identity{}, ErrNotAuthenticated
	}
	return id, nil
}
