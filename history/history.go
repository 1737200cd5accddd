// Package history keeps the two tiers of translation history: a small local
// list for display and an unbounded persisted log behind Log. Writes to the
// log are fire-and-forget; the local list never waits for or rolls back on
// them.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bosley/signspeak/classifier"
	"github.com/bosley/signspeak/metrics"
)

const (
	// Capacity bounds the local list.
	Capacity = 10
	// PersistedLimit bounds a single fetch from the log.
	PersistedLimit = 50

	displayLayout = "3:04:05 PM"
)

var ErrClosed = errors.New("history store closed")

// Entry is a result as shown in the history list.
type Entry struct {
	ID string `json:"id"`
	classifier.Result
	DisplayTime string `json:"displayTime"`
}

func newEntry(r classifier.Result) Entry {
	return Entry{
		ID:          uuid.New().String(),
		Result:      r,
		DisplayTime: r.CapturedAt.Local().Format(displayLayout),
	}
}

// Log is the durable translation log.
type Log interface {
	Append(ctx context.Context, userID string, r classifier.Result) error
	ListRecent(ctx context.Context, userID string, limit int) ([]classifier.Result, error)
}

type persistJob struct {
	ctx    context.Context
	userID string
	result classifier.Result
}

type Store struct {
	log   Log
	queue chan persistJob

	mu         sync.Mutex
	entries    []Entry
	generation uint64
	closed     bool

	workers sync.WaitGroup
}

// NewStore creates a store whose persistence queue holds queueSize writes.
func NewStore(log Log, queueSize int) *Store {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Store{
		log:     log,
		queue:   make(chan persistJob, queueSize),
		entries: make([]Entry, 0, Capacity),
	}
}

// Start runs the persistence worker until Close is called. Once ctx is
// done the worker stops writing: queued and later writes are dropped with
// a warning and counted as failures.
func (s *Store) Start(ctx context.Context) {
	s.workers.Add(1)
	go s.worker(ctx)
}

// Close stops accepting writes and waits for the worker to exit. While the
// Start context is live, writes already queued are persisted first.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.workers.Wait()
}

// Prepend inserts r at the head of the local list, evicting the oldest
// entry when full.
func (s *Store) Prepend(r classifier.Result) Entry {
	e := newEntry(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]Entry{e}, s.entries...)
	if len(s.entries) > Capacity {
		s.entries = s.entries[:Capacity]
	}
	metrics.HistorySize.Set(float64(len(s.entries)))
	return e
}

// Persist queues r for the durable log. It never blocks and never fails;
// a full queue drops the write with a warning. Writes whose ctx has ended
// by the time they run are discarded.
func (s *Store) Persist(ctx context.Context, userID string, r classifier.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		slog.Warn("Dropping history write, store closed", "userID", userID, "label", r.Label)
		metrics.PersistFailures.Inc()
		return
	}

	select {
	case s.queue <- persistJob{ctx: ctx, userID: userID, result: r}:
	default:
		slog.Warn("Dropping history write, queue full", "userID", userID, "label", r.Label)
		metrics.PersistFailures.Inc()
	}
}

// Record publishes r locally and then queues it for persistence.
func (s *Store) Record(ctx context.Context, userID string, r classifier.Result) Entry {
	e := s.Prepend(r)
	s.Persist(ctx, userID, r)
	return e
}

// LoadPersisted fetches up to PersistedLimit results for userID, newest
// first, and replaces the local list with the newest Capacity of them.
// A failed fetch is logged and leaves the local list alone. A fetch that
// completes after Clear, or after ctx ended, is discarded.
func (s *Store) LoadPersisted(ctx context.Context, userID string) []Entry {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	results, err := s.log.ListRecent(ctx, userID, PersistedLimit)
	if err != nil {
		slog.Warn("Failed to load persisted history", "userID", userID, "error", err)
		return nil
	}

	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, newEntry(r))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || ctx.Err() != nil {
		slog.Debug("Discarding stale history load", "userID", userID)
		return nil
	}

	n := min(len(entries), Capacity)
	s.entries = append(make([]Entry, 0, Capacity), entries[:n]...)
	metrics.HistorySize.Set(float64(len(s.entries)))

	slog.Info("Loaded persisted history", "userID", userID, "fetched", len(entries), "local", n)
	return entries
}

// Clear empties the local list. The persisted log is not touched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]Entry, 0, Capacity)
	s.generation++
	metrics.HistorySize.Set(0)
}

// Entries returns a copy of the local list, newest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Find(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func (s *Store) worker(ctx context.Context) {
	slog.Debug("History worker starting")
	defer func() {
		slog.Debug("History worker shutting down")
		s.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("History worker context cancelled")
			s.dropRemaining()
			return

		case job, ok := <-s.queue:
			if !ok {
				slog.Debug("History queue closed")
				return
			}
			if ctx.Err() != nil {
				s.drop(job)
				s.dropRemaining()
				return
			}
			s.persist(job)
		}
	}
}

// dropRemaining discards writes until the queue is closed.
func (s *Store) dropRemaining() {
	for job := range s.queue {
		s.drop(job)
	}
}

func (s *Store) drop(job persistJob) {
	if job.ctx.Err() != nil {
		slog.Debug("Discarding history write for ended session", "userID", job.userID, "label", job.result.Label)
		return
	}
	slog.Warn("Dropping history write, worker stopped",
		"userID", job.userID,
		"label", job.result.Label)
	metrics.PersistFailures.Inc()
}

func (s *Store) persist(job persistJob) {
	if job.ctx.Err() != nil {
		slog.Debug("Discarding history write for ended session", "userID", job.userID, "label", job.result.Label)
		return
	}

	start := time.Now()
	if err := s.log.Append(job.ctx, job.userID, job.result); err != nil {
		if job.ctx.Err() != nil {
			slog.Debug("History write cancelled", "userID", job.userID, "label", job.result.Label)
			return
		}
		slog.Warn("Failed to persist history entry",
			"error", err,
			"userID", job.userID,
			"label", job.result.Label)
		metrics.PersistFailures.Inc()
		return
	}

	slog.Debug("Persisted history entry",
		"userID", job.userID,
		"label", job.result.Label,
		"took", time.Since(start))
}
