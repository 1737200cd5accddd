package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/signspeak/classifier"
	"github.com/bosley/signspeak/metrics"
)

type fakeLog struct {
	mu       sync.Mutex
	appended []classifier.Result
	stored   []classifier.Result

	appendErr error
	listErr   error
	// listGate, when set, blocks ListRecent until closed.
	listGate    chan struct{}
	listStarted chan struct{}
	appendCh    chan classifier.Result
}

func (f *fakeLog) Append(ctx context.Context, userID string, r classifier.Result) error {
	f.mu.Lock()
	err := f.appendErr
	if err == nil {
		f.appended = append(f.appended, r)
	}
	ch := f.appendCh
	f.mu.Unlock()
	if ch != nil {
		ch <- r
	}
	return err
}

func (f *fakeLog) ListRecent(ctx context.Context, userID string, limit int) ([]classifier.Result, error) {
	if f.listStarted != nil {
		close(f.listStarted)
	}
	if f.listGate != nil {
		<-f.listGate
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.stored[:min(limit, len(f.stored))], nil
}

func result(label string, i int) classifier.Result {
	return classifier.Result{
		Label:      label,
		Confidence: 60 + i,
		CapturedAt: time.Date(2025, 1, 1, 15, 4, 5, 0, time.Local).Add(time.Duration(i) * time.Second),
	}
}

func TestPrependKeepsNewestTen(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := NewStore(&fakeLog{}, 0)
			for i := 0; i < n; i++ {
				s.Prepend(result(fmt.Sprintf("L%d", i), i))
			}

			entries := s.Entries()
			require.Len(t, entries, min(n, Capacity))
			for i, e := range entries {
				assert.Equal(t, fmt.Sprintf("L%d", n-1-i), e.Label)
			}
		})
	}
}

func TestEntryFields(t *testing.T) {
	s := NewStore(&fakeLog{}, 0)
	e := s.Prepend(result("HELLO", 0))

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "3:04:05 PM", e.DisplayTime)

	found, ok := s.Find(e.ID)
	require.True(t, ok)
	assert.Equal(t, e, found)

	_, ok = s.Find("missing")
	assert.False(t, ok)
}

func TestPersistFailureDoesNotRollBack(t *testing.T) {
	log := &fakeLog{appendErr: errors.New("db down"), appendCh: make(chan classifier.Result, 1)}
	s := NewStore(log, 4)
	s.Start(context.Background())
	defer s.Close()

	s.Record(context.Background(), "user-1", result("YES", 0))

	select {
	case <-log.appendCh:
	case <-time.After(2 * time.Second):
		t.Fatal("persist was never attempted")
	}
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "YES", s.Entries()[0].Label)
}

func TestPersistWritesInOrder(t *testing.T) {
	log := &fakeLog{}
	s := NewStore(log, 8)
	s.Start(context.Background())

	ctx := context.Background()
	s.Record(ctx, "user-1", result("A", 0))
	s.Record(ctx, "user-1", result("B", 1))
	s.Close()

	require.Len(t, log.appended, 2)
	assert.Equal(t, "A", log.appended[0].Label)
	assert.Equal(t, "B", log.appended[1].Label)
}

func TestPersistDropsWhenQueueFull(t *testing.T) {
	log := &fakeLog{}
	s := NewStore(log, 1)

	ctx := context.Background()
	s.Persist(ctx, "user-1", result("A", 0))
	s.Persist(ctx, "user-1", result("B", 1))

	s.Start(context.Background())
	s.Close()

	require.Len(t, log.appended, 1)
	assert.Equal(t, "A", log.appended[0].Label)

	// After Close, writes are dropped rather than panicking.
	s.Persist(ctx, "user-1", result("C", 2))
}

func TestPersistSkipsEndedSession(t *testing.T) {
	log := &fakeLog{}
	s := NewStore(log, 4)

	ctx, cancel := context.WithCancel(context.Background())
	s.Persist(ctx, "user-1", result("A", 0))
	cancel()

	s.Start(context.Background())
	s.Close()
	assert.Empty(t, log.appended)
}

func TestStoppedWorkerCountsDroppedWrites(t *testing.T) {
	log := &fakeLog{}
	s := NewStore(log, 4)
	before := testutil.ToFloat64(metrics.PersistFailures)

	ended, cancelSession := context.WithCancel(context.Background())
	cancelSession()
	s.Persist(context.Background(), "user-1", result("A", 0))
	s.Persist(context.Background(), "user-1", result("B", 1))
	s.Persist(ended, "user-1", result("C", 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
	s.Close()

	assert.Empty(t, log.appended)
	// C belonged to an ended session and is not a failure.
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PersistFailures)-before)
}

func TestLoadPersistedSeedsNewestTen(t *testing.T) {
	log := &fakeLog{}
	for i := 0; i < 60; i++ {
		log.stored = append(log.stored, result(fmt.Sprintf("P%d", i), i))
	}
	s := NewStore(log, 0)

	got := s.LoadPersisted(context.Background(), "user-1")
	require.Len(t, got, PersistedLimit)
	assert.Equal(t, "P0", got[0].Label)

	entries := s.Entries()
	require.Len(t, entries, Capacity)
	assert.Equal(t, "P0", entries[0].Label)
	assert.Equal(t, "P9", entries[9].Label)
}

func TestClearThenLoadStillReturnsPersisted(t *testing.T) {
	log := &fakeLog{stored: []classifier.Result{result("A", 0), result("B", 1)}}
	s := NewStore(log, 0)
	s.Prepend(result("LOCAL", 2))

	s.Clear()
	assert.Equal(t, 0, s.Len())

	got := s.LoadPersisted(context.Background(), "user-1")
	assert.Len(t, got, 2)
	assert.Equal(t, 2, s.Len())
}

func TestLoadPersistedFailureLeavesListEmpty(t *testing.T) {
	s := NewStore(&fakeLog{listErr: errors.New("network")}, 0)

	got := s.LoadPersisted(context.Background(), "user-1")
	assert.Nil(t, got)
	assert.Equal(t, 0, s.Len())
}

func TestLateLoadAfterClearIsDiscarded(t *testing.T) {
	gate, started := make(chan struct{}), make(chan struct{})
	log := &fakeLog{stored: []classifier.Result{result("A", 0)}, listGate: gate, listStarted: started}
	s := NewStore(log, 0)

	done := make(chan []Entry)
	go func() { done <- s.LoadPersisted(context.Background(), "user-1") }()

	<-started
	s.Clear()
	close(gate)

	assert.Nil(t, <-done)
	assert.Equal(t, 0, s.Len())
}

func TestLateLoadAfterCancelIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	log := &fakeLog{stored: []classifier.Result{result("A", 0)}, listGate: gate}
	s := NewStore(log, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []Entry)
	go func() { done <- s.LoadPersisted(ctx, "user-1") }()

	cancel()
	close(gate)

	assert.Nil(t, <-done)
	assert.Equal(t, 0, s.Len())
}
