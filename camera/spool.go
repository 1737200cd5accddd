package camera

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SpoolSource serves the most recent image an external capture tool wrote
// into a directory. Each version of a file is handed out at most once, so
// a tool that keeps overwriting one name still yields a frame per write.
type SpoolSource struct {
	dir     string
	watcher *fsnotify.Watcher

	// SettleTimeout bounds how long Grab waits for a half-written image
	// to be completed.
	SettleTimeout time.Duration

	mu      sync.Mutex
	latest  string
	served  spoolVersion
	seq     uint64
	running bool
}

// spoolVersion identifies one write of a spool file.
type spoolVersion struct {
	name    string
	modTime int64
	size    int64
}

const settlePoll = 25 * time.Millisecond

func NewSpoolSource(dir string) (*SpoolSource, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &SpoolSource{
		dir:           dir,
		watcher:       watcher,
		SettleTimeout: 500 * time.Millisecond,
	}
	s.latest = s.scanNewest()
	return s, nil
}

// Watch follows the spool directory until ctx is done.
func (s *SpoolSource) Watch(ctx context.Context) error {
	if err := s.watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	slog.Info("Started watching spool directory", "path", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Spool watcher error", "error", err)
		}
	}
}

func (s *SpoolSource) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isImageFile(event.Name) {
		return
	}

	s.mu.Lock()
	s.latest = event.Name
	s.mu.Unlock()

	slog.Debug("Spool frame updated", "file", filepath.Base(event.Name))
}

func (s *SpoolSource) Ready(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceMissing, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDeviceMissing, s.dir)
	}
	return nil
}

func (s *SpoolSource) Grab(ctx context.Context) (Frame, error) {
	if err := s.Ready(ctx); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	if !s.running {
		// Without a watcher the directory listing is the only signal.
		s.latest = s.scanNewest()
	}
	name := s.latest
	served := s.served
	s.mu.Unlock()

	if name == "" {
		return Frame{}, ErrNoFrame
	}

	data, version, err := s.readSettled(ctx, name)
	if err != nil {
		return Frame{}, err
	}
	if version == served {
		return Frame{}, ErrNoFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.served = version
	s.seq++
	return Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Data:      data,
		MIMEType:  SniffMIME(data),
	}, nil
}

// readSettled reads name until it holds a complete image or SettleTimeout
// passes. A writer still appending shows up as a truncated image.
func (s *SpoolSource) readSettled(ctx context.Context, name string) ([]byte, spoolVersion, error) {
	deadline := time.Now().Add(s.SettleTimeout)
	for {
		info, err := os.Stat(name)
		if err != nil {
			return nil, spoolVersion{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
		}
		version := spoolVersion{name: name, modTime: info.ModTime().UnixNano(), size: info.Size()}

		data, err := os.ReadFile(name)
		if err != nil {
			return nil, spoolVersion{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
		}
		if len(data) > 0 && imageComplete(data) {
			version.size = int64(len(data))
			return data, version, nil
		}

		if !time.Now().Before(deadline) {
			slog.Debug("Spool frame incomplete", "file", filepath.Base(name), "bytes", len(data))
			return nil, spoolVersion{}, fmt.Errorf("%w: %s is incomplete", ErrNoFrame, filepath.Base(name))
		}
		select {
		case <-ctx.Done():
			return nil, spoolVersion{}, ctx.Err()
		case <-time.After(settlePoll):
		}
	}
}

var pngTrailer = []byte{0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82}

// imageComplete checks the format's end marker: JPEG EOI, PNG IEND, or the
// RIFF length for WebP. Unknown formats are taken as they are.
func imageComplete(b []byte) bool {
	switch SniffMIME(b) {
	case "image/jpeg":
		return len(b) >= 4 && b[len(b)-2] == 0xFF && b[len(b)-1] == 0xD9
	case "image/png":
		return bytes.HasSuffix(b, pngTrailer)
	case "image/webp":
		return int(binary.LittleEndian.Uint32(b[4:8]))+8 <= len(b)
	}
	return true
}

func (s *SpoolSource) Close() error {
	return s.watcher.Close()
}

func (s *SpoolSource) scanNewest() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}
	var (
		newest  string
		newestT time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isImageFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest = filepath.Join(s.dir, e.Name())
			newestT = info.ModTime()
		}
	}
	return newest
}

func isImageFile(name string) bool {
	if strings.HasSuffix(name, ".tmp") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}
