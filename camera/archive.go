package camera

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Archive stores captured frames under <dir>/<YYYYMMDD>/<userID>/.
type Archive struct {
	dir string
	now func() time.Time

	mu         sync.Mutex
	currentDay string
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir, now: time.Now}
}

// Save writes the frame and returns its path.
func (a *Archive) Save(userID string, f Frame) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateCurrentDay()

	userDir := filepath.Join(a.dir, a.currentDay, userID)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}

	ext := ".jpg"
	switch f.MIMEType {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}

	timestamp := f.Timestamp
	if timestamp.IsZero() {
		timestamp = a.now()
	}
	name := fmt.Sprintf("frame_%s_%d%s", timestamp.Format("150405"), f.Seq, ext)
	path := filepath.Join(userDir, name)

	if err := os.WriteFile(path, f.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write frame: %w", err)
	}
	return path, nil
}

func (a *Archive) updateCurrentDay() {
	newDay := a.now().Format("20060102")
	if newDay == a.currentDay {
		return
	}
	a.currentDay = newDay
	dailyDir := filepath.Join(a.dir, a.currentDay)
	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		slog.Error("Failed to create daily directory", "error", err, "path", dailyDir)
	} else {
		slog.Info("Created new daily directory", "path", dailyDir)
	}
}
