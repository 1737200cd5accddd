package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bosley/signspeak/audio"
)

// espeak-ng speaks at 175 words per minute by default; Rate scales that.
const baseWordsPerMinute = 175

// Player plays a synthesized clip.
type Player interface {
	PlayFile(ctx context.Context, filename string) error
}

// EspeakVoice synthesizes with espeak-ng and plays the clip on the local
// output device.
type EspeakVoice struct {
	Path    string
	TempDir string
	Player  Player
}

func NewEspeakVoice(path string, player Player) *EspeakVoice {
	return &EspeakVoice{Path: path, TempDir: os.TempDir(), Player: player}
}

func (v *EspeakVoice) Say(ctx context.Context, text string, p Profile) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, v.Path, espeakArgs(text, p)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("espeak-ng failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	clip := filepath.Join(v.TempDir, "signspeak-"+uuid.New().String()+".wav")
	if err := audio.SaveStreamedWav(clip, stdout.Bytes()); err != nil {
		return fmt.Errorf("failed to save synthesized clip: %w", err)
	}
	defer os.Remove(clip)

	slog.Debug("Playing utterance", "text", text, "clip", clip, "bytes", stdout.Len())
	return v.Player.PlayFile(ctx, clip)
}

// espeakArgs maps a profile onto espeak-ng flags. Pitch 1.0 is espeak's
// default of 50 and volume 1.0 its default amplitude of 100.
func espeakArgs(text string, p Profile) []string {
	wpm := int(math.Round(baseWordsPerMinute * p.Rate))
	pitch := clampInt(int(math.Round(50*p.Pitch)), 0, 99)
	amplitude := clampInt(int(math.Round(100*p.Volume)), 0, 200)

	return []string{
		"--stdout",
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(pitch),
		"-a", strconv.Itoa(amplitude),
		"-v", espeakVoiceName(p.Language),
		text,
	}
}

// espeakVoiceName turns a BCP 47 tag like "en-US" into espeak's "en-us".
func espeakVoiceName(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "en"
	}
	return strings.ReplaceAll(lang, "_", "-")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LogVoice only logs what would be spoken. Used on hosts without audio.
type LogVoice struct{}

func (LogVoice) Say(ctx context.Context, text string, p Profile) error {
	slog.Info("Speak", "text", text, "rate", p.Rate, "pitch", p.Pitch, "volume", p.Volume, "language", p.Language)
	return ctx.Err()
}

// NewVoice builds the voice for the configured engine.
func NewVoice(engine, espeakPath string, player Player) (Voice, error) {
	switch engine {
	case "", "espeak":
		if _, err := exec.LookPath(espeakPath); err != nil {
			return nil, fmt.Errorf("espeak-ng not found at %q: %w", espeakPath, err)
		}
		return NewEspeakVoice(espeakPath, player), nil
	case "none":
		return LogVoice{}, nil
	default:
		return nil, fmt.Errorf("unknown voice engine %q", engine)
	}
}
