package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bosley/signspeak/camera"
	"github.com/bosley/signspeak/signs"
)

var ErrBadReply = errors.New("unparseable classifier reply")

func systemPrompt() string {
	return `You recognise a single hand sign in a webcam PHOTO.
Pick exactly one label from this closed list (case-sensitive):
` + strings.Join(signs.Labels(), ", ") + `
If no hand sign is visible, answer with the label "UNKNOWN" and confidence 0.
Return STRICT JSON only, no prose:
{"label": string, "confidence": integer 0-100}`
}

const userPrompt = "Classify the sign in this photo. JSON only."

type reply struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// parseReply decodes a model answer into a Prediction. Fractional
// confidences in [0,1] are scaled to percent.
func parseReply(text string) (Prediction, error) {
	text = stripCodeFences(strings.TrimSpace(text))
	if text == "" {
		return Prediction{}, fmt.Errorf("%w: empty", ErrBadReply)
	}

	var r reply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrBadReply, err)
	}

	label := signs.Normalize(r.Label)
	if label == "" {
		return Prediction{}, fmt.Errorf("%w: missing label", ErrBadReply)
	}

	conf := r.Confidence
	if conf > 0 && conf <= 1 && math.Trunc(conf) != conf {
		conf *= 100
	}
	if !signs.Known(label) {
		conf = 0
	}

	return Prediction{Label: label, Confidence: clampConfidence(int(math.Round(conf)))}, nil
}

func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func frameMIME(mime string, data []byte) string {
	if mime != "" {
		return mime
	}
	if m := camera.SniffMIME(data); m != "" {
		return m
	}
	return "image/jpeg"
}
