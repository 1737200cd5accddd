package speech

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidProfile = errors.New("invalid voice profile")

// Profile carries the user's voice preferences. It is passed explicitly to
// every speech call.
type Profile struct {
	Rate                float64 `yaml:"voice_rate" json:"voiceRate"`
	Pitch               float64 `yaml:"voice_pitch" json:"voicePitch"`
	Volume              float64 `yaml:"voice_volume" json:"voiceVolume"`
	Language            string  `yaml:"voice_language" json:"voiceLanguage"`
	AutoSpeak           bool    `yaml:"auto_speak" json:"autoSpeak"`
	ConfidenceThreshold int     `yaml:"confidence_threshold" json:"confidenceThreshold"`
}

const (
	MinRate, MaxRate           = 0.5, 2.0
	MinPitch, MaxPitch         = 0.5, 2.0
	MinVolume, MaxVolume       = 0.0, 1.0
	MinThreshold, MaxThreshold = 50, 95
)

// DefaultProfile returns the documented defaults.
func DefaultProfile() Profile {
	return Profile{
		Rate:                0.8,
		Pitch:               1.0,
		Volume:              1.0,
		Language:            "en-US",
		AutoSpeak:           true,
		ConfidenceThreshold: 70,
	}
}

func (p Profile) Validate() error {
	// NaN slips through every range comparison below.
	if math.IsNaN(p.Rate) || math.IsNaN(p.Pitch) || math.IsNaN(p.Volume) {
		return fmt.Errorf("%w: rate, pitch and volume must be numbers", ErrInvalidProfile)
	}
	if p.Rate < MinRate || p.Rate > MaxRate {
		return fmt.Errorf("%w: rate %.2f outside %.1f-%.1f", ErrInvalidProfile, p.Rate, MinRate, MaxRate)
	}
	if p.Pitch < MinPitch || p.Pitch > MaxPitch {
		return fmt.Errorf("%w: pitch %.2f outside %.1f-%.1f", ErrInvalidProfile, p.Pitch, MinPitch, MaxPitch)
	}
	if p.Volume < MinVolume || p.Volume > MaxVolume {
		return fmt.Errorf("%w: volume %.2f outside %.1f-%.1f", ErrInvalidProfile, p.Volume, MinVolume, MaxVolume)
	}
	if p.ConfidenceThreshold < MinThreshold || p.ConfidenceThreshold > MaxThreshold {
		return fmt.Errorf("%w: confidence threshold %d outside %d-%d", ErrInvalidProfile, p.ConfidenceThreshold, MinThreshold, MaxThreshold)
	}
	if strings.TrimSpace(p.Language) == "" {
		return fmt.Errorf("%w: language is empty", ErrInvalidProfile)
	}
	return nil
}
