// Package signs holds the closed vocabulary of signs the pipeline can
// report, together with the reference descriptions shown in the guide.
package signs

import "strings"

// Sign is a single entry of the reference guide.
type Sign struct {
	Label       string `json:"sign"`
	Description string `json:"description"`
	Gesture     string `json:"gesture"`
}

// Category groups signs for display.
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Signs []Sign `json:"signs"`
}

// Core is the set of signs the bundled classifier knows about. Every
// label in Core also appears in the guide categories.
var Core = []string{
	"A", "B", "C", "HELLO", "THANK YOU", "YES", "NO", "PLEASE", "SORRY", "HELP",
}

var coreDescriptions = map[string]string{
	"A":         "Letter A - Fist with thumb on side",
	"B":         "Letter B - Flat hand with fingers together",
	"C":         "Letter C - Curved hand like letter C",
	"HELLO":     "Hello - Wave hand",
	"THANK YOU": "Thank you - Hand from chin forward",
	"YES":       "Yes - Fist nodding up and down",
	"NO":        "No - Index and middle finger tapping thumb",
	"PLEASE":    "Please - Flat hand rubbing in circular motion",
	"SORRY":     "Sorry - Fist making circular motion over heart",
	"HELP":      "Help - One hand on top of other, both moving up",
}

var categories = []Category{
	{
		ID:    "alphabet",
		Title: "Alphabet Signs",
		Signs: []Sign{
			{"A", "Fist with thumb on side", "👊"},
			{"B", "Flat hand with fingers together", "✋"},
			{"C", "Curved hand like letter C", "🤏"},
			{"D", "Index finger pointing up", "☝️"},
			{"E", "Fist with fingers curled", "✊"},
			{"F", "Index and thumb touching, other fingers up", "🤌"},
			{"G", "Index finger pointing to side", "👉"},
			{"H", "Index and middle finger pointing up", "✌️"},
			{"I", "Pinky finger pointing up", "🤙"},
			{"J", "Pinky finger making J motion", "🤙"},
			{"K", "Index and middle finger pointing up, thumb between", "🤞"},
			{"L", "Thumb and index finger making L shape", "🤟"},
			{"M", "Three fingers pointing down", "🤟"},
			{"N", "Two fingers pointing down", "✌️"},
			{"O", "Fingers curled into circle", "👌"},
			{"P", "Index finger pointing down", "👇"},
			{"Q", "Index finger pointing down and to side", "👉"},
			{"R", "Index and middle finger crossed", "🤞"},
			{"S", "Fist", "✊"},
			{"T", "Index finger pointing up between other fingers", "🤟"},
			{"U", "Index and middle finger pointing up", "✌️"},
			{"V", "Index and middle finger pointing up", "✌️"},
			{"W", "Three fingers pointing up", "🤟"},
			{"X", "Index finger bent", "🤟"},
			{"Y", "Thumb and pinky pointing up", "🤙"},
			{"Z", "Index finger making Z motion", "👉"},
		},
	},
	{
		ID:    "common",
		Title: "Common Words",
		Signs: []Sign{
			{"HELLO", "Wave hand", "👋"},
			{"THANK YOU", "Hand from chin forward", "🤲"},
			{"YES", "Fist nodding up and down", "👍"},
			{"NO", "Index and middle finger tapping thumb", "👎"},
			{"PLEASE", "Flat hand rubbing in circular motion", "🤲"},
			{"SORRY", "Fist making circular motion over heart", "💝"},
			{"HELP", "One hand on top of other, both moving up", "🤝"},
			{"GOOD", "Flat hand touching chin then moving forward", "👍"},
			{"BAD", "Flat hand touching chin then moving down", "👎"},
			{"WANT", "Both hands pulling toward body", "🤲"},
			{"NEED", "Index finger pointing to chest", "👆"},
			{"UNDERSTAND", "Index finger pointing to forehead", "🤔"},
			{"DON'T UNDERSTAND", "Index finger pointing to forehead then shaking", "🤷"},
			{"NAME", "Index and middle finger tapping", "✌️"},
			{"WHAT", "Both hands palms up", "🤲"},
			{"WHERE", "Index finger pointing around", "👉"},
			{"WHEN", "Index finger pointing to wrist", "⌚"},
			{"WHO", "Index finger pointing to person", "👆"},
			{"WHY", "Index finger pointing to forehead", "🤔"},
			{"HOW", "Both hands palms up moving up and down", "🤲"},
		},
	},
	{
		ID:    "numbers",
		Title: "Number Signs",
		Signs: []Sign{
			{"1", "Index finger pointing up", "☝️"},
			{"2", "Index and middle finger pointing up", "✌️"},
			{"3", "Three fingers pointing up", "🤟"},
			{"4", "Four fingers pointing up", "🤟"},
			{"5", "All five fingers pointing up", "✋"},
			{"6", "Thumb and pinky pointing up", "🤙"},
			{"7", "Thumb and index finger pointing up", "🤟"},
			{"8", "Thumb and three fingers pointing up", "🤟"},
			{"9", "Index finger bent", "🤟"},
			{"10", "Fist with thumb pointing up", "👍"},
		},
	},
}

// Categories returns the guide categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Normalize upper-cases and trims a label so model output can be matched
// against the vocabulary.
func Normalize(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// Known reports whether label is part of the vocabulary.
func Known(label string) bool {
	_, ok := lookup(Normalize(label))
	return ok
}

// Describe returns the human readable description for label. Unknown
// labels yield "No description available".
func Describe(label string) string {
	label = Normalize(label)
	if d, ok := coreDescriptions[label]; ok {
		return d
	}
	if s, ok := lookup(label); ok {
		return s.Description
	}
	return "No description available"
}

// Labels lists every label in the guide.
func Labels() []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range categories {
		for _, s := range c.Signs {
			if seen[s.Label] {
				continue
			}
			seen[s.Label] = true
			out = append(out, s.Label)
		}
	}
	return out
}

func lookup(label string) (Sign, bool) {
	for _, c := range categories {
		for _, s := range c.Signs {
			if s.Label == label {
				return s, true
			}
		}
	}
	return Sign{}, false
}
