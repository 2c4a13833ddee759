package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned by Reflect when no language model is configured.
var ErrUnavailable = errors.New("insight: no language model configured")

// ErrMalformed is returned by Parse when the model output is not a usable Set.
var ErrMalformed = errors.New("insight: malformed model output")

// Item is one labelled observation.
type Item struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Set is the result of a bulk pattern discovery.
type Set struct {
	Insights   []Item `json:"insights"`
	BigPicture string `json:"bigPicture"`
	Message    string `json:"message"`
}

// Valid reports whether s has the shape the page can render.
func (s Set) Valid() bool {
	if len(s.Insights) == 0 || s.BigPicture == "" || s.Message == "" {
		return false
	}
	for _, it := range s.Insights {
		if it.Label == "" || it.Value == "" {
			return false
		}
	}
	return true
}

// StripFences removes markdown code-fence markers and surrounding space.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// Parse decodes model output into a Set. Fenced and unfenced text parse alike.
func Parse(text string) (Set, error) {
	var s Set
	if err := json.Unmarshal([]byte(StripFences(text)), &s); err != nil {
		return Set{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !s.Valid() {
		return Set{}, fmt.Errorf("%w: missing fields", ErrMalformed)
	}
	return s, nil
}

// Fallback returns the canned Set used whenever discovery cannot produce one.
func Fallback() Set {
	return Set{
		Insights: []Item{
			{Icon: "🌊", Label: "Where you feel free", Value: "Most of your happiest moments happen near water or open spaces — the sea, the road, a window. You need openness to feel alive."},
			{Icon: "👥", Label: "Who matters most", Value: "Your best memories almost always involve family — especially quiet moments with them, not big events."},
			{Icon: "🌅", Label: "When magic happens", Value: "You're drawn to early mornings and late nights — the edges of the day when the world is quiet and belongs to you."},
			{Icon: "🤫", Label: "What you overlook", Value: "Some of your deepest memories are ordinary moments. You find meaning in stillness, not just in milestones."},
		},
		BigPicture: "You are someone who finds joy not in loud celebrations, but in quiet presence — the smell of coffee, the sound of someone you love, the feeling of being exactly where you're supposed to be. Your happiest self is unhurried.",
		Message:    "You've been collecting proof of a beautiful life without even realizing it. These memories aren't random — they're telling you something. The things that made you feel most alive? You can have more of them. You know what they are now.",
	}
}

var moodFallbacks = map[string]string{
	"Peaceful":    "There's something about stillness that you seek — and this memory is proof you know how to find it. You didn't need anything extraordinary. Just the right moment, and you were completely present.",
	"Joyful":      "Joy like this doesn't happen by accident. You were exactly where you needed to be, with exactly the right people. This memory is a map back to your happiest self.",
	"Nostalgic":   "This memory lives in you because part of you knows that moment was rare. You felt it even then — that quiet awareness that something beautiful was happening.",
	"Bittersweet": "The most meaningful memories often carry both joy and ache. This one stayed with you because it mattered — deeply, truly, in a way that changed something in you.",
	"Adventurous": "You were fully alive in this memory. No hesitation, no plan — just you and the moment. This is the version of yourself you return to when you need courage.",
	"Loving":      "Love like this is the kind that leaves a mark. This memory isn't just about the people in it — it's about who you become when you're surrounded by them.",
}

// MoodFallback returns the canned reflection for mood. Unknown moods get
// the Nostalgic text.
func MoodFallback(mood string) string {
	if text, ok := moodFallbacks[mood]; ok {
		return text
	}
	return moodFallbacks["Nostalgic"]
}
