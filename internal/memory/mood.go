package memory

// Mood is an emotional tag attached to a memory.
type Mood string

const (
	Peaceful    Mood = "Peaceful"
	Joyful      Mood = "Joyful"
	Nostalgic   Mood = "Nostalgic"
	Bittersweet Mood = "Bittersweet"
	Adventurous Mood = "Adventurous"
	Loving      Mood = "Loving"
)

// DefaultMood is applied when no mood was selected.
const DefaultMood = Nostalgic

// Moods lists the fixed set in selector order.
var Moods = []Mood{Peaceful, Joyful, Nostalgic, Bittersweet, Adventurous, Loving}

// Valid reports whether m belongs to the fixed set.
func (m Mood) Valid() bool {
	for _, v := range Moods {
		if m == v {
			return true
		}
	}
	return false
}

func (m Mood) String() string { return string(m) }

// ParseMood matches s against the set, case-sensitively.
func ParseMood(s string) (Mood, error) {
	m := Mood(s)
	if !m.Valid() {
		return "", ErrInvalidMood
	}
	return m, nil
}

// MoodNames returns the set as strings, for form options and tool schemas.
func MoodNames() []string {
	out := make([]string, len(Moods))
	for i, m := range Moods {
		out[i] = string(m)
	}
	return out
}
