package insight

import (
	"fmt"
	"strings"

	"github.com/kalambet/capsule/internal/memory"
)

// SystemPrompt instructs the model to answer with a Set as bare JSON.
const SystemPrompt = `You analyze a person's saved memories and find deep emotional patterns.
Return ONLY a valid JSON object — no markdown, no backticks, no explanation:
{
  "insights": [
    { "icon": "emoji", "label": "short label", "value": "1-2 sentence insight" },
    { "icon": "emoji", "label": "short label", "value": "1-2 sentence insight" },
    { "icon": "emoji", "label": "short label", "value": "1-2 sentence insight" },
    { "icon": "emoji", "label": "short label", "value": "1-2 sentence insight" }
  ],
  "bigPicture": "2-3 sentences about the overall pattern. What truly brings this person happiness? Be specific, emotional, insightful.",
  "message": "A warm, personal message to this person based on their memories. Like a letter from someone who knows them deeply. 2-3 sentences. Make it feel like a gentle revelation."
}`

// ReflectionPrompt instructs the model to reflect on a single memory.
const ReflectionPrompt = `You read one saved memory of a person and reflect on what it reveals about them.
Answer with 2-3 warm, specific sentences addressed to the person as "you".
Plain text only — no markdown, no lists, no quotes around the answer.`

// BuildPatternPrompt lists every memory, one per line, for bulk discovery.
func BuildPatternPrompt(records []memory.Record) string {
	var b strings.Builder
	b.WriteString("Here are my memories:\n")
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(describe(i+1, r))
	}
	b.WriteString("\n\nAnalyze my patterns.")
	return b.String()
}

// BuildReflectionPrompt describes a single memory.
func BuildReflectionPrompt(r memory.Record) string {
	return "Here is one of my memories:\n" + describe(1, r) + "\n\nWhat does it say about me?"
}

func describe(n int, r memory.Record) string {
	return fmt.Sprintf("Memory %d: \"%s\" | Where: %s | When: %s | Mood: %s | Description: %s",
		n, r.Title, orUnknown(r.Place), orUnknown(r.Date), r.Mood, r.Desc)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
