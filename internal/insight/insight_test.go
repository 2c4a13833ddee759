package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/capsule/internal/memory"
)

const validReply = `{"insights":[{"icon":"🌊","label":"Water","value":"You love the sea."}],"bigPicture":"Calm.","message":"Keep going."}`

type fakeChatter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	systems []string
	users   []string
}

func (f *fakeChatter) Chat(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.reply, f.err
}

func (f *fakeChatter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) ObserveInsight(_ string, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func newTestAnalyzer(t *testing.T, chat Chatter, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(chat, opts...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func sampleRecords() []memory.Record {
	return []memory.Record{
		{ID: 1, Title: "Sunrise at the sea", Desc: "Cold sand.", Date: "Summer 2019", Place: "Latakia coast", Mood: memory.Peaceful},
		{ID: 2, Title: "Graduation day", Desc: "Mom cried.", Mood: memory.Joyful},
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFences("  {\"a\":1}\n"))
}

func TestParse_FencedAndBareAgree(t *testing.T) {
	bare, err := Parse(validReply)
	require.NoError(t, err)
	fenced, err := Parse("```json\n" + validReply + "\n```")
	require.NoError(t, err)

	assert.Equal(t, bare, fenced)
	require.Len(t, bare.Insights, 1)
	assert.Equal(t, "Water", bare.Insights[0].Label)
	assert.Equal(t, "Calm.", bare.BigPicture)
}

func TestParse_Malformed(t *testing.T) {
	for _, text := range []string{
		"I cannot help with that",
		`{"insights":[],"bigPicture":"x","message":"y"}`,
		`{"insights":[{"icon":"x","label":"","value":"v"}],"bigPicture":"x","message":"y"}`,
		`{"insights":[{"icon":"x","label":"l","value":"v"}],"message":"y"}`,
	} {
		_, err := Parse(text)
		assert.ErrorIs(t, err, ErrMalformed, text)
	}
}

func TestFallback_Shape(t *testing.T) {
	f := Fallback()
	assert.True(t, f.Valid())
	require.Len(t, f.Insights, 4)
	assert.Equal(t, "Where you feel free", f.Insights[0].Label)
	assert.Equal(t, "🤫", f.Insights[3].Icon)
}

func TestMoodFallback(t *testing.T) {
	for _, m := range memory.Moods {
		assert.NotEmpty(t, MoodFallback(string(m)), m)
	}
	assert.Equal(t, MoodFallback("Nostalgic"), MoodFallback("Grumpy"))
	assert.NotEqual(t, MoodFallback("Joyful"), MoodFallback("Loving"))
}

func TestBuildPatternPrompt(t *testing.T) {
	got := BuildPatternPrompt(sampleRecords())

	want := "Here are my memories:\n" +
		`Memory 1: "Sunrise at the sea" | Where: Latakia coast | When: Summer 2019 | Mood: Peaceful | Description: Cold sand.` + "\n" +
		`Memory 2: "Graduation day" | Where: unknown | When: unknown | Mood: Joyful | Description: Mom cried.` +
		"\n\nAnalyze my patterns."
	assert.Equal(t, want, got)
}

func TestBuildReflectionPrompt(t *testing.T) {
	got := BuildReflectionPrompt(sampleRecords()[1])
	assert.Contains(t, got, `"Graduation day"`)
	assert.Contains(t, got, "Where: unknown")
}

func TestAnalyzer_NoChatterFallsBack(t *testing.T) {
	obs := &recordingObserver{}
	a := newTestAnalyzer(t, nil, WithObserver(obs))

	assert.False(t, a.Available())
	set, outcome := a.Discover(context.Background(), sampleRecords())
	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, Fallback(), set)

	_, err := a.Reflect(context.Background(), sampleRecords()[0])
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, []Outcome{OutcomeFallback, OutcomeFallback}, obs.outcomes)
}

func TestAnalyzer_DiscoverUsesModelThenCache(t *testing.T) {
	chat := &fakeChatter{reply: "```json\n" + validReply + "\n```"}
	a := newTestAnalyzer(t, chat)

	set, outcome := a.Discover(context.Background(), sampleRecords())
	require.Equal(t, OutcomeModel, outcome)
	assert.Equal(t, "Calm.", set.BigPicture)
	assert.Equal(t, SystemPrompt, chat.systems[0])
	assert.True(t, strings.HasPrefix(chat.users[0], "Here are my memories:\n"))

	a.cache.Wait()
	again, outcome := a.Discover(context.Background(), sampleRecords())
	assert.Equal(t, OutcomeCached, outcome)
	assert.Equal(t, set, again)
	assert.Equal(t, 1, chat.count())
}

func TestAnalyzer_DiscoverMalformedFallsBack(t *testing.T) {
	a := newTestAnalyzer(t, &fakeChatter{reply: "sorry, no JSON today"})

	set, outcome := a.Discover(context.Background(), sampleRecords())
	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, Fallback(), set)
}

func TestAnalyzer_BreakerOpensAfterFailures(t *testing.T) {
	chat := &fakeChatter{err: errors.New("upstream down")}
	a := newTestAnalyzer(t, chat)

	for i := 0; i < 3; i++ {
		_, outcome := a.Discover(context.Background(), sampleRecords())
		assert.Equal(t, OutcomeFallback, outcome)
	}
	require.Equal(t, 3, chat.count())

	_, outcome := a.Discover(context.Background(), sampleRecords())
	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, 3, chat.count(), "open breaker must not reach the model")
}

func TestAnalyzer_Reflect(t *testing.T) {
	chat := &fakeChatter{reply: "  You find peace at the edges of the day.  "}
	a := newTestAnalyzer(t, chat)

	text, err := a.Reflect(context.Background(), sampleRecords()[0])
	require.NoError(t, err)
	assert.Equal(t, "You find peace at the edges of the day.", text)
	assert.Equal(t, ReflectionPrompt, chat.systems[0])

	a.cache.Wait()
	_, err = a.Reflect(context.Background(), sampleRecords()[0])
	require.NoError(t, err)
	assert.Equal(t, 1, chat.count())
}

func TestAnalyzer_ReflectEmptyIsError(t *testing.T) {
	a := newTestAnalyzer(t, &fakeChatter{reply: "```\n```"})

	_, err := a.Reflect(context.Background(), sampleRecords()[0])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewChatter_NoKeyIsNil(t *testing.T) {
	assert.Nil(t, NewChatter(AnthropicConfig{Model: "m"}))
	assert.Nil(t, NewAnthropicChatter(AnthropicConfig{APIKey: "   "}))
	assert.NotNil(t, NewChatter(AnthropicConfig{APIKey: "k", Model: "m"}))
}
