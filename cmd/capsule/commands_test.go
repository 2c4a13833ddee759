package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/capsule/internal/api"
	"github.com/kalambet/capsule/internal/config"
	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/storage"
	"github.com/kalambet/capsule/internal/store"
)

type testEnv struct {
	db       *storage.Store
	server   *httptest.Server
	out      *bytes.Buffer
	errOut   *bytes.Buffer
	requests atomic.Int32
}

// newTestEnv runs the real memory service over dataDir and points the CLI
// at it. The analyzer has no model, so discovery answers with the built-in
// insights.
func newTestEnv(t *testing.T, dataDir string) *testEnv {
	t.Helper()

	db, err := storage.Open(dataDir)
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	analyzer, err := insight.NewAnalyzer(nil)
	if err != nil {
		t.Fatalf("creating analyzer: %v", err)
	}
	t.Cleanup(analyzer.Close)

	env := &testEnv{db: db, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	handler := api.NewHandler(api.Deps{Storage: db, Analyzer: analyzer})
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(env.server.Close)

	oldClient, oldOut, oldErr := newAPIClient, stdout, stderr
	newAPIClient = func() (*apiClient, error) {
		return newClientFor(env.server.URL, env.server.Client()), nil
	}
	stdout, stderr = env.out, env.errOut
	t.Cleanup(func() {
		newAPIClient, stdout, stderr = oldClient, oldOut, oldErr
	})

	// Keep config reads away from the developer's own files.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CAPSULE_ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	return env
}

// run executes the root command with args. Flag values persist between
// Execute calls, so every flag is reset first.
func run(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	noColor = true
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	return rootCmd.ExecuteContext(context.Background())
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestMemoriesAdd_ThenList(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	if err := run(t, "memories", "add", "--title", "Sunrise at the sea", "--date", "Summer 2018", "--place", "Latakia coast", "--mood", "Peaceful"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(env.errOut.String(), "Saved memory #1") {
		t.Errorf("stderr = %q, want it to confirm memory #1", env.errOut.String())
	}

	if err := run(t, "memories", "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := env.out.String()
	for _, want := range []string{"#1", "Sunrise at the sea", "Peaceful", "Summer 2018 · Latakia coast"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestMemoriesAdd_DefaultsMoodAndTitle(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	if err := run(t, "memories", "add", "--desc", "Nothing happened. I was reading by the window."); err != nil {
		t.Fatalf("add: %v", err)
	}

	records, err := env.db.ListMemories()
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Mood != memory.DefaultMood {
		t.Errorf("mood = %q, want %q", records[0].Mood, memory.DefaultMood)
	}
	if records[0].Title != memory.UntitledTitle {
		t.Errorf("title = %q, want %q", records[0].Title, memory.UntitledTitle)
	}
}

func TestMemoriesAdd_MissingArgs(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	err := run(t, "memories", "add", "--date", "2020")
	if err == nil {
		t.Fatal("expected error for missing title and desc")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
	if n := env.requests.Load(); n != 0 {
		t.Errorf("made %d requests, want none", n)
	}
}

func TestMemoriesAdd_UnknownMood(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	err := run(t, "memories", "add", "--title", "x", "--mood", "Angry")
	if err == nil {
		t.Fatal("expected error for unknown mood")
	}
	if !strings.Contains(err.Error(), "Peaceful") {
		t.Errorf("error = %q, want it to list the moods", err.Error())
	}
	if n := env.requests.Load(); n != 0 {
		t.Errorf("made %d requests, want none", n)
	}
}

func TestMemoriesAdd_Photo(t *testing.T) {
	env := newTestEnv(t, t.TempDir())

	photo := filepath.Join(t.TempDir(), "sea.png")
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	if err := os.WriteFile(photo, png, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(t, "memories", "add", "--title", "Sea", "--photo", photo); err != nil {
		t.Fatalf("add: %v", err)
	}

	rec, err := env.db.GetMemory(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Image.Kind != memory.RemoteImage || !strings.HasPrefix(rec.Image.Path, storage.UploadsPrefix) {
		t.Errorf("image = %+v, want a served upload path", rec.Image)
	}
}

func TestMemoriesAdd_PhotoNotAnImage(t *testing.T) {
	newTestEnv(t, ":memory:")

	notes := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(notes, []byte("just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := run(t, "memories", "add", "--title", "x", "--photo", notes)
	if err == nil || !strings.Contains(err.Error(), "not an image") {
		t.Errorf("error = %v, want 'not an image'", err)
	}
}

func TestMemoriesList_Empty(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	if err := run(t, "memories", "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(env.out.String(), "No memories yet.") {
		t.Errorf("stdout = %q", env.out.String())
	}
}

func TestMemoriesList_OrderAdded(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	for _, title := range []string{"first", "second"} {
		if _, err := env.db.SaveMemory(memory.Candidate{Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	if err := run(t, "memories", "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := env.out.String()
	if i, j := strings.Index(out, "first"), strings.Index(out, "second"); i < 0 || j < 0 || i > j {
		t.Errorf("list should show memories in the order they were added:\n%s", out)
	}
	if !strings.Contains(memoriesListCmd.Short, "order they were added") {
		t.Errorf("list help = %q", memoriesListCmd.Short)
	}
}

func TestMemoriesDelete(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	for _, title := range []string{"a", "b"} {
		if _, err := env.db.SaveMemory(memory.Candidate{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	if err := run(t, "memories", "delete", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, _ := env.db.CountMemories()
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if _, err := env.db.GetMemory(2); err != nil {
		t.Errorf("memory 2 should survive: %v", err)
	}
}

func TestMemoriesDelete_NotFound(t *testing.T) {
	newTestEnv(t, ":memory:")

	err := run(t, "memories", "delete", "42")
	if err == nil || !strings.Contains(err.Error(), "#42 not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestMemoriesDelete_InvalidID(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	err := run(t, "memories", "delete", "abc")
	if err == nil || !strings.Contains(err.Error(), "invalid memory id") {
		t.Errorf("error = %v, want invalid id", err)
	}
	if n := env.requests.Load(); n != 0 {
		t.Errorf("made %d requests, want none", n)
	}
}

func TestDiscover_TooFew(t *testing.T) {
	env := newTestEnv(t, ":memory:")
	if _, err := env.db.SaveMemory(memory.Candidate{Title: "only one"}); err != nil {
		t.Fatal(err)
	}

	err := run(t, "discover")
	if err == nil {
		t.Fatal("expected error with one memory")
	}
	if err.Error() != "Add at least 2 memories first" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestDiscover_BuiltInInsights(t *testing.T) {
	env := newTestEnv(t, ":memory:")
	for _, title := range []string{"a", "b"} {
		if _, err := env.db.SaveMemory(memory.Candidate{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	if err := run(t, "discover"); err != nil {
		t.Fatalf("discover: %v", err)
	}
	out := env.out.String()
	fb := insight.Fallback()
	for _, want := range []string{fb.Insights[0].Label, fb.Insights[3].Value, fb.BigPicture, fb.Message} {
		if !strings.Contains(out, want) {
			t.Errorf("discover output missing %q", want)
		}
	}
}

func TestDemoCommand(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	if err := run(t, "demo"); err != nil {
		t.Fatalf("demo: %v", err)
	}
	n, _ := env.db.CountMemories()
	if n != 6 {
		t.Errorf("count = %d, want 6", n)
	}
	if !strings.Contains(env.errOut.String(), "Demo memories loaded (6)") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
}

func TestStatusCommand_Running(t *testing.T) {
	env := newTestEnv(t, ":memory:")
	if _, err := env.db.SaveMemory(memory.Candidate{Title: "a"}); err != nil {
		t.Fatal(err)
	}

	if err := run(t, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	out := env.errOut.String()
	if !strings.Contains(out, "running at "+env.server.URL) {
		t.Errorf("status output = %q, want running", out)
	}
	if !strings.Contains(out, "Memories: 1") {
		t.Errorf("status output = %q, want memory count", out)
	}
	if !strings.Contains(out, "built-in insights") {
		t.Errorf("status output = %q, want no-model notice", out)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	env := newTestEnv(t, ":memory:")
	env.server.Close()

	if err := run(t, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(env.errOut.String(), "stopped") {
		t.Errorf("status output = %q, want stopped", env.errOut.String())
	}
}

func TestConfigSetAndShow(t *testing.T) {
	env := newTestEnv(t, ":memory:")

	if err := run(t, "config", "set", "server.port", "6001"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if err := run(t, "config", "show"); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(env.out.String(), "server.port = 6001") {
		t.Errorf("config show = %q", env.out.String())
	}
	if strings.Contains(env.out.String(), "anthropic_api_key") {
		t.Error("config show must not list secrets")
	}
}

func TestConfigSet_UnknownKey(t *testing.T) {
	newTestEnv(t, ":memory:")

	err := run(t, "config", "set", "nope", "1")
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("error = %v, want unknown key", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorRed, "hello")
	if result != "hello" {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result = colorize(colorRed, "hello")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestLoopbackURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:5000"},
		{"0.0.0.0", "http://127.0.0.1:5000"},
		{"", "http://127.0.0.1:5000"},
		{"::1", "http://[::1]:5000"},
	}
	for _, tt := range tests {
		got := loopbackURL(config.ServerConfig{Host: tt.host, Port: 5000})
		if got != tt.want {
			t.Errorf("loopbackURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestPageBackend(t *testing.T) {
	analyzer, err := insight.NewAnalyzer(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer analyzer.Close()

	cfg := config.Config{Server: config.ServerConfig{Host: "0.0.0.0", Port: 5000}}

	cfg.Store.Backend = config.BackendMemory
	if b, base := pageBackend(cfg, analyzer); b == nil || base != "" {
		t.Errorf("memory backend: got %T, base %q", b, base)
	}

	cfg.Store.Backend = config.BackendRemote
	b, base := pageBackend(cfg, analyzer)
	rb, ok := b.(*store.RemoteBackend)
	if !ok {
		t.Fatalf("remote backend: got %T", b)
	}
	if rb.BaseURL() != "http://127.0.0.1:5000" || base != "" {
		t.Errorf("own API: base url %q, image base %q", rb.BaseURL(), base)
	}

	cfg.Store.RemoteURL = "https://memories.example.com/"
	b, base = pageBackend(cfg, analyzer)
	if base != "https://memories.example.com" {
		t.Errorf("image base = %q, want the remote service", base)
	}
	if _, ok := b.(*store.RemoteBackend); !ok {
		t.Errorf("got %T, want *store.RemoteBackend", b)
	}
}
