package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/memory"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
)

// Status lines go to stderr, results to stdout. Tests swap both.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorCyan, "→ "+msg))
}

var moodColors = map[memory.Mood]string{
	memory.Peaceful:    colorCyan,
	memory.Joyful:      colorYellow,
	memory.Nostalgic:   colorMagenta,
	memory.Bittersweet: colorMagenta,
	memory.Adventurous: colorGreen,
	memory.Loving:      colorRed,
}

// printMemory writes one record as a two-line entry.
func printMemory(r memory.Record) {
	meta := r.Meta()
	if meta == "" {
		meta = "a moment in time"
	}
	fmt.Fprintf(stdout, "%s  %s  %s\n",
		colorize(colorDim, fmt.Sprintf("#%-4d", r.ID)),
		colorize(colorBold, r.Title),
		colorize(moodColors[r.Mood], string(r.Mood)),
	)
	fmt.Fprintf(stdout, "       %s", meta)
	if r.Image.Kind != memory.NoImage {
		fmt.Fprint(stdout, "  [photo]")
	}
	fmt.Fprintln(stdout)
}

func printInsights(set insight.Set) {
	for _, it := range set.Insights {
		fmt.Fprintf(stdout, "\n%s %s\n", it.Icon, colorize(colorBold, it.Label))
		fmt.Fprintf(stdout, "  %s\n", it.Value)
	}
	fmt.Fprintf(stdout, "\n%s\n", colorize(colorCyan, set.BigPicture))
	if msg := strings.TrimSpace(set.Message); msg != "" {
		fmt.Fprintf(stdout, "\n%s\n", colorize(colorDim, msg))
	}
}
