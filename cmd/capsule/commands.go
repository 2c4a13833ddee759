package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/capsule/internal/config"
	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/store"
	"github.com/kalambet/capsule/internal/web"
)

// --- memories ---

var memoriesCmd = &cobra.Command{
	Use:     "memories",
	Aliases: []string{"m"},
	Short:   "Add, list or delete memories",
}

var memoriesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a memory",
	Long: `Save a memory. Either --title or --desc is required.

Examples:
  capsule memories add --title "Sunrise at the sea" --mood Peaceful
  capsule memories add --desc "Nothing happened, but I was at peace" --date "Winter 2020"
  capsule memories add --title "Graduation" --photo ./grad.jpg --mood Joyful`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		desc, _ := cmd.Flags().GetString("desc")
		date, _ := cmd.Flags().GetString("date")
		place, _ := cmd.Flags().GetString("place")
		mood, _ := cmd.Flags().GetString("mood")
		photo, _ := cmd.Flags().GetString("photo")

		c := memory.Candidate{Title: title, Desc: desc, Date: date, Place: place, Mood: mood}
		if photo != "" {
			img, err := readPhoto(photo)
			if err != nil {
				return err
			}
			c.Image = img
		}
		if err := c.Validate(); err != nil {
			if errors.Is(err, memory.ErrInvalidMood) {
				return fmt.Errorf("unknown mood %q, want one of %s", c.Mood, strings.Join(memory.MoodNames(), ", "))
			}
			return fmt.Errorf("one of --title or --desc is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		rec, err := client.backend.Add(cmd.Context(), c)
		if err != nil {
			return err
		}

		if rec.ID != 0 {
			printSuccess("Saved memory #%d", rec.ID)
		} else {
			printSuccess("Memory saved")
		}
		return nil
	},
}

// readPhoto loads an image file for embedding.
func readPhoto(path string) (memory.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return memory.Image{}, fmt.Errorf("reading photo: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return memory.Image{}, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return memory.Embedded(mime, data), nil
}

var memoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all memories in the order they were added",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		records, err := client.backend.List(cmd.Context())
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Fprintln(stdout, "No memories yet.")
			return nil
		}
		for _, r := range records {
			printMemory(r)
		}
		return nil
	},
}

var memoriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid memory id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.backend.Delete(cmd.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("memory #%d not found", id)
			}
			return err
		}

		printSuccess("Deleted memory #%d", id)
		return nil
	},
}

func init() {
	memoriesAddCmd.Flags().String("title", "", "short title")
	memoriesAddCmd.Flags().String("desc", "", "what happened")
	memoriesAddCmd.Flags().String("date", "", "free-form date, e.g. \"Summer 2018\"")
	memoriesAddCmd.Flags().String("place", "", "where it happened")
	memoriesAddCmd.Flags().String("mood", "", "one of "+strings.Join(memory.MoodNames(), ", ")+" (default "+string(memory.DefaultMood)+")")
	memoriesAddCmd.Flags().String("photo", "", "path to an image file")

	memoriesCmd.AddCommand(memoriesAddCmd)
	memoriesCmd.AddCommand(memoriesListCmd)
	memoriesCmd.AddCommand(memoriesDeleteCmd)
}

// --- discover ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the patterns across your memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Reading your memories...")
		set, err := client.backend.Analyze(cmd.Context(), nil)
		if err != nil {
			var apiErr *store.APIError
			if errors.As(err, &apiErr) && apiErr.Message != "" {
				return errors.New(apiErr.Message)
			}
			return err
		}

		printInsights(set)
		return nil
	},
}

// --- demo ---

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Load the sample memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		n, err := web.LoadDemo(cmd.Context(), client.backend)
		if err != nil {
			if n > 0 {
				printWarning("Loaded %d demo memories before failing", n)
			}
			return err
		}

		printSuccess("Demo memories loaded (%d)", n)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "  %s\n", colorize(colorDim, config.Path()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
