package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kursbuero/kursd/internal/config"
)

// --- courses ---

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List courses with resolved names and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/collections/kurse"
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var courses []struct {
			ID             string         `json:"record_id"`
			Fields         map[string]any `json:"fields"`
			InstructorName string         `json:"dozent_name"`
			RoomName       string         `json:"raum_name"`
			Status         struct {
				Count  int  `json:"count"`
				Max    int  `json:"max"`
				IsPast bool `json:"is_past"`
				IsFull bool `json:"is_full"`
			} `json:"status"`
		}
		if err := decodeJSON(resp, &courses); err != nil {
			return err
		}

		for _, c := range courses {
			label := "active"
			switch {
			case c.Status.IsPast:
				label = "past"
			case c.Status.IsFull:
				label = "full"
			}
			if filter != "" && filter != "all" && filter != label {
				continue
			}
			title, _ := c.Fields["titel"].(string)
			fmt.Printf("  %s  %s  (%d/%d, %s)", colorize(colorBold, c.ID), title, c.Status.Count, c.Status.Max, label)
			if c.InstructorName != "" {
				fmt.Printf("  %s", c.InstructorName)
			}
			if c.RoomName != "" {
				fmt.Printf("  [%s]", c.RoomName)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	coursesCmd.Flags().String("filter", "all", "status filter: all, active, full, or past")
}

// --- enrollments ---

var enrollmentsCmd = &cobra.Command{
	Use:   "enrollments",
	Short: "List enrollments with resolved participant and course names",
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID, _ := cmd.Flags().GetString("course")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/collections/anmeldungen"
		if courseID != "" {
			path = "/courses/" + courseID + "/enrollments"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var enrollments []struct {
			ID              string         `json:"record_id"`
			Fields          map[string]any `json:"fields"`
			ParticipantName string         `json:"teilnehmer_name"`
			CourseTitle     string         `json:"kurs_name"`
		}
		if err := decodeJSON(resp, &enrollments); err != nil {
			return err
		}

		for _, e := range enrollments {
			paid := " "
			if b, ok := e.Fields["bezahlt"].(bool); ok && b {
				paid = colorize(colorGreen, "€")
			}
			fmt.Printf("  %s %s  %s -> %s\n", paid, colorize(colorBold, e.ID), e.ParticipantName, e.CourseTitle)
		}
		return nil
	},
}

func init() {
	enrollmentsCmd.Flags().String("course", "", "only enrollments of this course id")
}

// --- scan ---

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Extract a draft record from a photographed or PDF document",
	Long: `Extract a draft record from a photographed or PDF document.

The extracted fields are merged into the given draft without overwriting
anything already set; person and course names are resolved to references by
fuzzy matching against the loaded collections.

Examples:
  kursd scan --collection kurse --file ./kursplakat.jpg
  kursd scan --collection anmeldungen --file ./anmeldung.pdf --draft '{"bezahlt": true}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		file, _ := cmd.Flags().GetString("file")
		draftStr, _ := cmd.Flags().GetString("draft")

		if collection == "" || file == "" {
			return fmt.Errorf("--collection and --file are required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		draft := map[string]any{}
		if draftStr != "" {
			if err := json.Unmarshal([]byte(draftStr), &draft); err != nil {
				return fmt.Errorf("parsing draft: %w", err)
			}
		}

		req := map[string]any{
			"collection": collection,
			"fields":     draft,
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		if strings.EqualFold(filepath.Ext(file), ".pdf") {
			req["pdf"] = encoded
		} else {
			req["image"] = encoded
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Scanning %s...", file)
		started := time.Now()
		resp, err := client.post(cmd.Context(), "/scan", req)
		if err != nil {
			return err
		}

		var result struct {
			ID        string            `json:"id"`
			Fields    map[string]any    `json:"fields"`
			Resolved  map[string]string `json:"resolved"`
			Unmatched []string          `json:"unmatched"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Scan %s completed in %s", result.ID, time.Since(started).Round(time.Millisecond))
		out, err := json.MarshalIndent(result.Fields, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		for key, ref := range result.Resolved {
			printStatus(key, "resolved to %s", ref)
		}
		for _, key := range result.Unmatched {
			printWarning("%s: no match found, resolve manually", key)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().String("collection", "", "target collection (kurse or anmeldungen)")
	scanCmd.Flags().String("file", "", "image or PDF file to scan")
	scanCmd.Flags().String("draft", "", "current draft fields as JSON")
}

// --- reload ---

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload all collections from record storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reload", nil)
		if err != nil {
			return err
		}

		var result struct {
			State     string    `json:"state"`
			FetchedAt time.Time `json:"fetched_at"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Reloaded, state %s", result.State)
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
