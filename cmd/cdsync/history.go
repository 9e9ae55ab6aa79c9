package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "sync",
	Short:   "Show the sync change log, newest first",
	Long: `Show recorded changes: component detections, version changes, removals and resets.

Examples:
  cdsync history                     # Last 20 entries
  cdsync history --limit 5
  cdsync history --since "2 days ago"
  cdsync history --since 2026-01-01T00:00:00Z`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		sinceText, _ := cmd.Flags().GetString("since")

		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		var (
			entries []schema.HistoryEntry
			err     error
		)
		if sinceText != "" {
			since, perr := parseSince(sinceText, time.Now())
			if perr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", perr)
				os.Exit(1)
			}
			entries, err = app.admin.HistorySince(ctx, cliUser(), since)
			if err == nil && limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
		} else {
			entries, err = app.admin.History(ctx, cliUser(), limit)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			if entries == nil {
				entries = []schema.HistoryEntry{}
			}
			printJSON(entries)
			return
		}

		if len(entries) == 0 {
			fmt.Printf("%s No history recorded\n", ui.RenderMuted("○"))
			return
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(e.Type),
				e.ComponentID(),
				describeEntry(e),
			})
		}
		fmt.Println(ui.Table([]string{"WHEN", "TYPE", "COMPONENT", "CHANGE"}, rows))
	},
}

// parseSince accepts RFC 3339 or natural language ("2 days ago", "yesterday").
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, now.Location()); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", text)
	}
	return r.Time, nil
}

func describeEntry(e schema.HistoryEntry) string {
	if e.Type == schema.HistorySyncReset {
		return ui.RenderMuted("snapshot cleared")
	}
	old, _ := e.Data["old_version"].(string)
	cur, _ := e.Data["new_version"].(string)
	if old == "" {
		old = "none"
	}
	if cur == "" {
		cur = "none"
	}
	return old + " → " + cur
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum entries to show (0 for all)")
	historyCmd.Flags().String("since", "", `Only entries at or after this time ("2 days ago", RFC 3339)`)
	rootCmd.AddCommand(historyCmd)
}
