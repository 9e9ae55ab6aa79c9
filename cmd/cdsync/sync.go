package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run a coordination pass now",
	Long: `Read every component's version, compare against the stored snapshot,
run the reactions for each change and save the new snapshot.

Running it twice with nothing changed reports no changes the second time.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		start := time.Now()
		res, err := app.admin.ManualSync(ctx, cliUser())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(res)
			return
		}

		if len(res.Events) == 0 {
			fmt.Printf("%s No changes (%d components)\n", ui.RenderPass("✓"), len(res.Status.Components))
		} else {
			fmt.Printf("%s %d change(s) detected\n", ui.RenderAccent("🔄"), len(res.Events))
			for _, e := range res.Events {
				fmt.Printf("   %s\n", formatEvent(e))
			}
		}

		if !res.Success {
			fmt.Printf("%s Sync ran but state was not saved: %s\n", ui.RenderWarn("⚠"), res.Error)
			fmt.Printf("   The next pass will retry.\n")
		} else {
			fmt.Printf("%s Sync complete in %v (mode: %s)\n", ui.RenderPass("✓"),
				time.Since(start).Round(time.Millisecond), ui.RenderCompat(string(res.Status.Mode)))
		}
	},
}

func formatEvent(e schema.ChangeEvent) string {
	old, cur := e.OldVersion(), e.NewVersion()
	if old == "" {
		old = "none"
	}
	if cur == "" {
		cur = "none"
	}

	dir := string(e.Direction)
	switch e.Direction {
	case schema.DirectionUpgrade, schema.DirectionAdded:
		dir = ui.RenderPass(dir)
	case schema.DirectionDowngrade, schema.DirectionRemoved:
		dir = ui.RenderWarn(dir)
	default:
		dir = ui.RenderMuted(dir)
	}
	return fmt.Sprintf("%s: %s → %s (%s)", ui.RenderAccent(e.ComponentID), old, cur, dir)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
