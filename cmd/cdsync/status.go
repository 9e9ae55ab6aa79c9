package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/coord/compat"
	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show coordination mode and per-component compatibility",
	Long: `Show the live coordination status.

The report is recomputed from the active theme and the components present
right now; it does not wait for the next pass.

With --cached, the compatibility result stored by the last pass is shown
instead, without reading any component.`,
	Run: func(cmd *cobra.Command, args []string) {
		cached, _ := cmd.Flags().GetBool("cached")

		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		if cached {
			res, ok, err := app.coord.Cache().Get(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if jsonOutput {
				if !ok {
					printJSON(map[string]any{})
					return
				}
				printJSON(res)
				return
			}
			if !ok {
				fmt.Printf("%s No cached compatibility; run 'cdsync sync' first\n", ui.RenderWarn("⚠"))
				return
			}
			fmt.Print(renderCachedStatus(res))
			return
		}

		report, err := app.admin.Status(ctx, cliUser())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(report)
			return
		}

		active := report.ActiveTheme
		if active == "" {
			active = ui.RenderMuted("none")
		}
		lastSync := ui.RenderWarn("never")
		if report.LastSync != nil {
			lastSync = report.LastSync.Local().Format(time.RFC1123)
		}

		fmt.Printf("\n%s CDSWerx sync status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Mode:         %s\n", ui.RenderCompat(string(report.Mode)))
		fmt.Printf("   Active theme: %s\n", active)
		fmt.Printf("   Auto sync:    %s\n", ui.RenderBool(report.AutoSyncEnabled))
		fmt.Printf("   Last sync:    %s\n\n", lastSync)

		fmt.Println(componentTable(report.IDs(), report.Components))
	},
}

// renderCachedStatus formats a cached compatibility result.
func renderCachedStatus(res compat.Result) string {
	active := res.ActiveTheme
	if active == "" {
		active = ui.RenderMuted("none")
	}

	ids := make([]string, 0, len(res.Components))
	for id := range res.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s Cached compatibility\n\n", ui.RenderAccent("📊"))
	fmt.Fprintf(&b, "   Mode:         %s\n", ui.RenderCompat(string(res.Mode)))
	fmt.Fprintf(&b, "   Active theme: %s\n", active)
	fmt.Fprintf(&b, "   Computed:     %s\n\n", res.ComputedAt.Local().Format(time.RFC1123))
	b.WriteString(componentTable(ids, res.Components))
	b.WriteString("\n")
	return b.String()
}

func componentTable(ids []string, components map[string]schema.CompatibilityStatus) string {
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		c := components[id]
		rows = append(rows, []string{id, ui.RenderCompat(string(c.Status)), ui.RenderBool(c.SyncEnabled)})
	}
	return ui.Table([]string{"COMPONENT", "STATUS", "SYNC"}, rows)
}

func init() {
	statusCmd.Flags().Bool("cached", false, "Show the compatibility cached by the last pass")
	rootCmd.AddCommand(statusCmd)
}
