package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/coord/compat"
	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/ui"
)

var themeCmd = &cobra.Command{
	Use:     "theme",
	GroupID: "site",
	Short:   "Inspect or switch the active theme",
}

var themeSwitchCmd = &cobra.Command{
	Use:   "switch <theme-id>",
	Short: "Record a new active theme",
	Long: `Record <theme-id> as the site's active theme.

Status reflects the switch immediately; no pass is needed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]

		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		desc, ok := app.registry.Get(id)
		if !ok || desc.Kind != schema.KindTheme {
			fmt.Fprintf(os.Stderr, "Error: %q is not a known theme\n", id)
			fmt.Fprintf(os.Stderr, "Run 'cdsync components' to list themes\n")
			os.Exit(1)
		}

		if err := compat.SetActiveTheme(ctx, app.db, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := app.coord.Cache().Invalidate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		mode := compat.ModeFor(app.registry, id)
		if jsonOutput {
			printJSON(map[string]string{"active_theme": id, "mode": string(mode)})
			return
		}
		fmt.Printf("%s Active theme is now %s (mode: %s)\n", ui.RenderPass("✓"), ui.RenderAccent(desc.DisplayName()), ui.RenderCompat(string(mode)))
	},
}

var themeCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active theme",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		id, err := compat.ActiveTheme(ctx, app.db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		mode := compat.ModeFor(app.registry, id)
		if jsonOutput {
			printJSON(map[string]string{"active_theme": id, "mode": string(mode)})
			return
		}
		if id == "" {
			fmt.Printf("%s No active theme recorded\n", ui.RenderWarn("⚠"))
			return
		}
		fmt.Printf("%s (mode: %s)\n", ui.RenderAccent(id), ui.RenderCompat(string(mode)))
	},
}

func init() {
	themeCmd.AddCommand(themeSwitchCmd)
	themeCmd.AddCommand(themeCurrentCmd)
	rootCmd.AddCommand(themeCmd)
}
