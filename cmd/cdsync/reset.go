package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/ui"
)

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "sync",
	Short:   "Clear the stored snapshot and compatibility cache",
	Long: `Forget the stored version snapshot and the cached compatibility state.

Installed components and the change history are not touched. The next pass
behaves like the first ever run and reports every present component as
detected.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes {
			if !ui.IsInputTerminal() {
				fmt.Fprintf(os.Stderr, "Error: refusing to reset without --yes on a non-interactive terminal\n")
				os.Exit(1)
			}

			confirmed := false
			err := huh.NewConfirm().
				Title("Reset sync state?").
				Description("The stored snapshot and compatibility cache will be cleared.").
				Affirmative("Reset").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !confirmed {
				fmt.Println("Cancelled")
				return
			}
		}

		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		if err := app.admin.ResetSync(ctx, cliUser()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(map[string]bool{"success": true})
			return
		}
		fmt.Printf("%s Sync state reset\n", ui.RenderPass("✓"))
		fmt.Printf("   Run 'cdsync sync' to re-detect all components\n")
	},
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}
