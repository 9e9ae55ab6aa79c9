package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

var assetURLCmd = &cobra.Command{
	Use:     "asset-url <url>",
	GroupID: "site",
	Short:   "Print a stylesheet URL with the cache-busting version",
	Long: `Append ?ver=<framework version>.<counter> to <url>.

The counter is bumped every time the CSS framework version changes, so
browsers fetch the rebuilt stylesheet.

Examples:
  cdsync asset-url /wp-content/uploads/cdswerx/uikit.min.css
  cdsync asset-url https://cdn.example.com/site.css --base 3.21.0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		base, _ := cmd.Flags().GetString("base")

		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		if !cmd.Flags().Changed("base") {
			base = frameworkVersion(ctx, app)
		}

		u, err := app.assets.URL(ctx, args[0], base)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(u)
	},
}

// frameworkVersion returns the live version of the first framework component.
func frameworkVersion(ctx context.Context, app *cliApp) string {
	frameworks := app.registry.OfKind(schema.KindFramework)
	if len(frameworks) == 0 {
		return ""
	}
	v, _ := app.coord.Capture(ctx).Version(frameworks[0].ID)
	return v
}

func init() {
	assetURLCmd.Flags().String("base", "", "Version prefix (default: live framework version)")
	rootCmd.AddCommand(assetURLCmd)
}
