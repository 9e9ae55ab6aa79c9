package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/ui"
)

type componentRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
	Source   string `json:"source"`
	Live     string `json:"live_version,omitempty"`
	Stored   string `json:"stored_version,omitempty"`
}

var componentsCmd = &cobra.Command{
	Use:     "components",
	GroupID: "site",
	Short:   "List tracked components with live and stored versions",
	Long: `List every registered component, where its version comes from, the
version read right now and the version recorded by the last pass.

A live version that differs from the stored one is picked up by the next pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustApp(ctx)
		defer app.Close()

		stored, err := app.store.Load(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		live := app.coord.Capture(ctx)

		out := make([]componentRow, 0, app.registry.Len())
		for _, d := range app.registry.All() {
			row := componentRow{
				ID:       d.ID,
				Name:     d.DisplayName(),
				Kind:     string(d.Kind),
				Required: d.Required,
				Source:   d.Source.Describe(),
			}
			row.Live, _ = live.Version(d.ID)
			row.Stored, _ = stored.Version(d.ID)
			out = append(out, row)
		}

		if jsonOutput {
			printJSON(out)
			return
		}

		rows := make([][]string, 0, len(out))
		for _, r := range out {
			liveText := r.Live
			switch {
			case r.Live == "":
				liveText = ui.RenderMuted("absent")
			case r.Live != r.Stored:
				liveText = ui.RenderWarn(r.Live)
			}
			storedText := r.Stored
			if storedText == "" {
				storedText = ui.RenderMuted("-")
			}
			rows = append(rows, []string{r.ID, r.Kind, r.Source, liveText, storedText})
		}
		fmt.Println(ui.Table([]string{"ID", "KIND", "SOURCE", "LIVE", "STORED"}, rows))
	},
}

func init() {
	rootCmd.AddCommand(componentsCmd)
}
