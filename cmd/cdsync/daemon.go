package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/coord/daemon"
	"github.com/cdswerx/cdsync/internal/coord/reader"
	"github.com/cdswerx/cdsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run passes on a schedule and when component files change",
	Long: `Run the coordination scheduler in the foreground.

The daemon:
  1. Runs a pass on start
  2. Runs a pass every schedule.interval (default 12h)
  3. Watches theme stylesheets and other version files, running a pass
     once edits settle for watch.debounce (default 500ms)

Logs go to stderr and, when log.file is set, a rotating log file.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		verbose = true
		app := mustApp(ctx)
		defer app.Close()

		d, err := newDaemon(app)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Daemon started (%d components, interval %s)\n",
			ui.RenderAccent("🔄"), app.registry.Len(), app.cfg.Schedule.Interval)
		fmt.Println("Press Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// newDaemon builds a daemon over the app's coordinator.
func newDaemon(app *cliApp) (*daemon.Daemon, error) {
	return daemon.NewWithConfig(app.coord, reader.WatchPaths(app.registry.All()), &daemon.Config{
		Interval:   app.cfg.Schedule.Interval,
		Debounce:   app.cfg.Watch.Debounce,
		Watch:      app.cfg.Watch.Enabled,
		RunOnStart: true,
		Logger:     app.logs.New("daemon"),
	})
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
