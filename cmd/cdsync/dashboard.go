package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cdswerx/cdsync/internal/coord/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the sync dashboard server",
	Long: `Start an HTTP and WebSocket server for the admin sync dashboard.

Endpoints:
  GET  /health         Server health
  GET  /api/status     Live status report
  GET  /api/history    Change log (?limit=N)
  POST /api/sync       Run a pass now
  POST /api/reset      Clear the stored snapshot and compatibility cache
  GET  /ws             WebSocket feed

WebSocket messages include:
- status: Status report (sent on connect and after every pass)
- pass_complete: A pass finished, with its change events
- sync_reset: Sync state was reset

With auto_sync on, loading / or /api/status first runs a page_load pass.

Callers identify themselves with the X-CDS-User header; access.users and
access.roles in cdsync.toml decide what each user may do.

Example usage:
  cdsync dashboard                   # Start on dashboard.port (default 8080)
  cdsync dashboard --port 9000       # Start on custom port
  cdsync dashboard --daemon          # Also run scheduled and watch passes`,
	Run: func(cmd *cobra.Command, args []string) {
		withDaemon, _ := cmd.Flags().GetBool("daemon")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		app := mustApp(ctx)
		defer app.Close()

		port := app.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		policy := app.rolePolicy()
		svc, err := app.adminService(policy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		logger := app.logs.New("dashboard")
		serverCfg := &dashboard.Config{
			Host:   app.cfg.Dashboard.Host,
			Port:   port,
			Policy: policy,
			Logger: logger,
		}
		if app.cfg.AutoSync {
			serverCfg.PageLoad = app.coord
		}
		server := dashboard.NewServer(svc, serverCfg)
		handler := dashboard.NewHandler(server, app.reporter, logger)
		app.coord.Subscribe(handler.OnPass)

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		addr := server.GetAddr()
		fmt.Printf("Dashboard server started on http://%s\n", addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Health check: http://%s/health\n", addr)

		daemonDone := make(chan struct{})
		if !withDaemon {
			close(daemonDone)
		} else {
			d, err := newDaemon(app)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			go func() {
				defer close(daemonDone)
				if err := d.Start(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "Error: daemon stopped: %v\n", err)
				}
			}()
		}

		fmt.Println("\nPress Ctrl+C to stop...")
		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		<-daemonDone

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default: dashboard.port)")
	dashboardCmd.Flags().Bool("daemon", false, "Also run scheduled and file-watch passes")
	rootCmd.AddCommand(dashboardCmd)
}
