package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/user"

	"github.com/cdswerx/cdsync/internal/config"
	"github.com/cdswerx/cdsync/internal/coord/access"
	"github.com/cdswerx/cdsync/internal/coord/admin"
	"github.com/cdswerx/cdsync/internal/coord/assets"
	"github.com/cdswerx/cdsync/internal/coord/db"
	"github.com/cdswerx/cdsync/internal/coord/dispatch"
	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/coord/status"
	"github.com/cdswerx/cdsync/internal/coord/store"
	"github.com/cdswerx/cdsync/internal/coord/syncer"
	"github.com/cdswerx/cdsync/internal/logging"
)

// cliApp is everything a command needs, wired from config.
type cliApp struct {
	cfg      *config.Config
	logs     *logging.Factory
	db       *db.DB
	store    *store.Store
	registry *schema.Registry
	assets   *assets.Versioner
	coord    *syncer.Coordinator
	reporter *status.Reporter
	admin    *admin.Service
}

// openApp loads config and opens the database. policy nil means the
// CLI operator is trusted (AllowAll).
func openApp(ctx context.Context, policy access.Policy) (*cliApp, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logs := logging.NewFactory(cfg.Log)
	if !verbose {
		logs.Quiet()
	}

	reg, err := cfg.Registry(logs.New("config"))
	if err != nil {
		return nil, err
	}

	database, err := db.OpenContext(ctx, cfg.Resolve(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open options database: %w", err)
	}

	st := store.New(database, cfg.History.Cap).WithLogger(logs.New("store"))
	versioner := assets.New(database)
	d := dispatch.New(logs.New("dispatch"))

	coord, err := syncer.New(syncer.Config{
		Registry:   reg,
		Store:      st,
		Options:    database,
		Dispatcher: d,
		AutoSync:   cfg.AutoSync,
		Logger:     logs.New("sync"),
	})
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	dispatch.RegisterBuiltins(d, reg, dispatch.Builtins{Compat: coord.Cache(), Assets: versioner})

	reporter := status.New(coord, st, database)

	app := &cliApp{
		cfg:      cfg,
		logs:     logs,
		db:       database,
		store:    st,
		registry: reg,
		assets:   versioner,
		coord:    coord,
		reporter: reporter,
	}

	if policy == nil {
		policy = access.AllowAll{}
	}
	if app.admin, err = app.adminService(policy); err != nil {
		_ = database.Close()
		return nil, err
	}
	return app, nil
}

// adminService builds the admin actions over this app under policy.
func (app *cliApp) adminService(policy access.Policy) (*admin.Service, error) {
	return admin.New(admin.Config{
		Coordinator: app.coord,
		Reporter:    app.reporter,
		History:     app.store,
		Policy:      policy,
		Logger:      app.logs.New("admin"),
	})
}

// mustApp opens the app or exits.
func mustApp(ctx context.Context) *cliApp {
	app, err := openApp(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return app
}

func (app *cliApp) Close() {
	if err := app.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	_ = app.logs.Close()
}

// rolePolicy builds the dashboard policy from config.
func (app *cliApp) rolePolicy() access.Policy {
	return access.NewRolePolicy(app.cfg.Access.Users, app.cfg.Access.Roles)
}

// cliUser names the operator in admin logs.
func cliUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("failed to encode output: %v", err)
		os.Exit(1)
	}
}
