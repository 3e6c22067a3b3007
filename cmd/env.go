package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/meridian-fs/recon-cli/internal/audit"
	"github.com/meridian-fs/recon-cli/internal/engine"
	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/runlog"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

// initRunlog opens the configured run history backend and applies its
// migration.
func initRunlog(ctx context.Context) (runlog.Store, error) {
	var (
		store runlog.Store
		err   error
	)
	switch cfg.Runlog.Driver {
	case "sqlite":
		dsn := cfg.Runlog.Path
		if dsn == "" {
			dsn = "runs.db"
		}
		store, err = runlog.NewSQLite(dsn)
	case "postgres":
		store, err = runlog.NewPostgres(ctx, cfg.Runlog.DatabaseURL)
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported runlog driver: %s", cfg.Runlog.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// initEngine wires the DBF record store, thresholds, templates, and run
// history into an Engine. The returned closer is non-nil when a run
// history backend is open.
func initEngine(ctx context.Context) (*engine.Engine, func(), error) {
	runs, err := initRunlog(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []engine.Option{
		engine.WithThresholds(audit.Thresholds{
			DuplicateMultiplicity: cfg.Audit.DuplicateMultiplicity,
			StdDevMultiple:        cfg.Audit.StdDevMultiple,
			AmountCeiling:         cfg.Audit.AmountCeiling,
			MaxRowRefs:            cfg.Audit.MaxRowRefs,
		}),
	}
	if cfg.Data.Templates != "" {
		extra, err := schema.LoadTemplates(cfg.Data.Templates)
		if err != nil {
			if runs != nil {
				runs.Close()
			}
			return nil, nil, err
		}
		opts = append(opts, engine.WithTemplates(extra))
	}
	if runs != nil {
		opts = append(opts, engine.WithRunLog(runs))
	}

	e := engine.New(recordstore.NewDBF(), cfg.Data.Root, opts...)
	closer := func() {
		if runs != nil {
			runs.Close()
		}
	}
	return e, closer, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
