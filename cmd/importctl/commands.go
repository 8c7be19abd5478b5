package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/cockroachdb/errors"
    "github.com/jonboulle/clockwork"
    "github.com/pterm/pterm"
    "github.com/spf13/cobra"
    "go.uber.org/zap"

    pg "orderbridge/internal/adapters/postgres"
    "orderbridge/internal/app"
    "orderbridge/internal/config"
    "orderbridge/internal/logging"
)

var runCmd = &cobra.Command{
    Use:   "run",
    Short: "Import the order of one source record",
    RunE: func(cmd *cobra.Command, args []string) error {
        record, _ := cmd.Flags().GetString("record")
        if record == "" {
            return errors.New("--record is required")
        }
        ctx, stop := signalContext()
        defer stop()
        a, log, err := setup(ctx, cmd)
        if err != nil {
            return err
        }
        defer a.Close()
        defer func() { _ = log.Sync() }()

        spinner, _ := pterm.DefaultSpinner.Start("importing " + record)
        report, err := a.ImportOne(ctx, record, func(stage string, progress float64) {
            spinner.UpdateText(pterm.Sprintf("%3.0f%% %s", progress*100, stage))
        })
        if err != nil {
            spinner.Fail("import failed")
            renderReport(report)
            return err
        }
        spinner.Success("import finished")
        renderReport(report)
        return nil
    },
}

var checkCmd = &cobra.Command{
    Use:   "check",
    Short: "Validate configuration and the field mapping against the store",
    RunE: func(cmd *cobra.Command, args []string) error {
        ctx, stop := signalContext()
        defer stop()
        a, _, err := setup(ctx, cmd)
        if err != nil {
            return err
        }
        defer a.Close()
        if err := a.CheckSchema(ctx); err != nil {
            return err
        }
        pterm.Success.Printfln("field mapping matches the %s store", a.Config.Store)
        return nil
    },
}

var migrateCmd = &cobra.Command{
    Use:   "migrate",
    Short: "Apply database migrations",
    RunE: func(cmd *cobra.Command, args []string) error {
        ctx, stop := signalContext()
        defer stop()
        cfg, log, err := load(cmd)
        if err != nil {
            return err
        }
        if cfg.DatabaseURL == "" {
            return errors.New("database_url is required")
        }
        db, err := pg.Connect(ctx, cfg.DatabaseURL)
        if err != nil {
            return err
        }
        defer db.Close()
        if err := pg.Migrate(ctx, db, log); err != nil {
            return err
        }
        pterm.Success.Println("migrations applied")
        return nil
    },
}

var seedCmd = &cobra.Command{
    Use:   "seed",
    Short: "Load tables from a JSON document into the postgres store",
    RunE: func(cmd *cobra.Command, args []string) error {
        path, _ := cmd.Flags().GetString("file")
        if path == "" {
            return errors.New("--file is required")
        }
        ctx, stop := signalContext()
        defer stop()
        a, _, err := setup(ctx, cmd)
        if err != nil {
            return err
        }
        defer a.Close()
        if a.Config.Store != config.StorePostgres {
            return errors.Newf("seed needs the postgres store, not %q", a.Config.Store)
        }
        f, err := os.Open(path)
        if err != nil {
            return errors.Wrap(err, "open seed file")
        }
        defer f.Close()
        if err := a.DB.LoadJSON(ctx, f); err != nil {
            return err
        }
        pterm.Success.Printfln("loaded %s", path)
        return nil
    },
}

func init() {
    runCmd.Flags().String("record", "", "source order record id")
    seedCmd.Flags().String("file", "", "JSON document of tables and records")
}

// load reads the configuration and builds the logger. Without --verbose the
// pipeline's narrative is left to the rendered report.
func load(cmd *cobra.Command) (config.Config, *zap.SugaredLogger, error) {
    path, _ := cmd.Flags().GetString("config")
    cfg, err := config.Load(path)
    if err != nil {
        return cfg, nil, err
    }
    verbose, _ := cmd.Flags().GetBool("verbose")
    if !verbose {
        return cfg, logging.Nop(), nil
    }
    log, err := logging.New(cfg.Env, cfg.LogJSON)
    if err != nil {
        return cfg, nil, err
    }
    return cfg, log, nil
}

func setup(ctx context.Context, cmd *cobra.Command) (*app.App, *zap.SugaredLogger, error) {
    cfg, log, err := load(cmd)
    if err != nil {
        return nil, nil, err
    }
    a, err := app.Build(ctx, cfg, clockwork.NewRealClock(), log)
    if err != nil {
        return nil, nil, err
    }
    return a, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
