// Package app wires configuration to adapters and services for the binaries.
package app

import (
    "context"
    "os"

    "github.com/cockroachdb/errors"
    "github.com/jonboulle/clockwork"
    "go.uber.org/zap"

    "orderbridge/internal/adapters/airtable"
    "orderbridge/internal/adapters/memory"
    "orderbridge/internal/adapters/postgres"
    "orderbridge/internal/config"
    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
    "orderbridge/internal/services/migration"
    "orderbridge/internal/services/settlement"
)

// App holds the wired dependencies of one process.
type App struct {
    Config   config.Config
    Store    ports.RecordStore
    Schema   ports.SchemaReader
    Jobs     ports.JobRepository
    Pipeline *migration.Pipeline
    Clock    clockwork.Clock
    // DB is set when a database url is configured.
    DB *postgres.DB
}

// Build connects the configured store and job repository. Import jobs live in
// Postgres when a database url is set and in memory otherwise.
func Build(ctx context.Context, cfg config.Config, clock clockwork.Clock, log *zap.SugaredLogger) (*App, error) {
    a := &App{Config: cfg, Clock: clock}
    if cfg.DatabaseURL != "" {
        db, err := postgres.Connect(ctx, cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        a.DB = db
        a.Jobs = db
    } else {
        a.Jobs = memory.NewJobs(clock)
    }

    switch cfg.Store {
    case config.StoreAirtable:
        c, err := airtable.NewClient(airtable.Options{
            APIKey:            cfg.Airtable.APIKey,
            BaseID:            cfg.Airtable.BaseID,
            BaseURL:           cfg.Airtable.BaseURL,
            RequestsPerSecond: cfg.Airtable.RequestsPerSecond,
            MaxRetries:        cfg.Airtable.MaxRetries,
            RetryBackoff:      cfg.Airtable.RetryBackoff,
            Timeout:           cfg.Airtable.Timeout,
        }, log.Named("airtable"))
        if err != nil {
            a.Close()
            return nil, err
        }
        a.Store, a.Schema = c, c
    case config.StorePostgres:
        if a.DB == nil {
            return nil, errors.New("postgres store needs database_url")
        }
        a.Store, a.Schema = a.DB, a.DB
    case config.StoreMemory:
        m := memory.New()
        if path := cfg.Memory.SeedFile; path != "" {
            f, err := os.Open(path)
            if err != nil {
                a.Close()
                return nil, errors.Wrap(err, "open seed file")
            }
            err = m.LoadJSON(f)
            _ = f.Close()
            if err != nil {
                a.Close()
                return nil, errors.Wrapf(err, "load seed file %s", path)
            }
        }
        a.Store, a.Schema = m, m
    default:
        a.Close()
        return nil, errors.Newf("unknown store %q", cfg.Store)
    }

    a.Pipeline = migration.New(a.Store, PipelineOptions(cfg), clock, log.Named("import"))
    return a, nil
}

// PipelineOptions maps configuration onto the pipeline's options.
func PipelineOptions(cfg config.Config) migration.Options {
    t := cfg.Timing
    return migration.Options{
        Schema:         cfg.Schema,
        BatchSize:      cfg.BatchSize,
        ApprovedStatus: cfg.ApprovedStatus,
        RecordSync:     t.RecordSync,
        OrderSync:      t.OrderSync,
        TriggerSettle:  t.TriggerSettle,
        Settlement: settlement.Schedule{
            Warmup:   t.SettlementWarmup,
            Interval: t.SettlementInterval,
            Attempts: t.SettlementAttempts,
        },
    }
}

// CheckSchema validates the field mapping against the store.
func (a *App) CheckSchema(ctx context.Context) error {
    return migration.ValidateSchema(ctx, a.Schema, a.Config.Schema)
}

// ImportOne validates the field mapping, then runs a single import. One-shot
// processes use it so a mistyped role fails before anything is written.
func (a *App) ImportOne(ctx context.Context, sourceRecordID string, progress ports.ProgressFunc) (domain.ImportReport, error) {
    if err := a.CheckSchema(ctx); err != nil {
        return domain.ImportReport{}, err
    }
    return a.Pipeline.Import(ctx, sourceRecordID, progress)
}

func (a *App) Close() {
    if a.DB != nil {
        a.DB.Close()
    }
}
