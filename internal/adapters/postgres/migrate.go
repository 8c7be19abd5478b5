package postgres

import (
    "context"
    "embed"

    "github.com/cockroachdb/errors"
    "github.com/jackc/pgx/v5/stdlib"
    "github.com/pressly/goose/v3"
    "go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseLogger routes goose output through zap.
type gooseLogger struct{ log *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...any) { l.log.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.log.Fatalf(format, v...) }

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *DB, log *zap.SugaredLogger) error {
    goose.SetBaseFS(migrations)
    goose.SetLogger(gooseLogger{log: log})
    if err := goose.SetDialect("postgres"); err != nil {
        return errors.Wrap(err, "goose dialect")
    }
    sqlDB := stdlib.OpenDBFromPool(db.Pool)
    defer sqlDB.Close()
    if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
        return errors.Wrap(err, "apply migrations")
    }
    return nil
}
