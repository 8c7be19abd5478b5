package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/go-chi/chi/v5"
    "github.com/jonboulle/clockwork"
    "go.uber.org/zap"

    httpadapter "orderbridge/internal/adapters/http"
    pg "orderbridge/internal/adapters/postgres"
    "orderbridge/internal/app"
    "orderbridge/internal/config"
    "orderbridge/internal/logging"
    importsvc "orderbridge/internal/services/imports"
    importworker "orderbridge/internal/workers/importrunner"
)

func main() {
    cfg, err := config.Load("")
    log, lerr := logging.New(cfg.Env, cfg.LogJSON)
    if lerr != nil {
        fmt.Fprintln(os.Stderr, "logger:", lerr)
        os.Exit(1)
    }
    if err == nil {
        err = run(cfg, log)
    } else {
        err = errors.Wrap(err, "invalid configuration")
    }
    if err != nil {
        log.Errorw("server stopped", "error", err)
        _ = log.Sync()
        os.Exit(1)
    }
    _ = log.Sync()
}

// run serves until a signal arrives or the listener fails. Every deferred
// cleanup runs before it returns.
func run(cfg config.Config, log *zap.SugaredLogger) error {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    a, err := app.Build(ctx, cfg, clockwork.NewRealClock(), log)
    if err != nil {
        return errors.Wrap(err, "startup failed")
    }
    defer a.Close()
    if a.DB != nil {
        if err := pg.Migrate(ctx, a.DB, log.Named("migrate")); err != nil {
            return errors.Wrap(err, "migrations failed")
        }
    }
    if err := a.CheckSchema(ctx); err != nil {
        return errors.Wrapf(err, "field mapping does not match the %s store", cfg.Store)
    }

    processor := importworker.NewPipelineProcessor(a.Pipeline, a.Jobs, log)
    srv := httpadapter.New(importsvc.New(a.Jobs), a.Jobs, processor, log.Named("http"))
    r := chi.NewRouter()
    r.Mount("/", srv.Routes())

    // Optional background job workers
    workersDone := make(chan struct{})
    if cfg.ImportWorkers > 0 {
        go func() {
            importworker.Run(ctx, a.Jobs, processor, cfg.ImportWorkers, cfg.Timing.WorkerPoll, a.Clock, log.Named("worker"))
            close(workersDone)
        }()
        log.Infow("import workers started", "workers", cfg.ImportWorkers)
    } else {
        close(workersDone)
    }

    httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
    errCh := make(chan error, 1)
    go func() { errCh <- httpSrv.ListenAndServe() }()
    log.Infow("listening", "addr", cfg.ListenAddr, "store", cfg.Store)

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    var serveErr error
    select {
    case sig := <-sigCh:
        log.Infow("shutting down", "signal", sig.String())
    case serveErr = <-errCh:
        serveErr = errors.Wrap(serveErr, "listen")
    }

    shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
    defer stop()
    _ = httpSrv.Shutdown(shutdownCtx)
    srv.Close()
    cancel()
    <-workersDone
    return serveErr
}
