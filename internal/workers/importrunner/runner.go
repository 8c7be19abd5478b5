package importrunner

import (
    "context"
    "sync"
    "time"

    "github.com/jonboulle/clockwork"
    "go.uber.org/zap"

    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

// Processor performs the import work for a claimed job.
type Processor interface {
    Process(ctx context.Context, job ports.ImportJob) (domain.ImportReport, error)
}

// PipelineProcessor runs the importer and records stage progress on the job.
// Imports never overlap: the pipeline assumes it is the only writer of the
// tables it touches.
type PipelineProcessor struct {
    mu       sync.Mutex
    importer ports.Importer
    repo     ports.JobRepository
    log      *zap.SugaredLogger
}

func NewPipelineProcessor(importer ports.Importer, repo ports.JobRepository, log *zap.SugaredLogger) *PipelineProcessor {
    return &PipelineProcessor{importer: importer, repo: repo, log: log}
}

func (p *PipelineProcessor) Process(ctx context.Context, job ports.ImportJob) (domain.ImportReport, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.importer.Import(ctx, job.SourceRecordID, func(stage string, progress float64) {
        if err := p.repo.UpdateProgress(ctx, job.ID, progress, stage); err != nil {
            p.log.Warnw("progress update failed", "import_id", job.ID, "error", err)
        }
    })
}

// Run claims queued imports every poll interval and hands them to concurrency
// workers. It returns once ctx is done and the workers have finished.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, poll time.Duration, clock clockwork.Clock, log *zap.SugaredLogger) {
    if concurrency < 1 { return }
    jobsCh := make(chan ports.ImportJob, concurrency)

    // dispatcher loop
    go func() {
        defer close(jobsCh)
        ticker := clock.NewTicker(poll)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-ticker.Chan():
                for {
                    job, found, err := repo.ClaimNext(ctx)
                    if err != nil {
                        if ctx.Err() == nil {
                            log.Errorw("job claim failed", "error", err)
                        }
                        break
                    }
                    if !found { break }
                    select {
                    case jobsCh <- job:
                    case <-ctx.Done():
                        _ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, "shutdown before start", nil)
                        return
                    }
                }
            }
        }
    }()

    var wg sync.WaitGroup
    for i := 0; i < concurrency; i++ {
        wg.Add(1)
        go func(idx int) {
            defer wg.Done()
            for job := range jobsCh {
                report, err := processor.Process(ctx, job)
                if ferr := finish(ctx, repo, job, report, err); ferr != nil {
                    log.Errorw("job state update failed", "worker", idx, "import_id", job.ID, "error", ferr)
                }
                if err != nil {
                    log.Warnw("import failed", "worker", idx, "import_id", job.ID, "error", err)
                    continue
                }
                log.Infow("import completed", "worker", idx, "import_id", job.ID, "order", report.OrderNumber)
            }
        }(i)
    }
    wg.Wait()
}

// ProcessInline starts and processes a specific import synchronously using
// the same processor as the background workers.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor Processor, importID string) error {
    job, err := repo.StartJob(ctx, importID)
    if err != nil { return err }
    report, err := processor.Process(ctx, job)
    if ferr := finish(ctx, repo, job, report, err); ferr != nil {
        return ferr
    }
    return err
}

// finish records the outcome. It uses a context detached from cancellation
// so a timed out run is still marked failed.
func finish(ctx context.Context, repo ports.JobRepository, job ports.ImportJob, report domain.ImportReport, err error) error {
    ctx = context.WithoutCancel(ctx)
    if err != nil {
        return repo.MarkFailed(ctx, job.ID, err.Error(), &report)
    }
    return repo.MarkCompleted(ctx, job.ID, report)
}
