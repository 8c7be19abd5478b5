package memory

import (
    "context"
    "sync"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/google/uuid"
    "github.com/jonboulle/clockwork"

    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

// Jobs is an in-process JobRepository for runs without a database.
type Jobs struct {
    mu      sync.Mutex
    clock   clockwork.Clock
    imports map[string]*domain.Import
    queue   []string
}

var _ ports.JobRepository = (*Jobs)(nil)

func NewJobs(clock clockwork.Clock) *Jobs {
    return &Jobs{clock: clock, imports: make(map[string]*domain.Import)}
}

func (j *Jobs) CreateImport(ctx context.Context, sourceRecordID string) (string, error) {
    j.mu.Lock()
    defer j.mu.Unlock()
    id := uuid.NewString()
    j.imports[id] = &domain.Import{ID: id, SourceRecordID: sourceRecordID, Status: domain.ImportQueued, QueuedAt: j.clock.Now()}
    j.queue = append(j.queue, id)
    return id, nil
}

func (j *Jobs) GetImport(ctx context.Context, importID string) (domain.Import, error) {
    j.mu.Lock()
    defer j.mu.Unlock()
    imp, ok := j.imports[importID]
    if !ok {
        return domain.Import{}, errors.Wrapf(ports.ErrNotFound, "import %s", importID)
    }
    out := *imp
    if imp.Report != nil {
        r := *imp.Report
        out.Report = &r
    }
    return out, nil
}

func (j *Jobs) ClaimNext(ctx context.Context) (ports.ImportJob, bool, error) {
    j.mu.Lock()
    defer j.mu.Unlock()
    for len(j.queue) > 0 {
        id := j.queue[0]
        j.queue = j.queue[1:]
        if imp := j.imports[id]; imp.Status == domain.ImportQueued {
            j.startLocked(imp)
            return ports.ImportJob{ID: id, SourceRecordID: imp.SourceRecordID}, true, nil
        }
    }
    return ports.ImportJob{}, false, nil
}

func (j *Jobs) StartJob(ctx context.Context, importID string) (ports.ImportJob, error) {
    j.mu.Lock()
    defer j.mu.Unlock()
    imp, ok := j.imports[importID]
    if !ok || imp.Status != domain.ImportQueued {
        return ports.ImportJob{}, errors.Wrapf(ports.ErrNotFound, "queued import %s", importID)
    }
    j.startLocked(imp)
    return ports.ImportJob{ID: imp.ID, SourceRecordID: imp.SourceRecordID}, nil
}

func (j *Jobs) UpdateProgress(ctx context.Context, importID string, progress float64, stage string) error {
    return j.update(importID, func(imp *domain.Import) {
        imp.Progress = min(max(progress, 0), 1)
        imp.Stage = stage
    })
}

func (j *Jobs) MarkCompleted(ctx context.Context, importID string, report domain.ImportReport) error {
    return j.update(importID, func(imp *domain.Import) {
        imp.Status = domain.ImportCompleted
        imp.Progress = 1
        imp.Stage = "done"
        imp.Report = &report
        imp.FinishedAt = j.now()
    })
}

func (j *Jobs) MarkFailed(ctx context.Context, importID string, reason string, report *domain.ImportReport) error {
    return j.update(importID, func(imp *domain.Import) {
        imp.Status = domain.ImportFailed
        imp.Error = reason
        imp.Report = report
        imp.FinishedAt = j.now()
    })
}

func (j *Jobs) update(importID string, fn func(*domain.Import)) error {
    j.mu.Lock()
    defer j.mu.Unlock()
    imp, ok := j.imports[importID]
    if !ok {
        return errors.Wrapf(ports.ErrNotFound, "import %s", importID)
    }
    fn(imp)
    return nil
}

func (j *Jobs) startLocked(imp *domain.Import) {
    imp.Status = domain.ImportRunning
    imp.StartedAt = j.now()
}

func (j *Jobs) now() *time.Time {
    t := j.clock.Now()
    return &t
}
