package ports

import (
    "context"

    "orderbridge/internal/domain"
)

type ImportJob struct {
    ID             string
    SourceRecordID string
}

// JobRepository supports queueing, claiming and updating import jobs.
type JobRepository interface {
    CreateImport(ctx context.Context, sourceRecordID string) (importID string, err error)
    GetImport(ctx context.Context, importID string) (domain.Import, error)
    ClaimNext(ctx context.Context) (job ImportJob, found bool, err error)
    StartJob(ctx context.Context, importID string) (ImportJob, error)
    UpdateProgress(ctx context.Context, importID string, progress float64, stage string) error
    MarkCompleted(ctx context.Context, importID string, report domain.ImportReport) error
    MarkFailed(ctx context.Context, importID string, reason string, report *domain.ImportReport) error
}
