package ports

import (
    "context"

    "orderbridge/internal/domain"
)

// Imports enqueues and tracks order imports.
type Imports interface {
    Enqueue(ctx context.Context, sourceRecordID string) (importID string, err error)
    Status(ctx context.Context, importID string) (domain.Import, error)
}

// ProgressFunc receives the pipeline stage and overall progress in [0, 1].
type ProgressFunc func(stage string, progress float64)

// Importer runs the whole pipeline for one source order record.
type Importer interface {
    Import(ctx context.Context, sourceRecordID string, progress ProgressFunc) (domain.ImportReport, error)
}
