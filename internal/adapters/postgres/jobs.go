package postgres

import (
    "context"
    "encoding/json"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"

    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

var _ ports.JobRepository = (*DB)(nil)

func (db *DB) CreateImport(ctx context.Context, sourceRecordID string) (string, error) {
    id := uuid.NewString()
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO imports (id, source_record_id, status, progress)
        VALUES ($1, $2, 'queued', 0)
    `, id, sourceRecordID)
    if err != nil {
        return "", errors.Wrap(err, "create import")
    }
    return id, nil
}

func (db *DB) GetImport(ctx context.Context, importID string) (domain.Import, error) {
    var imp domain.Import
    if _, err := uuid.Parse(importID); err != nil {
        return imp, errors.Wrapf(ports.ErrNotFound, "import %q", importID)
    }
    var status string
    var errText *string
    var report []byte
    err := db.Pool.QueryRow(ctx, `
        SELECT id::text, source_record_id, status, progress, stage, error, report, queued_at, started_at, finished_at
        FROM imports WHERE id = $1
    `, importID).Scan(&imp.ID, &imp.SourceRecordID, &status, &imp.Progress, &imp.Stage, &errText, &report, &imp.QueuedAt, &imp.StartedAt, &imp.FinishedAt)
    if errors.Is(err, pgx.ErrNoRows) {
        return imp, errors.Wrapf(ports.ErrNotFound, "import %s", importID)
    }
    if err != nil {
        return imp, errors.Wrapf(err, "get import %s", importID)
    }
    imp.Status = domain.ImportStatus(status)
    if errText != nil {
        imp.Error = *errText
    }
    if len(report) > 0 {
        var r domain.ImportReport
        if err := json.Unmarshal(report, &r); err != nil {
            return imp, errors.Wrapf(err, "decode report of import %s", importID)
        }
        imp.Report = &r
    }
    return imp, nil
}

// ClaimNext selects the next queued import using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ImportJob, found bool, err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return job, false, err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { err = tx.Commit(ctx) }
    }()

    err = tx.QueryRow(ctx, `
        SELECT id::text, source_record_id FROM imports
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&job.ID, &job.SourceRecordID)
    if errors.Is(err, pgx.ErrNoRows) {
        return job, false, nil
    }
    if err != nil { return job, false, err }

    if _, err = tx.Exec(ctx, `
        UPDATE imports SET status = 'running', started_at = now(), attempts = attempts + 1 WHERE id = $1
    `, job.ID); err != nil {
        return job, false, err
    }
    return job, true, nil
}

// StartJob marks one specific queued import as running.
func (db *DB) StartJob(ctx context.Context, importID string) (job ports.ImportJob, err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return job, err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { err = tx.Commit(ctx) }
    }()

    err = tx.QueryRow(ctx, `
        SELECT id::text, source_record_id FROM imports
        WHERE id = $1 AND status = 'queued'
        FOR UPDATE SKIP LOCKED
    `, importID).Scan(&job.ID, &job.SourceRecordID)
    if errors.Is(err, pgx.ErrNoRows) {
        return job, errors.Wrapf(ports.ErrNotFound, "queued import %s", importID)
    }
    if err != nil { return job, err }
    if _, err = tx.Exec(ctx, `UPDATE imports SET status = 'running', started_at = now(), attempts = attempts + 1 WHERE id = $1`, importID); err != nil {
        return job, err
    }
    return job, nil
}

func (db *DB) UpdateProgress(ctx context.Context, importID string, progress float64, stage string) error {
    if progress < 0 { progress = 0 }
    if progress > 1 { progress = 1 }
    _, err := db.Pool.Exec(ctx, `UPDATE imports SET progress = $2, stage = $3 WHERE id = $1`, importID, progress, stage)
    return errors.Wrapf(err, "update progress of %s", importID)
}

func (db *DB) MarkCompleted(ctx context.Context, importID string, report domain.ImportReport) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    b, err := json.Marshal(report)
    if err != nil {
        return errors.Wrap(err, "encode report")
    }
    _, err = db.Pool.Exec(ctx, `
        UPDATE imports SET status = 'completed', progress = 1, stage = 'done', report = $2::jsonb, finished_at = now()
        WHERE id = $1
    `, importID, string(b))
    return errors.Wrapf(err, "complete import %s", importID)
}

func (db *DB) MarkFailed(ctx context.Context, importID string, reason string, report *domain.ImportReport) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    var doc *string
    if report != nil {
        b, err := json.Marshal(report)
        if err != nil {
            return errors.Wrap(err, "encode report")
        }
        s := string(b)
        doc = &s
    }
    _, err := db.Pool.Exec(ctx, `
        UPDATE imports SET status = 'failed', error = $2, report = $3::jsonb, finished_at = now()
        WHERE id = $1
    `, importID, reason, doc)
    return errors.Wrapf(err, "fail import %s", importID)
}
