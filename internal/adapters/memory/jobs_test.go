package memory_test

import (
    "context"
    "testing"

    "github.com/cockroachdb/errors"
    "github.com/jonboulle/clockwork"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "orderbridge/internal/adapters/memory"
    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

func TestJobs_Lifecycle(t *testing.T) {
    ctx := context.Background()
    jobs := memory.NewJobs(clockwork.NewFakeClock())

    first, err := jobs.CreateImport(ctx, "rec1")
    require.NoError(t, err)
    second, err := jobs.CreateImport(ctx, "rec2")
    require.NoError(t, err)

    _, err = jobs.StartJob(ctx, second)
    require.NoError(t, err)

    job, found, err := jobs.ClaimNext(ctx)
    require.NoError(t, err)
    require.True(t, found)
    assert.Equal(t, ports.ImportJob{ID: first, SourceRecordID: "rec1"}, job)

    _, found, err = jobs.ClaimNext(ctx)
    require.NoError(t, err)
    assert.False(t, found, "a started import is not claimed again")

    require.NoError(t, jobs.UpdateProgress(ctx, first, 2, "creating line items"))
    imp, err := jobs.GetImport(ctx, first)
    require.NoError(t, err)
    assert.Equal(t, domain.ImportRunning, imp.Status)
    assert.Equal(t, 1.0, imp.Progress)
    assert.Equal(t, "creating line items", imp.Stage)
    assert.NotNil(t, imp.StartedAt)

    require.NoError(t, jobs.MarkCompleted(ctx, first, domain.ImportReport{OrderNumber: "PO-1"}))
    require.NoError(t, jobs.MarkFailed(ctx, second, "boom", nil))

    imp, err = jobs.GetImport(ctx, first)
    require.NoError(t, err)
    assert.Equal(t, domain.ImportCompleted, imp.Status)
    assert.Equal(t, "PO-1", imp.Report.OrderNumber)

    imp, err = jobs.GetImport(ctx, second)
    require.NoError(t, err)
    assert.Equal(t, domain.ImportFailed, imp.Status)
    assert.Equal(t, "boom", imp.Error)

    _, err = jobs.GetImport(ctx, "nope")
    assert.True(t, errors.Is(err, ports.ErrNotFound))
    _, err = jobs.StartJob(ctx, first)
    assert.True(t, errors.Is(err, ports.ErrNotFound))
}
