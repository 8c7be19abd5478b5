package reconcile

import (
    "context"

    "go.uber.org/zap"

    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

// Result is the only aggregate signal of a reconciliation pass.
type Result struct {
    Attempted int
    Succeeded int
    Failed    []string
    // Missing counts created ids the fresh read did not return.
    Missing int
}

// Reconciler moves freshly created line items to the approved status.
type Reconciler struct {
    store       ports.RecordStore
    table       string
    statusField string
    approved    string
    log         *zap.SugaredLogger
}

func New(store ports.RecordStore, table, statusField, approved string, log *zap.SugaredLogger) *Reconciler {
    return &Reconciler{store: store, table: table, statusField: statusField, approved: approved, log: log}
}

// Approve re-reads the whole table, keeps the records whose ids were just
// created and updates each one independently. Ids returned by a create may
// not be usable as update targets until the store lists them.
func (r *Reconciler) Approve(ctx context.Context, created []string) Result {
    var res Result
    if len(created) == 0 {
        r.log.Warnw("no records to approve", "table", r.table)
        return res
    }
    want := make(map[string]bool, len(created))
    for _, id := range created { want[id] = true }

    fresh, err := r.store.Select(ctx, r.table, ports.SelectQuery{Fields: []string{r.statusField}})
    if err != nil {
        r.log.Errorw("re-read for status update failed", "table", r.table, "error", err)
        res.Missing = len(want)
        return res
    }

    update := ports.Fields{r.statusField: domain.Choice{Name: r.approved}}
    for _, rec := range fresh {
        if !want[rec.ID] { continue }
        delete(want, rec.ID)
        res.Attempted++
        if err := r.store.Update(ctx, r.table, rec.ID, update); err != nil {
            res.Failed = append(res.Failed, rec.ID)
            r.log.Errorw("status update failed", "record_id", rec.ID, "error", err)
            continue
        }
        res.Succeeded++
    }
    res.Missing = len(want)
    r.log.Infow("status updated", "table", r.table, "status", r.approved, "succeeded", res.Succeeded, "attempted", res.Attempted, "missing", res.Missing)
    return res
}

// MarkImported flags every source row as imported, one update per row.
// Failures are logged and counted.
func MarkImported(ctx context.Context, store ports.RecordStore, table, field string, rows []string, log *zap.SugaredLogger) (marked, failed int) {
    for _, id := range rows {
        if err := store.Update(ctx, table, id, ports.Fields{field: true}); err != nil {
            failed++
            log.Errorw("mark imported failed", "table", table, "record_id", id, "error", err)
            continue
        }
        marked++
    }
    log.Infow("source rows marked imported", "table", table, "count", marked, "failed", failed)
    return marked, failed
}
