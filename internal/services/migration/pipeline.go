// Package migration imports one legacy order into normalized line items and
// propagates its order level data to the master order and payment tables.
package migration

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/jonboulle/clockwork"
    "go.uber.org/zap"

    "orderbridge/internal/domain"
    "orderbridge/internal/normalize"
    "orderbridge/internal/ports"
    "orderbridge/internal/services/lineitems"
    "orderbridge/internal/services/propagate"
    "orderbridge/internal/services/reconcile"
    "orderbridge/internal/services/settlement"
    "orderbridge/internal/services/suppliers"
)

// Fatal conditions. Everything else is logged and recorded as a warning.
var (
    ErrNoRecordID     = errors.New("no source order selected")
    ErrSourceNotFound = errors.New("source order not found")
    ErrNoOrderNumber  = errors.New("source order has no order number")
    ErrNoMatchingRows = errors.New("no source rows for order")
)

type Options struct {
    Schema         domain.Schema
    BatchSize      int
    ApprovedStatus string
    // RecordSync is the pause between creating line items and re-reading them.
    RecordSync time.Duration
    // OrderSync is the pause before the master order is looked up.
    OrderSync time.Duration
    // TriggerSettle separates the master order field update from the trigger.
    TriggerSettle time.Duration
    Settlement    settlement.Schedule
}

// Pipeline runs imports sequentially against one record store.
type Pipeline struct {
    store ports.RecordStore
    opts  Options
    clock clockwork.Clock
    log   *zap.SugaredLogger
}

var _ ports.Importer = (*Pipeline)(nil)

func New(store ports.RecordStore, opts Options, clock clockwork.Clock, log *zap.SugaredLogger) *Pipeline {
    return &Pipeline{store: store, opts: opts, clock: clock, log: log}
}

// Import runs every stage for the order of the given source record. The
// returned report is filled in as far as the run got, also on error.
func (p *Pipeline) Import(ctx context.Context, sourceRecordID string, progress ports.ProgressFunc) (domain.ImportReport, error) {
    report := domain.ImportReport{StartedAt: p.clock.Now()}
    log := p.log.With("source_record_id", sourceRecordID)
    step := func(stage string, pct float64) {
        log.Infow("import stage", "stage", stage, "progress", pct)
        if progress != nil {
            progress(stage, pct)
        }
    }
    finish := func(err error) (domain.ImportReport, error) {
        report.FinishedAt = p.clock.Now()
        if err != nil {
            log.Errorw("import failed", "order", report.OrderNumber, "error", err)
        } else {
            log.Infow("import finished", "order", report.OrderNumber, "line_items", report.LineItemsCreated, "warnings", len(report.Warnings))
        }
        return report, err
    }

    s := p.opts.Schema
    sourceRecordID = strings.TrimSpace(sourceRecordID)
    if sourceRecordID == "" {
        return finish(ErrNoRecordID)
    }

    step("loading order", 0.05)
    selected, err := p.store.Get(ctx, s.Tables.SourceOrders, sourceRecordID)
    if errors.Is(err, ports.ErrNotFound) {
        return finish(errors.Wrapf(ErrSourceNotFound, "record %s", sourceRecordID))
    }
    if err != nil {
        return finish(errors.Wrapf(err, "read source record %s", sourceRecordID))
    }
    orderNumber := normalize.String(selected.Get(s.Source.OrderNumber))
    if orderNumber == "" {
        return finish(errors.Wrapf(ErrNoOrderNumber, "record %s", sourceRecordID))
    }
    report.OrderNumber = orderNumber
    log = log.With("order", orderNumber)

    rows, err := p.matchingRows(ctx, orderNumber)
    if err != nil {
        return finish(err)
    }
    if len(rows) == 0 {
        return finish(errors.Wrapf(ErrNoMatchingRows, "order %s", orderNumber))
    }
    report.SourceRows = len(rows)
    oc := p.orderContext(orderNumber, rows)
    log.Infow("order rows matched", "rows", len(rows), "invoice", len(oc.Invoice) > 0, "payment_proof", len(oc.PaymentProof) > 0)

    step("resolving suppliers", 0.15)
    resolver := suppliers.New(p.store, s.Tables.Suppliers, s.Suppliers, log)
    if err := resolver.Seed(ctx); err != nil {
        return finish(err)
    }
    queue := lineitems.NewBuilder(resolver, s.Source, s.LineItems, log).Build(ctx, rows)
    report.SuppliersCreated, report.SuppliersReused = resolver.Stats()

    step("creating line items", 0.3)
    ids, err := lineitems.NewWriter(p.store, s.Tables.LineItems, p.opts.BatchSize, log).Write(ctx, queue)
    report.LineItemsCreated = len(ids)
    report.LineItemIDs = ids
    if err != nil {
        return finish(err)
    }

    step("approving line items", 0.45)
    if err := settlement.Pause(ctx, p.clock, p.opts.RecordSync); err != nil {
        return finish(err)
    }
    approved := reconcile.New(p.store, s.Tables.LineItems, s.LineItems.Status, p.opts.ApprovedStatus, log).Approve(ctx, ids)
    report.StatusAttempted = approved.Attempted
    report.StatusUpdated = approved.Succeeded
    if n := len(approved.Failed) + approved.Missing; n > 0 {
        report.Warn(fmt.Sprintf("%d of %d line items not set to %q", n, len(ids), p.opts.ApprovedStatus))
    }

    step("marking source rows", 0.55)
    rowIDs := make([]string, len(rows))
    for i, r := range rows {
        rowIDs[i] = r.ID
    }
    report.RowsMarked, report.RowsFailed = reconcile.MarkImported(ctx, p.store, s.Tables.SourceOrders, s.Source.Imported, rowIDs, log)
    if report.RowsFailed > 0 {
        report.Warn(fmt.Sprintf("%d source rows not marked imported", report.RowsFailed))
    }

    step("updating master order", 0.65)
    if err := settlement.Pause(ctx, p.clock, p.opts.OrderSync); err != nil {
        return finish(err)
    }
    prop := propagate.New(p.store, s, p.clock, p.opts.TriggerSettle, log)
    order, err := prop.UpdateMasterOrder(ctx, oc)
    report.MasterOrderID = order.RecordID
    report.OverrideSet = order.OverrideSet
    report.InvoiceCopied = order.InvoiceCopied
    report.Triggered = order.Triggered
    if err != nil {
        if ctx.Err() != nil {
            return finish(err)
        }
        log.Errorw("master order update failed", "error", err)
        report.Warn("master order not updated: " + err.Error())
    }

    settled := domain.Settlement{State: domain.SettlementUnset}
    if !normalize.IsAttachmentList(oc.PaymentProof) {
        report.Settlement = string(settled.State)
        report.Warn("no payment proof on order; payment not updated")
        step("done", 1)
        return finish(nil)
    }

    step("waiting for settlement", 0.75)
    if order.Triggered && oc.PaymentPercentage != nil && s.Orders.Cost != "" && s.Payments.Amount != "" {
        settled = settlement.NewWaiter(p.clock, p.opts.Settlement, log).Wait(ctx, prop.CostReader(order.RecordID))
    } else if err := settlement.Pause(ctx, p.clock, p.opts.TriggerSettle); err != nil {
        return finish(err)
    }
    report.Settlement = string(settled.State)
    if settled.Resolved() {
        cost := settled.Value
        report.SettledCost = &cost
    } else if settled.State == domain.SettlementAbandoned {
        report.Warn("settled cost not available; payment amount omitted")
    }
    if ctx.Err() != nil {
        return finish(ctx.Err())
    }

    step("updating payment", 0.9)
    payment, err := prop.UpdatePayment(ctx, oc, settled)
    report.PaymentID = payment.RecordID
    if err != nil {
        log.Errorw("payment update failed", "error", err)
        report.Warn("payment not updated: " + err.Error())
    } else {
        report.PaymentUpdated = true
        report.Amount = payment.Amount
    }

    step("done", 1)
    return finish(nil)
}

// matchingRows selects every source row and keeps those whose normalized
// order number equals orderNumber.
func (p *Pipeline) matchingRows(ctx context.Context, orderNumber string) ([]ports.Record, error) {
    s := p.opts.Schema
    var fields []string
    for _, f := range []string{
        s.Source.OrderNumber, s.Source.SKU, s.Source.Quantity, s.Source.SupplierName,
        s.Source.CompanyInfo, s.Source.Email, s.Source.ProductName, s.Source.Invoice,
        s.Source.PaymentProof, s.Source.PaymentPercentage, s.Source.ReadyDate, s.Source.Imported,
    } {
        if f != "" {
            fields = append(fields, f)
        }
    }
    all, err := p.store.Select(ctx, s.Tables.SourceOrders, ports.SelectQuery{Fields: fields})
    if err != nil {
        return nil, errors.Wrapf(err, "list %q", s.Tables.SourceOrders)
    }
    var rows []ports.Record
    for _, r := range all {
        if normalize.String(r.Get(s.Source.OrderNumber)) == orderNumber {
            rows = append(rows, r)
        }
    }
    return rows, nil
}

// orderContext takes the shared order fields from the first row.
func (p *Pipeline) orderContext(orderNumber string, rows []ports.Record) domain.OrderContext {
    src := p.opts.Schema.Source
    first := rows[0]
    oc := domain.OrderContext{OrderNumber: orderNumber, Rows: make([]string, len(rows))}
    for i, r := range rows {
        oc.Rows[i] = r.ID
    }
    if src.Invoice != "" {
        oc.Invoice, _ = normalize.Attachments(first.Get(src.Invoice))
    }
    if src.PaymentProof != "" {
        oc.PaymentProof, _ = normalize.Attachments(first.Get(src.PaymentProof))
    }
    if src.PaymentPercentage != "" {
        if pct, ok := normalize.Percentage(first.Get(src.PaymentPercentage)); ok {
            oc.PaymentPercentage = &pct
        }
    }
    if src.ReadyDate != "" {
        oc.ReadyDate = normalize.String(first.Get(src.ReadyDate))
    }
    return oc
}
