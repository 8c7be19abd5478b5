// Package propagate copies order level data from an imported order onto the
// master order record and the matching payment record.
package propagate

import (
    "context"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/jonboulle/clockwork"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "orderbridge/internal/domain"
    "orderbridge/internal/normalize"
    "orderbridge/internal/ports"
    "orderbridge/internal/services/settlement"
)

var (
    ErrNoOrder   = errors.New("no master order record")
    ErrNoPayment = errors.New("no payment record for order")
)

// OrderUpdate describes what was written to the master order.
type OrderUpdate struct {
    RecordID      string
    OverrideSet   bool
    InvoiceCopied bool
    Triggered     bool
}

// PaymentUpdate describes what was written to the payment record.
type PaymentUpdate struct {
    RecordID string
    Amount   *float64
}

type Propagator struct {
    store         ports.RecordStore
    ordersTable   string
    paymentsTable string
    orders        domain.OrderFields
    payments      domain.PaymentFields
    clock         clockwork.Clock
    settle        time.Duration
    log           *zap.SugaredLogger
}

// New builds a propagator. settle is the pause between the field update and
// the trigger write on the master order.
func New(store ports.RecordStore, schema domain.Schema, clock clockwork.Clock, settle time.Duration, log *zap.SugaredLogger) *Propagator {
    return &Propagator{
        store:         store,
        ordersTable:   schema.Tables.Orders,
        paymentsTable: schema.Tables.Payments,
        orders:        schema.Orders,
        payments:      schema.Payments,
        clock:         clock,
        settle:        settle,
        log:           log,
    }
}

// LatestOrder returns the master order with the highest id field value.
func (p *Propagator) LatestOrder(ctx context.Context) (ports.Record, error) {
    recs, err := p.store.Select(ctx, p.ordersTable, ports.SelectQuery{
        Fields: []string{p.orders.ID},
        Sort:   []ports.Sort{{Field: p.orders.ID, Direction: ports.Desc}},
    })
    if err != nil {
        return ports.Record{}, errors.Wrapf(err, "list %q", p.ordersTable)
    }
    if len(recs) == 0 {
        return ports.Record{}, errors.Wrapf(ErrNoOrder, "table %q is empty", p.ordersTable)
    }
    return recs[0], nil
}

// UpdateMasterOrder writes the override, invoice and ready date on the latest
// master order, waits for the fields to settle, then sets the invoice checked
// flag in a second write. That flag starts the downstream cost automation.
func (p *Propagator) UpdateMasterOrder(ctx context.Context, oc domain.OrderContext) (OrderUpdate, error) {
    var out OrderUpdate
    order, err := p.LatestOrder(ctx)
    if err != nil {
        return out, err
    }
    out.RecordID = order.ID

    fields := ports.Fields{p.orders.Override: oc.OrderNumber}
    if p.orders.Invoice != "" && normalize.IsAttachmentList(oc.Invoice) {
        fields[p.orders.Invoice] = oc.Invoice
    }
    if p.orders.ReadyDate != "" && oc.ReadyDate != "" {
        fields[p.orders.ReadyDate] = oc.ReadyDate
    }
    if err := p.store.Update(ctx, p.ordersTable, order.ID, fields); err != nil {
        return out, errors.Wrapf(err, "update order %s", order.ID)
    }
    out.OverrideSet = true
    _, out.InvoiceCopied = fields[p.orders.Invoice]
    p.log.Infow("master order updated", "record_id", order.ID, "override", oc.OrderNumber, "invoice", out.InvoiceCopied)

    if err := settlement.Pause(ctx, p.clock, p.settle); err != nil {
        return out, err
    }
    if err := p.store.Update(ctx, p.ordersTable, order.ID, ports.Fields{p.orders.InvoiceChecked: true}); err != nil {
        return out, errors.Wrapf(err, "set %q on order %s", p.orders.InvoiceChecked, order.ID)
    }
    out.Triggered = true
    p.log.Infow("invoice checked set", "record_id", order.ID)
    return out, nil
}

// CostReader reads the settled cost of an order. A missing cost field or a
// value that is not numeric reads as absent.
func (p *Propagator) CostReader(orderID string) settlement.ReadFunc {
    return func(ctx context.Context) (float64, bool, error) {
        if p.orders.Cost == "" {
            return 0, false, nil
        }
        rec, err := p.store.Get(ctx, p.ordersTable, orderID)
        if err != nil {
            return 0, false, err
        }
        v, ok := normalize.Number(rec.Get(p.orders.Cost))
        return v, ok, nil
    }
}

// UpdatePayment writes the payment proof and released flag on the payment
// record whose order number equals the order's. The amount is added only
// when both the percentage and the settled cost are known.
func (p *Propagator) UpdatePayment(ctx context.Context, oc domain.OrderContext, settled domain.Settlement) (PaymentUpdate, error) {
    var out PaymentUpdate
    recs, err := p.store.Select(ctx, p.paymentsTable, ports.SelectQuery{
        Fields: []string{p.payments.OrderNumber},
        Where:  &ports.Where{Field: p.payments.OrderNumber, Value: oc.OrderNumber},
    })
    if err != nil {
        return out, errors.Wrapf(err, "find payment for %s", oc.OrderNumber)
    }
    if len(recs) == 0 {
        return out, errors.Wrapf(ErrNoPayment, "order %s", oc.OrderNumber)
    }
    if len(recs) > 1 {
        p.log.Warnw("several payment records match, using the first", "order", oc.OrderNumber, "count", len(recs))
    }
    out.RecordID = recs[0].ID

    fields := ports.Fields{p.payments.Released: true}
    if normalize.IsAttachmentList(oc.PaymentProof) {
        fields[p.payments.PaymentProof] = oc.PaymentProof
    }
    if p.payments.Amount != "" && oc.PaymentPercentage != nil && settled.Resolved() {
        amount := PaymentAmount(settled.Value, *oc.PaymentPercentage)
        fields[p.payments.Amount] = amount
        out.Amount = &amount
    }
    if err := p.store.Update(ctx, p.paymentsTable, out.RecordID, fields); err != nil {
        return PaymentUpdate{RecordID: out.RecordID}, errors.Wrapf(err, "update payment %s", out.RecordID)
    }
    p.log.Infow("payment updated", "record_id", out.RecordID, "order", oc.OrderNumber, "amount", out.Amount)
    return out, nil
}

// PaymentAmount is cost times percentage, rounded to cents.
func PaymentAmount(cost, percentage float64) float64 {
    amount, _ := decimal.NewFromFloat(cost).Mul(decimal.NewFromFloat(percentage)).Round(2).Float64()
    return amount
}
