package lineitems

import (
    "context"

    "go.uber.org/zap"

    "orderbridge/internal/domain"
    "orderbridge/internal/normalize"
    "orderbridge/internal/ports"
    "orderbridge/internal/services/suppliers"
)

// SupplierResolver is satisfied by *suppliers.Resolver.
type SupplierResolver interface {
    Resolve(ctx context.Context, in suppliers.Input) (domain.Supplier, bool)
}

// Builder turns source order rows into line-item payloads.
type Builder struct {
    resolver SupplierResolver
    src      domain.SourceFields
    dst      domain.LineItemFields
    log      *zap.SugaredLogger
}

func NewBuilder(resolver SupplierResolver, src domain.SourceFields, dst domain.LineItemFields, log *zap.SugaredLogger) *Builder {
    return &Builder{resolver: resolver, src: src, dst: dst, log: log}
}

// Draft normalizes one row and resolves its supplier.
func (b *Builder) Draft(ctx context.Context, row ports.Record) domain.LineItemDraft {
    d := domain.LineItemDraft{Row: row.ID}
    if sku := normalize.String(row.Get(b.src.SKU)); sku != "" {
        d.SKU = &sku
    }
    if qty, ok := normalize.Number(row.Get(b.src.Quantity)); ok {
        d.Quantity = &qty
    }
    s, ok := b.resolver.Resolve(ctx, suppliers.Input{
        Name:        row.Get(b.src.SupplierName),
        CompanyInfo: row.Get(b.src.CompanyInfo),
        Email:       row.Get(b.src.Email),
        ProductName: row.Get(b.src.ProductName),
    })
    if ok {
        d.SupplierID = &s.ID
    }
    b.log.Debugw("line item drafted", "record_id", row.ID, "sku", d.SKU, "quantity", d.Quantity, "supplier", s.Name)
    return d
}

// Build drafts every row, in order, and returns their payloads.
func (b *Builder) Build(ctx context.Context, rows []ports.Record) []ports.Fields {
    out := make([]ports.Fields, 0, len(rows))
    for _, row := range rows {
        out = append(out, b.Payload(b.Draft(ctx, row)))
    }
    return out
}

// Payload includes only the values that are present.
func (b *Builder) Payload(d domain.LineItemDraft) ports.Fields {
    fields := ports.Fields{}
    if d.SKU != nil {
        fields[b.dst.SKU] = *d.SKU
    }
    if d.Quantity != nil {
        fields[b.dst.Quantity] = *d.Quantity
    }
    if d.SupplierID != nil {
        fields[b.dst.Supplier] = []domain.Link{{ID: *d.SupplierID}}
    }
    return fields
}
