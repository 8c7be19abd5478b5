package app_test

import (
    "context"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/jonboulle/clockwork"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "orderbridge/internal/app"
    "orderbridge/internal/config"
    "orderbridge/internal/logging"
    "orderbridge/internal/ports"
)

const seed = `{"tables": {
    "old-base sync (new orders)": {"fields": ["order #", "sku clean", "U/Ord", "company name", "imported"], "records": [
        {"id": "row1", "fields": {"order #": "PO-9", "sku clean": "X1", "U/Ord": 4, "company name": "Acme"}}
    ]},
    "new order sku": {"fields": ["sku", "quantity requested", "Supplier", "status"]},
    "suppliers info": {"fields": ["Company Name"]},
    "orders": {"fields": ["ID", "order#override", "invoice checked"], "records": [{"id": "recO", "fields": {"ID": 1}}]},
    "payments": {"fields": ["Order#", "payment proof", "released"]}
}}`

func memoryConfig(t *testing.T) config.Config {
    t.Helper()
    path := filepath.Join(t.TempDir(), "seed.json")
    require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
    cfg := config.Default()
    cfg.Store = config.StoreMemory
    cfg.Memory.SeedFile = path
    cfg.Timing = config.Timing{SettlementInterval: time.Millisecond, SettlementAttempts: 1, WorkerPoll: time.Millisecond}
    s := cfg.Schema
    s.Source.CompanyInfo, s.Source.Email, s.Source.ProductName = "", "", ""
    s.Source.Invoice, s.Source.PaymentProof, s.Source.PaymentPercentage, s.Source.ReadyDate = "", "", "", ""
    s.Suppliers.CompanyInfo, s.Suppliers.NotifyEmail, s.Suppliers.ProductShort = "", "", ""
    s.Orders.Invoice, s.Orders.ReadyDate, s.Orders.Cost = "", "", ""
    s.Payments.Amount = ""
    cfg.Schema = s
    require.NoError(t, cfg.Validate())
    return cfg
}

func TestBuild_MemoryStore(t *testing.T) {
    ctx := context.Background()
    a, err := app.Build(ctx, memoryConfig(t), clockwork.NewRealClock(), logging.Nop())
    require.NoError(t, err)
    defer a.Close()

    assert.Nil(t, a.DB)
    require.NoError(t, a.CheckSchema(ctx))

    report, err := a.Pipeline.Import(ctx, "row1", nil)
    require.NoError(t, err)
    assert.Equal(t, "PO-9", report.OrderNumber)
    assert.Equal(t, 1, report.LineItemsCreated)
    assert.True(t, report.OverrideSet)
}

func TestBuild_CheckSchemaReportsMissingFields(t *testing.T) {
    cfg := memoryConfig(t)
    cfg.Schema.Source.Email = "email"
    a, err := app.Build(context.Background(), cfg, clockwork.NewRealClock(), logging.Nop())
    require.NoError(t, err)
    err = a.CheckSchema(context.Background())
    require.Error(t, err)
    assert.Contains(t, err.Error(), `source.email: optional field "email" not found`)
}

func TestImportOne_MistypedRoleWritesNothing(t *testing.T) {
    ctx := context.Background()
    cfg := memoryConfig(t)
    cfg.Schema.Orders.Override = "order#overide"
    a, err := app.Build(ctx, cfg, clockwork.NewRealClock(), logging.Nop())
    require.NoError(t, err)
    defer a.Close()

    _, err = a.ImportOne(ctx, "row1", nil)
    require.Error(t, err)
    assert.Contains(t, err.Error(), "orders.override")

    items, err := a.Store.Select(ctx, "new order sku", ports.SelectQuery{})
    require.NoError(t, err)
    assert.Empty(t, items)
    order, err := a.Store.Get(ctx, "orders", "recO")
    require.NoError(t, err)
    assert.Nil(t, order.Get("order#overide"))
}

func TestImportOne(t *testing.T) {
    ctx := context.Background()
    a, err := app.Build(ctx, memoryConfig(t), clockwork.NewRealClock(), logging.Nop())
    require.NoError(t, err)
    defer a.Close()

    report, err := a.ImportOne(ctx, "row1", nil)
    require.NoError(t, err)
    assert.Equal(t, 1, report.LineItemsCreated)
}

func TestBuild_BadSeedFile(t *testing.T) {
    cfg := config.Default()
    cfg.Store = config.StoreMemory
    cfg.Memory.SeedFile = filepath.Join(t.TempDir(), "missing.json")
    _, err := app.Build(context.Background(), cfg, clockwork.NewRealClock(), logging.Nop())
    assert.Error(t, err)
}

func TestPipelineOptions(t *testing.T) {
    cfg := config.Default()
    opts := app.PipelineOptions(cfg)
    assert.Equal(t, 50, opts.BatchSize)
    assert.Equal(t, "approved", opts.ApprovedStatus)
    assert.Equal(t, 30*time.Second, opts.Settlement.Warmup)
    assert.Equal(t, 15*time.Second, opts.Settlement.Interval)
    assert.Equal(t, 3, opts.Settlement.Attempts)
    assert.Equal(t, cfg.Schema, opts.Schema)
}
