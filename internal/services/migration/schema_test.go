package migration_test

import (
    "context"
    "testing"

    "github.com/cockroachdb/errors"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "orderbridge/internal/adapters/memory"
    "orderbridge/internal/services/migration"
)

func TestValidateSchema(t *testing.T) {
    ctx := context.Background()

    t.Run("complete base", func(t *testing.T) {
        require.NoError(t, migration.ValidateSchema(ctx, newBase(t), schema))
    })

    t.Run("problems are collected", func(t *testing.T) {
        s := memory.New()
        s.DeclareTable(schema.Tables.SourceOrders, "order #", "SKU CLEAN", "U/Ord", "company name", "imported")
        s.DeclareTable(schema.Tables.LineItems, "sku", "quantity requested", "Supplier", "status")
        s.DeclareTable(schema.Tables.Suppliers, "Company Name")
        s.DeclareTable(schema.Tables.Orders, "ID", "order#override", "Order#Override", "invoice checked")

        err := migration.ValidateSchema(ctx, s, schema)
        require.Error(t, err)
        assert.True(t, errors.Is(err, migration.ErrSchemaMismatch))
        msg := err.Error()
        assert.Contains(t, msg, `source.sku: "sku clean" not found in "old-base sync (new orders)", did you mean "SKU CLEAN"`)
        assert.Contains(t, msg, `orders.override: "order#override" is ambiguous`)
        assert.Contains(t, msg, `table "payments"`)
        assert.Contains(t, msg, `source.email: optional field "email" not found`)
    })

    t.Run("cleared optional roles are skipped", func(t *testing.T) {
        s := newBase(t)
        trimmed := schema
        trimmed.Orders.Cost = ""
        require.NoError(t, migration.ValidateSchema(ctx, s, trimmed))
    })
}
