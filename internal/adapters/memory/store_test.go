package memory_test

import (
    "context"
    "strings"
    "testing"

    "github.com/cockroachdb/errors"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "orderbridge/internal/adapters/memory"
    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

func TestStore_CreateSelectUpdate(t *testing.T) {
    ctx := context.Background()
    s := memory.New()

    ids, err := s.CreateBatch(ctx, "items", []ports.Fields{
        {"sku": "A1", "qty": 10},
        {"sku": "A2", "status": domain.Choice{Name: "new"}, "Supplier": []domain.Link{{ID: "rec1"}}},
    })
    require.NoError(t, err)
    require.Len(t, ids, 2)
    assert.NotEqual(t, ids[0], ids[1])
    assert.True(t, strings.HasPrefix(ids[0], "rec"))

    recs, err := s.Select(ctx, "items", ports.SelectQuery{})
    require.NoError(t, err)
    require.Len(t, recs, 2)
    assert.Equal(t, 10.0, recs[0].Get("qty"))
    assert.Equal(t, map[string]any{"name": "new"}, recs[1].Get("status"))
    assert.Equal(t, []any{map[string]any{"id": "rec1"}}, recs[1].Get("Supplier"))

    require.NoError(t, s.Update(ctx, "items", ids[0], ports.Fields{"status": domain.Choice{Name: "approved"}}))
    rec, err := s.Get(ctx, "items", ids[0])
    require.NoError(t, err)
    assert.Equal(t, "A1", rec.Get("sku"))
    assert.Equal(t, map[string]any{"name": "approved"}, rec.Get("status"))
}

func TestStore_ReadsAreCopies(t *testing.T) {
    ctx := context.Background()
    s := memory.New()
    id, err := s.Create(ctx, "t", ports.Fields{"name": "x"})
    require.NoError(t, err)

    rec, err := s.Get(ctx, "t", id)
    require.NoError(t, err)
    rec.Fields["name"] = "mutated"

    again, err := s.Get(ctx, "t", id)
    require.NoError(t, err)
    assert.Equal(t, "x", again.Get("name"))
}

func TestStore_WhereAndSort(t *testing.T) {
    ctx := context.Background()
    s := memory.New()
    require.NoError(t, s.Insert("orders", "rec1", ports.Fields{"ID": 1, "Order#": "PO-1"}))
    require.NoError(t, s.Insert("orders", "rec3", ports.Fields{"ID": 3, "Order#": "PO-3"}))
    require.NoError(t, s.Insert("orders", "rec2", ports.Fields{"ID": 2, "Order#": "PO-1"}))

    recs, err := s.Select(ctx, "orders", ports.SelectQuery{Sort: []ports.Sort{{Field: "ID", Direction: ports.Desc}}})
    require.NoError(t, err)
    require.Len(t, recs, 3)
    assert.Equal(t, []string{"rec3", "rec2", "rec1"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})

    recs, err = s.Select(ctx, "orders", ports.SelectQuery{Where: &ports.Where{Field: "Order#", Value: "PO-1"}, Fields: []string{"Order#"}})
    require.NoError(t, err)
    require.Len(t, recs, 2)
    assert.Nil(t, recs[0].Get("ID"))

    recs, err = s.Select(ctx, "orders", ports.SelectQuery{Where: &ports.Where{Field: "Order#", Value: "po-1"}})
    require.NoError(t, err)
    assert.Empty(t, recs)
}

func TestStore_NotFound(t *testing.T) {
    ctx := context.Background()
    s := memory.New()
    _, err := s.Select(ctx, "missing", ports.SelectQuery{})
    assert.True(t, errors.Is(err, ports.ErrNotFound))

    s.DeclareTable("t", "a")
    _, err = s.Get(ctx, "t", "recX")
    assert.True(t, errors.Is(err, ports.ErrNotFound))
    assert.True(t, errors.Is(s.Update(ctx, "t", "recX", ports.Fields{"a": 1}), ports.ErrNotFound))
}

func TestStore_LoadJSONAndFields(t *testing.T) {
    ctx := context.Background()
    s := memory.New()
    err := s.LoadJSON(strings.NewReader(`{"tables": {
        "suppliers info": {"fields": ["Company Name", "Notify Email"], "records": [
            {"id": "recA", "fields": {"Company Name": "Acme"}}
        ]}
    }}`))
    require.NoError(t, err)

    fields, err := s.TableFields(ctx, "suppliers info")
    require.NoError(t, err)
    assert.Equal(t, []string{"Company Name", "Notify Email"}, fields)

    rec, err := s.Get(ctx, "suppliers info", "recA")
    require.NoError(t, err)
    assert.Equal(t, "Acme", rec.Get("Company Name"))
}
