package lineitems_test

import (
    "context"
    "fmt"
    "testing"

    "github.com/cockroachdb/errors"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "orderbridge/internal/adapters/memory"
    "orderbridge/internal/domain"
    "orderbridge/internal/logging"
    "orderbridge/internal/ports"
    "orderbridge/internal/services/lineitems"
    "orderbridge/internal/services/suppliers"
)

type stubResolver map[string]string

func (s stubResolver) Resolve(_ context.Context, in suppliers.Input) (domain.Supplier, bool) {
    name, _ := in.Name.(string)
    id, ok := s[name]
    return domain.Supplier{ID: id, Name: name}, ok
}

func TestBuilder_IncludesOnlyPresentFields(t *testing.T) {
    schema := domain.DefaultSchema()
    b := lineitems.NewBuilder(stubResolver{"Acme": "recAcme"}, schema.Source, schema.LineItems, logging.Nop())

    rows := []ports.Record{
        {ID: "row1", Fields: ports.Fields{"sku clean": " A1 ", "U/Ord": "10", "company name": "Acme"}},
        {ID: "row2", Fields: ports.Fields{"sku clean": []any{map[string]any{"value": "A2"}}, "U/Ord": 5.0}},
        {ID: "row3", Fields: ports.Fields{"sku clean": map[string]any{"foo": 1}, "U/Ord": "n/a", "company name": "Unknown"}},
    }
    got := b.Build(context.Background(), rows)
    require.Len(t, got, 3)

    assert.Equal(t, ports.Fields{
        "sku":                "A1",
        "quantity requested": 10.0,
        "Supplier":           []domain.Link{{ID: "recAcme"}},
    }, got[0])
    assert.Equal(t, ports.Fields{"sku": "A2", "quantity requested": 5.0}, got[1])
    assert.Equal(t, ports.Fields{}, got[2])
}

type recordingStore struct {
    *memory.Store
    sizes  []int
    failAt int
}

func (r *recordingStore) CreateBatch(ctx context.Context, table string, rows []ports.Fields) ([]string, error) {
    r.sizes = append(r.sizes, len(rows))
    if len(r.sizes) == r.failAt {
        return nil, errors.New("INVALID_RECORDS")
    }
    return r.Store.CreateBatch(ctx, table, rows)
}

func drafts(n int) []ports.Fields {
    out := make([]ports.Fields, n)
    for i := range out {
        out[i] = ports.Fields{"sku": fmt.Sprintf("SKU-%03d", i)}
    }
    return out
}

func TestWriter_ChunksOfFifty(t *testing.T) {
    ctx := context.Background()
    store := &recordingStore{Store: memory.New()}
    w := lineitems.NewWriter(store, "new order sku", lineitems.DefaultChunkSize, logging.Nop())

    ids, err := w.Write(ctx, drafts(120))
    require.NoError(t, err)
    assert.Equal(t, []int{50, 50, 20}, store.sizes)
    assert.Len(t, ids, 120)

    recs, err := store.Select(ctx, "new order sku", ports.SelectQuery{})
    require.NoError(t, err)
    assert.Len(t, recs, 120)
}

func TestWriter_FailsFastOnChunkError(t *testing.T) {
    ctx := context.Background()
    store := &recordingStore{Store: memory.New(), failAt: 2}
    w := lineitems.NewWriter(store, "new order sku", 50, logging.Nop())

    queue := drafts(120)
    ids, err := w.Write(ctx, queue)
    require.Error(t, err)
    assert.Equal(t, []int{50, 50}, store.sizes, "no call after the failing chunk")
    assert.Len(t, ids, 50)

    var be *lineitems.BatchError
    require.True(t, errors.As(err, &be))
    assert.Equal(t, 1, be.Chunk)
    assert.Equal(t, 50, be.Committed)
    assert.Equal(t, queue[50], be.First)
    assert.Contains(t, err.Error(), "SKU-050")
    assert.Contains(t, err.Error(), "INVALID_RECORDS")

    recs, err := store.Select(ctx, "new order sku", ports.SelectQuery{})
    require.NoError(t, err)
    assert.Len(t, recs, 50, "the first chunk stays committed")
}

// splitStore commits rows in groups of ten and fails on group failGroup,
// returning the ids already created with the error.
type splitStore struct {
    *memory.Store
    groups    int
    failGroup int
}

func (s *splitStore) CreateBatch(ctx context.Context, table string, rows []ports.Fields) ([]string, error) {
    var ids []string
    for len(rows) > 0 {
        n := min(10, len(rows))
        s.groups++
        if s.groups == s.failGroup {
            return ids, errors.New("422 INVALID_VALUE_FOR_COLUMN")
        }
        created, err := s.Store.CreateBatch(ctx, table, rows[:n])
        if err != nil { return ids, err }
        ids = append(ids, created...)
        rows = rows[n:]
    }
    return ids, nil
}

func TestWriter_KeepsPartialIDsOfFailedChunk(t *testing.T) {
    ctx := context.Background()
    store := &splitStore{Store: memory.New(), failGroup: 3}
    w := lineitems.NewWriter(store, "new order sku", 50, logging.Nop())

    ids, err := w.Write(ctx, drafts(50))
    require.Error(t, err)
    assert.Len(t, ids, 20)

    var be *lineitems.BatchError
    require.True(t, errors.As(err, &be))
    assert.Equal(t, 0, be.Chunk)
    assert.Equal(t, 20, be.Committed)

    recs, err := store.Select(ctx, "new order sku", ports.SelectQuery{})
    require.NoError(t, err)
    assert.Len(t, recs, len(ids), "every stored record is reported")
}

func TestWriter_EmptyQueue(t *testing.T) {
    store := &recordingStore{Store: memory.New()}
    ids, err := lineitems.NewWriter(store, "t", 0, logging.Nop()).Write(context.Background(), nil)
    require.NoError(t, err)
    assert.Empty(t, ids)
    assert.Empty(t, store.sizes)
}
