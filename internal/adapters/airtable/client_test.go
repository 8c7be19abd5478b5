package airtable_test

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "orderbridge/internal/adapters/airtable"
    "orderbridge/internal/domain"
    "orderbridge/internal/logging"
    "orderbridge/internal/ports"
)

func newClient(t *testing.T, h http.Handler) *airtable.Client {
    t.Helper()
    srv := httptest.NewServer(h)
    t.Cleanup(srv.Close)
    c, err := airtable.NewClient(airtable.Options{
        APIKey:            "pat-test",
        BaseID:            "appBase",
        BaseURL:           srv.URL,
        RequestsPerSecond: 1000,
        MaxRetries:        2,
        RetryBackoff:      time.Millisecond,
    }, logging.Nop())
    require.NoError(t, err)
    return c
}

func TestSelect_PaginatesWithQuery(t *testing.T) {
    var calls int
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls++
        assert.Equal(t, "Bearer pat-test", r.Header.Get("Authorization"))
        assert.Equal(t, "/appBase/orders", r.URL.EscapedPath())
        q := r.URL.Query()
        assert.Equal(t, []string{"ID"}, q["fields[]"])
        assert.Equal(t, "ID", q.Get("sort[0][field]"))
        assert.Equal(t, "desc", q.Get("sort[0][direction]"))
        switch q.Get("offset") {
        case "":
            fmt.Fprint(w, `{"records":[{"id":"rec2","fields":{"ID":2}}],"offset":"itrNext"}`)
        case "itrNext":
            fmt.Fprint(w, `{"records":[{"id":"rec1","fields":{}}]}`)
        default:
            t.Errorf("unexpected offset %q", q.Get("offset"))
        }
    }))

    recs, err := c.Select(context.Background(), "orders", ports.SelectQuery{
        Fields: []string{"ID"},
        Sort:   []ports.Sort{{Field: "ID", Direction: ports.Desc}},
    })
    require.NoError(t, err)
    require.Len(t, recs, 2)
    assert.Equal(t, "rec2", recs[0].ID)
    assert.Equal(t, 2.0, recs[0].Get("ID"))
    assert.NotNil(t, recs[1].Fields)
    assert.Equal(t, 2, calls)
}

func TestSelect_WhereBecomesFormula(t *testing.T) {
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, `{Order#}&"" = "PO-\"7\""`, r.URL.Query().Get("filterByFormula"))
        fmt.Fprint(w, `{"records":[]}`)
    }))
    recs, err := c.Select(context.Background(), "payments", ports.SelectQuery{Where: &ports.Where{Field: "Order#", Value: `PO-"7"`}})
    require.NoError(t, err)
    assert.Empty(t, recs)
}

func TestEqualsFormula(t *testing.T) {
    f, err := airtable.EqualsFormula("Order#", `C:\PO 7`)
    require.NoError(t, err)
    assert.Equal(t, `{Order#}&"" = "C:\\PO 7"`, f)

    for _, field := range []string{"Order {old}", "a}b", " "} {
        _, err := airtable.EqualsFormula(field, "x")
        assert.Error(t, err, field)
    }
}

func TestSelect_RejectsUnreferenceableField(t *testing.T) {
    var calls int
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls++
        fmt.Fprint(w, `{"records":[]}`)
    }))
    _, err := c.Select(context.Background(), "payments", ports.SelectQuery{Where: &ports.Where{Field: "Order}#", Value: "PO-7"}})
    require.Error(t, err)
    assert.Equal(t, 0, calls)
}

func TestCreateBatch_ReturnsIDsCommittedBeforeFailure(t *testing.T) {
    var mu sync.Mutex
    posts, next := 0, 0
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        var body struct {
            Records []json.RawMessage `json:"records"`
        }
        if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
            w.WriteHeader(http.StatusBadRequest)
            return
        }
        mu.Lock()
        defer mu.Unlock()
        posts++
        if posts == 3 {
            w.WriteHeader(http.StatusUnprocessableEntity)
            fmt.Fprint(w, `{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"bad quantity"}}`)
            return
        }
        var out []any
        for range body.Records {
            next++
            out = append(out, map[string]any{"id": fmt.Sprintf("rec%03d", next)})
        }
        _ = json.NewEncoder(w).Encode(map[string]any{"records": out})
    }))

    rows := make([]ports.Fields, 50)
    for i := range rows {
        rows[i] = ports.Fields{"sku": fmt.Sprintf("S%d", i)}
    }
    ids, err := c.CreateBatch(context.Background(), "new order sku", rows)
    require.Error(t, err)
    assert.Len(t, ids, 20)
    assert.Equal(t, "rec020", ids[19])
    assert.Equal(t, 3, posts, "no request after the failing one")
}

func TestCreateBatch_ChunksAndEncodes(t *testing.T) {
    var mu sync.Mutex
    var sizes []int
    next := 0
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, http.MethodPost, r.Method)
        var body struct {
            Records []struct {
                Fields map[string]any `json:"fields"`
            } `json:"records"`
        }
        if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
            w.WriteHeader(http.StatusBadRequest)
            return
        }
        mu.Lock()
        defer mu.Unlock()
        sizes = append(sizes, len(body.Records))
        if len(sizes) == 1 {
            f := body.Records[0].Fields
            assert.Equal(t, "approved", f["status"])
            assert.Equal(t, []any{"recSup"}, f["Supplier"])
            assert.Equal(t, []any{map[string]any{"url": "https://dl.example.com/a.pdf", "filename": "a.pdf"}}, f["invoice"])
        }
        var out []any
        for range body.Records {
            next++
            if next%2 == 0 {
                out = append(out, fmt.Sprintf("rec%03d", next))
            } else {
                out = append(out, map[string]any{"id": fmt.Sprintf("rec%03d", next), "fields": map[string]any{}})
            }
        }
        _ = json.NewEncoder(w).Encode(map[string]any{"records": out})
    }))

    rows := make([]ports.Fields, 23)
    for i := range rows {
        rows[i] = ports.Fields{"sku": fmt.Sprintf("S%d", i)}
    }
    rows[0] = ports.Fields{
        "status":   domain.Choice{Name: "approved"},
        "Supplier": []domain.Link{{ID: "recSup"}},
        "invoice":  []any{map[string]any{"id": "att1", "url": "https://dl.example.com/a.pdf", "filename": "a.pdf", "size": 10}},
    }

    ids, err := c.CreateBatch(context.Background(), "new order sku", rows)
    require.NoError(t, err)
    assert.Equal(t, []int{10, 10, 3}, sizes)
    require.Len(t, ids, 23)
    assert.Equal(t, "rec001", ids[0])
    assert.Equal(t, "rec002", ids[1])
}

func TestDo_RetriesThrottling(t *testing.T) {
    var calls int
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls++
        if calls < 3 {
            w.WriteHeader(http.StatusTooManyRequests)
            fmt.Fprint(w, `{"errors":[{"error":"RATE_LIMIT_REACHED"}]}`)
            return
        }
        fmt.Fprint(w, `{"id":"recA","fields":{"name":"x"}}`)
    }))
    rec, err := c.Get(context.Background(), "t", "recA")
    require.NoError(t, err)
    assert.Equal(t, "x", rec.Get("name"))
    assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
    var calls int
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls++
        w.WriteHeader(http.StatusBadGateway)
    }))
    err := c.Update(context.Background(), "t", "recA", ports.Fields{"a": 1})
    require.Error(t, err)
    var apiErr *airtable.APIError
    require.True(t, errors.As(err, &apiErr))
    assert.Equal(t, http.StatusBadGateway, apiErr.Status)
    assert.Equal(t, 3, calls)
}

func TestDo_ClientErrors(t *testing.T) {
    var calls int
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls++
        if r.Method == http.MethodGet {
            w.WriteHeader(http.StatusNotFound)
            fmt.Fprint(w, `{"error":"NOT_FOUND"}`)
            return
        }
        w.WriteHeader(http.StatusUnprocessableEntity)
        fmt.Fprint(w, `{"error":{"type":"INVALID_MULTIPLE_CHOICE_OPTIONS","message":"Insufficient permissions to create new select option \"aproved\""}}`)
    }))
    ctx := context.Background()

    _, err := c.Get(ctx, "t", "recMissing")
    assert.True(t, errors.Is(err, ports.ErrNotFound))

    err = c.Update(ctx, "t", "recA", ports.Fields{"status": domain.Choice{Name: "aproved"}})
    var apiErr *airtable.APIError
    require.True(t, errors.As(err, &apiErr))
    assert.Equal(t, "INVALID_MULTIPLE_CHOICE_OPTIONS", apiErr.Type)
    assert.Contains(t, err.Error(), "aproved")
    assert.Equal(t, 2, calls, "client errors are not retried")
}

func TestTableFields(t *testing.T) {
    c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/meta/bases/appBase/tables", r.URL.Path)
        fmt.Fprint(w, `{"tables":[
            {"id":"tblA","name":"orders","fields":[{"id":"fld1","name":"ID"},{"id":"fld2","name":"order#override"}]},
            {"id":"tblB","name":"payments","fields":[{"id":"fld3","name":"Order#"}]}
        ]}`)
    }))
    ctx := context.Background()

    fields, err := c.TableFields(ctx, "orders")
    require.NoError(t, err)
    assert.Equal(t, []string{"ID", "order#override"}, fields)

    fields, err = c.TableFields(ctx, "tblB")
    require.NoError(t, err)
    assert.Equal(t, []string{"Order#"}, fields)

    _, err = c.TableFields(ctx, "missing")
    assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestNewClient_RequiresCredentials(t *testing.T) {
    _, err := airtable.NewClient(airtable.Options{BaseID: "app"}, logging.Nop())
    assert.Error(t, err)
}
