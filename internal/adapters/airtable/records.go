package airtable

import (
    "context"
    "encoding/json"
    "fmt"
    "net/url"
    "strconv"
    "strings"

    "github.com/cockroachdb/errors"

    "orderbridge/internal/domain"
    "orderbridge/internal/normalize"
    "orderbridge/internal/ports"
)

// maxWriteRecords is the most records one create request may carry.
const maxWriteRecords = 10

var _ ports.RecordStore = (*Client)(nil)
var _ ports.SchemaReader = (*Client)(nil)

type record struct {
    ID     string       `json:"id"`
    Fields ports.Fields `json:"fields"`
}

type listResponse struct {
    Records []record `json:"records"`
    Offset  string   `json:"offset"`
}

func (c *Client) tablePath(table string) string {
    return "/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(table)
}

// Select pages through the table. Sorting and filtering are done server side.
func (c *Client) Select(ctx context.Context, table string, q ports.SelectQuery) ([]ports.Record, error) {
    query := url.Values{}
    query.Set("pageSize", strconv.Itoa(pageSize))
    for _, f := range q.Fields {
        query.Add("fields[]", f)
    }
    for i, s := range q.Sort {
        dir := "asc"
        if s.Direction == ports.Desc {
            dir = "desc"
        }
        query.Set(fmt.Sprintf("sort[%d][field]", i), s.Field)
        query.Set(fmt.Sprintf("sort[%d][direction]", i), dir)
    }
    if q.Where != nil {
        formula, err := EqualsFormula(q.Where.Field, q.Where.Value)
        if err != nil { return nil, errors.Wrapf(err, "select %q", table) }
        query.Set("filterByFormula", formula)
    }

    var out []ports.Record
    for {
        var page listResponse
        if err := c.do(ctx, "GET", c.tablePath(table), query, nil, &page); err != nil {
            return nil, errors.Wrapf(err, "select %q", table)
        }
        for _, r := range page.Records {
            out = append(out, ports.Record{ID: r.ID, Fields: fieldsOrEmpty(r.Fields)})
        }
        if page.Offset == "" {
            return out, nil
        }
        query.Set("offset", page.Offset)
    }
}

func (c *Client) Get(ctx context.Context, table, id string) (ports.Record, error) {
    var r record
    if err := c.do(ctx, "GET", c.tablePath(table)+"/"+url.PathEscape(id), nil, nil, &r); err != nil {
        return ports.Record{}, errors.Wrapf(err, "get %s from %q", id, table)
    }
    return ports.Record{ID: r.ID, Fields: fieldsOrEmpty(r.Fields)}, nil
}

func (c *Client) Create(ctx context.Context, table string, fields ports.Fields) (string, error) {
    ids, err := c.CreateBatch(ctx, table, []ports.Fields{fields})
    if err != nil {
        return "", err
    }
    return ids[0], nil
}

// CreateBatch sends the rows in requests of at most ten records. A failed
// request stops the batch; rows sent before it stay created.
func (c *Client) CreateBatch(ctx context.Context, table string, rows []ports.Fields) ([]string, error) {
    ids := make([]string, 0, len(rows))
    for start := 0; start < len(rows); start += maxWriteRecords {
        end := min(start+maxWriteRecords, len(rows))
        body := struct {
            Records []map[string]any `json:"records"`
        }{}
        for _, row := range rows[start:end] {
            body.Records = append(body.Records, map[string]any{"fields": EncodeFields(row)})
        }
        var resp struct {
            Records []json.RawMessage `json:"records"`
        }
        if err := c.do(ctx, "POST", c.tablePath(table), nil, body, &resp); err != nil {
            return ids, errors.Wrapf(err, "create %d records in %q", end-start, table)
        }
        for _, raw := range resp.Records {
            id, err := createdID(raw)
            if err != nil {
                return ids, errors.Wrapf(err, "create in %q", table)
            }
            ids = append(ids, id)
        }
    }
    return ids, nil
}

func (c *Client) Update(ctx context.Context, table, id string, fields ports.Fields) error {
    body := map[string]any{"fields": EncodeFields(fields)}
    if err := c.do(ctx, "PATCH", c.tablePath(table)+"/"+url.PathEscape(id), nil, body, nil); err != nil {
        return errors.Wrapf(err, "update %s in %q", id, table)
    }
    return nil
}

// TableFields lists the field names of a table through the metadata API.
// The table may be given by name or id.
func (c *Client) TableFields(ctx context.Context, table string) ([]string, error) {
    var meta struct {
        Tables []struct {
            ID     string `json:"id"`
            Name   string `json:"name"`
            Fields []struct {
                Name string `json:"name"`
            } `json:"fields"`
        } `json:"tables"`
    }
    if err := c.do(ctx, "GET", "/meta/bases/"+url.PathEscape(c.baseID)+"/tables", nil, nil, &meta); err != nil {
        return nil, errors.Wrap(err, "read base schema")
    }
    for _, t := range meta.Tables {
        if t.Name != table && t.ID != table {
            continue
        }
        names := make([]string, len(t.Fields))
        for i, f := range t.Fields {
            names[i] = f.Name
        }
        return names, nil
    }
    return nil, errors.Wrapf(ports.ErrNotFound, "table %q", table)
}

// createdID accepts a created record given either as its id or as an object
// carrying one.
func createdID(raw json.RawMessage) (string, error) {
    var id string
    if json.Unmarshal(raw, &id) == nil && id != "" {
        return id, nil
    }
    var obj struct {
        ID string `json:"id"`
    }
    if json.Unmarshal(raw, &obj) == nil && obj.ID != "" {
        return obj.ID, nil
    }
    return "", errors.Newf("no record id in %s", string(raw))
}

// EncodeFields converts domain values to the shapes the API accepts:
// single selects as their option name, links as record ids and attachments
// as url and filename references.
func EncodeFields(fields ports.Fields) map[string]any {
    out := make(map[string]any, len(fields))
    for k, v := range fields {
        out[k] = encodeValue(v)
    }
    return out
}

func encodeValue(v any) any {
    switch t := v.(type) {
    case domain.Choice:
        return t.Name
    case *domain.Choice:
        return t.Name
    case []domain.Link:
        ids := make([]string, len(t))
        for i, l := range t {
            ids[i] = l.ID
        }
        return ids
    }
    if list, ok := normalize.Attachments(v); ok {
        refs := make([]map[string]any, 0, len(list))
        for _, item := range list {
            m, ok := item.(map[string]any)
            if !ok {
                continue
            }
            ref := map[string]any{"url": m["url"]}
            if name, ok := m["filename"].(string); ok && name != "" {
                ref["filename"] = name
            }
            refs = append(refs, ref)
        }
        return refs
    }
    return v
}

// EqualsFormula matches records whose field, read as text, equals value.
// Concatenating "" makes numbers and lookups compare by their text, so the
// value 7 matches "7" and never "7.0". A field reference cannot contain
// braces, so such names are rejected.
func EqualsFormula(field, value string) (string, error) {
    if strings.ContainsAny(field, "{}") || strings.TrimSpace(field) == "" {
        return "", errors.Newf("field %q cannot be used in a filter formula", field)
    }
    return fmt.Sprintf(`{%s}&"" = "%s"`, field, escapeFormula(value)), nil
}

func escapeFormula(s string) string {
    return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func fieldsOrEmpty(f ports.Fields) ports.Fields {
    if f == nil {
        return ports.Fields{}
    }
    return f
}
