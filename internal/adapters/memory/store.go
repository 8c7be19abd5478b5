package memory

import (
    "context"
    "encoding/json"
    "io"
    "sort"
    "strconv"
    "strings"
    "sync"

    "github.com/cockroachdb/errors"
    "github.com/google/uuid"

    "orderbridge/internal/ports"
)

type table struct {
    fields  []string
    order   []string
    records map[string]ports.Fields
}

// Store is an in-memory RecordStore. Field values are stored as their JSON
// decoding, so reads return the same shapes a remote store would.
type Store struct {
    mu     sync.RWMutex
    tables map[string]*table
}

func New() *Store {
    return &Store{tables: make(map[string]*table)}
}

var _ ports.RecordStore = (*Store)(nil)
var _ ports.SchemaReader = (*Store)(nil)

// DeclareTable creates a table (if needed) and records its field names.
func (s *Store) DeclareTable(name string, fields ...string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    t := s.tableLocked(name)
    t.fields = append(t.fields, fields...)
}

// Insert adds a record with a chosen id, for fixtures.
func (s *Store) Insert(tableName, id string, fields ports.Fields) error {
    clone, err := cloneFields(fields)
    if err != nil { return err }
    s.mu.Lock()
    defer s.mu.Unlock()
    t := s.tableLocked(tableName)
    if _, exists := t.records[id]; exists {
        return errors.Newf("record %s already exists in %q", id, tableName)
    }
    t.order = append(t.order, id)
    t.records[id] = clone
    return nil
}

type seedFile struct {
    Tables map[string]struct {
        Fields  []string `json:"fields"`
        Records []struct {
            ID     string       `json:"id"`
            Fields ports.Fields `json:"fields"`
        } `json:"records"`
    } `json:"tables"`
}

// LoadJSON seeds the store from a document of the form
// {"tables": {"name": {"fields": [...], "records": [{"id": ..., "fields": {...}}]}}}.
func (s *Store) LoadJSON(r io.Reader) error {
    var doc seedFile
    if err := json.NewDecoder(r).Decode(&doc); err != nil {
        return errors.Wrap(err, "decode seed")
    }
    names := make([]string, 0, len(doc.Tables))
    for name := range doc.Tables { names = append(names, name) }
    sort.Strings(names)
    for _, name := range names {
        tbl := doc.Tables[name]
        s.DeclareTable(name, tbl.Fields...)
        for _, rec := range tbl.Records {
            id := rec.ID
            if id == "" { id = newID() }
            if err := s.Insert(name, id, rec.Fields); err != nil { return err }
        }
    }
    return nil
}

func (s *Store) Select(ctx context.Context, tableName string, q ports.SelectQuery) ([]ports.Record, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    t, ok := s.tables[tableName]
    if !ok {
        return nil, errors.Wrapf(ports.ErrNotFound, "table %q", tableName)
    }
    out := make([]ports.Record, 0, len(t.order))
    for _, id := range t.order {
        fields := t.records[id]
        if q.Where != nil && textOf(fields[q.Where.Field]) != q.Where.Value {
            continue
        }
        clone, err := cloneFields(project(fields, q.Fields))
        if err != nil { return nil, err }
        out = append(out, ports.Record{ID: id, Fields: clone})
    }
    if len(q.Sort) > 0 {
        sort.SliceStable(out, func(i, j int) bool {
            for _, srt := range q.Sort {
                c := compare(t.records[out[i].ID][srt.Field], t.records[out[j].ID][srt.Field])
                if c == 0 { continue }
                if srt.Direction == ports.Desc { return c > 0 }
                return c < 0
            }
            return false
        })
    }
    return out, nil
}

func (s *Store) Get(ctx context.Context, tableName, id string) (ports.Record, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    t, ok := s.tables[tableName]
    if !ok {
        return ports.Record{}, errors.Wrapf(ports.ErrNotFound, "table %q", tableName)
    }
    fields, ok := t.records[id]
    if !ok {
        return ports.Record{}, errors.Wrapf(ports.ErrNotFound, "record %s in %q", id, tableName)
    }
    clone, err := cloneFields(fields)
    if err != nil { return ports.Record{}, err }
    return ports.Record{ID: id, Fields: clone}, nil
}

func (s *Store) Create(ctx context.Context, tableName string, fields ports.Fields) (string, error) {
    ids, err := s.CreateBatch(ctx, tableName, []ports.Fields{fields})
    if err != nil { return "", err }
    return ids[0], nil
}

// CreateBatch is all-or-nothing: every payload is encoded before any is stored.
func (s *Store) CreateBatch(ctx context.Context, tableName string, rows []ports.Fields) ([]string, error) {
    clones := make([]ports.Fields, len(rows))
    for i, row := range rows {
        c, err := cloneFields(row)
        if err != nil { return nil, errors.Wrapf(err, "record %d", i) }
        clones[i] = c
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    t := s.tableLocked(tableName)
    ids := make([]string, len(clones))
    for i, c := range clones {
        id := newID()
        t.order = append(t.order, id)
        t.records[id] = c
        ids[i] = id
    }
    return ids, nil
}

func (s *Store) Update(ctx context.Context, tableName, id string, fields ports.Fields) error {
    clone, err := cloneFields(fields)
    if err != nil { return err }
    s.mu.Lock()
    defer s.mu.Unlock()
    t, ok := s.tables[tableName]
    if !ok {
        return errors.Wrapf(ports.ErrNotFound, "table %q", tableName)
    }
    existing, ok := t.records[id]
    if !ok {
        return errors.Wrapf(ports.ErrNotFound, "record %s in %q", id, tableName)
    }
    for k, v := range clone {
        existing[k] = v
    }
    return nil
}

// TableFields returns the declared fields plus every field present on a record.
func (s *Store) TableFields(ctx context.Context, tableName string) ([]string, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    t, ok := s.tables[tableName]
    if !ok {
        return nil, errors.Wrapf(ports.ErrNotFound, "table %q", tableName)
    }
    seen := map[string]bool{}
    var out []string
    for _, f := range t.fields {
        if !seen[f] { seen[f] = true; out = append(out, f) }
    }
    var extra []string
    for _, rec := range t.records {
        for f := range rec {
            if !seen[f] { seen[f] = true; extra = append(extra, f) }
        }
    }
    sort.Strings(extra)
    return append(out, extra...), nil
}

func (s *Store) tableLocked(name string) *table {
    t, ok := s.tables[name]
    if !ok {
        t = &table{records: make(map[string]ports.Fields)}
        s.tables[name] = t
    }
    return t
}

func newID() string {
    return "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func cloneFields(in ports.Fields) (ports.Fields, error) {
    out := ports.Fields{}
    if len(in) == 0 {
        return out, nil
    }
    b, err := json.Marshal(in)
    if err != nil {
        return nil, errors.Wrap(err, "encode fields")
    }
    if err := json.Unmarshal(b, &out); err != nil {
        return nil, errors.Wrap(err, "decode fields")
    }
    return out, nil
}

func project(fields ports.Fields, names []string) ports.Fields {
    if len(names) == 0 {
        return fields
    }
    out := make(ports.Fields, len(names))
    for _, n := range names {
        if v, ok := fields[n]; ok { out[n] = v }
    }
    return out
}

func textOf(v any) string {
    switch t := v.(type) {
    case string:
        return t
    case float64:
        return strconv.FormatFloat(t, 'f', -1, 64)
    case bool:
        return strconv.FormatBool(t)
    }
    return ""
}

func compare(a, b any) int {
    fa, aNum := a.(float64)
    fb, bNum := b.(float64)
    switch {
    case aNum && bNum:
        if fa < fb { return -1 }
        if fa > fb { return 1 }
        return 0
    case a == nil && b == nil:
        return 0
    case a == nil:
        return -1
    case b == nil:
        return 1
    }
    return strings.Compare(textOf(a), textOf(b))
}
