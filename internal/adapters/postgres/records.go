package postgres

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "sort"
    "strings"

    "github.com/cockroachdb/errors"
    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"

    "orderbridge/internal/ports"
)

// The record store keeps every table in one records relation. Field values
// live in a jsonb document, so updates merge with the || operator and only
// the named fields change.

var _ ports.RecordStore = (*DB)(nil)
var _ ports.SchemaReader = (*DB)(nil)

type execer interface {
    Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (db *DB) Select(ctx context.Context, table string, q ports.SelectQuery) ([]ports.Record, error) {
    if err := db.requireTable(ctx, table); err != nil {
        return nil, err
    }
    args := []any{table}
    var sb strings.Builder
    sb.WriteString(`SELECT id, fields FROM records WHERE table_name = $1`)
    if q.Where != nil {
        args = append(args, q.Where.Field, q.Where.Value)
        fmt.Fprintf(&sb, ` AND fields->>$%d = $%d`, len(args)-1, len(args))
    }
    var order []string
    for _, s := range q.Sort {
        args = append(args, s.Field)
        n := len(args)
        dir, nulls := "ASC", "NULLS FIRST"
        if s.Direction == ports.Desc {
            dir, nulls = "DESC", "NULLS LAST"
        }
        order = append(order,
            fmt.Sprintf(`CASE WHEN jsonb_typeof(fields->$%d) = 'number' THEN (fields->>$%d)::numeric END %s %s`, n, n, dir, nulls),
            fmt.Sprintf(`fields->>$%d %s %s`, n, dir, nulls))
    }
    order = append(order, "seq")
    sb.WriteString(" ORDER BY " + strings.Join(order, ", "))

    rows, err := db.Pool.Query(ctx, sb.String(), args...)
    if err != nil {
        return nil, errors.Wrapf(err, "select %q", table)
    }
    defer rows.Close()
    var out []ports.Record
    for rows.Next() {
        var id string
        var raw []byte
        if err := rows.Scan(&id, &raw); err != nil {
            return nil, errors.Wrapf(err, "scan %q", table)
        }
        fields, err := decodeFields(raw)
        if err != nil {
            return nil, errors.Wrapf(err, "record %s", id)
        }
        out = append(out, ports.Record{ID: id, Fields: project(fields, q.Fields)})
    }
    return out, errors.Wrapf(rows.Err(), "select %q", table)
}

func (db *DB) Get(ctx context.Context, table, id string) (ports.Record, error) {
    var raw []byte
    err := db.Pool.QueryRow(ctx, `SELECT fields FROM records WHERE table_name = $1 AND id = $2`, table, id).Scan(&raw)
    if errors.Is(err, pgx.ErrNoRows) {
        return ports.Record{}, errors.Wrapf(ports.ErrNotFound, "record %s in %q", id, table)
    }
    if err != nil {
        return ports.Record{}, errors.Wrapf(err, "get %s from %q", id, table)
    }
    fields, err := decodeFields(raw)
    if err != nil {
        return ports.Record{}, errors.Wrapf(err, "record %s", id)
    }
    return ports.Record{ID: id, Fields: fields}, nil
}

func (db *DB) Create(ctx context.Context, table string, fields ports.Fields) (string, error) {
    ids, err := db.CreateBatch(ctx, table, []ports.Fields{fields})
    if err != nil {
        return "", err
    }
    return ids[0], nil
}

// CreateBatch inserts all rows in one transaction using a pgx batch.
func (db *DB) CreateBatch(ctx context.Context, table string, rows []ports.Fields) (ids []string, err error) {
    docs := make([]string, len(rows))
    for i, row := range rows {
        b, err := json.Marshal(fieldsOrEmpty(row))
        if err != nil {
            return nil, errors.Wrapf(err, "encode record %d", i)
        }
        docs[i] = string(b)
    }

    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return nil, err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { err = tx.Commit(ctx) }
    }()
    if err = ensureTable(ctx, tx, table); err != nil {
        return nil, err
    }

    batch := &pgx.Batch{}
    ids = make([]string, len(docs))
    for i, doc := range docs {
        ids[i] = newID()
        batch.Queue(`INSERT INTO records (id, table_name, fields) VALUES ($1, $2, $3::jsonb)`, ids[i], table, doc)
    }
    br := tx.SendBatch(ctx, batch)
    for i := range docs {
        if _, err = br.Exec(); err != nil {
            _ = br.Close()
            return nil, errors.Wrapf(err, "insert record %d into %q", i, table)
        }
    }
    if err = br.Close(); err != nil {
        return nil, errors.Wrapf(err, "insert into %q", table)
    }
    return ids, nil
}

func (db *DB) Update(ctx context.Context, table, id string, fields ports.Fields) error {
    b, err := json.Marshal(fieldsOrEmpty(fields))
    if err != nil {
        return errors.Wrap(err, "encode fields")
    }
    tag, err := db.Pool.Exec(ctx, `
        UPDATE records SET fields = fields || $3::jsonb, updated_at = now()
        WHERE table_name = $1 AND id = $2
    `, table, id, string(b))
    if err != nil {
        return errors.Wrapf(err, "update %s in %q", id, table)
    }
    if tag.RowsAffected() == 0 {
        return errors.Wrapf(ports.ErrNotFound, "record %s in %q", id, table)
    }
    return nil
}

// TableFields returns the declared fields followed by any other field key
// present on a record.
func (db *DB) TableFields(ctx context.Context, table string) ([]string, error) {
    var declared []string
    err := db.Pool.QueryRow(ctx, `SELECT fields FROM store_tables WHERE name = $1`, table).Scan(&declared)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, errors.Wrapf(ports.ErrNotFound, "table %q", table)
    }
    if err != nil {
        return nil, errors.Wrapf(err, "fields of %q", table)
    }
    rows, err := db.Pool.Query(ctx, `
        SELECT DISTINCT k FROM records, jsonb_object_keys(fields) AS k
        WHERE table_name = $1 ORDER BY k COLLATE "C"
    `, table)
    if err != nil {
        return nil, errors.Wrapf(err, "fields of %q", table)
    }
    used, err := pgx.CollectRows(rows, pgx.RowTo[string])
    if err != nil {
        return nil, errors.Wrapf(err, "fields of %q", table)
    }
    seen := map[string]bool{}
    var out []string
    for _, f := range append(declared, used...) {
        if !seen[f] {
            seen[f] = true
            out = append(out, f)
        }
    }
    return out, nil
}

// DeclareTable registers a table and appends fields it does not list yet.
func (db *DB) DeclareTable(ctx context.Context, table string, fields ...string) error {
    if fields == nil {
        fields = []string{}
    }
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO store_tables (name, fields) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET fields = store_tables.fields ||
            ARRAY(SELECT f FROM unnest(EXCLUDED.fields) AS f WHERE NOT f = ANY (store_tables.fields))
    `, table, fields)
    return errors.Wrapf(err, "declare %q", table)
}

// Insert upserts a record with a chosen id.
func (db *DB) Insert(ctx context.Context, table, id string, fields ports.Fields) error {
    b, err := json.Marshal(fieldsOrEmpty(fields))
    if err != nil {
        return errors.Wrap(err, "encode fields")
    }
    if err := ensureTable(ctx, db.Pool, table); err != nil {
        return err
    }
    _, err = db.Pool.Exec(ctx, `
        INSERT INTO records (id, table_name, fields) VALUES ($1, $2, $3::jsonb)
        ON CONFLICT (id) DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()
    `, id, table, string(b))
    return errors.Wrapf(err, "insert %s into %q", id, table)
}

type seedDoc struct {
    Tables map[string]struct {
        Fields  []string `json:"fields"`
        Records []struct {
            ID     string       `json:"id"`
            Fields ports.Fields `json:"fields"`
        } `json:"records"`
    } `json:"tables"`
}

// LoadJSON seeds tables from the same document format the memory store reads.
// Records are upserted by id, so loading twice is harmless.
func (db *DB) LoadJSON(ctx context.Context, r io.Reader) error {
    var doc seedDoc
    if err := json.NewDecoder(r).Decode(&doc); err != nil {
        return errors.Wrap(err, "decode seed")
    }
    names := make([]string, 0, len(doc.Tables))
    for name := range doc.Tables { names = append(names, name) }
    sort.Strings(names)
    for _, name := range names {
        t := doc.Tables[name]
        if err := db.DeclareTable(ctx, name, t.Fields...); err != nil {
            return err
        }
        for _, rec := range t.Records {
            id := rec.ID
            if id == "" { id = newID() }
            if err := db.Insert(ctx, name, id, rec.Fields); err != nil {
                return err
            }
        }
    }
    return nil
}

func (db *DB) requireTable(ctx context.Context, table string) error {
    var exists bool
    if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM store_tables WHERE name = $1)`, table).Scan(&exists); err != nil {
        return errors.Wrapf(err, "lookup table %q", table)
    }
    if !exists {
        return errors.Wrapf(ports.ErrNotFound, "table %q", table)
    }
    return nil
}

func ensureTable(ctx context.Context, ex execer, table string) error {
    _, err := ex.Exec(ctx, `INSERT INTO store_tables (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, table)
    return errors.Wrapf(err, "register table %q", table)
}

func newID() string {
    return "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func decodeFields(raw []byte) (ports.Fields, error) {
    fields := ports.Fields{}
    if len(raw) == 0 {
        return fields, nil
    }
    if err := json.Unmarshal(raw, &fields); err != nil {
        return nil, errors.Wrap(err, "decode fields")
    }
    return fields, nil
}

func fieldsOrEmpty(f ports.Fields) ports.Fields {
    if f == nil {
        return ports.Fields{}
    }
    return f
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
