package ports

import (
    "context"

    "github.com/cockroachdb/errors"
)

// ErrNotFound is returned by stores when a table or record does not exist.
var ErrNotFound = errors.New("not found")

// Fields is a partial set of named field values.
type Fields map[string]any

// Record is one row of a store table. Field values are decoded JSON shapes:
// nil, string, float64, bool, map[string]any or []any.
type Record struct {
    ID     string
    Fields Fields
}

// Get returns the raw value of a field, nil when absent.
func (r Record) Get(field string) any {
    if r.Fields == nil || field == "" {
        return nil
    }
    return r.Fields[field]
}

type SortDirection string

const (
    Asc  SortDirection = "asc"
    Desc SortDirection = "desc"
)

type Sort struct {
    Field     string
    Direction SortDirection
}

// Where matches records whose textual field value equals Value exactly.
type Where struct {
    Field string
    Value string
}

// SelectQuery narrows a Select. The zero value reads every record of the table
// in store order.
type SelectQuery struct {
    Fields []string
    Where  *Where
    Sort   []Sort
}

// RecordStore is the generic table store the importer reads from and writes to.
type RecordStore interface {
    Select(ctx context.Context, table string, q SelectQuery) ([]Record, error)
    Get(ctx context.Context, table, id string) (Record, error)
    Create(ctx context.Context, table string, fields Fields) (id string, err error)
    CreateBatch(ctx context.Context, table string, rows []Fields) (ids []string, err error)
    Update(ctx context.Context, table, id string, fields Fields) error
}

// SchemaReader is implemented by stores that can list the fields of a table.
type SchemaReader interface {
    TableFields(ctx context.Context, table string) ([]string, error)
}
