package migration

import (
    "context"
    "fmt"
    "strings"

    "github.com/cockroachdb/errors"

    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
)

var ErrSchemaMismatch = errors.New("schema mismatch")

// ValidateSchema checks every configured field against the fields the store
// reports. A required field that is missing, or any field that only matches
// by case or matches more than one store field, is an error.
func ValidateSchema(ctx context.Context, reader ports.SchemaReader, schema domain.Schema) error {
    known := map[string][]string{}
    unreadable := map[string]bool{}
    var problems []string
    check := func(ref domain.FieldRef, required bool) {
        if ref.Field == "" {
            return
        }
        if unreadable[ref.Table] {
            return
        }
        fields, ok := known[ref.Table]
        if !ok {
            var err error
            fields, err = reader.TableFields(ctx, ref.Table)
            if err != nil {
                problems = append(problems, fmt.Sprintf("table %q: %v", ref.Table, err))
                unreadable[ref.Table] = true
                return
            }
            known[ref.Table] = fields
        }
        var exact bool
        var folded []string
        for _, f := range fields {
            if f == ref.Field {
                exact = true
            }
            if strings.EqualFold(f, ref.Field) {
                folded = append(folded, f)
            }
        }
        switch {
        case len(folded) > 1:
            problems = append(problems, fmt.Sprintf("%s: %q is ambiguous in %q, matches %s", ref.Role, ref.Field, ref.Table, strings.Join(quote(folded), ", ")))
        case !exact && len(folded) == 1:
            problems = append(problems, fmt.Sprintf("%s: %q not found in %q, did you mean %q", ref.Role, ref.Field, ref.Table, folded[0]))
        case !exact && required:
            problems = append(problems, fmt.Sprintf("%s: %q not found in %q", ref.Role, ref.Field, ref.Table))
        case !exact:
            problems = append(problems, fmt.Sprintf("%s: optional field %q not found in %q, clear it to skip", ref.Role, ref.Field, ref.Table))
        }
    }
    for _, ref := range schema.Required() {
        check(ref, true)
    }
    for _, ref := range schema.Optional() {
        check(ref, false)
    }
    if len(problems) > 0 {
        return errors.Wrapf(ErrSchemaMismatch, "%s", strings.Join(problems, "; "))
    }
    return nil
}

func quote(in []string) []string {
    out := make([]string, len(in))
    for i, s := range in {
        out[i] = fmt.Sprintf("%q", s)
    }
    return out
}
