package suppliers

import (
    "context"
    "strings"

    "github.com/cockroachdb/errors"
    "go.uber.org/zap"
    "golang.org/x/net/publicsuffix"

    "orderbridge/internal/domain"
    "orderbridge/internal/normalize"
    "orderbridge/internal/ports"
)

// Input carries the raw source values describing a supplier.
type Input struct {
    Name        any
    CompanyInfo any
    Email       any
    ProductName any
}

// Resolver finds or creates supplier records by name. Its index is the only
// source of truth for the run: a key seen once is never created again, and an
// existing supplier is never updated.
type Resolver struct {
    store  ports.RecordStore
    table  string
    fields domain.SupplierFields
    log    *zap.SugaredLogger

    index   map[string]domain.Supplier
    created int
    reused  int
}

func New(store ports.RecordStore, table string, fields domain.SupplierFields, log *zap.SugaredLogger) *Resolver {
    return &Resolver{store: store, table: table, fields: fields, log: log, index: make(map[string]domain.Supplier)}
}

// Key is the identity key of a supplier display name.
func Key(name string) string {
    return strings.ToLower(strings.TrimSpace(name))
}

// Seed loads the existing suppliers into the index.
func (r *Resolver) Seed(ctx context.Context) error {
    recs, err := r.store.Select(ctx, r.table, ports.SelectQuery{Fields: []string{r.fields.Name}})
    if err != nil {
        return errors.Wrapf(err, "load suppliers from %q", r.table)
    }
    for _, rec := range recs {
        name := normalize.String(rec.Get(r.fields.Name))
        if name == "" { continue }
        key := Key(name)
        if _, dup := r.index[key]; dup { continue }
        r.index[key] = domain.Supplier{ID: rec.ID, Key: key, Name: name}
    }
    r.log.Infow("suppliers loaded", "table", r.table, "count", len(r.index))
    return nil
}

// Resolve returns the supplier for in.Name, creating it when the name has not
// been seen. ok is false when the name is empty or creation failed; neither
// is an error for the caller.
func (r *Resolver) Resolve(ctx context.Context, in Input) (domain.Supplier, bool) {
    name := normalize.String(in.Name)
    if name == "" {
        r.log.Warnw("no supplier name on row")
        return domain.Supplier{}, false
    }
    key := Key(name)
    if s, ok := r.index[key]; ok {
        r.reused++
        r.log.Debugw("existing supplier", "supplier", s.Name, "record_id", s.ID)
        return s, true
    }

    fields := r.payload(name, in)
    id, err := r.store.Create(ctx, r.table, fields)
    if err != nil {
        r.log.Errorw("create supplier failed", "supplier", name, "error", err)
        return domain.Supplier{}, false
    }
    s := domain.Supplier{ID: id, Key: key, Name: name}
    r.index[key] = s
    r.created++
    r.log.Infow("supplier created", "supplier", name, "record_id", id)
    return s, true
}

func (r *Resolver) payload(name string, in Input) ports.Fields {
    fields := ports.Fields{r.fields.Name: name}
    if r.fields.CompanyInfo != "" {
        if info, ok := companyInfo(in.CompanyInfo); ok {
            fields[r.fields.CompanyInfo] = info
        }
    }
    email := normalize.String(in.Email)
    if email != "" && r.fields.NotifyEmail != "" {
        fields[r.fields.NotifyEmail] = email
    }
    if email != "" && r.fields.EmailDomain != "" {
        if d := emailDomain(email); d != "" {
            fields[r.fields.EmailDomain] = d
        }
    }
    if product := normalize.String(in.ProductName); product != "" && r.fields.ProductShort != "" {
        fields[r.fields.ProductShort] = product
    }
    return fields
}

// companyInfo copies attachment lists verbatim, joins lists of scalars and
// normalizes anything else.
func companyInfo(raw any) (any, bool) {
    if list, ok := normalize.Attachments(raw); ok {
        return list, true
    }
    if _, isList := normalize.List(raw); isList {
        text := strings.Join(normalize.Strings(raw), ", ")
        return text, text != ""
    }
    text := normalize.String(raw)
    return text, text != ""
}

// emailDomain returns the registrable domain of an address, or its host when
// the public suffix list does not know it.
func emailDomain(email string) string {
    at := strings.LastIndex(email, "@")
    if at < 0 || at == len(email)-1 {
        return ""
    }
    host := strings.ToLower(strings.TrimSpace(email[at+1:]))
    registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
    if err != nil {
        return host
    }
    return registrable
}

// Stats reports how many suppliers were created and reused so far.
func (r *Resolver) Stats() (created, reused int) { return r.created, r.reused }

func (r *Resolver) Len() int { return len(r.index) }
