package config

import (
    "fmt"
    "os"
    "reflect"
    "strings"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/spf13/viper"

    "orderbridge/internal/domain"
)

const (
    StoreAirtable = "airtable"
    StorePostgres = "postgres"
    StoreMemory   = "memory"
)

type Config struct {
    Env            string `mapstructure:"app_env"`
    ListenAddr     string `mapstructure:"listen_addr"`
    DatabaseURL    string `mapstructure:"database_url"`
    Store          string `mapstructure:"store"`
    ImportWorkers  int    `mapstructure:"import_workers"`
    LogJSON        bool   `mapstructure:"log_json"`
    BatchSize      int    `mapstructure:"batch_size"`
    ApprovedStatus string `mapstructure:"approved_status"`

    Airtable Airtable `mapstructure:"airtable"`
    Memory   Memory   `mapstructure:"memory"`
    Timing   Timing   `mapstructure:"timing"`

    domain.Schema `mapstructure:",squash"`
}

type Airtable struct {
    APIKey            string        `mapstructure:"api_key"`
    BaseID            string        `mapstructure:"base_id"`
    BaseURL           string        `mapstructure:"base_url"`
    RequestsPerSecond float64       `mapstructure:"requests_per_second"`
    MaxRetries        int           `mapstructure:"max_retries"`
    RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
    Timeout           time.Duration `mapstructure:"timeout"`
}

type Memory struct {
    SeedFile string `mapstructure:"seed_file"`
}

// Timing holds every deliberate wait of the pipeline.
type Timing struct {
    RecordSync         time.Duration `mapstructure:"record_sync"`
    OrderSync          time.Duration `mapstructure:"order_sync"`
    TriggerSettle      time.Duration `mapstructure:"trigger_settle"`
    SettlementWarmup   time.Duration `mapstructure:"settlement_warmup"`
    SettlementInterval time.Duration `mapstructure:"settlement_interval"`
    SettlementAttempts int           `mapstructure:"settlement_attempts"`
    WorkerPoll         time.Duration `mapstructure:"worker_poll"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
    return Config{
        Env:            "development",
        ListenAddr:     ":8080",
        Store:          StoreAirtable,
        ImportWorkers:  1,
        BatchSize:      50,
        ApprovedStatus: "approved",
        Airtable: Airtable{
            BaseURL:           "https://api.airtable.com/v0",
            RequestsPerSecond: 5,
            MaxRetries:        3,
            RetryBackoff:      500 * time.Millisecond,
            Timeout:           30 * time.Second,
        },
        Timing: Timing{
            RecordSync:         2 * time.Second,
            OrderSync:          2 * time.Second,
            TriggerSettle:      2 * time.Second,
            SettlementWarmup:   30 * time.Second,
            SettlementInterval: 15 * time.Second,
            SettlementAttempts: 3,
            WorkerPoll:         500 * time.Millisecond,
        },
        Schema: domain.DefaultSchema(),
    }
}

// Load reads defaults, then the optional config file (path, or
// ORDERBRIDGE_CONFIG), then environment variables. Nested keys map to
// environment names with "." replaced by "_": airtable.api_key is
// AIRTABLE_API_KEY.
func Load(path string) (Config, error) {
    v := viper.New()
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()
    setDefaults(v, "", reflect.ValueOf(Default()))

    if path == "" {
        path = os.Getenv("ORDERBRIDGE_CONFIG")
    }
    if path != "" {
        v.SetConfigFile(path)
        if err := v.ReadInConfig(); err != nil {
            return Config{}, errors.Wrapf(err, "read config file %s", path)
        }
    }

    var cfg Config
    if err := v.Unmarshal(&cfg); err != nil {
        return Config{}, errors.Wrap(err, "unmarshal config")
    }
    return cfg, cfg.Validate()
}

// setDefaults registers every leaf of def under its mapstructure key so that
// AutomaticEnv can override it.
func setDefaults(v *viper.Viper, prefix string, def reflect.Value) {
    t := def.Type()
    for i := 0; i < t.NumField(); i++ {
        f := t.Field(i)
        tag := f.Tag.Get("mapstructure")
        if tag == "" || tag == "-" {
            continue
        }
        fv := def.Field(i)
        if tag == ",squash" {
            setDefaults(v, prefix, fv)
            continue
        }
        key := tag
        if prefix != "" {
            key = prefix + "." + tag
        }
        if fv.Kind() == reflect.Struct {
            setDefaults(v, key, fv)
            continue
        }
        v.SetDefault(key, fv.Interface())
    }
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
    var problems []string
    add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

    switch c.Store {
    case StoreAirtable:
        if c.Airtable.APIKey == "" { add("airtable.api_key is required for the airtable store") }
        if c.Airtable.BaseID == "" { add("airtable.base_id is required for the airtable store") }
        if c.Airtable.RequestsPerSecond <= 0 { add("airtable.requests_per_second must be positive") }
        if c.Airtable.RetryBackoff <= 0 { add("airtable.retry_backoff must be positive") }
    case StorePostgres:
        if c.DatabaseURL == "" { add("database_url is required for the postgres store") }
    case StoreMemory:
    default:
        add("unknown store %q", c.Store)
    }
    if c.BatchSize <= 0 { add("batch_size must be positive") }
    if c.ImportWorkers < 0 { add("import_workers must not be negative") }
    if strings.TrimSpace(c.ApprovedStatus) == "" { add("approved_status is required") }

    tm := c.Timing
    if tm.SettlementInterval <= 0 { add("timing.settlement_interval must be positive") }
    if tm.SettlementAttempts < 1 { add("timing.settlement_attempts must be at least 1") }
    if tm.WorkerPoll <= 0 { add("timing.worker_poll must be positive") }
    if tm.RecordSync < 0 || tm.OrderSync < 0 || tm.TriggerSettle < 0 || tm.SettlementWarmup < 0 {
        add("timing delays must not be negative")
    }

    problems = append(problems, schemaProblems(c.Schema)...)
    if len(problems) > 0 {
        return errors.Newf("invalid configuration: %s", strings.Join(problems, "; "))
    }
    return nil
}

func schemaProblems(s domain.Schema) []string {
    var problems []string
    tables := map[string]string{}
    for role, name := range map[string]string{
        "tables.source_orders": s.Tables.SourceOrders,
        "tables.line_items":    s.Tables.LineItems,
        "tables.suppliers":     s.Tables.Suppliers,
        "tables.orders":        s.Tables.Orders,
        "tables.payments":      s.Tables.Payments,
    } {
        if strings.TrimSpace(name) == "" {
            problems = append(problems, role+" is required")
            continue
        }
        if other, dup := tables[strings.ToLower(name)]; dup {
            problems = append(problems, fmt.Sprintf("%s and %s name the same table %q", other, role, name))
        }
        tables[strings.ToLower(name)] = role
    }

    for _, ref := range s.Required() {
        if strings.TrimSpace(ref.Field) == "" {
            problems = append(problems, ref.Role+" is required")
        }
    }

    seen := map[string]string{}
    for _, ref := range append(s.Required(), s.Optional()...) {
        if ref.Field == "" {
            continue
        }
        key := strings.ToLower(ref.Table) + "\x00" + strings.ToLower(strings.TrimSpace(ref.Field))
        if other, dup := seen[key]; dup {
            problems = append(problems, fmt.Sprintf("%s and %s map to the same field %q", other, ref.Role, ref.Field))
            continue
        }
        seen[key] = ref.Role
    }
    return problems
}
