package domain

import "time"

// Core domain models used by the import pipeline. Store adapters exchange
// ports.Record values; these types carry the normalized view of them.

// Supplier is a resolved supplier identity. Key is the lower-cased trimmed
// display name and is unique within one resolver.
type Supplier struct {
    ID   string
    Key  string
    Name string
}

// Choice is a single-select value. Stores expect a named category, not free text.
type Choice struct {
    Name string `json:"name"`
}

// Link references a record in another table.
type Link struct {
    ID string `json:"id"`
}

// LineItemDraft holds the normalized values of one source row. Nil means
// the value was absent and the field is left out of the payload.
type LineItemDraft struct {
    Row        string
    SKU        *string
    Quantity   *float64
    SupplierID *string
}

// OrderContext is the set of source rows sharing one order number. The
// shared fields come from the first row.
type OrderContext struct {
    OrderNumber       string
    Rows              []string
    Invoice           []any
    PaymentProof      []any
    PaymentPercentage *float64
    ReadyDate         string
}

type SettlementState string

const (
    SettlementUnset     SettlementState = "unset"
    SettlementPending   SettlementState = "pending"
    SettlementResolved  SettlementState = "resolved"
    SettlementAbandoned SettlementState = "abandoned"
)

// Settlement is the outcome of waiting for an asynchronously computed value.
type Settlement struct {
    State    SettlementState
    Value    float64
    Attempts int
}

func (s Settlement) Resolved() bool { return s.State == SettlementResolved }

// ImportReport summarizes one import run.
type ImportReport struct {
    OrderNumber      string    `json:"orderNumber"`
    SourceRows       int       `json:"sourceRows"`
    SuppliersCreated int       `json:"suppliersCreated"`
    SuppliersReused  int       `json:"suppliersReused"`
    LineItemsCreated int       `json:"lineItemsCreated"`
    LineItemIDs      []string  `json:"lineItemIds,omitempty"`
    StatusAttempted  int       `json:"statusAttempted"`
    StatusUpdated    int       `json:"statusUpdated"`
    RowsMarked       int       `json:"rowsMarked"`
    RowsFailed       int       `json:"rowsFailed"`
    MasterOrderID    string    `json:"masterOrderId,omitempty"`
    OverrideSet      bool      `json:"overrideSet"`
    InvoiceCopied    bool      `json:"invoiceCopied"`
    Triggered        bool      `json:"triggered"`
    Settlement       string    `json:"settlement"`
    SettledCost      *float64  `json:"settledCost,omitempty"`
    PaymentID        string    `json:"paymentId,omitempty"`
    PaymentUpdated   bool      `json:"paymentUpdated"`
    Amount           *float64  `json:"amount,omitempty"`
    Warnings         []string  `json:"warnings,omitempty"`
    StartedAt        time.Time `json:"startedAt"`
    FinishedAt       time.Time `json:"finishedAt"`
}

func (r *ImportReport) Warn(msg string) { r.Warnings = append(r.Warnings, msg) }

type ImportStatus string

const (
    ImportQueued    ImportStatus = "queued"
    ImportRunning   ImportStatus = "running"
    ImportCompleted ImportStatus = "completed"
    ImportFailed    ImportStatus = "failed"
)

// Import is a requested import of one source order record.
type Import struct {
    ID             string
    SourceRecordID string
    Status         ImportStatus
    Progress       float64
    Stage          string
    Error          string
    Report         *ImportReport
    QueuedAt       time.Time
    StartedAt      *time.Time
    FinishedAt     *time.Time
}
