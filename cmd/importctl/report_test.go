package main

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"

    "orderbridge/internal/domain"
)

func TestReportRows(t *testing.T) {
    cost, amt := 1000.0, 300.0
    start := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
    rows := reportRows(domain.ImportReport{
        OrderNumber:      "PO-1001",
        SourceRows:       2,
        SuppliersCreated: 1,
        SuppliersReused:  1,
        LineItemsCreated: 2,
        StatusAttempted:  2,
        StatusUpdated:    2,
        RowsMarked:       2,
        MasterOrderID:    "recO",
        OverrideSet:      true,
        Triggered:        true,
        Settlement:       "resolved",
        SettledCost:      &cost,
        PaymentID:        "recP",
        Amount:           &amt,
        StartedAt:        start,
        FinishedAt:       start.Add(1500 * time.Millisecond),
    })

    assert.Equal(t, []string{"step", "result"}, rows[0])
    assert.Contains(t, rows, []string{"suppliers", "1 created, 1 reused"})
    assert.Contains(t, rows, []string{"master order", "recO (override, triggered)"})
    assert.Contains(t, rows, []string{"settlement", "resolved 1000.00"})
    assert.Contains(t, rows, []string{"payment", "recP 300.00"})
    assert.Contains(t, rows, []string{"duration", "1.5s"})
}

func TestReportRows_Empty(t *testing.T) {
    rows := reportRows(domain.ImportReport{OrderNumber: "PO-1"})
    assert.Contains(t, rows, []string{"payment", "-"})
    assert.Len(t, rows, 9)
}
