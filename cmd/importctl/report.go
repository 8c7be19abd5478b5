package main

import (
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/pterm/pterm"

    "orderbridge/internal/domain"
)

func renderReport(r domain.ImportReport) {
    if r.OrderNumber == "" {
        return
    }
    pterm.DefaultSection.Printfln("Order %s", r.OrderNumber)
    _ = pterm.DefaultTable.WithHasHeader().WithData(reportRows(r)).Render()
    for _, w := range r.Warnings {
        pterm.Warning.Println(w)
    }
}

func reportRows(r domain.ImportReport) pterm.TableData {
    rows := pterm.TableData{
        {"step", "result"},
        {"source rows", strconv.Itoa(r.SourceRows)},
        {"suppliers", fmt.Sprintf("%d created, %d reused", r.SuppliersCreated, r.SuppliersReused)},
        {"line items", strconv.Itoa(r.LineItemsCreated)},
        {"status updated", fmt.Sprintf("%d of %d", r.StatusUpdated, r.StatusAttempted)},
        {"rows marked imported", fmt.Sprintf("%d (%d failed)", r.RowsMarked, r.RowsFailed)},
        {"master order", orDash(r.MasterOrderID) + flags(r.OverrideSet, "override", r.InvoiceCopied, "invoice", r.Triggered, "triggered")},
        {"settlement", orDash(r.Settlement) + amount(r.SettledCost)},
        {"payment", orDash(r.PaymentID) + amount(r.Amount)},
    }
    if !r.FinishedAt.IsZero() {
        rows = append(rows, []string{"duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()})
    }
    return rows
}

func flags(pairs ...any) string {
    var set []string
    for i := 0; i+1 < len(pairs); i += 2 {
        if on, _ := pairs[i].(bool); on {
            set = append(set, pairs[i+1].(string))
        }
    }
    if len(set) == 0 {
        return ""
    }
    return " (" + strings.Join(set, ", ") + ")"
}

func amount(v *float64) string {
    if v == nil {
        return ""
    }
    return " " + strconv.FormatFloat(*v, 'f', 2, 64)
}

func orDash(s string) string {
    if s == "" {
        return "-"
    }
    return s
}
