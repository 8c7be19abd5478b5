package domain

// Schema maps each logical field role to the field name used by the store.
// It is loaded from configuration and validated once at startup.
type Schema struct {
    Tables    Tables         `mapstructure:"tables"`
    Source    SourceFields   `mapstructure:"source"`
    LineItems LineItemFields `mapstructure:"line_items"`
    Suppliers SupplierFields `mapstructure:"suppliers"`
    Orders    OrderFields    `mapstructure:"orders"`
    Payments  PaymentFields  `mapstructure:"payments"`
}

type Tables struct {
    SourceOrders string `mapstructure:"source_orders"`
    LineItems    string `mapstructure:"line_items"`
    Suppliers    string `mapstructure:"suppliers"`
    Orders       string `mapstructure:"orders"`
    Payments     string `mapstructure:"payments"`
}

type SourceFields struct {
    OrderNumber       string `mapstructure:"order_number"`
    SKU               string `mapstructure:"sku"`
    Quantity          string `mapstructure:"quantity"`
    SupplierName      string `mapstructure:"supplier_name"`
    CompanyInfo       string `mapstructure:"company_info"`
    Email             string `mapstructure:"email"`
    ProductName       string `mapstructure:"product_name"`
    Invoice           string `mapstructure:"invoice"`
    PaymentProof      string `mapstructure:"payment_proof"`
    PaymentPercentage string `mapstructure:"payment_percentage"`
    ReadyDate         string `mapstructure:"ready_date"`
    Imported          string `mapstructure:"imported"`
}

type LineItemFields struct {
    SKU      string `mapstructure:"sku"`
    Quantity string `mapstructure:"quantity"`
    Supplier string `mapstructure:"supplier"`
    Status   string `mapstructure:"status"`
}

type SupplierFields struct {
    Name         string `mapstructure:"name"`
    CompanyInfo  string `mapstructure:"company_info"`
    NotifyEmail  string `mapstructure:"notify_email"`
    ProductShort string `mapstructure:"product_short"`
    EmailDomain  string `mapstructure:"email_domain"`
}

type OrderFields struct {
    ID             string `mapstructure:"id"`
    Override       string `mapstructure:"override"`
    Invoice        string `mapstructure:"invoice"`
    ReadyDate      string `mapstructure:"ready_date"`
    InvoiceChecked string `mapstructure:"invoice_checked"`
    Cost           string `mapstructure:"cost"`
}

type PaymentFields struct {
    OrderNumber  string `mapstructure:"order_number"`
    PaymentProof string `mapstructure:"payment_proof"`
    Released     string `mapstructure:"released"`
    Amount       string `mapstructure:"amount"`
}

// FieldRef names one configured field of one table.
type FieldRef struct {
    Table string
    Role  string
    Field string
}

// Required lists the field roles the pipeline cannot run without.
func (s Schema) Required() []FieldRef {
    t := s.Tables
    return []FieldRef{
        {t.SourceOrders, "source.order_number", s.Source.OrderNumber},
        {t.SourceOrders, "source.sku", s.Source.SKU},
        {t.SourceOrders, "source.quantity", s.Source.Quantity},
        {t.SourceOrders, "source.supplier_name", s.Source.SupplierName},
        {t.SourceOrders, "source.imported", s.Source.Imported},
        {t.LineItems, "line_items.sku", s.LineItems.SKU},
        {t.LineItems, "line_items.quantity", s.LineItems.Quantity},
        {t.LineItems, "line_items.supplier", s.LineItems.Supplier},
        {t.LineItems, "line_items.status", s.LineItems.Status},
        {t.Suppliers, "suppliers.name", s.Suppliers.Name},
        {t.Orders, "orders.id", s.Orders.ID},
        {t.Orders, "orders.override", s.Orders.Override},
        {t.Orders, "orders.invoice_checked", s.Orders.InvoiceChecked},
        {t.Payments, "payments.order_number", s.Payments.OrderNumber},
        {t.Payments, "payments.payment_proof", s.Payments.PaymentProof},
        {t.Payments, "payments.released", s.Payments.Released},
    }
}

// Optional lists roles that are skipped when left empty.
func (s Schema) Optional() []FieldRef {
    t := s.Tables
    return []FieldRef{
        {t.SourceOrders, "source.company_info", s.Source.CompanyInfo},
        {t.SourceOrders, "source.email", s.Source.Email},
        {t.SourceOrders, "source.product_name", s.Source.ProductName},
        {t.SourceOrders, "source.invoice", s.Source.Invoice},
        {t.SourceOrders, "source.payment_proof", s.Source.PaymentProof},
        {t.SourceOrders, "source.payment_percentage", s.Source.PaymentPercentage},
        {t.SourceOrders, "source.ready_date", s.Source.ReadyDate},
        {t.Suppliers, "suppliers.company_info", s.Suppliers.CompanyInfo},
        {t.Suppliers, "suppliers.notify_email", s.Suppliers.NotifyEmail},
        {t.Suppliers, "suppliers.product_short", s.Suppliers.ProductShort},
        {t.Suppliers, "suppliers.email_domain", s.Suppliers.EmailDomain},
        {t.Orders, "orders.invoice", s.Orders.Invoice},
        {t.Orders, "orders.ready_date", s.Orders.ReadyDate},
        {t.Orders, "orders.cost", s.Orders.Cost},
        {t.Payments, "payments.amount", s.Payments.Amount},
    }
}

// DefaultSchema reproduces the layout of the legacy base.
func DefaultSchema() Schema {
    return Schema{
        Tables: Tables{
            SourceOrders: "old-base sync (new orders)",
            LineItems:    "new order sku",
            Suppliers:    "suppliers info",
            Orders:       "orders",
            Payments:     "payments",
        },
        Source: SourceFields{
            OrderNumber:       "order #",
            SKU:               "sku clean",
            Quantity:          "U/Ord",
            SupplierName:      "company name",
            CompanyInfo:       "company info",
            Email:             "email",
            ProductName:       "Product name",
            Invoice:           "Order Invoice (from Link Orders) copy (from linkOrdersMaster)",
            PaymentProof:      "payment OLD created (from Link Orders) (from linkOrdersMaster)",
            PaymentPercentage: "payment %",
            ReadyDate:         "ready date",
            Imported:          "imported",
        },
        LineItems: LineItemFields{
            SKU:      "sku",
            Quantity: "quantity requested",
            Supplier: "Supplier",
            Status:   "status",
        },
        Suppliers: SupplierFields{
            Name:         "Company Name",
            CompanyInfo:  "company info",
            NotifyEmail:  "Notify Email",
            ProductShort: "Product short",
        },
        Orders: OrderFields{
            ID:             "ID",
            Override:       "order#override",
            Invoice:        "invoice",
            ReadyDate:      "ready date",
            InvoiceChecked: "invoice checked",
            Cost:           "AI cost",
        },
        Payments: PaymentFields{
            OrderNumber:  "Order#",
            PaymentProof: "payment proof",
            Released:     "released",
            Amount:       "amount",
        },
    }
}
