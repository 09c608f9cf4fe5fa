package catalogapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by the API.
const DateLayout = "2006-01-02"

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String renders the date as YYYY-MM-DD, or an empty string when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return fmt.Errorf("catalogapi: invalid date %q: %w", raw, err)
	}
	*d = parsed
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a server-side creation time. The API emits naive ISO timestamps.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*t = Timestamp{Time: parsed}
			return nil
		}
	}
	return fmt.Errorf("catalogapi: invalid timestamp %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format("2006-01-02T15:04:05.999999"))), nil
}

// Product is a catalog item.
type Product struct {
	ID          int64           `json:"id,omitempty"`
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Price       decimal.Decimal `json:"precio"`
	Quantity    int             `json:"cantidad"`
	Category    string          `json:"categoria"`
	ImageURL    string          `json:"imagen_url"`
}

// ProductInput is the body of create and full-replace update requests.
type ProductInput struct {
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Price       decimal.Decimal `json:"precio"`
	Quantity    int             `json:"cantidad"`
	Category    string          `json:"categoria"`
	ImageURL    string          `json:"imagen_url"`
}

// MarshalJSON sends the price as a JSON number.
func (in ProductInput) MarshalJSON() ([]byte, error) {
	type plain ProductInput
	return json.Marshal(struct {
		plain
		Price json.Number `json:"precio"`
	}{plain(in), number(in.Price)})
}

// Supplier (proveedor) is read-only from the panel.
type Supplier struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// SupplierLink is a product-supplier assignment with its current price.
type SupplierLink struct {
	ID         int64           `json:"id,omitempty"`
	ProductID  int64           `json:"producto_id,omitempty"`
	SupplierID int64           `json:"proveedor_id"`
	Supplier   *Supplier       `json:"proveedor,omitempty"`
	Price      decimal.Decimal `json:"precio_proveedor"`
	PriceDate  Date            `json:"fecha_precio"`
}

// SupplierName returns the embedded supplier name when present.
func (l SupplierLink) SupplierName() string {
	if l.Supplier == nil {
		return ""
	}
	return l.Supplier.Name
}

// AssignRequest creates or updates the link for a (product, supplier) pair.
type AssignRequest struct {
	SupplierID int64           `json:"proveedor_id"`
	Price      decimal.Decimal `json:"precio_proveedor"`
	PriceDate  Date            `json:"fecha_precio"`
}

// MarshalJSON sends the price as a JSON number.
func (in AssignRequest) MarshalJSON() ([]byte, error) {
	type plain AssignRequest
	return json.Marshal(struct {
		plain
		Price json.Number `json:"precio_proveedor"`
	}{plain(in), number(in.Price)})
}

// PriceEntry is one row of a supplier price history.
type PriceEntry struct {
	ID        int64           `json:"id"`
	LinkID    int64           `json:"producto_proveedor_id,omitempty"`
	Price     decimal.Decimal `json:"precio"`
	PriceDate Date            `json:"fecha_precio"`
	Notes     string          `json:"notas"`
	CreatedAt Timestamp       `json:"fecha_creacion"`
}

// PriceEntryRequest appends a price to the history.
type PriceEntryRequest struct {
	Price     decimal.Decimal `json:"precio"`
	PriceDate Date            `json:"fecha_precio"`
	Notes     string          `json:"notas"`
}

// MarshalJSON sends the price as a JSON number.
func (in PriceEntryRequest) MarshalJSON() ([]byte, error) {
	type plain PriceEntryRequest
	return json.Marshal(struct {
		plain
		Price json.Number `json:"precio"`
	}{plain(in), number(in.Price)})
}

// number renders d for request bodies. The API parses prices as JSON numbers, while the
// decimal package quotes them by default.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// ProductRef is the name and price of a product referenced by the statistics.
type ProductRef struct {
	Name  string          `json:"nombre"`
	Price decimal.Decimal `json:"precio"`
}

// CategoryCount is one row of the per-category statistics list.
type CategoryCount struct {
	Category string `json:"categoria"`
	Count    int    `json:"cantidad"`
}

// Stats is the aggregate statistics payload.
type Stats struct {
	TotalProducts   int             `json:"total_productos"`
	InventoryValue  decimal.Decimal `json:"valor_total_inventario"`
	TotalStock      int             `json:"stock_total"`
	LowStockCount   *int            `json:"productos_bajo_stock,omitempty"`
	MostExpensive   *ProductRef     `json:"producto_mas_caro,omitempty"`
	Cheapest        *ProductRef     `json:"producto_mas_barato,omitempty"`
	CountByCategory map[string]int  `json:"productos_por_categoria,omitempty"`
	Categories      []CategoryCount `json:"categorias,omitempty"`
}

// ImportSummary reports the outcome of a spreadsheet import.
type ImportSummary struct {
	Created int      `json:"creados"`
	Updated int      `json:"actualizados"`
	Errors  int      `json:"errores"`
	Details []string `json:"detalles"`
}

type importPayload struct {
	Created *int              `json:"creados"`
	Updated *int              `json:"actualizados"`
	Errors  *int              `json:"errores"`
	Details []json.RawMessage `json:"detalles"`
	Error   string            `json:"error"`
}

func (p importPayload) summary() (ImportSummary, error) {
	if p.Created == nil || p.Updated == nil || p.Errors == nil {
		return ImportSummary{}, ErrIncompleteSummary
	}
	summary := ImportSummary{Created: *p.Created, Updated: *p.Updated, Errors: *p.Errors}
	for _, raw := range p.Details {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			summary.Details = append(summary.Details, text)
			continue
		}
		summary.Details = append(summary.Details, string(raw))
	}
	return summary, nil
}
