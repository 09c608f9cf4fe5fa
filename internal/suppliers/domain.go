package suppliers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
)

// DuplicatePrompt is asked before a pending entry replaces one for the same supplier.
const DuplicatePrompt = "Este proveedor ya está en la lista. ¿Deseas reemplazar el precio/fecha?"

// UnassignPrompt is asked before a supplier link is removed.
const UnassignPrompt = "¿Desasignar este proveedor del producto? El historial de precios se conserva."

// ErrSupplierRequired is returned when an operation needs a supplier id.
var ErrSupplierRequired = errors.New("suppliers: supplier id required")

// AssignForm is the raw input of the assign form.
type AssignForm struct {
	SupplierID string `form:"proveedor_id" validate:"required,numeric"`
	Price      string `form:"precio_proveedor" validate:"required,numeric"`
	Date       string `form:"fecha_precio" validate:"required,datetime=2006-01-02"`
}

var assignMessages = map[string]string{
	"proveedor_id":              "Selecciona un proveedor",
	"precio_proveedor.required": "El precio del proveedor es obligatorio",
	"precio_proveedor":          "El precio del proveedor debe ser un número",
	"fecha_precio.required":     "La fecha del precio es obligatoria",
	"fecha_precio":              "La fecha debe tener el formato AAAA-MM-DD",
}

// PendingEntry is a supplier assignment held until its product exists.
type PendingEntry struct {
	SupplierID int64           `json:"proveedor_id"`
	Price      decimal.Decimal `json:"precio_proveedor"`
	Date       catalogapi.Date `json:"fecha_precio"`
}

// Request converts the entry into a link-create request.
func (e PendingEntry) Request() catalogapi.AssignRequest {
	return catalogapi.AssignRequest{SupplierID: e.SupplierID, Price: e.Price, PriceDate: e.Date}
}

// AddOutcome reports what PendingBuffer.Add did.
type AddOutcome int

const (
	// Added appended a new supplier.
	Added AddOutcome = iota
	// Replaced overwrote the entry of a supplier already present.
	Replaced
	// Declined left the buffer unchanged.
	Declined
)

// PendingBuffer holds at most one entry per supplier id. Order carries no meaning.
type PendingBuffer struct {
	entries []PendingEntry
}

// Add appends entry, or replaces the existing entry of the same supplier when confirm agrees.
func (b *PendingBuffer) Add(entry PendingEntry, confirm shared.Confirm) AddOutcome {
	for i := range b.entries {
		if b.entries[i].SupplierID != entry.SupplierID {
			continue
		}
		if !confirm.Ask(DuplicatePrompt) {
			return Declined
		}
		b.entries[i] = entry
		return Replaced
	}
	b.entries = append(b.entries, entry)
	return Added
}

// Contains reports whether supplierID is buffered.
func (b *PendingBuffer) Contains(supplierID int64) bool {
	for _, e := range b.entries {
		if e.SupplierID == supplierID {
			return true
		}
	}
	return false
}

// Remove drops the entry of supplierID.
func (b *PendingBuffer) Remove(supplierID int64) bool {
	for i, e := range b.entries {
		if e.SupplierID == supplierID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns a copy of the buffered entries.
func (b *PendingBuffer) Entries() []PendingEntry {
	out := make([]PendingEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of buffered suppliers.
func (b *PendingBuffer) Len() int {
	return len(b.entries)
}

// Clear empties the buffer.
func (b *PendingBuffer) Clear() {
	b.entries = nil
}

// MarshalJSON implements json.Marshaler.
func (b PendingBuffer) MarshalJSON() ([]byte, error) {
	if b.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.entries)
}

// UnmarshalJSON implements json.Unmarshaler. Duplicate supplier ids keep the last value.
func (b *PendingBuffer) UnmarshalJSON(data []byte) error {
	var entries []PendingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	b.entries = nil
	for _, e := range entries {
		b.Add(e, shared.Confirmed(true))
	}
	return nil
}

// FlushFailure records one pending entry the API refused.
type FlushFailure struct {
	SupplierID int64
	Err        error
}

// FlushReport aggregates the outcome of flushing a pending buffer.
type FlushReport struct {
	Attempted int
	Succeeded int
	Failures  []FlushFailure
}

// Failed returns the number of entries that could not be linked.
func (r FlushReport) Failed() int {
	return len(r.Failures)
}

// Summary is the aggregate message shown after a create.
func (r FlushReport) Summary() string {
	switch {
	case r.Attempted == 0:
		return ""
	case r.Failed() == 0:
		return fmt.Sprintf("%d proveedor(es) asignado(s)", r.Succeeded)
	default:
		return fmt.Sprintf("%d de %d proveedor(es) asignado(s); revisa los proveedores del producto", r.Succeeded, r.Attempted)
	}
}

// FallbackName labels a supplier whose name is unknown.
func FallbackName(id int64) string {
	return fmt.Sprintf("ID:%d", id)
}

// LinkView is a supplier link ready to render.
type LinkView struct {
	catalogapi.SupplierLink
	Name string
}
