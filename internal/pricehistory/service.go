// Package pricehistory records and lists the dated prices of a product-supplier link.
package pricehistory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
)

// ErrRefresh reports that a write went through but the history or links could not be
// reloaded afterwards. The returned Refresh still names the pair.
var ErrRefresh = errors.New("pricehistory: reload after write failed")

// DeletePrompt is asked before a history row is removed.
const DeletePrompt = "¿Eliminar este registro del historial de precios?"

// API abstracts the price history endpoints of the catalog API.
type API interface {
	ListPriceHistory(ctx context.Context, productID, supplierID int64) ([]catalogapi.PriceEntry, error)
	AddPriceEntry(ctx context.Context, productID, supplierID int64, in catalogapi.PriceEntryRequest) (catalogapi.PriceEntry, error)
	DeletePriceEntry(ctx context.Context, entryID int64) error
}

// LinkLister reloads the supplier links of a product. The link's current price may derive
// from the latest history row, so it is refreshed together with the history.
type LinkLister interface {
	Links(ctx context.Context, productID int64) ([]suppliers.LinkView, error)
}

// EntryForm is the raw input of the add-price form.
type EntryForm struct {
	Price string `form:"precio" validate:"required,numeric"`
	Date  string `form:"fecha_precio" validate:"required,datetime=2006-01-02"`
	Notes string `form:"notas" validate:"max=500"`
}

var entryMessages = map[string]string{
	"precio.required":       "El precio es obligatorio",
	"precio":                "El precio debe ser un número",
	"fecha_precio.required": "La fecha es obligatoria",
	"fecha_precio":          "La fecha debe tener el formato AAAA-MM-DD",
	"notas":                 "Las notas son demasiado largas",
}

// Entry is a history row ready to render.
type Entry struct {
	catalogapi.PriceEntry
	Latest bool
}

// Refresh carries the reloaded history and supplier links of one (product, supplier) pair.
type Refresh struct {
	ProductID  int64
	SupplierID int64
	Entries    []Entry
	Links      []suppliers.LinkView
}

// Service coordinates price history operations.
type Service struct {
	api      API
	links    LinkLister
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(api API, links LinkLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, links: links, validate: shared.NewValidator(), logger: logger}
}

// Parse validates the add-price form.
func (s *Service) Parse(form EntryForm) (catalogapi.PriceEntryRequest, error) {
	form.Price = strings.TrimSpace(form.Price)
	form.Date = strings.TrimSpace(form.Date)
	form.Notes = strings.TrimSpace(form.Notes)

	verr := shared.NewValidationError()
	if err := s.validate.Struct(form); err != nil {
		shared.CollectFieldErrors(verr, err, entryMessages)
	}
	req := catalogapi.PriceEntryRequest{Notes: form.Notes}
	if _, bad := verr.Fields["precio"]; !bad {
		price, err := decimal.NewFromString(form.Price)
		switch {
		case err != nil:
			verr.Add("precio", entryMessages["precio"])
		case price.IsNegative():
			verr.Add("precio", "El precio no puede ser negativo")
		}
		req.Price = price
	}
	if _, bad := verr.Fields["fecha_precio"]; !bad {
		date, err := catalogapi.ParseDate(form.Date)
		if err != nil {
			verr.Add("fecha_precio", entryMessages["fecha_precio"])
		}
		req.PriceDate = date
	}
	if err := verr.Err(); err != nil {
		return catalogapi.PriceEntryRequest{}, err
	}
	return req, nil
}

// List returns the history most recent first. The first entry is flagged Latest.
func (s *Service) List(ctx context.Context, productID, supplierID int64) ([]Entry, error) {
	raw, err := s.api.ListPriceHistory(ctx, productID, supplierID)
	if err != nil {
		return nil, fmt.Errorf("pricehistory: list: %w", err)
	}
	return Order(raw), nil
}

// Order sorts by fecha_precio, then fecha_creacion, then id, all descending.
func Order(raw []catalogapi.PriceEntry) []Entry {
	sorted := make([]catalogapi.PriceEntry, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.PriceDate.Equal(b.PriceDate.Time) {
			return a.PriceDate.After(b.PriceDate.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			return a.CreatedAt.After(b.CreatedAt.Time)
		}
		return a.ID > b.ID
	})
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = Entry{PriceEntry: e, Latest: i == 0}
	}
	return out
}

// Add appends a price to the history and reloads the history and the supplier links. A
// failed reload is reported as ErrRefresh; the entry is stored regardless.
func (s *Service) Add(ctx context.Context, productID, supplierID int64, form EntryForm) (Refresh, error) {
	req, err := s.Parse(form)
	if err != nil {
		return Refresh{}, err
	}
	entry, err := s.api.AddPriceEntry(ctx, productID, supplierID, req)
	if err != nil {
		return Refresh{}, fmt.Errorf("pricehistory: add: %w", err)
	}
	s.logger.Info("price entry added",
		slog.Int64("product_id", productID),
		slog.Int64("supplier_id", supplierID),
		slog.Int64("entry_id", entry.ID))
	return s.refresh(ctx, productID, supplierID)
}

// Delete removes one history row after confirmation, then reloads the history and the
// supplier links of the same pair. A failed reload is reported as ErrRefresh.
func (s *Service) Delete(ctx context.Context, entryID, productID, supplierID int64, confirm shared.Confirm) (Refresh, error) {
	if !confirm.Ask(DeletePrompt) {
		return Refresh{}, shared.ErrCancelled
	}
	if err := s.api.DeletePriceEntry(ctx, entryID); err != nil {
		return Refresh{}, fmt.Errorf("pricehistory: delete: %w", err)
	}
	s.logger.Info("price entry deleted", slog.Int64("entry_id", entryID))
	return s.refresh(ctx, productID, supplierID)
}

func (s *Service) refresh(ctx context.Context, productID, supplierID int64) (Refresh, error) {
	out := Refresh{ProductID: productID, SupplierID: supplierID}
	entries, err := s.List(ctx, productID, supplierID)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrRefresh, err)
	}
	out.Entries = entries
	if s.links != nil {
		links, err := s.links.Links(ctx, productID)
		if err != nil {
			return out, fmt.Errorf("%w: %w", ErrRefresh, err)
		}
		out.Links = links
	}
	return out, nil
}
