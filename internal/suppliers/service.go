package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
)

// API abstracts the supplier endpoints of the catalog API.
type API interface {
	ListSuppliers(ctx context.Context) ([]catalogapi.Supplier, error)
	ListProductSuppliers(ctx context.Context, productID int64) ([]catalogapi.SupplierLink, error)
	AssignSupplier(ctx context.Context, productID int64, in catalogapi.AssignRequest) (catalogapi.SupplierLink, error)
	UnassignSupplier(ctx context.Context, productID, supplierID int64) error
}

// Service coordinates supplier assignments.
type Service struct {
	api      API
	names    *NameCache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(api API, names *NameCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, names: names, validate: shared.NewValidator(), logger: logger}
}

// Parse validates the assign form. Every field must be present before any request.
func (s *Service) Parse(form AssignForm) (catalogapi.AssignRequest, error) {
	form.SupplierID = strings.TrimSpace(form.SupplierID)
	form.Price = strings.TrimSpace(form.Price)
	form.Date = strings.TrimSpace(form.Date)

	verr := shared.NewValidationError()
	if err := s.validate.Struct(form); err != nil {
		shared.CollectFieldErrors(verr, err, assignMessages)
	}
	var req catalogapi.AssignRequest
	if _, bad := verr.Fields["proveedor_id"]; !bad {
		id, err := strconv.ParseInt(form.SupplierID, 10, 64)
		if err != nil || id <= 0 {
			verr.Add("proveedor_id", assignMessages["proveedor_id"])
		}
		req.SupplierID = id
	}
	if _, bad := verr.Fields["precio_proveedor"]; !bad {
		price, err := decimal.NewFromString(form.Price)
		switch {
		case err != nil:
			verr.Add("precio_proveedor", assignMessages["precio_proveedor"])
		case price.IsNegative():
			verr.Add("precio_proveedor", "El precio del proveedor no puede ser negativo")
		}
		req.Price = price
	}
	if _, bad := verr.Fields["fecha_precio"]; !bad {
		date, err := catalogapi.ParseDate(form.Date)
		if err != nil {
			verr.Add("fecha_precio", assignMessages["fecha_precio"])
		}
		req.PriceDate = date
	}
	if err := verr.Err(); err != nil {
		return catalogapi.AssignRequest{}, err
	}
	return req, nil
}

// ParsePending validates the form of the pre-creation supplier list.
func (s *Service) ParsePending(form AssignForm) (PendingEntry, error) {
	req, err := s.Parse(form)
	if err != nil {
		return PendingEntry{}, err
	}
	return PendingEntry{SupplierID: req.SupplierID, Price: req.Price, Date: req.PriceDate}, nil
}

// Assign links a supplier to an existing product. Assigning the same supplier again updates
// the link's price and date.
func (s *Service) Assign(ctx context.Context, productID int64, form AssignForm) (catalogapi.SupplierLink, error) {
	req, err := s.Parse(form)
	if err != nil {
		return catalogapi.SupplierLink{}, err
	}
	link, err := s.api.AssignSupplier(ctx, productID, req)
	if err != nil {
		return catalogapi.SupplierLink{}, fmt.Errorf("suppliers: assign: %w", err)
	}
	return link, nil
}

// Unassign removes the link after confirmation. Price history is left on the server.
func (s *Service) Unassign(ctx context.Context, productID, supplierID int64, confirm shared.Confirm) error {
	if supplierID <= 0 {
		return ErrSupplierRequired
	}
	if !confirm.Ask(UnassignPrompt) {
		return shared.ErrCancelled
	}
	if err := s.api.UnassignSupplier(ctx, productID, supplierID); err != nil {
		return fmt.Errorf("suppliers: unassign: %w", err)
	}
	return nil
}

// Links returns the suppliers assigned to a product, labelled for display.
func (s *Service) Links(ctx context.Context, productID int64) ([]LinkView, error) {
	links, err := s.api.ListProductSuppliers(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("suppliers: links: %w", err)
	}
	var cached map[int64]string
	out := make([]LinkView, 0, len(links))
	for _, link := range links {
		name := link.SupplierName()
		if name == "" {
			if cached == nil {
				cached = s.names.Names(ctx)
			}
			name = cached[link.SupplierID]
		}
		if name == "" {
			name = FallbackName(link.SupplierID)
		}
		out = append(out, LinkView{SupplierLink: link, Name: name})
	}
	return out, nil
}

// Suppliers lists every supplier and refreshes the name cache.
func (s *Service) Suppliers(ctx context.Context) ([]catalogapi.Supplier, error) {
	list, err := s.api.ListSuppliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("suppliers: list: %w", err)
	}
	s.names.Store(ctx, list)
	return list, nil
}

// Name returns the display name of a supplier.
func (s *Service) Name(ctx context.Context, supplierID int64) string {
	return s.names.Name(ctx, supplierID)
}

// PendingView labels pending entries for display.
func (s *Service) PendingView(ctx context.Context, entries []PendingEntry) []PendingRow {
	if len(entries) == 0 {
		return nil
	}
	names := s.names.Names(ctx)
	rows := make([]PendingRow, 0, len(entries))
	for _, e := range entries {
		name := names[e.SupplierID]
		if name == "" {
			name = FallbackName(e.SupplierID)
		}
		rows = append(rows, PendingRow{PendingEntry: e, Name: name})
	}
	return rows
}

// PendingRow is a pending entry ready to render.
type PendingRow struct {
	PendingEntry
	Name string
}

// FlushPending issues one link-create request per entry. A failed entry is logged and counted
// and never stops the remaining ones.
func (s *Service) FlushPending(ctx context.Context, productID int64, entries []PendingEntry) FlushReport {
	report := FlushReport{Attempted: len(entries)}
	for _, entry := range entries {
		if _, err := s.api.AssignSupplier(ctx, productID, entry.Request()); err != nil {
			s.logger.Warn("flush pending supplier",
				slog.Int64("product_id", productID),
				slog.Int64("supplier_id", entry.SupplierID),
				slog.Any("error", err))
			report.Failures = append(report.Failures, FlushFailure{SupplierID: entry.SupplierID, Err: err})
			continue
		}
		report.Succeeded++
	}
	if report.Attempted > 0 {
		s.logger.Info("pending suppliers flushed",
			slog.Int64("product_id", productID),
			slog.Int("attempted", report.Attempted),
			slog.Int("succeeded", report.Succeeded))
	}
	return report
}
