package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
)

// API abstracts the product endpoints of the catalog API.
type API interface {
	ListProducts(ctx context.Context) ([]catalogapi.Product, error)
	GetProduct(ctx context.Context, id int64) (catalogapi.Product, error)
	SearchProducts(ctx context.Context, query url.Values) ([]catalogapi.Product, error)
	CreateProduct(ctx context.Context, in catalogapi.ProductInput) (catalogapi.Product, error)
	UpdateProduct(ctx context.Context, id int64, in catalogapi.ProductInput) (catalogapi.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	LowStock(ctx context.Context) ([]catalogapi.Product, error)
	ExportCSV(ctx context.Context) (io.ReadCloser, error)
	ExportExcel(ctx context.Context) (io.ReadCloser, error)
	ImportExcel(ctx context.Context, filename string, content io.Reader) (catalogapi.ImportSummary, error)
	UploadImage(ctx context.Context, filename string, content io.Reader) (string, error)
}

// PendingFlusher links the suppliers buffered during creation to the new product.
type PendingFlusher interface {
	FlushPending(ctx context.Context, productID int64, entries []suppliers.PendingEntry) suppliers.FlushReport
}

// Service coordinates product catalog operations.
type Service struct {
	api      API
	flusher  PendingFlusher
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(api API, flusher PendingFlusher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, flusher: flusher, validate: shared.NewValidator(), logger: logger}
}

// List returns the products matching filter. An empty filter lists everything.
func (s *Service) List(ctx context.Context, filter Filter) ([]catalogapi.Product, error) {
	if filter.IsEmpty() {
		products, err := s.api.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: list: %w", err)
		}
		return products, nil
	}
	query, err := filter.Values()
	if err != nil {
		return nil, err
	}
	products, err := s.api.SearchProducts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	return products, nil
}

// Table lists products and builds the table model.
func (s *Service) Table(ctx context.Context, filter Filter) (Table, error) {
	products, err := s.List(ctx, filter)
	if err != nil {
		return Table{}, err
	}
	return NewTable(products, !filter.IsEmpty()), nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (catalogapi.Product, error) {
	product, err := s.api.GetProduct(ctx, id)
	if err != nil {
		return catalogapi.Product{}, fmt.Errorf("catalog: get: %w", err)
	}
	return product, nil
}

// Parse validates the product form. An unparsable quantity becomes 0.
func (s *Service) Parse(form ProductForm) (catalogapi.ProductInput, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Price = strings.TrimSpace(form.Price)
	form.Category = strings.TrimSpace(form.Category)

	verr := shared.NewValidationError()
	if err := s.validate.Struct(form); err != nil {
		shared.CollectFieldErrors(verr, err, productMessages)
	}
	in := catalogapi.ProductInput{
		Name:        form.Name,
		Description: strings.TrimSpace(form.Description),
		Category:    form.Category,
		ImageURL:    strings.TrimSpace(form.ImageURL),
	}
	if _, bad := verr.Fields["precio"]; !bad {
		price, err := decimal.NewFromString(form.Price)
		switch {
		case err != nil:
			verr.Add("precio", productMessages["precio"])
		case price.IsNegative():
			verr.Add("precio", "El precio no puede ser negativo")
		}
		in.Price = price
	}
	if qty, err := strconv.Atoi(strings.TrimSpace(form.Quantity)); err == nil {
		if qty < 0 {
			verr.Add("cantidad", "La cantidad no puede ser negativa")
		}
		in.Quantity = qty
	}
	if err := verr.Err(); err != nil {
		return catalogapi.ProductInput{}, err
	}
	return in, nil
}

// uploadImage resolves the image URL before the product request is sent.
func (s *Service) uploadImage(ctx context.Context, in *catalogapi.ProductInput, img *Image) error {
	if img == nil {
		return nil
	}
	imageURL, err := s.api.UploadImage(ctx, img.Filename, img.Content)
	if err != nil {
		return fmt.Errorf("catalog: upload image: %w", err)
	}
	in.ImageURL = imageURL
	return nil
}

func imageError(err error) error {
	verr := shared.NewValidationError()
	switch {
	case errors.Is(err, ErrImageType):
		verr.Add("imagen", "Formato de imagen no permitido (png, jpg, jpeg, gif, webp)")
	case errors.Is(err, ErrImageTooLarge):
		verr.Add("imagen", "La imagen supera el máximo de 5 MB")
	default:
		verr.Add("imagen", err.Error())
	}
	return verr
}

// Create uploads the optional image, posts the product and then flushes the pending supplier
// assignments against the new id. Flush failures never fail the creation.
func (s *Service) Create(ctx context.Context, input CreateInput) (CreateResult, error) {
	in, err := s.Parse(input.Form)
	if err != nil {
		return CreateResult{}, err
	}
	if err := ValidateImage(input.Image); err != nil {
		return CreateResult{}, imageError(err)
	}
	if err := s.uploadImage(ctx, &in, input.Image); err != nil {
		return CreateResult{}, err
	}
	product, err := s.api.CreateProduct(ctx, in)
	if err != nil {
		return CreateResult{}, fmt.Errorf("catalog: create: %w", err)
	}
	s.logger.Info("product created", slog.Int64("product_id", product.ID), slog.Int("pending_suppliers", len(input.Pending)))

	result := CreateResult{Product: product}
	if len(input.Pending) > 0 && s.flusher != nil {
		result.Flush = s.flusher.FlushPending(ctx, product.ID, input.Pending)
	}
	return result, nil
}

// Update replaces every field of a product. A new image is uploaded first and the product is
// then written exactly once.
func (s *Service) Update(ctx context.Context, id int64, form ProductForm, img *Image) (catalogapi.Product, error) {
	in, err := s.Parse(form)
	if err != nil {
		return catalogapi.Product{}, err
	}
	if err := ValidateImage(img); err != nil {
		return catalogapi.Product{}, imageError(err)
	}
	if err := s.uploadImage(ctx, &in, img); err != nil {
		return catalogapi.Product{}, err
	}
	product, err := s.api.UpdateProduct(ctx, id, in)
	if err != nil {
		return catalogapi.Product{}, fmt.Errorf("catalog: update: %w", err)
	}
	return product, nil
}

// Delete removes a product once confirm agrees.
func (s *Service) Delete(ctx context.Context, id int64, confirm shared.Confirm) error {
	if !confirm.Ask(DeletePrompt) {
		return shared.ErrCancelled
	}
	if err := s.api.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete: %w", err)
	}
	s.logger.Info("product deleted", slog.Int64("product_id", id))
	return nil
}

// LowStock returns the products the API reports as low stock.
func (s *Service) LowStock(ctx context.Context) ([]catalogapi.Product, error) {
	products, err := s.api.LowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: low stock: %w", err)
	}
	return products, nil
}

// Import uploads a spreadsheet. The summary always carries the three counts.
func (s *Service) Import(ctx context.Context, filename string, content io.Reader) (catalogapi.ImportSummary, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") && !strings.EqualFold(filepath.Ext(filename), ".xls") {
		verr := shared.NewValidationError()
		verr.Add("file", "Selecciona un archivo Excel (.xlsx)")
		return catalogapi.ImportSummary{}, verr
	}
	summary, err := s.api.ImportExcel(ctx, filename, content)
	if err != nil {
		return catalogapi.ImportSummary{}, fmt.Errorf("catalog: import: %w", err)
	}
	s.logger.Info("catalog imported",
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("errors", summary.Errors))
	return summary, nil
}

// Export opens the export stream. The caller closes it.
func (s *Service) Export(ctx context.Context, format ExportFormat) (io.ReadCloser, error) {
	var (
		body io.ReadCloser
		err  error
	)
	switch format {
	case FormatCSV:
		body, err = s.api.ExportCSV(ctx)
	case FormatExcel:
		body, err = s.api.ExportExcel(ctx)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: export %s: %w", format, err)
	}
	return body, nil
}

// ExportToFile downloads the export into dir under its default name. The download goes to a
// temporary file that is removed whatever the outcome.
func (s *Service) ExportToFile(ctx context.Context, format ExportFormat, dir string) (string, error) {
	body, err := s.Export(ctx, format)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("catalog: export temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, body); err != nil {
		return "", fmt.Errorf("catalog: export copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("catalog: export close: %w", err)
	}
	target := filepath.Join(dir, format.Filename())
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("catalog: export rename: %w", err)
	}
	return target, nil
}
