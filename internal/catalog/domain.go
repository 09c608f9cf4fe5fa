package catalog

import (
	"errors"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
)

// MaxImageSize mirrors the upload limit of the API.
const MaxImageSize = 5 << 20

// DeletePrompt is asked before a product is deleted.
const DeletePrompt = "¿Eliminar este producto? Esta acción no se puede deshacer."

var allowedImageExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

var (
	// ErrImageType rejects files the API would not accept as product images.
	ErrImageType = errors.New("catalog: image type not allowed")
	// ErrImageTooLarge rejects images above MaxImageSize.
	ErrImageTooLarge = errors.New("catalog: image too large")
	// ErrUnknownFormat rejects an export format other than csv or excel.
	ErrUnknownFormat = errors.New("catalog: unknown export format")
)

// Filter holds the optional search criteria of the product list.
type Filter struct {
	Query    string
	Category string
	MinPrice string
	MaxPrice string
}

// Normalized trims every criterion.
func (f Filter) Normalized() Filter {
	return Filter{
		Query:    strings.TrimSpace(f.Query),
		Category: strings.TrimSpace(f.Category),
		MinPrice: strings.TrimSpace(f.MinPrice),
		MaxPrice: strings.TrimSpace(f.MaxPrice),
	}
}

// IsEmpty reports whether no criterion is set.
func (f Filter) IsEmpty() bool {
	n := f.Normalized()
	return n.Query == "" && n.Category == "" && n.MinPrice == "" && n.MaxPrice == ""
}

// Values builds the search query. Empty criteria are omitted rather than sent as empty strings.
func (f Filter) Values() (url.Values, error) {
	n := f.Normalized()
	values := url.Values{}
	verr := shared.NewValidationError()
	if n.Query != "" {
		values.Set("q", n.Query)
	}
	if n.Category != "" {
		values.Set("categoria", n.Category)
	}
	if n.MinPrice != "" {
		if _, err := decimal.NewFromString(n.MinPrice); err != nil {
			verr.Add("precio_min", "El precio mínimo debe ser un número")
		} else {
			values.Set("precio_min", n.MinPrice)
		}
	}
	if n.MaxPrice != "" {
		if _, err := decimal.NewFromString(n.MaxPrice); err != nil {
			verr.Add("precio_max", "El precio máximo debe ser un número")
		} else {
			values.Set("precio_max", n.MaxPrice)
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// ProductForm is the raw input of the create and edit forms.
type ProductForm struct {
	Name        string `form:"nombre" validate:"required,max=200"`
	Description string `form:"descripcion"`
	Price       string `form:"precio" validate:"required,numeric"`
	Quantity    string `form:"cantidad"`
	Category    string `form:"categoria" validate:"max=100"`
	ImageURL    string `form:"imagen_url"`
}

var productMessages = map[string]string{
	"nombre.required": "El nombre es obligatorio",
	"nombre":          "El nombre es demasiado largo",
	"precio.required": "El precio es obligatorio",
	"precio":          "El precio debe ser un número",
	"categoria":       "La categoría es demasiado larga",
}

// FormFromProduct fills the edit form from a stored product.
func FormFromProduct(p catalogapi.Product) ProductForm {
	return ProductForm{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Quantity:    strconv.Itoa(p.Quantity),
		Category:    p.Category,
		ImageURL:    p.ImageURL,
	}
}

// Image is an uploaded product image.
type Image struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// ValidateImage checks the extension and size before the upload is attempted.
func ValidateImage(img *Image) error {
	if img == nil {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(img.Filename))
	if !allowedImageExt[ext] {
		return ErrImageType
	}
	if img.Size > MaxImageSize {
		return ErrImageTooLarge
	}
	return nil
}

// ExportFormat selects the export endpoint.
type ExportFormat string

const (
	// FormatCSV exports the catalog as CSV.
	FormatCSV ExportFormat = "csv"
	// FormatExcel exports the catalog as a spreadsheet.
	FormatExcel ExportFormat = "excel"
)

// ParseExportFormat validates a format name.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(name))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatExcel, "xlsx":
		return FormatExcel, nil
	default:
		return "", ErrUnknownFormat
	}
}

// Filename is the download name of the export.
func (f ExportFormat) Filename() string {
	if f == FormatExcel {
		return "catalogo_productos.xlsx"
	}
	return "productos.csv"
}

// ContentType is the media type of the export.
func (f ExportFormat) ContentType() string {
	if f == FormatExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// CreateInput groups everything a product creation needs.
type CreateInput struct {
	Form    ProductForm
	Image   *Image
	Pending []suppliers.PendingEntry
}

// CreateResult is a created product and the outcome of its pending supplier flush.
type CreateResult struct {
	Product catalogapi.Product
	Flush   suppliers.FlushReport
}

// Table columns rendered by the product list.
var Columns = []string{"ID", "Imagen", "Nombre", "Descripción", "Precio", "Cantidad", "Categoría", "Acciones"}

// Row is one product row.
type Row struct {
	catalogapi.Product
	LowStock bool
}

// Table is the product list ready to render. An empty table renders a single row spanning
// every column with EmptyText.
type Table struct {
	Rows      []Row
	Filtered  bool
	EmptyText string
}

// Headers returns the column titles.
func (t Table) Headers() []string {
	return Columns
}

// ColSpan is the number of columns of the table.
func (t Table) ColSpan() int {
	return len(Columns)
}

// Empty reports whether the "no results" row is shown.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// NewTable builds the rendering model of products.
func NewTable(products []catalogapi.Product, filtered bool) Table {
	t := Table{Filtered: filtered, Rows: make([]Row, 0, len(products))}
	for _, p := range products {
		t.Rows = append(t.Rows, Row{Product: p, LowStock: p.Quantity < LowStockThreshold})
	}
	if filtered {
		t.EmptyText = "No se encontraron productos"
	} else {
		t.EmptyText = "No hay productos"
	}
	return t
}

// LowStockThreshold is the quantity below which a product counts as low stock.
const LowStockThreshold = 5
