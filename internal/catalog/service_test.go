package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi/catalogapitest"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
)

type recordingFlusher struct {
	calls     int
	productID int64
	entries   []suppliers.PendingEntry
}

func (f *recordingFlusher) FlushPending(_ context.Context, productID int64, entries []suppliers.PendingEntry) suppliers.FlushReport {
	f.calls++
	f.productID = productID
	f.entries = entries
	return suppliers.FlushReport{Attempted: len(entries), Succeeded: len(entries)}
}

func newTestService(t *testing.T) (*Service, *catalogapitest.Server, *recordingFlusher) {
	t.Helper()
	api := catalogapitest.New(t)
	flusher := &recordingFlusher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(api.Client(), flusher, logger), api, flusher
}

func TestFilterOmitsEmptyCriteria(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"query only", Filter{Query: "mouse"}, "q=mouse"},
		{"category only", Filter{Category: " Oficina "}, "categoria=Oficina"},
		{"price range", Filter{MinPrice: "1", MaxPrice: "9.5"}, "precio_max=9.5&precio_min=1"},
		{"whitespace ignored", Filter{Query: "  ", MaxPrice: "3"}, "precio_max=3"},
		{"all", Filter{Query: "a", Category: "b", MinPrice: "1", MaxPrice: "2"}, "categoria=b&precio_max=2&precio_min=1&q=a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, api, _ := newTestService(t)
			_, err := svc.List(context.Background(), tc.filter)
			require.NoError(t, err)
			reqs := api.RequestsTo(http.MethodGet, "/api/productos/buscar")
			require.Len(t, reqs, 1)
			assert.Equal(t, tc.want, reqs[0].RawQuery)
		})
	}
}

func TestEmptyFilterListsAll(t *testing.T) {
	svc, api, _ := newTestService(t)
	api.AddProduct(catalogapi.Product{Name: "Mouse", Price: decimal.NewFromInt(5), Quantity: 2})

	table, err := svc.Table(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.True(t, table.Rows[0].LowStock)
	assert.Empty(t, api.RequestsTo(http.MethodGet, "/api/productos/buscar"))
	assert.Len(t, api.RequestsTo(http.MethodGet, "/api/productos"), 1)
}

func TestEmptyTableRow(t *testing.T) {
	svc, _, _ := newTestService(t)

	table, err := svc.Table(context.Background(), Filter{Query: "nada"})
	require.NoError(t, err)
	assert.True(t, table.Empty())
	assert.Equal(t, len(Columns), table.ColSpan())
	assert.Equal(t, "No se encontraron productos", table.EmptyText)

	assert.Equal(t, "No hay productos", NewTable(nil, false).EmptyText)
}

func TestInvalidPriceFilterSendsNothing(t *testing.T) {
	svc, api, _ := newTestService(t)
	_, err := svc.List(context.Background(), Filter{MinPrice: "barato"})
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "precio_min")
	assert.Empty(t, api.Requests())
}

func TestCreateWidgetWithoutPendingSuppliers(t *testing.T) {
	svc, api, flusher := newTestService(t)

	result, err := svc.Create(context.Background(), CreateInput{
		Form: ProductForm{Name: "Widget", Price: "9.99", Quantity: "0", Category: ""},
	})
	require.NoError(t, err)
	assert.NotZero(t, result.Product.ID)

	posts := api.RequestsTo(http.MethodPost, "/api/productos")
	require.Len(t, posts, 1)
	assert.Equal(t, "/api/productos", posts[0].Path)
	assert.Contains(t, posts[0].Body, `"precio":9.99`)
	assert.Contains(t, posts[0].Body, `"cantidad":0`)
	assert.Zero(t, flusher.calls)
	assert.Len(t, api.Requests(), 1)
}

func TestCreateFlushesPendingAgainstNewID(t *testing.T) {
	svc, _, flusher := newTestService(t)
	pending := []suppliers.PendingEntry{{SupplierID: 1}, {SupplierID: 2}}

	result, err := svc.Create(context.Background(), CreateInput{
		Form:    ProductForm{Name: "Widget", Price: "1"},
		Pending: pending,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, flusher.calls)
	assert.Equal(t, result.Product.ID, flusher.productID)
	assert.Len(t, flusher.entries, 2)
	assert.Equal(t, 2, result.Flush.Succeeded)
}

func TestCreateQuantityDefaultsToZero(t *testing.T) {
	svc, _, _ := newTestService(t)
	in, err := svc.Parse(ProductForm{Name: "Widget", Price: "3", Quantity: "muchos"})
	require.NoError(t, err)
	assert.Equal(t, 0, in.Quantity)
}

func TestCreateValidationSendsNothing(t *testing.T) {
	svc, api, flusher := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		Form:    ProductForm{Name: " ", Price: "abc"},
		Pending: []suppliers.PendingEntry{{SupplierID: 1}},
	})
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "nombre")
	assert.Contains(t, verr.Fields, "precio")
	assert.Empty(t, api.Requests())
	assert.Zero(t, flusher.calls)

	_, err = svc.Parse(ProductForm{Name: "x", Price: "-2"})
	verr, ok = shared.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "precio")
}

func TestCreateServerErrorKeepsReason(t *testing.T) {
	svc, api, flusher := newTestService(t)
	api.Fail(http.MethodPost, "/api/productos", catalogapitest.Fault{Status: http.StatusBadRequest, Message: "Nombre duplicado"})

	_, err := svc.Create(context.Background(), CreateInput{
		Form:    ProductForm{Name: "Widget", Price: "1"},
		Pending: []suppliers.PendingEntry{{SupplierID: 1}},
	})
	msg, ok := catalogapi.ServerMessage(err)
	require.True(t, ok)
	assert.Equal(t, "Nombre duplicado", msg)
	assert.Zero(t, flusher.calls)
}

func TestUpdateUploadsImageThenPutsOnce(t *testing.T) {
	svc, api, _ := newTestService(t)
	product := api.AddProduct(catalogapi.Product{Name: "Mouse", Price: decimal.NewFromInt(5)})

	updated, err := svc.Update(context.Background(), product.ID, ProductForm{Name: "Mouse", Price: "6"}, &Image{
		Filename: "mouse.png", Size: 10, Content: strings.NewReader("png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/productos/mouse.png", updated.ImageURL)

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "POST /api/productos/upload-imagen", reqs[0].String())
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Contains(t, reqs[1].Body, "/uploads/productos/mouse.png")
}

func TestUpdateRejectsBadImageBeforeRequests(t *testing.T) {
	svc, api, _ := newTestService(t)
	_, err := svc.Update(context.Background(), 1, ProductForm{Name: "Mouse", Price: "6"}, &Image{Filename: "virus.exe", Size: 1})
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "imagen")

	_, err = svc.Update(context.Background(), 1, ProductForm{Name: "Mouse", Price: "6"}, &Image{Filename: "big.jpg", Size: MaxImageSize + 1})
	require.Error(t, err)
	assert.Empty(t, api.Requests())
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	svc, api, _ := newTestService(t)
	product := api.AddProduct(catalogapi.Product{Name: "Mouse"})

	err := svc.Delete(context.Background(), product.ID, shared.Confirmed(false))
	assert.ErrorIs(t, err, shared.ErrCancelled)
	assert.Empty(t, api.Requests())

	var prompt string
	err = svc.Delete(context.Background(), product.ID, func(p string) bool {
		prompt = p
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, DeletePrompt, prompt)
	_, ok := api.Product(product.ID)
	assert.False(t, ok)
}

func TestImportRejectsNonSpreadsheet(t *testing.T) {
	svc, api, _ := newTestService(t)
	_, err := svc.Import(context.Background(), "datos.txt", strings.NewReader("x"))
	_, ok := shared.AsValidation(err)
	assert.True(t, ok)
	assert.Empty(t, api.Requests())

	api.SetImportResult(`{"creados":1,"actualizados":0,"errores":0,"detalles":[]}`)
	summary, err := svc.Import(context.Background(), "datos.xlsx", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestExportToFile(t *testing.T) {
	svc, api, _ := newTestService(t)
	api.SetExportCSV("id,nombre\n")
	dir := t.TempDir()

	path, err := svc.ExportToFile(context.Background(), FormatCSV, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "productos.csv"), path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,nombre\n", string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExportToFileFailureLeavesNoTempFile(t *testing.T) {
	svc, api, _ := newTestService(t)
	api.Fail(http.MethodGet, "/api/productos/exportar-excel", catalogapitest.Fault{Status: http.StatusInternalServerError, Message: "boom"})
	dir := t.TempDir()

	_, err := svc.ExportToFile(context.Background(), FormatExcel, dir)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseExportFormat(t *testing.T) {
	f, err := ParseExportFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, "catalogo_productos.xlsx", f.Filename())
	_, err = ParseExportFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
