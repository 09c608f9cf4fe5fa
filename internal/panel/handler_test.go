package panel_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/catalog-admin/internal/app"
	"github.com/odyssey-erp/catalog-admin/internal/auth"
	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi/catalogapitest"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/panel"
	"github.com/odyssey-erp/catalog-admin/internal/pricehistory"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
	"github.com/odyssey-erp/catalog-admin/internal/view"
	_ "github.com/odyssey-erp/catalog-admin/testing"
)

var csrfMeta = regexp.MustCompile(`<meta name="csrf-token" content="([^"]*)">`)

type recordingQueue struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (q *recordingQueue) EnqueueLowStockScan(_ context.Context, requestedBy string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.calls = append(q.calls, requestedBy)
	return nil
}

func (q *recordingQueue) failWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *recordingQueue) Calls() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.calls...)
}

type panelFixture struct {
	t      *testing.T
	api    *catalogapitest.Server
	queue  *recordingQueue
	server *httptest.Server
	client *http.Client
	csrf   string
}

func newPanelFixture(t *testing.T) *panelFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := catalogapitest.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &app.Config{
		AppEnv:            "test",
		AppRequestTimeout: 10 * time.Second,
		AppMaxUploadBytes: 20 << 20,
		CatalogAPIURL:     api.URL,
	}

	client := catalogapi.NewClient(catalogapi.Config{BaseURL: api.URL, Timeout: 5 * time.Second})
	sessions := shared.NewSessionManager(rdb, "catalog_session", "session-secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrf-secret")
	templates, err := view.NewEngine(view.WithAssetBase(api.URL))
	require.NoError(t, err)

	authService := auth.NewService(client, shared.NewSealer("seal-secret"), logger)
	supplierService := suppliers.NewService(client, suppliers.NewNameCache(rdb, time.Minute, logger), logger)
	queue := &recordingQueue{}

	handler := panel.NewHandler(panel.Deps{
		Logger:    logger,
		Templates: templates,
		CSRF:      csrfManager,
		Guard:     shared.NewSubmissionGuard(rdb, time.Minute),
		Catalog:   catalog.NewService(client, supplierService, logger),
		Suppliers: supplierService,
		History:   pricehistory.NewService(client, supplierService, logger),
		Dashboard: dashboard.NewService(client, logger),
		Snapshots: dashboard.NewSnapshotStore(rdb, time.Hour),
		Queue:     queue,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrfManager,
		AuthService:    authService,
		AuthHandler:    auth.NewHandler(logger, authService, templates, sessions, csrfManager),
		PanelHandler:   handler,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &panelFixture{
		t:      t,
		api:    api,
		queue:  queue,
		server: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// response is a drained *http.Response.
type response struct {
	status int
	header http.Header
	body   string
}

func (f *panelFixture) do(req *http.Request) response {
	f.t.Helper()
	res, err := f.client.Do(req)
	require.NoError(f.t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(f.t, err)
	body := string(raw)
	if m := csrfMeta.FindStringSubmatch(body); m != nil && m[1] != "" {
		f.csrf = m[1]
	}
	return response{status: res.StatusCode, header: res.Header, body: body}
}

func (f *panelFixture) get(path string, header ...string) response {
	f.t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(f.t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return f.do(req)
}

func (f *panelFixture) postForm(path string, form url.Values) response {
	f.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get(view.Fields.CSRFToken) == "" {
		form.Set(view.Fields.CSRFToken, f.csrf)
	}
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func (f *panelFixture) postMultipart(path string, fields map[string]string) response {
	f.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, ok := fields[view.Fields.CSRFToken]; !ok {
		require.NoError(f.t, mw.WriteField(view.Fields.CSRFToken, f.csrf))
	}
	for k, v := range fields {
		require.NoError(f.t, mw.WriteField(k, v))
	}
	require.NoError(f.t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, &buf)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(req)
}

func (f *panelFixture) login() {
	f.t.Helper()
	page := f.get("/auth/login")
	require.Equal(f.t, http.StatusOK, page.status)
	require.NotEmpty(f.t, f.csrf)

	res := f.postForm("/auth/login", url.Values{
		view.Fields.Username: {f.api.Username},
		view.Fields.Password: {f.api.Password},
	})
	require.Equal(f.t, http.StatusSeeOther, res.status)
	require.Equal(f.t, "/admin", res.header.Get("Location"))

	// pops the welcome flash
	require.Equal(f.t, http.StatusOK, f.get("/admin").status)
}

func TestAdminRequiresLogin(t *testing.T) {
	f := newPanelFixture(t)

	res := f.get("/admin")
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, auth.LoginPath, res.header.Get("Location"))
	assert.Empty(t, f.api.RequestsTo(http.MethodGet, "/api/productos"))
}

func TestAdminListsProducts(t *testing.T) {
	f := newPanelFixture(t)
	f.api.AddProduct(catalogapi.Product{Name: "Teclado", Price: decimal.RequireFromString("25.00"), Quantity: 10, Category: "Periféricos"})
	f.login()

	res := f.get("/admin")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Teclado")
}

func TestExpiredUpstreamSession(t *testing.T) {
	t.Run("full page redirects to login", func(t *testing.T) {
		f := newPanelFixture(t)
		f.login()
		f.api.Fail(http.MethodGet, "/api/productos", catalogapitest.Fault{Status: http.StatusOK, HTML: true})

		res := f.get("/admin")
		require.Equal(t, http.StatusSeeOther, res.status)
		assert.Equal(t, auth.LoginPath, res.header.Get("Location"))

		page := f.get(auth.LoginPath)
		assert.Contains(t, page.body, auth.MessageExpired)
	})

	t.Run("fragment answers unauthorized", func(t *testing.T) {
		f := newPanelFixture(t)
		f.login()
		f.api.Fail(http.MethodGet, "/api/productos", catalogapitest.Fault{Status: http.StatusOK, HTML: true})

		res := f.get("/admin/productos/tabla", "X-Fragment", "true")
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	f := newPanelFixture(t)
	f.login()

	res := f.postForm("/admin/sincronizar", url.Values{view.Fields.CSRFToken: {"bogus"}})
	assert.Equal(t, http.StatusForbidden, res.status)
	assert.Empty(t, f.api.RequestsTo(http.MethodGet, "/api/estadisticas"))
}

func TestCreateProduct(t *testing.T) {
	f := newPanelFixture(t)
	f.login()

	fields := map[string]string{
		view.Fields.ProductName:     "Monitor",
		view.Fields.ProductPrice:    "199.90",
		view.Fields.ProductQuantity: "3",
		view.Fields.ProductCategory: "Pantallas",
		view.Fields.FormToken:       "create-1",
	}
	res := f.postMultipart("/admin/productos", fields)
	require.Equal(t, http.StatusSeeOther, res.status)

	page := f.get("/admin")
	assert.Contains(t, page.body, "creado")
	assert.Contains(t, page.body, "Monitor")

	t.Run("resubmitting the same form is ignored", func(t *testing.T) {
		res := f.postMultipart("/admin/productos", fields)
		assert.Equal(t, http.StatusSeeOther, res.status)
		assert.Len(t, f.api.RequestsTo(http.MethodPost, "/api/productos"), 1)
	})
}

func TestCreateProductValidation(t *testing.T) {
	f := newPanelFixture(t)
	f.login()

	res := f.postMultipart("/admin/productos", map[string]string{
		view.Fields.ProductPrice: "10",
		view.Fields.FormToken:    "create-invalid",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Contains(t, res.body, "El nombre es obligatorio")
	assert.Empty(t, f.api.RequestsTo(http.MethodPost, "/api/productos"))
}

func TestCreateProductWithPendingSupplier(t *testing.T) {
	f := newPanelFixture(t)
	f.api.AddSupplier(7, "Distribuidora Norte")
	f.login()

	product := map[string]string{
		view.Fields.ProductName:     "Cable HDMI",
		view.Fields.ProductPrice:    "8.50",
		view.Fields.ProductQuantity: "40",
		view.Fields.FormToken:       "create-pending",
	}
	pending := map[string]string{
		view.Fields.SupplierID:    "7",
		view.Fields.SupplierPrice: "5.10",
		view.Fields.SupplierDate:  "2024-05-01",
	}
	for k, v := range product {
		pending[k] = v
	}
	res := f.postMultipart("/admin/pendientes", pending)
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Distribuidora Norte")
	assert.Empty(t, f.api.RequestsTo(http.MethodPost, "/api/productos"))

	res = f.postMultipart("/admin/productos", product)
	require.Equal(t, http.StatusSeeOther, res.status)

	products, err := f.api.Client().ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	links := f.api.Links(products[0].ID)
	require.Len(t, links, 1)
	assert.Equal(t, int64(7), links[0].SupplierID)
}

func TestPriceHistory(t *testing.T) {
	f := newPanelFixture(t)
	f.api.AddSupplier(3, "Mayorista Sur")
	p := f.api.AddProduct(catalogapi.Product{Name: "Mouse", Price: decimal.RequireFromString("12.00"), Quantity: 8})
	f.login()

	base := "/admin/productos/" + itoa(p.ID)
	res := f.postForm(base+"/proveedores", url.Values{
		view.Fields.SupplierID:    {"3"},
		view.Fields.SupplierPrice: {"9.00"},
		view.Fields.SupplierDate:  {"2024-04-01"},
		view.Fields.FormToken:     {"assign-1"},
	})
	require.Equal(t, http.StatusSeeOther, res.status)
	require.Len(t, f.api.Links(p.ID), 1)

	history := base + "/proveedores/3/historial"
	page := f.get(history)
	require.Equal(t, http.StatusOK, page.status)
	assert.Contains(t, page.body, "Mayorista Sur")

	res = f.postForm(history, url.Values{
		view.Fields.HistoryPrice: {"9.75"},
		view.Fields.HistoryDate:  {"2024-06-15"},
		view.Fields.HistoryNotes: {"Ajuste de temporada"},
		view.Fields.FormToken:    {"history-1"},
	})
	require.Equal(t, http.StatusSeeOther, res.status)

	page = f.get(history)
	require.Equal(t, http.StatusOK, page.status)
	assert.Contains(t, page.body, "Ajuste de temporada")
}

func TestDeleteProductAsksForConfirmation(t *testing.T) {
	f := newPanelFixture(t)
	p := f.api.AddProduct(catalogapi.Product{Name: "Parlante", Price: decimal.RequireFromString("30"), Quantity: 2})
	f.login()

	path := "/admin/productos/" + itoa(p.ID) + "/eliminar"
	res := f.postForm(path, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, catalog.DeletePrompt)
	_, ok := f.api.Product(p.ID)
	assert.True(t, ok)

	res = f.postForm(path, url.Values{view.Fields.Confirm: {view.ConfirmYes}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/admin", res.header.Get("Location"))
	_, ok = f.api.Product(p.ID)
	assert.False(t, ok)
}

func TestStatsFragment(t *testing.T) {
	f := newPanelFixture(t)
	f.api.SetStats(`{"total_productos":3,"valor_total_inventario":"150.00","stock_total":12}`)
	f.login()

	res := f.get("/admin/estadisticas", "X-Fragment", "true")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, `id="stat-total-productos">3<`)
	assert.NotContains(t, res.body, "<html")
}

func TestExportCSV(t *testing.T) {
	f := newPanelFixture(t)
	f.api.SetExportCSV("id,nombre\n1,Teclado\n")
	f.login()

	res := f.get("/admin/exportar?" + view.Fields.ExportFormat + "=csv")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.header.Get("Content-Disposition"), "attachment")
	assert.Equal(t, "id,nombre\n1,Teclado\n", res.body)
}

func TestRequestLowStockScan(t *testing.T) {
	f := newPanelFixture(t)
	f.login()

	res := f.postForm("/admin/bajo-stock/escanear", nil)
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, []string{"admin"}, f.queue.Calls())
	assert.Contains(t, f.get(res.header.Get("Location")).body, "Escaneo de bajo stock solicitado")

	f.queue.failWith(errors.New("redis down"))
	res = f.postForm("/admin/bajo-stock/escanear", nil)
	require.Equal(t, http.StatusSeeOther, res.status)
	page := f.get(res.header.Get("Location"))
	assert.Contains(t, page.body, "No se pudo solicitar el escaneo")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestPriceHistoryReloadFailure(t *testing.T) {
	f := newPanelFixture(t)
	f.api.AddSupplier(3, "Mayorista Sur")
	p := f.api.AddProduct(catalogapi.Product{Name: "Mouse", Price: decimal.RequireFromString("12.00"), Quantity: 8})
	f.login()

	base := "/admin/productos/" + itoa(p.ID)
	res := f.postForm(base+"/proveedores", url.Values{
		view.Fields.SupplierID:    {"3"},
		view.Fields.SupplierPrice: {"9.00"},
		view.Fields.SupplierDate:  {"2024-04-01"},
		view.Fields.FormToken:     {"assign-1"},
	})
	require.Equal(t, http.StatusSeeOther, res.status)

	history := base + "/proveedores/3/historial"
	f.api.Fail(http.MethodGet, "/api"+strings.TrimPrefix(history, "/admin"), catalogapitest.Fault{Status: http.StatusInternalServerError, Message: "boom"})

	t.Run("add keeps the form token claimed", func(t *testing.T) {
		form := url.Values{
			view.Fields.HistoryPrice: {"9.75"},
			view.Fields.HistoryDate:  {"2024-06-15"},
			view.Fields.FormToken:    {"history-1"},
		}
		first := f.postForm(history, form)
		require.Equal(t, http.StatusSeeOther, first.status)
		assert.Equal(t, base+"/editar", first.header.Get("Location"))

		page := f.get(first.header.Get("Location"))
		require.Equal(t, http.StatusOK, page.status)
		assert.Contains(t, page.body, "Precio agregado al historial")

		second := f.postForm(history, form)
		assert.Equal(t, http.StatusSeeOther, second.status)
		assert.Len(t, f.api.RequestsTo(http.MethodPost, "/api"+strings.TrimPrefix(history, "/admin")), 1)
		f.get(second.header.Get("Location"))
	})

	t.Run("delete reports the removal", func(t *testing.T) {
		entry := f.api.AddHistory(p.ID, 3, catalogapi.PriceEntry{Price: decimal.NewFromInt(8), PriceDate: mustDate(t, "2024-01-05")})
		require.NotZero(t, entry.ID)

		res := f.postForm("/admin/historial/"+itoa(entry.ID)+"/eliminar", url.Values{
			view.Fields.Confirm:    {view.ConfirmYes},
			view.Fields.ProductID:  {itoa(p.ID)},
			view.Fields.SupplierID: {"3"},
		})
		require.Equal(t, http.StatusSeeOther, res.status)
		assert.Len(t, f.api.RequestsTo(http.MethodDelete, "/api/historial-precios/"), 1)

		page := f.get(res.header.Get("Location"))
		assert.Contains(t, page.body, "Registro eliminado del historial")
		assert.NotContains(t, page.body, "No se pudo")
	})
}

func TestDeletePriceFragmentShowsItsOwnSupplier(t *testing.T) {
	f := newPanelFixture(t)
	f.api.AddSupplier(3, "Mayorista Sur")
	f.api.AddSupplier(4, "Importadora Este")
	p := f.api.AddProduct(catalogapi.Product{Name: "Mouse", Price: decimal.RequireFromString("12.00"), Quantity: 8})
	f.login()

	base := "/admin/productos/" + itoa(p.ID)
	for i, supplier := range []string{"3", "4"} {
		res := f.postForm(base+"/proveedores", url.Values{
			view.Fields.SupplierID:    {supplier},
			view.Fields.SupplierPrice: {"9.00"},
			view.Fields.SupplierDate:  {"2024-04-01"},
			view.Fields.FormToken:     {"assign-" + strconv.Itoa(i)},
		})
		require.Equal(t, http.StatusSeeOther, res.status)
	}
	keep := f.api.AddHistory(p.ID, 3, catalogapi.PriceEntry{Price: decimal.NewFromInt(7), PriceDate: mustDate(t, "2024-02-01"), Notes: "Lista de marzo"})
	drop := f.api.AddHistory(p.ID, 3, catalogapi.PriceEntry{Price: decimal.NewFromInt(8), PriceDate: mustDate(t, "2024-01-05")})
	require.NotZero(t, keep.ID)

	// the session points at the other supplier's history
	require.Equal(t, http.StatusOK, f.get(base+"/proveedores/4/historial").status)

	form := url.Values{
		view.Fields.Confirm:    {view.ConfirmYes},
		view.Fields.ProductID:  {itoa(p.ID)},
		view.Fields.SupplierID: {"3"},
		view.Fields.CSRFToken:  {f.csrf},
	}
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/admin/historial/"+itoa(drop.ID)+"/eliminar", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Fragment", "true")
	res := f.do(req)

	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Historial de precios · Mayorista Sur")
	assert.Contains(t, res.body, "Lista de marzo")
	assert.NotContains(t, res.body, "Importadora Este")
}

func mustDate(t *testing.T, s string) catalogapi.Date {
	t.Helper()
	d, err := catalogapi.ParseDate(s)
	require.NoError(t, err)
	return d
}
