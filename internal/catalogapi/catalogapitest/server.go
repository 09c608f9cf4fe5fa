// Package catalogapitest provides an in-memory catalog API behind httptest.Server.
package catalogapitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
)

// SessionCookie is the cookie the fake API issues on a successful login.
const SessionCookie = "session=test-session"

// Request is one recorded call.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
}

// Fault makes a route answer with a fixed status and error message.
type Fault struct {
	Status  int
	Message string
	HTML    bool
}

type linkKey struct {
	productID  int64
	supplierID int64
}

// Server is a fake catalog API.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []Request
	faults    map[string]Fault
	products  map[int64]catalogapi.Product
	suppliers []catalogapi.Supplier
	links     map[linkKey]*catalogapi.SupplierLink
	history   map[int64][]catalogapi.PriceEntry
	stats     json.RawMessage
	nextID    int64
	exportCSV string
	imports   json.RawMessage
	Username  string
	Password  string
}

// New starts a fake API that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		faults:    make(map[string]Fault),
		products:  make(map[int64]catalogapi.Product),
		links:     make(map[linkKey]*catalogapi.SupplierLink),
		history:   make(map[int64][]catalogapi.PriceEntry),
		nextID:    100,
		exportCSV: "id,nombre\n",
		Username:  "admin",
		Password:  "admin123",
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client returns a catalogapi.Client pointed at the fake.
func (s *Server) Client() *catalogapi.Client {
	return catalogapi.NewClient(catalogapi.Config{BaseURL: s.URL, Timeout: 5 * time.Second})
}

// Requests returns the calls recorded so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns recorded calls matching method and path prefix.
func (s *Server) RequestsTo(method, pathPrefix string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears recorded calls.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Fail installs a fault for "METHOD /path" (exact path, no query).
func (s *Server) Fail(method, path string, fault Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = fault
}

// AddProduct seeds a product and returns it with its id.
func (s *Server) AddProduct(p catalogapi.Product) catalogapi.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	}
	s.products[p.ID] = p
	return p
}

// Product returns a stored product.
func (s *Server) Product(id int64) (catalogapi.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// AddSupplier seeds a supplier.
func (s *Server) AddSupplier(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers = append(s.suppliers, catalogapi.Supplier{ID: id, Name: name})
}

// Links returns the stored links of a product.
func (s *Server) Links(productID int64) []catalogapi.SupplierLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linksLocked(productID)
}

// AddHistory seeds a history row for an existing link.
func (s *Server) AddHistory(productID, supplierID int64, entry catalogapi.PriceEntry) catalogapi.PriceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	link := s.links[linkKey{productID, supplierID}]
	if link == nil {
		return catalogapi.PriceEntry{}
	}
	if entry.ID == 0 {
		s.nextID++
		entry.ID = s.nextID
	}
	entry.LinkID = link.ID
	s.history[link.ID] = append(s.history[link.ID], entry)
	return entry
}

// SetStats replaces the statistics payload.
func (s *Server) SetStats(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = json.RawMessage(raw)
}

// SetImportResult replaces the import response payload.
func (s *Server) SetImportResult(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = json.RawMessage(raw)
}

// SetExportCSV replaces the CSV export body.
func (s *Server) SetExportCSV(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exportCSV = body
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Post("/login", s.login)
	r.Route("/api", func(r chi.Router) {
		r.Get("/productos", s.listProducts)
		r.Post("/productos", s.createProduct)
		r.Get("/productos/buscar", s.searchProducts)
		r.Get("/productos/bajo-stock", s.lowStock)
		r.Get("/productos/exportar", s.exportCSVHandler)
		r.Get("/productos/exportar-excel", s.exportExcel)
		r.Post("/productos/importar-excel", s.importExcel)
		r.Post("/productos/upload-imagen", s.uploadImage)
		r.Get("/productos/{id}", s.getProduct)
		r.Put("/productos/{id}", s.updateProduct)
		r.Delete("/productos/{id}", s.deleteProduct)
		r.Get("/productos/{id}/proveedores", s.listLinks)
		r.Post("/productos/{id}/proveedores", s.assign)
		r.Delete("/productos/{id}/proveedores/{pid}", s.unassign)
		r.Get("/productos/{id}/proveedores/{pid}/historial", s.listHistory)
		r.Post("/productos/{id}/proveedores/{pid}/historial", s.addHistory)
		r.Delete("/historial-precios/{hid}", s.deleteHistory)
		r.Get("/proveedores", s.listSuppliers)
		r.Get("/estadisticas", s.statsHandler)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body string
		if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			raw, _ := io.ReadAll(r.Body)
			body = string(raw)
			r.Body = io.NopCloser(strings.NewReader(body))
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, RawQuery: r.URL.RawQuery, Body: body})
		fault, faulty := s.faults[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if faulty {
			if fault.HTML {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(fault.Status)
				_, _ = io.WriteString(w, "<html><body><form action=\"/login\"></form></body></html>")
				return
			}
			writeJSON(w, fault.Status, map[string]string{"error": fault.Message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func idParam(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("username") != s.Username || r.PostFormValue("password") != s.Password {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	name, value, _ := strings.Cut(SessionCookie, "=")
	http.SetCookie(w, &http.Cookie{Name: name, Value: value, Path: "/"})
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (s *Server) sortedProducts(keep func(catalogapi.Product) bool) []catalogapi.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalogapi.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sortedProducts(nil))
}

func (s *Server) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	category := strings.ToLower(r.URL.Query().Get("categoria"))
	minPrice, hasMin := parseDecimal(r.URL.Query().Get("precio_min"))
	maxPrice, hasMax := parseDecimal(r.URL.Query().Get("precio_max"))
	writeJSON(w, http.StatusOK, s.sortedProducts(func(p catalogapi.Product) bool {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
		if category != "" && !strings.Contains(strings.ToLower(p.Category), category) {
			return false
		}
		if hasMin && p.Price.LessThan(minPrice) {
			return false
		}
		if hasMax && p.Price.GreaterThan(maxPrice) {
			return false
		}
		return true
	}))
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	return d, err == nil
}

func (s *Server) lowStock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sortedProducts(func(p catalogapi.Product) bool { return p.Quantity < 5 }))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Product(idParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Producto no encontrado"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func decodeProduct(r *http.Request) (catalogapi.ProductInput, error) {
	var in catalogapi.ProductInput
	err := json.NewDecoder(r.Body).Decode(&in)
	return in, err
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	in, err := decodeProduct(r)
	if err != nil || in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Nombre y precio son obligatorios"})
		return
	}
	p := s.AddProduct(catalogapi.Product{
		Name: in.Name, Description: in.Description, Price: in.Price,
		Quantity: in.Quantity, Category: in.Category, ImageURL: in.ImageURL,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if _, ok := s.Product(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Producto no encontrado"})
		return
	}
	in, err := decodeProduct(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "JSON inválido"})
		return
	}
	p := s.AddProduct(catalogapi.Product{
		ID: id, Name: in.Name, Description: in.Description, Price: in.Price,
		Quantity: in.Quantity, Category: in.Category, ImageURL: in.ImageURL,
	})
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	s.mu.Lock()
	_, ok := s.products[id]
	delete(s.products, id)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Producto no encontrado"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mensaje": "Producto eliminado correctamente"})
}

func (s *Server) exportCSVHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := s.exportCSV
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=productos.csv")
	_, _ = io.WriteString(w, body)
}

func (s *Server) exportExcel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	_, _ = w.Write([]byte("PK\x03\x04fake-xlsx"))
}

func (s *Server) importExcel(w http.ResponseWriter, r *http.Request) {
	if _, _, err := r.FormFile("file"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No se envió archivo"})
		return
	}
	s.mu.Lock()
	payload := s.imports
	s.mu.Unlock()
	if payload == nil {
		payload = json.RawMessage(`{"creados":0,"actualizados":0,"errores":0,"detalles":[]}`)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	_, header, err := r.FormFile("imagen")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No se envió archivo"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": "/uploads/productos/" + header.Filename})
}

func (s *Server) listSuppliers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]catalogapi.Supplier(nil), s.suppliers...)
	s.mu.Unlock()
	if out == nil {
		out = []catalogapi.Supplier{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) supplierLocked(id int64) *catalogapi.Supplier {
	for i := range s.suppliers {
		if s.suppliers[i].ID == id {
			sup := s.suppliers[i]
			return &sup
		}
	}
	return nil
}

func (s *Server) linksLocked(productID int64) []catalogapi.SupplierLink {
	out := []catalogapi.SupplierLink{}
	for key, link := range s.links {
		if key.productID == productID {
			out = append(out, *link)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) listLinks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := s.linksLocked(idParam(r, "id"))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	productID := idParam(r, "id")
	var in catalogapi.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "JSON inválido"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Producto no encontrado"})
		return
	}
	supplier := s.supplierLocked(in.SupplierID)
	if supplier == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Proveedor no encontrado"})
		return
	}
	key := linkKey{productID, in.SupplierID}
	if existing, ok := s.links[key]; ok {
		existing.Price = in.Price
		if !in.PriceDate.IsZero() {
			existing.PriceDate = in.PriceDate
		}
		writeJSON(w, http.StatusOK, existing)
		return
	}
	s.nextID++
	link := &catalogapi.SupplierLink{
		ID: s.nextID, ProductID: productID, SupplierID: in.SupplierID,
		Supplier: supplier, Price: in.Price, PriceDate: in.PriceDate,
	}
	s.links[key] = link
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) unassign(w http.ResponseWriter, r *http.Request) {
	key := linkKey{idParam(r, "id"), idParam(r, "pid")}
	s.mu.Lock()
	_, ok := s.links[key]
	delete(s.links, key)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Asignación no encontrada"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mensaje": "Proveedor desasignado correctamente"})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	key := linkKey{idParam(r, "id"), idParam(r, "pid")}
	s.mu.Lock()
	defer s.mu.Unlock()
	link := s.links[key]
	if link == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Asignación no encontrada"})
		return
	}
	out := append([]catalogapi.PriceEntry{}, s.history[link.ID]...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addHistory(w http.ResponseWriter, r *http.Request) {
	key := linkKey{idParam(r, "id"), idParam(r, "pid")}
	var in catalogapi.PriceEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "JSON inválido"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	link := s.links[key]
	if link == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Asignación no encontrada"})
		return
	}
	s.nextID++
	entry := catalogapi.PriceEntry{
		ID: s.nextID, LinkID: link.ID, Price: in.Price, PriceDate: in.PriceDate, Notes: in.Notes,
		CreatedAt: catalogapi.Timestamp{Time: time.Now().UTC()},
	}
	s.history[link.ID] = append(s.history[link.ID], entry)
	link.Price = in.Price
	link.PriceDate = in.PriceDate
	writeJSON(w, http.StatusCreated, map[string]any{"mensaje": "Precio agregado al historial", "precio_historico": entry})
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "hid")
	s.mu.Lock()
	defer s.mu.Unlock()
	for linkID, entries := range s.history {
		for i, entry := range entries {
			if entry.ID == id {
				s.history[linkID] = append(entries[:i:i], entries[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]string{"mensaje": "Precio histórico eliminado correctamente"})
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Registro de precio no encontrado"})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	raw := s.stats
	s.mu.Unlock()
	if raw != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
		return
	}
	products := s.sortedProducts(nil)
	total := decimal.Zero
	stock := 0
	for _, p := range products {
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Quantity))))
		stock += p.Quantity
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_productos":        len(products),
		"valor_total_inventario": total,
		"stock_total":            stock,
	})
}

// String is handy in assertion messages.
func (r Request) String() string {
	if r.RawQuery == "" {
		return fmt.Sprintf("%s %s", r.Method, r.Path)
	}
	return fmt.Sprintf("%s %s?%s", r.Method, r.Path, r.RawQuery)
}
