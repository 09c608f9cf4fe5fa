// Package panel serves the catalog admin panel: the product table, the create and edit
// forms, supplier assignments, price history, statistics and the tools tab.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/catalog-admin/internal/auth"
	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/pricehistory"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
	"github.com/odyssey-erp/catalog-admin/internal/view"
	"github.com/odyssey-erp/catalog-admin/internal/viewstate"
)

// StockGauge publishes the size of the latest low-stock report.
type StockGauge interface {
	SetLowStock(low, critical int)
}

// ScanQueue requests a background low-stock scan.
type ScanQueue interface {
	EnqueueLowStockScan(ctx context.Context, requestedBy string) error
}

// Deps aggregates the services behind the panel.
type Deps struct {
	Logger    *slog.Logger
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Guard     *shared.SubmissionGuard
	Catalog   *catalog.Service
	Suppliers *suppliers.Service
	History   *pricehistory.Service
	Dashboard *dashboard.Service
	Snapshots *dashboard.SnapshotStore
	Gauge     StockGauge
	Queue     ScanQueue
}

// Handler wires the admin panel endpoints.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     *shared.SubmissionGuard
	catalog   *catalog.Service
	suppliers *suppliers.Service
	history   *pricehistory.Service
	dashboard *dashboard.Service
	snapshots *dashboard.SnapshotStore
	gauge     StockGauge
	queue     ScanQueue
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		templates: deps.Templates,
		csrf:      deps.CSRF,
		guard:     deps.Guard,
		catalog:   deps.Catalog,
		suppliers: deps.Suppliers,
		history:   deps.History,
		dashboard: deps.Dashboard,
		snapshots: deps.Snapshots,
		gauge:     deps.Gauge,
		queue:     deps.Queue,
	}
}

// MountRoutes registers the panel routes. The caller guards them with auth.RequireAdmin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showAdmin)
	r.Get("/productos/tabla", h.productTable)
	r.Post("/productos", h.createProduct)
	r.Get("/productos/{id}/editar", h.showEdit)
	r.Post("/productos/{id}", h.updateProduct)
	r.Post("/productos/{id}/cerrar", h.closeEdit)
	r.Get("/productos/{id}/eliminar", h.confirmDeleteProduct)
	r.Post("/productos/{id}/eliminar", h.deleteProduct)

	r.Post("/pendientes", h.addPending)
	r.Post("/pendientes/cancelar", h.cancelPending)
	r.Post("/pendientes/{supplierID}/quitar", h.removePending)

	r.Get("/proveedores/opciones", h.supplierOptions)
	r.Post("/productos/{id}/proveedores", h.assignSupplier)
	r.Post("/productos/{id}/proveedores/{supplierID}/desasignar", h.unassignSupplier)

	r.Get("/productos/{id}/proveedores/{supplierID}/historial", h.showHistory)
	r.Post("/productos/{id}/proveedores/{supplierID}/historial", h.addPrice)
	r.Post("/productos/{id}/historial/cerrar", h.closeHistory)
	r.Post("/historial/{entryID}/eliminar", h.deletePrice)

	r.Get("/estadisticas", h.statsFragment)
	r.Get("/bajo-stock", h.lowStock)
	r.Post("/bajo-stock/escanear", h.requestScan)
	r.Post("/sincronizar", h.sync)
	r.Get("/exportar", h.export)
	r.Post("/importar", h.importCatalog)
}

// page renders a full page. Session writes (CSRF token, popped flash) happen before the
// response header is written, which is when the session is committed.
func (h *Handler) page(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Warn("ensure csrf token", slog.Any("error", err))
	}
	var (
		flash *shared.FlashMessage
		admin string
	)
	if sess != nil {
		flash = sess.PopFlash()
		admin = sess.Admin()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Admin:       admin,
		Nav:         dashboard.Nav(dashboard.DefaultNav, r.URL.Path),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// fragment renders a partial without consuming the pending flash.
func (h *Handler) fragment(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{CSRFToken: csrfToken, CurrentPath: r.URL.Path, Data: data}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render fragment", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func isFragment(r *http.Request) bool {
	return r.Header.Get(auth.FragmentHeader) != ""
}

func (h *Handler) state(r *http.Request) (*shared.Session, *viewstate.State) {
	sess := shared.SessionFromContext(r.Context())
	return sess, viewstate.Load(sess)
}

func (h *Handler) saveState(sess *shared.Session, st *viewstate.State) {
	if err := st.Save(sess); err != nil {
		h.logger.Error("save view state", slog.Any("error", err))
	}
}

func addFlash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && message != "" {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

// expired handles a lost upstream session. It reports false for any other error.
func (h *Handler) expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, catalogapi.ErrNotAuthenticated) {
		return false
	}
	sess := shared.SessionFromContext(r.Context())
	auth.Expire(sess)
	addFlash(r, shared.FlashAuth, auth.MessageExpired)
	h.logger.Info("upstream session expired", slog.String("path", r.URL.Path))
	if isFragment(r) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return true
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
	return true
}

// fail reports err as a flash and sends the user back.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, back string) {
	if h.expired(w, r, err) {
		return
	}
	h.logger.Warn("panel action failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	if isFragment(r) {
		http.Error(w, userMessage(err), statusFor(err))
		return
	}
	addFlash(r, shared.FlashError, userMessage(err))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// failPage renders err on an error page, used where redirecting back would loop.
func (h *Handler) failPage(w http.ResponseWriter, r *http.Request, err error, back string) {
	if h.expired(w, r, err) {
		return
	}
	h.logger.Warn("panel page failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	if isFragment(r) {
		http.Error(w, userMessage(err), statusFor(err))
		return
	}
	h.page(w, r, statusFor(err), "pages/error.html", "Error", errorPage{Message: userMessage(err), BackURL: back})
}

// claim consumes the form token of a mutating form. A replayed token is answered here.
func (h *Handler) claim(w http.ResponseWriter, r *http.Request, scope, back string) (release func(), ok bool) {
	token := r.PostFormValue(view.Fields.FormToken)
	if err := h.guard.Claim(r.Context(), scope, token); err != nil {
		if errors.Is(err, shared.ErrDuplicateSubmission) {
			h.logger.Info("duplicate submission ignored", slog.String("scope", scope))
			addFlash(r, shared.FlashWarning, userMessage(err))
			http.Redirect(w, r, back, http.StatusSeeOther)
			return nil, false
		}
		h.logger.Warn("submission guard unavailable", slog.Any("error", err))
	}
	return func() {
		if err := h.guard.Release(r.Context(), scope, token); err != nil {
			h.logger.Warn("release form token", slog.Any("error", err))
		}
	}, true
}

// prompt answers a confirmation from the submitted form and remembers what was asked.
type prompt struct {
	asked  string
	answer bool
}

func promptFrom(r *http.Request) *prompt {
	return &prompt{answer: r.PostFormValue(view.Fields.Confirm) == view.ConfirmYes}
}

func (p *prompt) confirm(question string) bool {
	p.asked = question
	return p.answer
}

func (h *Handler) confirmPage(w http.ResponseWriter, r *http.Request, question, action, cancel string, hidden map[string]string) {
	h.page(w, r, http.StatusOK, "pages/confirm.html", "Confirmar", confirmPage{
		Prompt:    question,
		Action:    action,
		Hidden:    hidden,
		CancelURL: cancel,
	})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PostFormValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func fieldErrors(err error) (map[string]string, bool) {
	verr, ok := shared.AsValidation(err)
	if !ok {
		return nil, false
	}
	return verr.Fields, true
}
