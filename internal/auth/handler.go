package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      shared.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

var loginMessages = map[string]string{
	"username": "El usuario es obligatorio",
	"password": "La contraseña es obligatoria",
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if _, err := h.service.Upstream(sess); err == nil {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue(view.Fields.Username)),
		Password: r.PostFormValue(view.Fields.Password),
	}
	verr := shared.NewValidationError()
	shared.CollectFieldErrors(verr, h.validator.Struct(form), loginMessages)
	if !verr.Empty() {
		h.render(w, r, http.StatusBadRequest, loginPageData{Form: loginForm{Username: form.Username}, Errors: verr.Fields})
		return
	}

	err := h.service.SignIn(r.Context(), h.sessionManager, sess, form.Username, form.Password)
	if err != nil {
		status, message := http.StatusBadGateway, "No se pudo conectar con el servidor del catálogo"
		switch {
		case errors.Is(err, catalogapi.ErrInvalidCredentials):
			status, message = http.StatusUnauthorized, "Usuario o contraseña incorrectos"
		case catalogapi.IsTransport(err):
		default:
			h.logger.Error("sign in", slog.Any("error", err))
			message = "No se pudo iniciar sesión"
		}
		h.render(w, r, status, loginPageData{
			Form:   loginForm{Username: form.Username},
			Errors: map[string]string{"general": message},
		})
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Bienvenido, " + form.Username})
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.logger.Info("admin signed out", slog.String("admin", sess.Admin()))
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Iniciar sesión",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Nav:         dashboard.Nav(dashboard.DefaultNav, r.URL.Path),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
