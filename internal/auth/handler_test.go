package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/catalog-admin/internal/auth"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi/catalogapitest"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/view"
	_ "github.com/odyssey-erp/catalog-admin/testing"
)

type authFixture struct {
	handler  *auth.Handler
	service  *auth.Service
	sessions *shared.SessionManager
	api      *catalogapitest.Server
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	api := catalogapitest.New(t)
	service := auth.NewService(api.Client(), shared.NewSealer("sealsecret"), nil)
	handler := auth.NewHandler(nil, service, templates, sessionManager, csrfManager)
	return authFixture{handler: handler, service: service, sessions: sessionManager, api: api}
}

// serve runs h with a loaded session and commits it afterwards.
func (f authFixture) serve(t *testing.T, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	h(res, req)
	if err := f.sessions.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func loginRequest(username, password string) *http.Request {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	f := newAuthFixture(t)

	res, _ := f.serve(t, f.handler.ShowLoginForTest, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginRequiresFields(t *testing.T) {
	f := newAuthFixture(t)

	res, _ := f.serve(t, f.handler.HandleLoginForTest, loginRequest("", ""))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "El usuario es obligatorio") {
		t.Fatalf("expected username error in body")
	}
	if len(f.api.Requests()) != 0 {
		t.Fatalf("expected no upstream call, got %v", f.api.Requests())
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)

	res, sess := f.serve(t, f.handler.HandleLoginForTest, loginRequest("admin", "wrong"))

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Usuario o contraseña incorrectos") {
		t.Fatalf("expected credentials error in body")
	}
	if sess.Admin() != "" {
		t.Fatalf("expected anonymous session, got admin %q", sess.Admin())
	}
}

func TestLoginUnreachableAPI(t *testing.T) {
	f := newAuthFixture(t)
	f.api.Close()

	res, _ := f.serve(t, f.handler.HandleLoginForTest, loginRequest("admin", "admin123"))

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "No se pudo conectar") {
		t.Fatalf("expected transport error in body")
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	visit, before := f.serve(t, f.handler.ShowLoginForTest, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	firstID := before.ID

	req := loginRequest("admin", "admin123")
	for _, c := range visit.Result().Cookies() {
		req.AddCookie(c)
	}
	res, sess := f.serve(t, f.handler.HandleLoginForTest, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/admin" {
		t.Fatalf("expected redirect to /admin, got %q", loc)
	}
	if sess.Admin() != "admin" {
		t.Fatalf("expected admin bound to session, got %q", sess.Admin())
	}
	if sess.ID == firstID {
		t.Fatalf("expected a fresh session id")
	}
	cookie, err := f.service.Upstream(sess)
	if err != nil {
		t.Fatalf("upstream: %v", err)
	}
	if cookie != catalogapitest.SessionCookie {
		t.Fatalf("expected upstream cookie %q, got %q", catalogapitest.SessionCookie, cookie)
	}
	if sess.Get("api_session") == cookie {
		t.Fatalf("upstream cookie stored in clear")
	}
}

func TestRequireAdmin(t *testing.T) {
	f := newAuthFixture(t)
	var seen string
	protected := f.service.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = catalogapi.SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anonymous page request", func(t *testing.T) {
		res, _ := f.serve(t, protected.ServeHTTP, httptest.NewRequest(http.MethodGet, "/admin", nil))
		if res.Code != http.StatusSeeOther || res.Header().Get("Location") != auth.LoginPath {
			t.Fatalf("expected redirect to login, got %d %q", res.Code, res.Header().Get("Location"))
		}
	})

	t.Run("anonymous fragment request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/productos/tabla", nil)
		req.Header.Set(auth.FragmentHeader, "1")
		res, _ := f.serve(t, protected.ServeHTTP, req)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", res.Code)
		}
	})

	t.Run("signed in", func(t *testing.T) {
		login, _ := f.serve(t, f.handler.HandleLoginForTest, loginRequest("admin", "admin123"))
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		for _, c := range login.Result().Cookies() {
			req.AddCookie(c)
		}
		res, _ := f.serve(t, protected.ServeHTTP, req)
		if res.Code != http.StatusNoContent {
			t.Fatalf("expected pass-through, got %d", res.Code)
		}
		if seen != catalogapitest.SessionCookie {
			t.Fatalf("expected upstream cookie in context, got %q", seen)
		}
	})

	t.Run("tampered upstream cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		sess, err := f.sessions.Load(context.Background(), req)
		if err != nil {
			t.Fatalf("load session: %v", err)
		}
		sess.SetAdmin("admin")
		sess.Set("api_session", "not-sealed")
		res := httptest.NewRecorder()
		protected.ServeHTTP(res, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		if res.Code != http.StatusSeeOther {
			t.Fatalf("expected redirect, got %d", res.Code)
		}
		if sess.Admin() != "" {
			t.Fatalf("expected admin cleared")
		}
		flash := sess.PopFlash()
		if flash == nil || flash.Message != auth.MessageExpired {
			t.Fatalf("expected expiry flash, got %+v", flash)
		}
	})
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	login, _ := f.serve(t, f.handler.HandleLoginForTest, loginRequest("admin", "admin123"))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.Admin() != "admin" {
		t.Fatalf("expected signed-in session before logout")
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	router := chi.NewRouter()
	router.Route("/auth", f.handler.MountRoutes)
	router.ServeHTTP(res, req.WithContext(ctx))
	if err := f.sessions.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != auth.LoginPath {
		t.Fatalf("expected redirect to login, got %d", res.Code)
	}

	after := httptest.NewRequest(http.MethodGet, "/admin", nil)
	for _, c := range login.Result().Cookies() {
		after.AddCookie(c)
	}
	reloaded, err := f.sessions.Load(context.Background(), after)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if reloaded.Admin() != "" {
		t.Fatalf("expected session destroyed")
	}
}
