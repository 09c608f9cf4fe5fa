// Package auth signs admins in against the catalog API and guards the panel routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
)

// upstreamKey stores the sealed catalog API cookie in the panel session.
const upstreamKey = "api_session"

// ErrSignedOut is returned when the session carries no usable upstream credentials.
var ErrSignedOut = errors.New("auth: signed out")

// Authenticator performs the upstream login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Service wraps authentication business rules.
type Service struct {
	api    Authenticator
	sealer *shared.Sealer
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(api Authenticator, sealer *shared.Sealer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, sealer: sealer, logger: logger}
}

// SignIn logs in upstream and binds the resulting cookie to a renewed session.
func (s *Service) SignIn(ctx context.Context, sessions *shared.SessionManager, sess *shared.Session, username, password string) error {
	cookie, err := s.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(cookie)
	if err != nil {
		return fmt.Errorf("auth: seal upstream session: %w", err)
	}
	if sess == nil {
		return ErrSignedOut
	}
	sessions.Renew(sess)
	sess.SetAdmin(username)
	sess.Set(upstreamKey, sealed)
	s.logger.Info("admin signed in", slog.String("admin", username))
	return nil
}

// Upstream returns the catalog API cookie of a signed-in session.
func (s *Service) Upstream(sess *shared.Session) (string, error) {
	if sess == nil || sess.Admin() == "" {
		return "", ErrSignedOut
	}
	sealed := sess.Get(upstreamKey)
	if sealed == "" {
		return "", ErrSignedOut
	}
	cookie, err := s.sealer.Open(sealed)
	if err != nil {
		return "", ErrSignedOut
	}
	return cookie, nil
}

// Expire forgets the admin and the upstream cookie while keeping the session, so a flash
// can still reach the login page.
func Expire(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.SetAdmin("")
	sess.Delete(upstreamKey)
}

// RequireAdmin lets signed-in admins through with their upstream cookie attached to the
// request context. Others are sent to the login page.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		cookie, err := s.Upstream(sess)
		if err != nil {
			if sess != nil && sess.Admin() != "" {
				Expire(sess)
				sess.AddFlash(shared.FlashMessage{Kind: shared.FlashAuth, Message: MessageExpired})
			}
			if r.Header.Get(FragmentHeader) != "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		ctx := catalogapi.ContextWithSession(r.Context(), cookie)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoginPath is where signed-out requests are sent.
const LoginPath = "/auth/login"

// FragmentHeader marks script-issued fragment requests, which get a 401 instead of a redirect.
const FragmentHeader = "X-Fragment"

// MessageExpired is flashed when the upstream session ended.
const MessageExpired = "Tu sesión expiró. Inicia sesión nuevamente."
