package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
)

// ErrNoCredentials is returned by jobs that need the catalog API when no service account
// is configured.
var ErrNoCredentials = errors.New("jobs: catalog api credentials not configured")

// Authenticator performs the upstream login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Credentials is the service account jobs sign in with.
type Credentials struct {
	Username string
	Password string
}

// Configured reports whether both values are set.
func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// signIn logs in upstream and returns ctx carrying the API session. Jobs sign in on every run
// since API sessions expire. Rejected credentials are not retried.
func signIn(ctx context.Context, auth Authenticator, creds Credentials) (context.Context, error) {
	if !creds.Configured() {
		return nil, fmt.Errorf("%w: %w", ErrNoCredentials, asynq.SkipRetry)
	}
	cookie, err := auth.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, catalogapi.ErrInvalidCredentials) {
			return nil, fmt.Errorf("jobs: sign in: %w: %w", err, asynq.SkipRetry)
		}
		return nil, fmt.Errorf("jobs: sign in: %w", err)
	}
	return catalogapi.ContextWithSession(ctx, cookie), nil
}
