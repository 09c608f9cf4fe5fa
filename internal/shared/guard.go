package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FormTokenField is the hidden field carrying the one-time submission token.
const FormTokenField = "form_token"

// SubmissionGuard rejects a form token that was already submitted, so a double click on a
// mutating form issues a single write.
type SubmissionGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSubmissionGuard constructs the guard. A nil client disables it.
func NewSubmissionGuard(client *redis.Client, ttl time.Duration) *SubmissionGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SubmissionGuard{client: client, ttl: ttl}
}

// NewFormToken returns a fresh token to embed in a form.
func NewFormToken() string {
	return uuid.NewString()
}

// Claim marks token as used. It returns ErrDuplicateSubmission when the token was claimed
// before. An empty token is not guarded.
func (g *SubmissionGuard) Claim(ctx context.Context, scope, token string) error {
	if g == nil || g.client == nil || token == "" {
		return nil
	}
	ok, err := g.client.SetNX(ctx, g.key(scope, token), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateSubmission
	}
	return nil
}

// Release frees a token so the same form can be resubmitted, used when the write failed.
func (g *SubmissionGuard) Release(ctx context.Context, scope, token string) error {
	if g == nil || g.client == nil || token == "" {
		return nil
	}
	if err := g.client.Del(ctx, g.key(scope, token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (g *SubmissionGuard) key(scope, token string) string {
	return "catalog:submit:" + scope + ":" + token
}
