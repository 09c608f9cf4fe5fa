package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	guard := NewSubmissionGuard(client, time.Minute)
	ctx := context.Background()
	token := NewFormToken()

	require.NoError(t, guard.Claim(ctx, "create", token))
	assert.ErrorIs(t, guard.Claim(ctx, "create", token), ErrDuplicateSubmission)
	assert.NoError(t, guard.Claim(ctx, "update", token))

	require.NoError(t, guard.Release(ctx, "create", token))
	assert.NoError(t, guard.Claim(ctx, "create", token))

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, guard.Claim(ctx, "create", token))

	assert.NoError(t, guard.Claim(ctx, "create", ""))
	var disabled *SubmissionGuard
	assert.NoError(t, disabled.Claim(ctx, "create", token))
}

func TestSealerRoundTrip(t *testing.T) {
	sealer := NewSealer("secret")
	sealed, err := sealer.Seal("session=abc")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "abc")

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "session=abc", plain)

	_, err = NewSealer("other").Open(sealed)
	assert.ErrorIs(t, err, ErrUnseal)
	_, err = sealer.Open("garbage")
	assert.ErrorIs(t, err, ErrUnseal)
}

func TestValidationErrorMessage(t *testing.T) {
	verr := NewValidationError()
	assert.NoError(t, verr.Err())
	verr.Add("precio", "El precio es obligatorio")
	verr.Add("precio", "ignored")
	verr.Add("nombre", "El nombre es obligatorio")
	assert.Equal(t, "validation failed: nombre: El nombre es obligatorio, precio: El precio es obligatorio", verr.Error())

	got, ok := AsValidation(verr.Err())
	require.True(t, ok)
	assert.Len(t, got.Fields, 2)
}

func TestConfirm(t *testing.T) {
	var none Confirm
	assert.False(t, none.Ask("?"))
	assert.True(t, Confirmed(true).Ask("?"))
}
