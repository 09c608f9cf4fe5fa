package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "catalog_session", "secret", time.Hour, false), mr
}

func TestFlashSurvivesRedirect(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest("POST", "/admin/productos", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.AddFlash(FlashMessage{Kind: FlashSuccess, Message: "Producto creado"})
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	next := httptest.NewRequest("GET", "/admin", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Producto creado", flash.Message)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), next, loaded))

	again, err := sm.Load(ctx, next)
	require.NoError(t, err)
	assert.Nil(t, again.PopFlash())
}

func TestUnknownSessionIDIsNotAdopted(t *testing.T) {
	sm, _ := newTestManager(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "catalog_session", Value: "attacker-chosen"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
}

func TestRenewDropsOldSession(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()
	req := httptest.NewRequest("GET", "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	oldID := sess.ID

	loaded := &Session{ID: oldID, values: map[string]string{}}
	sm.Renew(loaded)
	loaded.SetAdmin("admin")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, loaded))

	assert.False(t, mr.Exists("catalog:session:"+oldID))
	assert.True(t, mr.Exists("catalog:session:"+loaded.ID))
}

func TestDestroyClearsCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()
	req := httptest.NewRequest("GET", "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))
	assert.False(t, mr.Exists("catalog:session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
