package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"washery_chat/internal/api/handlers"
	"washery_chat/internal/chat/app"
	"washery_chat/pkg/logger"
	"washery_chat/pkg/metrics"
	"washery_chat/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(protect bool) *fiber.App {
	logger.SetNewNop()
	metrics.Init()

	a := fiber.New()
	RegisterRoutes(a, handlers.NewStateHandler(app.NewStores(3*time.Second), nil), protect)
	return a
}

func TestRegisterRoutes_Metrics(t *testing.T) {
	a := newApp(false)
	metrics.DroppedFrames.Add(0)

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chat_client_dropped_frames_total")
}

func TestRegisterRoutes_Open(t *testing.T) {
	a := newApp(false)

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/state/status", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = a.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// 測試 /state 開啟保護後只接受 admin token
func TestRegisterRoutes_Protected(t *testing.T) {
	a := newApp(true)

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/state/status", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/state/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err = a.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	member, err := token.GenerateJWT("u2", string(token.RoleMember), "chat_client")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/state/status", nil)
	req.Header.Set("Authorization", "Bearer "+member)
	resp, err = a.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin, err := token.GenerateJWT("u1", string(token.RoleAdmin), "chat_client")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/state/status", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err = a.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// token 也可以放在 query
	resp, err = a.Test(httptest.NewRequest(http.MethodGet, "/state/conversations?auth="+admin, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 健康檢查不受保護
	resp, err = a.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
