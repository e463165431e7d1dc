package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/application/controller"
	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/application/testutil"
	"github.com/orris-inc/cellcore/internal/domain/message"
	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	"github.com/orris-inc/cellcore/internal/infrastructure/auth"
	"github.com/orris-inc/cellcore/internal/interfaces/http/handlers"
	"github.com/orris-inc/cellcore/internal/interfaces/http/middleware"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type okBus struct{}

func (okBus) Publish(events.DomainEvent) error { return nil }

func (okBus) Dispatch(context.Context, events.DomainEvent) (any, error) {
	return map[string]string{"status": "ok"}, nil
}

type emptyQueue struct{}

func (emptyQueue) List() []*message.PendingMessage { return nil }

func newTestRouter(t *testing.T, jwtService *auth.JWTService, limiter *middleware.RateLimiter) *Router {
	t.Helper()
	log := logger.NewNop()
	store := registry.NewStore(testutil.NewMockSectionStore(), nil, log)
	admin := handlers.NewAdminHandler(store, emptyQueue{}, alarm.NewBoard(log), okBus{}, controller.DecodeEvent, log)
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, "", 0, time.Minute)
	}
	r := NewRouter(admin, middleware.NewAuthMiddleware(jwtService, log), limiter, []string{"https://ops.example"}, log)
	r.SetupRoutes()
	return r
}

func serve(r *Router, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.GetEngine().ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter(t, auth.NewJWTService("secret"), nil)

	w := serve(r, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestAdminRoutesRequireToken(t *testing.T) {
	service := auth.NewJWTService("secret")
	token, err := service.Generate("ops", time.Hour)
	require.NoError(t, err)
	r := newTestRouter(t, service, nil)

	paths := []string{"/api/status", "/api/subscribers", "/api/registrations", "/api/messages", "/api/rejections", "/api/alarms"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, path, "", "").Code)
			assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, path, "", token).Code)
		})
	}
}

func TestUnknownRegistrationIsNotFound(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w := serve(r, http.MethodGet, "/api/registrations/001010000000009", "", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://ops.example")
	w := httptest.NewRecorder()
	r.GetEngine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestInjectEventRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := newTestRouter(t, nil, middleware.NewRateLimiter(client, "test:", 2, time.Hour))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/events/tick", "{}", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/events/tick", "{}", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/api/events/tick", "{}", "").Code)
}
