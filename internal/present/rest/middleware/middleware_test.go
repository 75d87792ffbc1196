package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/service"
)

type staticAuth struct {
	ccid string
}

func (a staticAuth) AuthJwt(ctx context.Context, token string) (*service.AuthResult, error) {
	if token != "valid" {
		return nil, errors.New("bad token")
	}
	return &service.AuthResult{CCID: a.ccid}, nil
}

func serve(e *echo.Echo, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIdentifyIdentity(t *testing.T) {
	e := echo.New()
	auth := NewAuthMiddleware(staticAuth{ccid: "con1alice"})
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, Requester(c.Request().Context()))
	}, auth.IdentifyIdentity)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer valid", "con1alice"},
		{"no header", "", ""},
		{"wrong scheme", "Basic valid", ""},
		{"malformed", "Bearer", ""},
		{"rejected token", "Bearer nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.header == "" {
				rec = serve(e)
			} else {
				rec = serve(e, "Authorization", tt.header)
			}
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	e := echo.New()
	auth := NewAuthMiddleware(staticAuth{ccid: "con1alice"})
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, auth.IdentifyIdentity, RequireIdentity)

	assert.Equal(t, http.StatusUnauthorized, serve(e).Code)
	assert.Equal(t, http.StatusNoContent, serve(e, "Authorization", "Bearer valid").Code)
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID)
	e.GET("/", func(c echo.Context) error {
		id, _ := c.Request().Context().Value(domain.RequestIdCtxKey).(string)
		return c.String(http.StatusOK, id)
	})

	rec := serve(e)
	generated := rec.Header().Get(domain.RequestIdHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, rec.Body.String())

	rec = serve(e, domain.RequestIdHeader, "req-1")
	assert.Equal(t, "req-1", rec.Header().Get(domain.RequestIdHeader))
	assert.Equal(t, "req-1", rec.Body.String())
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	e := echo.New()
	e.Use(limiter.Middleware)
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(e).Code)
	assert.Equal(t, http.StatusNoContent, serve(e).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e).Code)

	// a different client has its own bucket
	assert.Equal(t, http.StatusNoContent, serve(e, echo.HeaderXRealIP, "10.0.0.9").Code)
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	start := time.Now()

	assert.True(t, limiter.allow("a", start))
	assert.False(t, limiter.allow("a", start))

	later := start.Add(visitorTTL + time.Second)
	assert.True(t, limiter.allow("b", later))
	assert.True(t, limiter.allow("a", later))
}
