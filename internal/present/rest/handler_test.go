package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/infra/database"
	"github.com/totegamma/concrnt-parallel/internal/infra/repository"
	"github.com/totegamma/concrnt-parallel/internal/present/rest/middleware"
	"github.com/totegamma/concrnt-parallel/internal/service"
	"github.com/totegamma/concrnt-parallel/internal/usecase"
)

// tokenAuth accepts "<id>-token" bearer tokens.
type tokenAuth struct{}

func (tokenAuth) AuthJwt(ctx context.Context, token string) (*service.AuthResult, error) {
	id, ok := strings.CutSuffix(token, "-token")
	if !ok {
		return nil, service.ErrUnauthorized
	}
	return &service.AuthResult{CCID: id}, nil
}

type testServer struct {
	e     *echo.Echo
	index *usecase.Index
}

func newTestServer(t *testing.T, variant domain.Variant) *testServer {
	t.Helper()
	return newTestServerWith(t, variant, nil)
}

func newTestServerWith(t *testing.T, variant domain.Variant, realtime Realtime) *testServer {
	t.Helper()

	db, err := database.NewBadger("")
	require.NoError(t, err)
	store := repository.NewBadgerStore(db)
	t.Cleanup(func() { store.Close() })

	var mu sync.Mutex
	now := time.UnixMilli(1_000_000)
	idx, err := usecase.Open(context.Background(), usecase.Deps{Store: store}, usecase.Options{
		Owner:   "alice",
		Variant: variant,
		Clock: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Millisecond)
			return now
		},
	})
	require.NoError(t, err)
	t.Cleanup(idx.Wait)

	e := echo.New()
	e.Use(middleware.RequestID)
	handler := NewHandler(domain.Config{FQDN: "parallel.example.com", Variant: variant}, idx, realtime)
	handler.RegisterRoutes(e, middleware.NewAuthMiddleware(tokenAuth{}))

	return &testServer{e: e, index: idx}
}

func (s *testServer) do(t *testing.T, method, target, as string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, target, strings.NewReader(string(payload)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+as+"-token")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestWellKnown(t *testing.T) {
	srv := newTestServer(t, domain.VariantGizmo)

	rec := srv.do(t, http.MethodGet, "/.well-known/parallel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(domain.RequestIdHeader))

	var body struct {
		Domain    string                     `json:"domain"`
		Owner     string                     `json:"owner"`
		Variant   string                     `json:"variant"`
		Endpoints map[string]json.RawMessage `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "parallel.example.com", body.Domain)
	assert.Equal(t, "cc://alice", body.Owner)
	assert.Equal(t, "gizmo", body.Variant)
	assert.Contains(t, body.Endpoints, "net.concrnt.parallel.gizmos")
}

func TestBroadcastRoundTrip(t *testing.T) {
	srv := newTestServer(t, domain.VariantSocial)

	rec := srv.do(t, http.MethodPost, "/api/v1/broadcasts", "alice", map[string]any{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, strings.HasPrefix(created.URL, "cc://alice/"))

	rec = srv.do(t, http.MethodGet, "/api/v1/broadcasts?author=alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var views []domain.BroadcastView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "hello", views[0].Text)
	assert.Equal(t, created.URL, views[0].URL)

	rec = srv.do(t, http.MethodGet, "/api/v1/broadcasts/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/broadcast?url="+created.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestETagNotModified(t *testing.T) {
	srv := newTestServer(t, domain.VariantSocial)

	rec := srv.do(t, http.MethodGet, "/api/v1/archives", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = srv.do(t, http.MethodGet, "/api/v1/archives", "", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, domain.VariantSocial)

	tests := []struct {
		name   string
		method string
		target string
		as     string
		body   any
		code   int
	}{
		{
			name:   "write without identity",
			method: http.MethodPost,
			target: "/api/v1/broadcasts",
			body:   map[string]any{"text": "hello"},
			code:   http.StatusUnauthorized,
		},
		{
			name:   "missing text fails validation",
			method: http.MethodPost,
			target: "/api/v1/broadcasts",
			as:     "alice",
			body:   map[string]any{"text": ""},
			code:   http.StatusBadRequest,
		},
		{
			name:   "vote out of range",
			method: http.MethodPost,
			target: "/api/v1/votes",
			as:     "alice",
			body:   map[string]any{"subject": "cc://bob/broadcasts/1", "vote": 5},
			code:   http.StatusBadRequest,
		},
		{
			name:   "unknown broadcast",
			method: http.MethodGet,
			target: "/api/v1/broadcast?url=cc://alice/broadcasts/1",
			code:   http.StatusNotFound,
		},
		{
			name:   "gizmos on a social index",
			method: http.MethodGet,
			target: "/api/v1/gizmos",
			code:   http.StatusBadRequest,
		},
		{
			name:   "malformed paging",
			method: http.MethodGet,
			target: "/api/v1/broadcasts?limit=ten",
			code:   http.StatusBadRequest,
		},
		{
			name:   "archive admin by a non owner",
			method: http.MethodPost,
			target: "/api/v1/archives",
			as:     "bob",
			body:   map[string]any{"url": "cc://carol"},
			code:   http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.target, tt.as, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestArchiveAdmin(t *testing.T) {
	srv := newTestServer(t, domain.VariantSocial)

	rec := srv.do(t, http.MethodPost, "/api/v1/archives", "alice", map[string]any{"url": "cc://carol"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	archives, err := srv.index.Scope.ListArchives(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cc://alice", "cc://carol"}, archives)

	rec = srv.do(t, http.MethodDelete, "/api/v1/archives?url=cc://carol", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	archives, err = srv.index.Scope.ListArchives(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cc://alice"}, archives)
}

func TestProfileAndFollow(t *testing.T) {
	srv := newTestServer(t, domain.VariantSocial)

	for _, id := range []string{"alice", "bob"} {
		rec := srv.do(t, http.MethodPut, "/api/v1/profile", id, map[string]any{"name": id})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := srv.do(t, http.MethodPost, "/api/v1/follow", "alice", map[string]any{"target": "bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/relation?a=alice&b=bob", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"following":true,"friends":false}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/followers/%s?count=true", "bob"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

// echoRealtime emits one event under the first listened prefix, then stops.
type echoRealtime struct{}

func (echoRealtime) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Event) {
	defer close(output)
	select {
	case prefixes := <-input:
		select {
		case output <- domain.Event{Type: domain.EventRecordPut, URL: prefixes[0] + "broadcasts/1"}:
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}
}

// failedRealtime stops right away, as when the subscription cannot be made.
type failedRealtime struct{}

func (failedRealtime) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Event) {
	close(output)
}

func dialRealtime(t *testing.T, srv *testServer) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.e)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/realtime", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestRealtimeDeliversEvents(t *testing.T) {
	srv := newTestServerWith(t, domain.VariantSocial, echoRealtime{})
	conn := dialRealtime(t, srv)

	require.NoError(t, conn.WriteJSON(Request{Type: "listen", Prefixes: []string{"cc://alice/"}}))

	var event domain.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "cc://alice/broadcasts/1", event.URL)

	// the stream ended, so the server hangs up
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestRealtimeClosesWhenStreamStops(t *testing.T) {
	srv := newTestServerWith(t, domain.VariantSocial, failedRealtime{})
	conn := dialRealtime(t, srv)

	// a listen nobody reads must not wedge the connection
	_ = conn.WriteJSON(Request{Type: "listen", Prefixes: []string{"cc://alice/"}})

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "server did not close the socket")
	}
}

func TestRealtimeNotConfigured(t *testing.T) {
	srv := newTestServer(t, domain.VariantSocial)
	rec := srv.do(t, http.MethodGet, "/realtime", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
