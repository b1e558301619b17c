package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaiiae/contactbook/datastores"
	"github.com/oaiiae/contactbook/router"
)

type unreachable struct{ *datastores.ContactsInmem }

func (unreachable) Ping(context.Context) error { return errors.New("connection refused") }

func newRouter(t *testing.T, prefix string, store datastores.ContactsStore) (http.Handler, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	set := metrics.NewSet()
	cache := NewContactsCache(&StoreOptions{CacheTTL: time.Minute}, set)
	t.Cleanup(cache.Close)
	return NewRouter(&RouterOptions{EndpointsPrefix: prefix}, "contactbook", "1.2.3", "abc", "today",
		logger, set, store, cache), &logs
}

func do(h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	h, logs := newRouter(t, "", datastores.NewContactsInmem())

	resp := do(h, http.MethodPost, "/contacts",
		`[{"first_name":"Charlie","last_name":"Brown","phone_number":"5555555555"}]`,
		"X-Request-Id", "req-1")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "req-1", resp.Header().Get("X-Request-Id"))
	assert.Contains(t, logs.String(), "x-request-id=req-1")
	assert.Contains(t, logs.String(), `msg="POST /contacts HTTP/1.1"`)

	resp = do(h, http.MethodGet, "/contacts", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"first_name":"Charlie"`)
	_, err := uuid.Parse(resp.Header().Get("X-Request-Id"))
	require.NoError(t, err, "generated request id")

	resp = do(h, http.MethodDelete, "/contacts/phone/1", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, logs.String(), "level=WARN msg=\"error occurred\"")

	assert.Equal(t, "Home Page", do(h, http.MethodGet, "/", "").Body.String())
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/readiness", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/liveness", "").Code)

	out := do(h, http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, out, `build_info{goversion="`)
	assert.Contains(t, out, `title="contactbook",version="1.2.3",revision="abc",created="today"} 1`)
	assert.Contains(t, out, `http_requests_total{method="POST",path="/contacts",status="200"} 1`)
	assert.Contains(t, out, `http_requests_total{method="DELETE",path="/contacts/phone/{phone}",status="404"} 1`)
	assert.Contains(t, out, `readcache_events_total{cache="contacts",event="miss"}`)
}

func TestNewRouterPrefix(t *testing.T) {
	h, _ := newRouter(t, "/api", datastores.NewContactsInmem())

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/contacts", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/contacts", "").Code)
}

func TestNewRouterPassesBodiesToHandlers(t *testing.T) {
	for _, prefix := range []string{"", "/api"} {
		t.Run("prefix "+prefix, func(t *testing.T) {
			h, _ := newRouter(t, prefix, datastores.NewContactsInmem())

			resp := do(h, http.MethodPost, prefix+"/contacts", "")
			require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
			assert.JSONEq(t, `{"error":"Invalid input format, expected a list of contacts"}`, resp.Body.String())

			resp = do(h, http.MethodPut, prefix+"/contacts/phone/999", `{"first_name":"a","last_name":"b","phone_number":1}`)
			require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
			assert.JSONEq(t, `{"message":"The number does not exist"}`, resp.Body.String())

			resp = do(h, http.MethodPost, prefix+"/contacts", `[{"first_name":"a","last_name":"b","phone_number":"0055"}]`)
			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
			resp = do(h, http.MethodPut, prefix+"/contacts/phone/0055", `{"first_name":"c","last_name":"d","phone_number":55}`)
			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
			assert.Equal(t, http.StatusOK, do(h, http.MethodDelete, prefix+"/contacts/phone/55", "").Code)
		})
	}
}

func TestReadinessFailsWithoutStore(t *testing.T) {
	h, logs := newRouter(t, "", unreachable{datastores.NewContactsInmem()})

	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/readiness", "").Code)
	assert.Contains(t, logs.String(), "connection refused")
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/liveness", "").Code)
}

func TestRecoverMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	_, api := humatest.New(t, router.Config("test", "0.0.0"))
	api.UseMiddleware(ctxlog{}.loggerMiddleware(logger), ctxlog{}.recoverMiddleware(logger))
	huma.Get(api, "/panic", func(context.Context, *struct{}) (*struct{}, error) {
		panic("panic argument")
	})

	resp := api.Get("/panic", "X-Request-Id: boom")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"An unexpected error occurred."}`, resp.Body.String())
	assert.Contains(t, logs.String(), `msg="panic occurred" x-request-id=boom`)
	assert.Contains(t, logs.String(), `recovered="panic argument"`)
	assert.Contains(t, logs.String(), "status=500")
}

type statusErr int

func (s statusErr) Error() string  { return fmt.Sprint("status ", int(s)) }
func (s statusErr) GetStatus() int { return int(s) }

func TestErrorHandlerLevels(t *testing.T) {
	tests := []struct {
		err   error
		level string
	}{
		{errors.New("plain"), "level=ERROR"},
		{statusErr(http.StatusInternalServerError), "level=ERROR"},
		{fmt.Errorf("wrapped: %w", statusErr(http.StatusNotFound)), "level=WARN"},
		{statusErr(http.StatusNotModified), "level=INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			var logs bytes.Buffer
			handle := ctxlog{}.errorHandler(slog.New(slog.NewTextHandler(&logs, nil)))

			handle(context.Background(), tt.err)
			assert.Contains(t, logs.String(), tt.level)
			assert.Contains(t, logs.String(), `msg="error occurred"`)
		})
	}
}

func TestErrorHandlerUsesContextLogger(t *testing.T) {
	var fallback, scoped bytes.Buffer
	handle := ctxlog{}.errorHandler(slog.New(slog.NewTextHandler(&fallback, nil)))

	ctx := context.WithValue(context.Background(), ctxlog{}, slog.New(slog.NewTextHandler(&scoped, nil)))
	handle(ctx, errors.New("scoped"))
	assert.Zero(t, fallback.Len())
	assert.Contains(t, scoped.String(), "err=scoped")
}

func TestOpenContactsStore(t *testing.T) {
	store, err := OpenContactsStore(context.Background(), &StoreOptions{})
	require.NoError(t, err)
	assert.IsType(t, &datastores.ContactsInmem{}, store)

	_, err = OpenContactsStore(context.Background(), &StoreOptions{DatabaseURL: "postgres://%zz"})
	require.ErrorContains(t, err, "open contacts store")
}

func TestNewServer(t *testing.T) {
	srv := NewServer(&ServerOptions{Host: "localhost", Port: "8080", ReadHeaderTimeout: time.Second},
		http.NotFoundHandler(), slog.New(slog.DiscardHandler))
	assert.Equal(t, "localhost:8080", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadHeaderTimeout)
	assert.NotNil(t, srv.ErrorLog)
}
