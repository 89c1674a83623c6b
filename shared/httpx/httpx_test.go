package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"smart-campus-maintenance/shared/logx"
)

func TestWithActorFillsRequestSlot(t *testing.T) {
	slot := new(string)
	ctx := context.WithValue(context.Background(), actorKey{}, slot)
	got := WithActor(ctx, "user-1")
	assert.Equal(t, ctx, got, "existing slot is written in place")
	assert.Equal(t, "user-1", *slot)
	assert.Equal(t, "user-1", ActorFromContext(got))

	bare := WithActor(context.Background(), "user-2")
	assert.Equal(t, "user-2", ActorFromContext(bare))
	assert.Empty(t, ActorFromContext(context.Background()))
}

func TestRequestLogSeesActorSetDownstream(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WithActor(r.Context(), "staff-9")
		seen = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := WithRequestLog(logx.New("httpx-test", "test", "", "error"), RequestLogOptions{}, WithRequestID(inner))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "staff-9", seen)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWrapServeMuxPopulatesPathValues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/complaints/{id}", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
	})
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	h := WrapServeMux(mux, notFound)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/complaints/abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"abc"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestWithTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	rec := httptest.NewRecorder()
	WithTimeout(20*time.Millisecond, slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
