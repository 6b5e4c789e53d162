package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/data/{key}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/data/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	require.InDelta(t, okBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")), 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
