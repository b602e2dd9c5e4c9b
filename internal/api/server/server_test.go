package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/api/server"
	"github.com/feral-file/ff-entity-indexer/internal/metrics"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func get(t *testing.T, s *server.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		s := server.New(server.Config{}, map[string]server.Check{
			"database": func(context.Context) error { return nil },
		})
		rec := get(t, s, "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["database"])
	})

	t.Run("a failing check", func(t *testing.T) {
		s := server.New(server.Config{}, map[string]server.Check{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := get(t, s, "/healthz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unavailable", body.Status)
		assert.Equal(t, "connection refused", body.Checks["redis"])
		assert.Equal(t, "ok", body.Checks["database"])
	})
}

func TestMetrics(t *testing.T) {
	metrics.Indexer().ObserveBlockIndexed()

	rec := get(t, server.New(server.Config{}, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "entity_indexer_blocks_indexed_total")
}
