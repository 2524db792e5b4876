package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlers(t *testing.T) (*mux.Router, *Logger) {
	logger, path := setupLogger(t)

	router := mux.NewRouter()
	NewHandlers(NewFileSource(path)).RegisterRoutes(router)

	return router, logger
}

func TestHandlers_ListRecords(t *testing.T) {
	router, logger := setupHandlers(t)

	require.NoError(t, logger.Append(NewRecord("jane.doe", OpWrite, []string{"AAPL"}, "prices", nil)))
	require.NoError(t, logger.Append(NewRecord("john.doe", OpRead, []string{"MSFT"}, "prices", nil)))

	req := httptest.NewRequest("GET", "/audit/records", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Records []Record `json:"records"`
		Count   int      `json:"count"`
		Limit   int      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, defaultSearchLimit, resp.Limit)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "jane.doe", resp.Records[0].Actor)
}

func TestHandlers_ListRecords_Filtered(t *testing.T) {
	router, logger := setupHandlers(t)

	require.NoError(t, logger.Append(NewRecord("jane.doe", OpWrite, []string{"AAPL"}, "prices", nil)))
	require.NoError(t, logger.Append(NewRecord("john.doe", OpRead, []string{"MSFT"}, "prices", nil)))
	require.NoError(t, logger.Append(NewRecord("jane.doe", OpDelete, []string{"TSLA"}, "trades", nil)))

	req := httptest.NewRequest("GET", "/audit/records?actor=jane.doe&library=prices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Records []Record `json:"records"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Equal(t, 1, resp.Count)
	assert.Equal(t, OpWrite, resp.Records[0].Operation)
}

func TestHandlers_ListRecords_Limit(t *testing.T) {
	router, logger := setupHandlers(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Append(NewRecord("jane.doe", OpWrite, []string{fmt.Sprintf("SYM%d", i)}, "prices", nil)))
	}

	req := httptest.NewRequest("GET", "/audit/records?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Records []Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// Most recent two, oldest first
	require.Len(t, resp.Records, 2)
	assert.Equal(t, []string{"SYM3"}, resp.Records[0].Symbols)
	assert.Equal(t, []string{"SYM4"}, resp.Records[1].Symbols)
}

func TestHandlers_Export(t *testing.T) {
	router, logger := setupHandlers(t)

	require.NoError(t, logger.Append(NewRecord("jane.doe", OpWrite, []string{"AAPL"}, "prices", nil)))

	t.Run("csv", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/audit/export?format=csv", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Equal(t, "attachment; filename=audit-records.csv", w.Header().Get("Content-Disposition"))
		assert.Contains(t, w.Body.String(), "jane.doe")
	})

	t.Run("ndjson", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/audit/export?format=ndjson", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	})

	t.Run("default json", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/audit/export", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var decoded []Record
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
		assert.Len(t, decoded, 1)
	})

	t.Run("unsupported format", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/audit/export?format=xml", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandlers_Stats(t *testing.T) {
	router, logger := setupHandlers(t)

	require.NoError(t, logger.Append(NewRecord("jane.doe", OpWrite, []string{"AAPL"}, "prices", nil)))
	require.NoError(t, logger.Append(NewRecord("jane.doe", OpWrite, []string{"MSFT"}, "prices", nil)))
	require.NoError(t, logger.Append(NewRecord("john.doe", OpRead, []string{"AAPL"}, "prices", nil)))

	req := httptest.NewRequest("GET", "/audit/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))

	assert.Equal(t, int64(3), stats.TotalRecords)
	assert.Equal(t, int64(2), stats.ByOperation[OpWrite])
	assert.Equal(t, int64(2), stats.ByActor["jane.doe"])
}

type failingSource struct{}

func (failingSource) Search(ctx context.Context, f Filter, limit int) ([]Record, error) {
	return nil, errors.New("source unavailable")
}

func (failingSource) Stats(ctx context.Context, f Filter) (*Stats, error) {
	return nil, errors.New("source unavailable")
}

func TestHandlers_SourceErrors(t *testing.T) {
	router := mux.NewRouter()
	NewHandlers(failingSource{}).RegisterRoutes(router)

	for _, path := range []string{"/audit/records", "/audit/export", "/audit/stats"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code, "path %s", path)
	}
}
