package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/auth"
	"github.com/queryloom/queryloom/pkg/catalog"
	"github.com/queryloom/queryloom/pkg/models"
)

func newDatabaseAPI(t *testing.T) (*http.ServeMux, *catalog.Manager) {
	t.Helper()

	logger := zap.NewNop()
	manager := catalog.NewManager(catalog.New(logger), logger)
	samplePath := filepath.Join(t.TempDir(), "sample.db")

	mux := http.NewServeMux()
	authMW := auth.NewMiddleware(auth.NewService("secret", logger), false, logger)
	NewDatabaseHandler(manager, samplePath, logger).RegisterRoutes(mux, authMW)
	return mux, manager
}

func TestConnect_SampleFallback(t *testing.T) {
	mux, _ := newDatabaseAPI(t)

	req := httptest.NewRequest("POST", "/api/v1/database/connect", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ConnectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Connected)
	assert.True(t, resp.IsSampleDB)
	assert.Equal(t, catalog.SampleDatabaseID, resp.DatabaseID)
	assert.Equal(t, models.DialectSQLite, resp.Dialect)
}

func TestStatus_NotConnected(t *testing.T) {
	mux, _ := newDatabaseAPI(t)

	req := httptest.NewRequest("GET", "/api/v1/database/status", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Connected)
}

func TestStatus_AfterSampleConnect(t *testing.T) {
	mux, _ := newDatabaseAPI(t)

	connect := httptest.NewRequest("POST", "/api/v1/database/connect", strings.NewReader(`{}`))
	mux.ServeHTTP(httptest.NewRecorder(), connect)

	req := httptest.NewRequest("GET", "/api/v1/database/status", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Connected)
	assert.True(t, resp.IsSampleDB)
	assert.Greater(t, resp.TableCount, 0)
	assert.Equal(t, int64(1), resp.SchemaVersion)
}

func TestSchema_ActiveSource(t *testing.T) {
	mux, _ := newDatabaseAPI(t)

	connect := httptest.NewRequest("POST", "/api/v1/database/connect", strings.NewReader(`{}`))
	mux.ServeHTTP(httptest.NewRecorder(), connect)

	req := httptest.NewRequest("GET", "/api/v1/schema", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.SchemaSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, catalog.SampleDatabaseID, snapshot.DatabaseID)
	assert.NotEmpty(t, snapshot.Tables)
	assert.NotEmpty(t, snapshot.Relationships)
}

func TestSchema_NoActiveSource(t *testing.T) {
	mux, _ := newDatabaseAPI(t)

	req := httptest.NewRequest("GET", "/api/v1/schema", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSchema_UnknownDatabaseID(t *testing.T) {
	mux, _ := newDatabaseAPI(t)

	req := httptest.NewRequest("GET", "/api/v1/schema?database_id=nope", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshSchema_BumpsVersion(t *testing.T) {
	mux, _ := newDatabaseAPI(t)

	connect := httptest.NewRequest("POST", "/api/v1/database/connect", strings.NewReader(`{}`))
	mux.ServeHTTP(httptest.NewRecorder(), connect)

	req := httptest.NewRequest("POST", "/api/v1/schema/refresh", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.SchemaSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(2), snapshot.Version)
}
