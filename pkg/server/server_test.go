package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-okdb/pkg/storage"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_InsertAndFind(t *testing.T) {
	srv := NewServer()
	defer srv.StopBackgroundWorkers()
	h := srv.Router()

	w := do(t, h, "POST", "/tables/users", `{"indexes":{"age":false}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for _, doc := range []string{
		`{"name":"Alice","age":25}`,
		`{"name":"Bob","age":30}`,
		`{"name":"Charlie","age":35}`,
	} {
		w = do(t, h, "POST", "/tables/users/records", doc)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = do(t, h, "POST", "/tables/users/find", `{"where":{"age":{"$gte":30}},"sort":[{"field":"age","desc":true}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var found []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found, 2)
	assert.Equal(t, "Charlie", found[0]["name"])
	assert.Equal(t, "Bob", found[1]["name"])
}

func TestServer_NotFound(t *testing.T) {
	srv := NewServer()
	defer srv.StopBackgroundWorkers()

	w := do(t, srv.Router(), "GET", "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "/nowhere")
}

func TestServer_MetricsAndStats(t *testing.T) {
	srv := NewServer()
	defer srv.StopBackgroundWorkers()
	h := srv.Router()

	require.Equal(t, http.StatusOK, do(t, h, "GET", "/health", "").Code)

	w := do(t, h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "okdb_http_requests_total"))

	w = do(t, h, "GET", "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 0, stats["tables"])
}

func TestServer_SaveAndInit(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data"+storage.FileExtension)

	srv := NewServer(storage.WithDataFile(file))
	h := srv.Router()
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/tables/users", "").Code)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/tables/users/records", `{"_id":"a","name":"Alice"}`).Code)
	require.NoError(t, srv.SaveDB(file))
	srv.StopBackgroundWorkers()

	restored := NewServer(storage.WithDataFile(file))
	defer restored.StopBackgroundWorkers()
	require.NoError(t, restored.InitDB(file))

	w := do(t, restored.Router(), "GET", "/tables/users/records/a", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Alice")
	assert.Equal(t, []string{"users"}, restored.DB().Tables())
}

func TestServer_InitDBMissingFile(t *testing.T) {
	srv := NewServer()
	defer srv.StopBackgroundWorkers()
	assert.NoError(t, srv.InitDB(filepath.Join(t.TempDir(), "absent"+storage.FileExtension)))
}
