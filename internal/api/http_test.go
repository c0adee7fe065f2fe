package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chinzzii/docstore/internal/config"
	"github.com/Chinzzii/docstore/internal/persist"
	"github.com/Chinzzii/docstore/internal/store"
)

const dbPath = "/data/db.json"

type fixture struct {
	fs      afero.Fs
	gateway *persist.Gateway
	store   *store.Store
	handler http.Handler
	hook    *logtest.Hook
}

func testConfig() *config.Config {
	return &config.Config{
		Store:   config.StoreConfig{Path: dbPath},
		HTTP:    config.HTTPConfig{MaxBody: 1 << 10},
		Auth:    config.AuthConfig{Header: "x-api-key"},
		Metrics: config.MetricsConfig{Path: "/metrics"},
	}
}

func newFixture(t *testing.T, cfg *config.Config, fs afero.Fs, opts ...store.Option) *fixture {
	var gw = persist.NewGateway(fs, cfg.Store.Path)
	var db, err = gw.Load()
	require.NoError(t, err)

	var logger, hook = logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	var st = store.New(db, gw, opts...)
	return &fixture{
		fs:      fs,
		gateway: gw,
		store:   st,
		handler: NewServer(cfg, st, gw, logger).Routes(),
		hook:    hook,
	}
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req = httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	var w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into))
}

func TestSubjectScenario(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())

	var w = f.do("POST", "/api/Subject", `{"name": "Math"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var rec map[string]any
	decode(t, w, &rec)
	assert.Equal(t, map[string]any{"id": 1.0, "name": "Math"}, rec)

	w = f.do("POST", "/api/Subject", `{"name": "English", "id": 40}`)
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &rec)
	assert.Equal(t, map[string]any{"id": 2.0, "name": "English"}, rec)

	w = f.do("GET", "/api/Subject?_sort=name&_order=asc", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	decode(t, w, &list)
	assert.Equal(t, []map[string]any{
		{"id": 2.0, "name": "English"},
		{"id": 1.0, "name": "Math"},
	}, list)

	// Both creates reached the backing file.
	onDisk, err := f.gateway.Read()
	require.NoError(t, err)
	assert.Len(t, onDisk["Subject"], 2)
}

func TestGetAndUpdateNotFound(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	f.do("POST", "/api/Subject", `{"name": "a"}`)
	f.do("POST", "/api/Subject", `{"name": "b"}`)

	for _, w := range []*httptest.ResponseRecorder{
		f.do("GET", "/api/Subject/99", ""),
		f.do("PUT", "/api/Subject/99", `{"name": "X"}`),
	} {
		assert.Equal(t, http.StatusNotFound, w.Code)
		var body ErrorResponse
		decode(t, w, &body)
		assert.Equal(t, ErrorResponse{Error: "Not found"}, body)
	}
}

func TestGetMatchesStringIDs(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())

	// The default Batch record has the string id "1".
	var w = f.do("GET", "/api/Batch/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec map[string]any
	decode(t, w, &rec)
	assert.Equal(t, map[string]any{"id": "1", "batch_no": "1"}, rec)

	// New ids continue from the numeric value of "1".
	w = f.do("POST", "/api/Batch", `{"batch_no": "2"}`)
	decode(t, w, &rec)
	assert.Equal(t, 2.0, rec["id"])
}

func TestUpdateMergesFields(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	f.do("POST", "/api/Exam", `{"a": 0, "b": 2}`)

	var w = f.do("PUT", "/api/Exam/1", `{"a": 1}`)
	require.Equal(t, http.StatusOK, w.Code)
	var rec map[string]any
	decode(t, w, &rec)
	assert.Equal(t, map[string]any{"id": 1.0, "a": 1.0, "b": 2.0}, rec)

	w = f.do("GET", "/api/Exam/1", "")
	decode(t, w, &rec)
	assert.Equal(t, map[string]any{"id": 1.0, "a": 1.0, "b": 2.0}, rec)
}

func TestDeleteIsIdempotent(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	f.do("POST", "/api/User", `{"name": "ada"}`)

	for i := 0; i != 2; i++ {
		var w = f.do("DELETE", "/api/User/1", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	}
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/api/User/1", "").Code)
}

func TestDeleteAfterResourceIsDropped(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	require.NoError(t, f.store.Replace(store.Database{"Subject": {}}))

	// User is still routed, but no longer held.
	var w = f.do("DELETE", "/api/User/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, f.store.Has("User"))
}

func TestListFiltersAndLimits(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	for _, body := range []string{
		`{"subject": "math", "level": 2}`,
		`{"subject": "math", "level": 1}`,
		`{"subject": "art", "level": 1}`,
		`{"subject": "math", "level": 3}`,
	} {
		require.Equal(t, http.StatusCreated, f.do("POST", "/api/Question", body).Code)
	}

	var ids = func(path string) []float64 {
		var w = f.do("GET", path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		var list []map[string]any
		decode(t, w, &list)

		var out = []float64{}
		for _, rec := range list {
			out = append(out, rec["id"].(float64))
		}
		return out
	}

	assert.Equal(t, []float64{1, 2, 4}, ids("/api/Question?subject=math"))
	assert.Equal(t, []float64{2}, ids("/api/Question?subject=math&level=1"))
	assert.Equal(t, []float64{4, 1, 2}, ids("/api/Question?subject=math&_sort=level&_order=desc"))
	assert.Equal(t, []float64{2, 3}, ids("/api/Question?_sort=level&_limit=2"))
	assert.Equal(t, []float64{1, 2, 3, 4}, ids("/api/Question?_page=7&_unknown=x"))
	assert.Equal(t, []float64{}, ids("/api/Question?subject=music"))

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/api/Question?_limit=many", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/api/Question?_limit=-1", "").Code)
}

func TestBodies(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	var rec map[string]any

	// Non-object JSON and empty bodies are accepted, contributing no fields.
	for _, body := range []string{`[1, 2]`, `"text"`, `42`, `null`, ``} {
		var w = f.do("POST", "/api/Class", body)
		require.Equal(t, http.StatusCreated, w.Code, body)
		decode(t, w, &rec)
		assert.Len(t, rec, 1, body)
	}

	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/Class", `{"name": `).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/Class", `{} {}`).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		f.do("POST", "/api/Class", `{"name": "`+strings.Repeat("x", 2<<10)+`"}`).Code)

	assert.Equal(t, 5, f.store.Counts()["Class"])
}

func TestUnknownRoutes(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/Nope"},
		{"POST", "/api/Nope"},
		{"GET", "/api/Nope/1"},
		{"GET", "/elsewhere"},
	} {
		var w = f.do(tc.method, tc.path, "{}")
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
		var body ErrorResponse
		decode(t, w, &body)
		assert.Equal(t, "Not found", body.Error)
	}
	for _, tc := range []struct{ method, path string }{
		{"PATCH", "/api/Subject/1"},
		{"PATCH", "/api/Subject"},
		{"DELETE", "/api/Subject"},
		{"GET", "/admin/import"},
	} {
		var w = f.do(tc.method, tc.path, "{}")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, tc.method+" "+tc.path)
		var body ErrorResponse
		decode(t, w, &body)
		assert.Equal(t, "method not allowed", body.Error)
	}
}

func TestResourcesAddedLaterAreNotRouted(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())

	require.NoError(t, f.store.Replace(store.Database{"Subject": {}, "Later": {}}))
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/api/Later", "").Code)

	var w = f.do("GET", "/api", "")
	var body map[string][]string
	decode(t, w, &body)
	assert.Equal(t, []string{"Batch", "Class", "Exam", "Question", "Result", "Subject", "User"}, body["resources"])
}

func TestCORS(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())

	var w = f.do("GET", "/api/Subject", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = f.do("GET", "/missing", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = f.do("OPTIONS", "/api/Subject/3", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Headers", "content-type, x-api-key")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "content-type, x-api-key", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestAuthGate(t *testing.T) {
	var cfg = testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.Key = "s3cret"
	var f = newFixture(t, cfg, afero.NewMemMapFs())

	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/Subject", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/Subject", "", "x-api-key", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("POST", "/admin/import", `{"path": "/x"}`).Code)
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/Subject", "", "x-api-key", "s3cret").Code)

	// Status and metrics are not gated.
	assert.Equal(t, http.StatusOK, f.do("GET", "/status", "").Code)
	assert.Equal(t, http.StatusOK, f.do("GET", "/metrics", "").Code)
}

func TestStrictPersistenceFailures(t *testing.T) {
	var fs = afero.NewMemMapFs()
	var cfg = testConfig()

	// Bootstrap on a writable fs, then serve from a read-only view of it.
	var _, err = persist.NewGateway(fs, dbPath).Load()
	require.NoError(t, err)

	var lenient = newFixture(t, cfg, afero.NewReadOnlyFs(fs))
	assert.Equal(t, http.StatusCreated, lenient.do("POST", "/api/Subject", `{}`).Code)

	var strict = newFixture(t, cfg, afero.NewReadOnlyFs(fs), store.WithStrictPersistence(true))
	var w = strict.do("POST", "/api/Subject", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	decode(t, w, &body)
	assert.Contains(t, body.Error, "snapshot not persisted")
}

func TestImportEndpoint(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())

	var w = f.do("POST", "/admin/import", `{"path": "/nope.json"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res persist.ImportResult
	decode(t, w, &res)
	assert.False(t, res.Success)

	w = f.do("POST", "/admin/import", `not json`)
	decode(t, w, &res)
	assert.False(t, res.Success)

	require.NoError(t, afero.WriteFile(f.fs, "/backup.json",
		[]byte(`{"Subject": [{"id": 5, "name": "Imported"}]}`), 0644))
	w = f.do("POST", "/admin/import", `{"path": "/backup.json"}`)
	decode(t, w, &res)
	assert.True(t, res.Success)

	w = f.do("GET", "/api/Subject/5", "")
	require.Equal(t, http.StatusOK, w.Code)

	// Resources dropped by the import keep their routes, but are empty.
	w = f.do("GET", "/api/Exam", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestStatus(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	f.do("POST", "/api/User", `{}`)

	var w = f.do("GET", "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status Status
	decode(t, w, &status)

	assert.Equal(t, dbPath, status.File)
	assert.Equal(t, 1, status.Resources["User"])
	assert.Equal(t, 1, status.Resources["Batch"])
	assert.Contains(t, status.Routed, "User")
	assert.False(t, status.Auth)
}

func TestRequestsAreLogged(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	f.hook.Reset()

	f.do("GET", "/api/Subject?name=x&_limit=1", "")

	var found bool
	for _, entry := range f.hook.AllEntries() {
		if entry.Message != "request" {
			continue
		}
		found = true
		assert.Equal(t, "GET", entry.Data["method"])
		assert.Equal(t, "/api/Subject", entry.Data["path"])
		assert.Equal(t, []string{"x"}, entry.Data["query"].(url.Values)["name"])
		assert.Equal(t, http.StatusOK, entry.Data["status"])
		assert.NotEmpty(t, entry.Data["req_id"])
	}
	assert.True(t, found)
}

func TestPreflightRequestsAreLogged(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	f.hook.Reset()

	var w = f.do("OPTIONS", "/api/Subject", "", "Origin", "http://localhost:3000")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var entry = f.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "OPTIONS", entry.Data["method"])
	assert.Equal(t, http.StatusNoContent, entry.Data["status"])
}

func TestFiltersMatchNumbersByValue(t *testing.T) {
	var f = newFixture(t, testConfig(), afero.NewMemMapFs())
	require.Equal(t, http.StatusCreated, f.do("POST", "/api/Exam", `{"level": 1.0}`).Code)
	require.Equal(t, http.StatusCreated, f.do("POST", "/api/Exam", `{"level": "1.0"}`).Code)

	var w = f.do("GET", "/api/Exam?level=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, 1.0, list[0]["id"])
}
