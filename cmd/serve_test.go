package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-fs/recon-cli/internal/engine"
	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newTestRouter serves a memory-backed engine with one balanced company.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mem := recordstore.NewMemory()
	seedTable(mem, "companies/acme", schema.TableLedger,
		map[string]string{schema.FieldAccount: "1000", schema.FieldDate: "20250601", schema.FieldDebit: "100.00", schema.FieldCredit: "0.00", schema.FieldBatch: "PAY7", schema.FieldSource: schema.SourceCheck},
		map[string]string{schema.FieldAccount: "1000", schema.FieldDate: "20250601", schema.FieldDebit: "0.00", schema.FieldCredit: "100.00"},
	)
	seedTable(mem, "companies/acme", schema.TableChecks,
		map[string]string{schema.FieldBatch: "PAY7", schema.FieldCheckNumber: "1001", schema.FieldDate: "20250601", schema.FieldAmount: "100.00", schema.FieldAccount: "1000"},
	)
	e := engine.New(mem, "companies")
	return newRouter(e, serverOptions{AllowedOrigins: []string{"*"}})
}

func seedTable(m *recordstore.Memory, dataDir, table string, rows ...map[string]string) {
	defs := schema.Fields(table)
	columns := make([]string, len(defs))
	types := make([]recordstore.FieldType, len(defs))
	for i, d := range defs {
		columns[i] = d.Name
		types[i] = d.Type
	}
	data := make([][]string, len(rows))
	for i, r := range rows {
		values := make([]string, len(columns))
		for j, c := range columns {
			values[j] = r[c]
		}
		data[i] = values
	}
	m.AddTable(dataDir, table, columns, types, data)
}

func TestRouterHealth(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouterAuditGL(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/companies/acme/audits/gl", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "gl_balance", body["kind"])
	assert.Equal(t, true, body["balanced"])
}

func TestRouterAuditUnknownKind(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/companies/acme/audits/nonsense", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterAuditMissingTable(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/companies/ghost/audits/gl", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterAuditBadDate(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/companies/acme/audits/check-matching?start=junk", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterTrace(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/companies/acme/batches/PAY7", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "batch_lineage", body["kind"])
	assert.Equal(t, "PAY7", body["batch"])
}

func TestRouterPropagate(t *testing.T) {
	router := newTestRouter(t)

	payload := `{"template":"batch-date","value":"20250630","tables":["checks"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/companies/acme/batches/PAY7/propagate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}

func TestRouterPropagateRejectsShapelessBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/companies/acme/batches/PAY7/propagate", strings.NewReader(`{"value":"x"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterTemplates(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/templates", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var templates []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &templates))
	assert.NotEmpty(t, templates)
}

func TestRouterThrottle(t *testing.T) {
	mem := recordstore.NewMemory()
	e := engine.New(mem, "companies")
	router := newRouter(e, serverOptions{
		AllowedOrigins: []string{"*"},
		RatePerSecond:  1,
		RateBurst:      1,
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
