package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gst-reconciliation-service/internal/linkstore"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	gstinA = "27AAAAA0000A1Z5"
	gstinB = "29BBBBB1111B1Z1"
)

func setupRouter(t *testing.T) (*gin.Engine, *linkstore.Store) {
	t.Helper()

	cfg := linkstore.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "api.db")
	store, err := linkstore.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	service, err := reconciler.NewService(nil)
	require.NoError(t, err)

	server, err := NewServer(DefaultServerConfig(), service, store, nil)
	require.NoError(t, err)
	return server.Router(), store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	return env
}

type reportBody struct {
	Scope   string `json:"scope"`
	RunID   string `json:"run_id"`
	Summary struct {
		ManualCount      int    `json:"manual_count"`
		MatchedCount     int    `json:"matched_count"`
		MismatchCount    int    `json:"mismatch_count"`
		NotInPortalCount int    `json:"not_in_portal_count"`
		NotInBooksCount  int    `json:"not_in_books_count"`
		NetITCImpact     string `json:"net_itc_impact"`
	} `json:"summary"`
	Rows []struct {
		Kind string `json:"kind"`
	} `json:"rows"`
	Warnings []string `json:"warnings"`
}

func invoiceBody() map[string]interface{} {
	return map[string]interface{}{
		"books": []map[string]string{
			{"gstin": gstinA, "party_name": "Acme Traders", "invoice_number": "INV-1", "invoice_date": "01-04-2025", "taxable_value": "1000"},
			{"gstin": gstinB, "party_name": "Bharat Steel", "invoice_number": "BB/82", "invoice_date": "05-04-2025", "taxable_value": "1050"},
		},
		"portal": []map[string]string{
			{"gstin": gstinA, "invoice_number": "INV1", "invoice_date": "01-04-2025", "taxable_value": "997"},
			{"gstin": gstinB, "invoice_number": "82", "invoice_date": "09-04-2025", "taxable_value": "1000"},
		},
		"tolerance": "5",
		"meta":      map[string]string{"gstin": gstinA, "period": "042025"},
	}
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	env := decode(t, resp)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"status":"healthy"`)
}

func TestReconcileInvoices(t *testing.T) {
	router, store := setupRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/reconcile/invoices", invoiceBody())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode(t, resp)
	var report reportBody
	require.NoError(t, json.Unmarshal(env.Data, &report))

	assert.Equal(t, "invoices", report.Scope)
	assert.Equal(t, 1, report.Summary.MatchedCount)
	assert.Equal(t, 1, report.Summary.MismatchCount)
	assert.Len(t, report.Rows, 2)
	require.NotEmpty(t, report.RunID)

	run, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "5", run.Tolerance.String())
	assert.Equal(t, "042025", run.Meta.Period)

	entries, err := store.AuditLog(context.Background(), report.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, linkstore.ActionInvoiceRun, entries[0].Action)
}

func TestReconcileInvoicesDryRun(t *testing.T) {
	router, store := setupRouter(t)

	body := invoiceBody()
	body["dry_run"] = true
	resp := doJSON(t, router, http.MethodPost, "/api/v1/reconcile/invoices", body)
	require.Equal(t, http.StatusOK, resp.Code)

	var report reportBody
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &report))
	assert.Empty(t, report.RunID)

	runs, err := store.ListRuns(context.Background(), models.ScopeInvoices, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestReconcileUsesSavedLinks(t *testing.T) {
	router, store := setupRouter(t)
	ctx := context.Background()

	_, err := store.Add(ctx, models.ScopeInvoices, models.LinkPair{BooksID: "B_1", PortalID: "G_1"}, "")
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/reconcile/invoices", invoiceBody())
	require.Equal(t, http.StatusOK, resp.Code)
	var report reportBody
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &report))
	assert.Equal(t, 1, report.Summary.ManualCount)
	assert.Equal(t, 0, report.Summary.MismatchCount)

	body := invoiceBody()
	body["skip_saved_links"] = true
	resp = doJSON(t, router, http.MethodPost, "/api/v1/reconcile/invoices", body)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &report))
	assert.Equal(t, 0, report.Summary.ManualCount)
}

func TestReconcileNotes(t *testing.T) {
	router, _ := setupRouter(t)

	body := map[string]interface{}{
		"books": []map[string]string{
			{"gstin": gstinA, "note_number": "CN-1", "note_date": "05-04-2025", "doc_type": "D", "taxable_value": "-500"},
		},
		"portal": []map[string]string{
			{"gstin": gstinA, "trade_name": "Acme Traders", "note_number": "CN1", "note_date": "05-04-2025", "note_type": "Credit Note", "taxable_value": "500"},
		},
	}
	resp := doJSON(t, router, http.MethodPost, "/api/v1/reconcile/notes", body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var report reportBody
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &report))
	assert.Equal(t, "notes", report.Scope)
	assert.Equal(t, 1, report.Summary.MatchedCount)
	assert.Equal(t, "-500", report.Summary.NetITCImpact)
}

func TestReconcileXLSXFormat(t *testing.T) {
	router, _ := setupRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/reconcile/invoices?format=xlsx", invoiceBody())
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Run-ID"))

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Outcomes")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestReconcileBadRequests(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{
			name: "no rows",
			path: "/api/v1/reconcile/invoices",
			body: map[string]interface{}{"tolerance": "5"},
		},
		{
			name: "negative tolerance",
			path: "/api/v1/reconcile/invoices",
			body: func() map[string]interface{} {
				b := invoiceBody()
				b["tolerance"] = "-1"
				return b
			}(),
		},
		{
			name: "tolerance exponent out of range",
			path: "/api/v1/reconcile/invoices",
			body: func() map[string]interface{} {
				b := invoiceBody()
				b["tolerance"] = "1e50000000"
				return b
			}(),
		},
		{
			name: "negative vendor tolerance",
			path: "/api/v1/reconcile/notes",
			body: map[string]interface{}{
				"portal":            []map[string]string{{"gstin": gstinA, "note_number": "1"}},
				"vendor_tolerances": map[string]string{gstinA: "-2"},
			},
		},
		{
			name: "link without portal id",
			path: "/api/v1/reconcile/invoices",
			body: func() map[string]interface{} {
				b := invoiceBody()
				b["links"] = []map[string]string{{"books_id": "B_0"}}
				return b
			}(),
		},
		{
			name: "malformed body",
			path: "/api/v1/reconcile/notes",
			body: "not an object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
			env := decode(t, resp)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestReconcileUnknownFormat(t *testing.T) {
	router, _ := setupRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/reconcile/invoices?format=pdf", invoiceBody())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestLinkLifecycle(t *testing.T) {
	router, _ := setupRouter(t)

	link := map[string]interface{}{"scope": "notes", "books_id": "B_3", "portal_id": "G_7"}

	resp := doJSON(t, router, http.MethodPost, "/api/v1/links", link)
	assert.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = doJSON(t, router, http.MethodPost, "/api/v1/links", link)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"added":false`)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/links?scope=notes", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var links []linkstore.Link
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &links))
	require.Len(t, links, 1)
	assert.Equal(t, models.UniqueID("G_7"), links[0].Pair.PortalID)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/links?scope=invoices", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var none []linkstore.Link
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &none))
	assert.Empty(t, none)

	resp = doJSON(t, router, http.MethodDelete, "/api/v1/links", link)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, router, http.MethodDelete, "/api/v1/links", link)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "link_not_found", decode(t, resp).Code)
}

func TestClearLinks(t *testing.T) {
	router, store := setupRouter(t)
	ctx := context.Background()

	for _, p := range []models.LinkPair{{BooksID: "B_0", PortalID: "G_0"}, {BooksID: "B_1", PortalID: "G_1"}} {
		_, err := store.Add(ctx, models.ScopeInvoices, p, "")
		require.NoError(t, err)
	}

	resp := doJSON(t, router, http.MethodDelete, "/api/v1/links", map[string]interface{}{"scope": "invoices", "all": true})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"removed":2`)

	links, err := store.Links(ctx, models.ScopeInvoices)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestLinkBadRequests(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"unknown scope", http.MethodPost, "/api/v1/links", map[string]interface{}{"scope": "gstr1", "books_id": "B_0", "portal_id": "G_0"}},
		{"missing books id", http.MethodPost, "/api/v1/links", map[string]interface{}{"scope": "invoices", "portal_id": "G_0"}},
		{"swapped ids", http.MethodPost, "/api/v1/links", map[string]interface{}{"scope": "invoices", "books_id": "G_0", "portal_id": "B_0"}},
		{"all on add", http.MethodPost, "/api/v1/links", map[string]interface{}{"scope": "invoices", "books_id": "B_0", "portal_id": "G_0", "all": true}},
		{"remove without ids", http.MethodDelete, "/api/v1/links", map[string]interface{}{"scope": "invoices"}},
		{"list without scope", http.MethodGet, "/api/v1/links", nil},
		{"runs with negative limit", http.MethodGet, "/api/v1/runs?scope=notes&limit=-1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
		})
	}
}

func TestRunsAndAudit(t *testing.T) {
	router, _ := setupRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/reconcile/invoices", invoiceBody())
	require.Equal(t, http.StatusOK, resp.Code)
	var report reportBody
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &report))

	resp = doJSON(t, router, http.MethodGet, "/api/v1/runs?scope=invoices", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var runs []linkstore.Run
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/runs/"+report.RunID, nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/runs/"+report.RunID+"/audit", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var entries []linkstore.AuditEntry
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "new_recon", entries[0].Action)
	assert.Equal(t, "5", entries[0].Details["tolerance"])

	resp = doJSON(t, router, http.MethodGet, "/api/v1/runs/missing/audit", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "run_not_found", decode(t, resp).Code)
}

func TestServerConfigValidate(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultServerConfig()
	cfg.ReadTimeout = -1
	assert.Error(t, cfg.Validate())
}
