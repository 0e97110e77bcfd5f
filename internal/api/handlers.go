package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/internal/reporter"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health check
var Version = "dev"

// Handlers contains all HTTP request handlers
type Handlers struct {
	service *reconciler.Service
	store   Store
	logger  logger.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *reconciler.Service, store Store, log logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		store:   store,
		logger:  log,
	}
}

// Response is the envelope of every JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HealthCheck handles GET /healthz
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
	status := http.StatusOK
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.WithError(err).Warn("Link store ping failed")
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// ReconcileInvoices handles POST /api/v1/reconcile/invoices
func (h *Handlers) ReconcileInvoices(c *gin.Context) {
	var req ReconcileInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	links, warnings := h.runLinks(ctx, models.ScopeInvoices, req.Links, req.SkipSavedLinks)

	result, err := h.service.ReconcileInvoices(ctx, &reconciler.InvoiceRequest{
		Books:      req.Books,
		Portal:     req.Portal,
		Amendments: req.Amendments,
		Links:      links,
		Overrides:  req.overrides(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	report := reporter.FromInvoiceResult(result)
	report.RunID, warnings = h.recordRun(ctx, &req.RunOptions, &reconciler.RunRecord{
		Scope:     models.ScopeInvoices,
		StartedAt: result.ProcessedAt,
		Tolerance: result.Tolerance,
		Links:     len(links),
		Summary:   result.Summary,
		Meta:      req.Meta,
	}, warnings)
	report.GSTIN, report.Period = req.Meta.GSTIN, req.Meta.Period
	report.Warnings = warnings

	h.render(c, report)
}

// ReconcileNotes handles POST /api/v1/reconcile/notes
func (h *Handlers) ReconcileNotes(c *gin.Context) {
	var req ReconcileNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	links, warnings := h.runLinks(ctx, models.ScopeNotes, req.Links, req.SkipSavedLinks)

	result, err := h.service.ReconcileNotes(ctx, &reconciler.NoteRequest{
		Books:      req.Books,
		Portal:     req.Portal,
		Amendments: req.Amendments,
		Links:      links,
		Overrides:  req.overrides(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	report := reporter.FromNoteResult(result)
	report.RunID, warnings = h.recordRun(ctx, &req.RunOptions, &reconciler.RunRecord{
		Scope:     models.ScopeNotes,
		StartedAt: result.ProcessedAt,
		Tolerance: result.Tolerance,
		Links:     len(links),
		Summary:   result.Summary,
		Meta:      req.Meta,
	}, warnings)
	report.GSTIN, report.Period = req.Meta.GSTIN, req.Meta.Period
	report.Warnings = warnings

	h.render(c, report)
}

// ListLinks handles GET /api/v1/links?scope=
func (h *Handlers) ListLinks(c *gin.Context) {
	var q ScopeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}
	if err := q.Validate(); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	links, err := h.store.List(c.Request.Context(), models.Scope(q.Scope))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: links})
}

// AddLink handles POST /api/v1/links
func (h *Handlers) AddLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.ValidateAdd(); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	pair := req.pair()
	added, err := h.store.Add(c.Request.Context(), models.Scope(req.Scope), pair, "")
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	c.JSON(status, Response{Success: true, Data: gin.H{"scope": req.Scope, "link": pair, "added": added}})
}

// RemoveLink handles DELETE /api/v1/links. With all set it clears the scope.
func (h *Handlers) RemoveLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.ValidateRemove(); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	scope := models.Scope(req.Scope)
	if req.All {
		n, err := h.store.Clear(ctx, scope, "")
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"scope": req.Scope, "removed": n}})
		return
	}

	if err := h.store.Remove(ctx, scope, req.pair(), ""); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"scope": req.Scope, "removed": 1}})
}

// ListRuns handles GET /api/v1/runs?scope=&limit=
func (h *Handlers) ListRuns(c *gin.Context) {
	var q ScopeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}
	if err := q.Validate(); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	runs, err := h.store.ListRuns(c.Request.Context(), models.Scope(q.Scope), q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: runs})
}

// GetRun handles GET /api/v1/runs/:id
func (h *Handlers) GetRun(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: run})
}

// GetAuditLog handles GET /api/v1/runs/:id/audit
func (h *Handlers) GetAuditLog(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.store.GetRun(ctx, id); err != nil {
		h.fail(c, err)
		return
	}

	entries, err := h.store.AuditLog(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// runLinks merges the saved links of a scope with the ones on the request. A failing
// store is a warning; the run proceeds with the request links only.
func (h *Handlers) runLinks(ctx context.Context, scope models.Scope, extra []models.LinkPair, skipSaved bool) ([]models.LinkPair, []string) {
	if skipSaved {
		return extra, nil
	}
	saved, err := h.store.Links(ctx, scope)
	if err != nil {
		h.logger.WithRun(logger.Run{Scope: string(scope)}).WithError(err).Warn("Failed to load saved manual links")
		return extra, []string{fmt.Sprintf("saved manual links not loaded: %v", err)}
	}
	return append(saved, extra...), nil
}

func (h *Handlers) recordRun(ctx context.Context, opts *RunOptions, run *reconciler.RunRecord, warnings []string) (string, []string) {
	if opts.DryRun {
		return "", warnings
	}
	id, err := h.store.RecordRun(ctx, run)
	if err != nil {
		h.logger.WithRun(run.LogRun("")).WithError(err).Warn("Failed to record run")
		return "", append(warnings, fmt.Sprintf("run not recorded: %v", err))
	}
	h.logger.WithRun(run.LogRun(id)).Info("Recorded run")
	return id, warnings
}

// render writes the report as JSON, or in the format named by the format query
// parameter (console, csv or xlsx)
func (h *Handlers) render(c *gin.Context, report *reporter.Report) {
	format := reporter.OutputFormat(c.DefaultQuery("format", string(reporter.FormatJSON)))
	if format == reporter.FormatJSON {
		c.JSON(http.StatusOK, Response{Success: true, Data: report})
		return
	}
	if !format.IsValid() {
		h.badRequest(c, fmt.Sprintf("unsupported format %q", format))
		return
	}

	config := reporter.DefaultReportConfig()
	config.Format = format
	config.IncludeMatched = true
	config.MaxConsoleRows = 0
	generator, err := reporter.NewReportGenerator(config)
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		h.fail(c, err)
		return
	}

	if report.RunID != "" {
		c.Header("X-Run-ID", report.RunID)
	}
	switch format {
	case reporter.FormatCSV:
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_reconciliation.csv", report.Scope))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case reporter.FormatXLSX:
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_reconciliation.xlsx", report.Scope))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
	}
}

func (h *Handlers) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message})
}

// fail maps an application error to its HTTP status
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := Response{Success: false, Error: err.Error()}

	if rerr, ok := errors.AsReconcilerError(err); ok {
		resp.Code = string(rerr.Code)
		switch {
		case rerr.Code == errors.CodeRunNotFound || rerr.Code == errors.CodeLinkNotFound:
			status = http.StatusNotFound
		case rerr.Category == errors.CategoryValidation,
			rerr.Category == errors.CategoryParse,
			rerr.Category == errors.CategoryConfiguration:
			status = http.StatusBadRequest
		}
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}
