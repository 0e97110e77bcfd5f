// Package reconciler provides high-level orchestration for GST reconciliation.
//
// The Service runs one reconciliation over rows already in memory:
//   - amendments are applied to the portal side
//   - both sides are normalized and consolidated
//   - the invoice or note cascade classifies every record
//   - post-processing reclassifies tax errors and fills in names and diffs
//   - a SummaryStats is built from the outcome kinds
//
// The Orchestrator adds the file and persistence steps around it: registers are
// read concurrently through the parsers package, manual links come from a
// LinkSource and every finished run is handed to a RunRecorder.
//
// Example usage:
//
//	service, _ := reconciler.NewService(reconciler.DefaultConfig())
//	orchestrator, _ := reconciler.NewOrchestrator(service, nil)
//	orchestrator.AddProgressCallback(func(p *reconciler.Progress) {
//		fmt.Printf("Progress: %.1f%% - %s\n", p.PercentComplete, p.CurrentStep)
//	})
//
//	run, err := orchestrator.ReconcileInvoiceFiles(ctx, &reconciler.FileRequest{
//		BooksFile:  "purchase_register.xlsx",
//		PortalFile: "gstr2b.xlsx",
//	})
package reconciler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/parsers"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// LinkSource supplies the saved manual links of a scope
type LinkSource interface {
	Links(ctx context.Context, scope models.Scope) ([]models.LinkPair, error)
}

// RunRecorder stores a finished run and returns its id
type RunRecorder interface {
	RecordRun(ctx context.Context, run *RunRecord) (string, error)
}

// RunMeta describes whose return a run belongs to
type RunMeta struct {
	GSTIN         string `json:"gstin,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	FinancialYear string `json:"fy,omitempty"`
	Period        string `json:"period,omitempty"`
}

// RunRecord is what a RunRecorder persists for one run
type RunRecord struct {
	Scope     models.Scope    `json:"scope"`
	StartedAt time.Time       `json:"started_at"`
	Tolerance decimal.Decimal `json:"tolerance"`
	Links     int             `json:"links"`
	Summary   *SummaryStats   `json:"summary"`
	Meta      RunMeta         `json:"meta"`
}

// LogRun is the logging context of the run once it has been stored under id
func (r *RunRecord) LogRun(id string) logger.Run {
	return logger.Run{ID: id, Scope: string(r.Scope), GSTIN: r.Meta.GSTIN, Period: r.Meta.Period}
}

func (m RunMeta) logRun(scope models.Scope) logger.Run {
	return logger.Run{Scope: string(scope), GSTIN: m.GSTIN, Period: m.Period}
}

// Layouts selects how each register of a run is read
type Layouts struct {
	Books      *parsers.Layout
	Portal     *parsers.Layout
	Amendments *parsers.Layout
}

// DefaultInvoiceLayouts reads a purchase register against the GSTR-2B B2B and B2BA sheets
func DefaultInvoiceLayouts() Layouts {
	return Layouts{
		Books:      parsers.BooksInvoiceLayout,
		Portal:     parsers.PortalInvoiceLayout,
		Amendments: parsers.PortalInvoiceAmendmentLayout,
	}
}

// DefaultNoteLayouts reads a note register against the GSTR-2B CDNR and CDNRA sheets
func DefaultNoteLayouts() Layouts {
	return Layouts{
		Books:      parsers.BooksNoteLayout,
		Portal:     parsers.PortalNoteLayout,
		Amendments: parsers.PortalNoteAmendmentLayout,
	}
}

// FileRequest is one reconciliation over register files
type FileRequest struct {
	BooksFile  string `json:"books_file"`
	PortalFile string `json:"portal_file"`
	// AmendmentsFile holds the amendment sheet. When empty, amendments are read from
	// PortalFile if it is a workbook.
	AmendmentsFile string `json:"amendments_file,omitempty"`
	// Layouts overrides the predefined layouts of the scope
	Layouts *Layouts `json:"-"`
	// Links are used in addition to the ones from the LinkSource
	Links []models.LinkPair `json:"links,omitempty"`
	Meta  RunMeta           `json:"meta"`
	Overrides
}

// Validate validates the file request
func (r *FileRequest) Validate() error {
	if strings.TrimSpace(r.BooksFile) == "" {
		return errors.ValidationError(errors.CodeMissingField, "books_file", nil, nil).
			WithSuggestion("Provide the purchase register file")
	}
	if strings.TrimSpace(r.PortalFile) == "" {
		return errors.ValidationError(errors.CodeMissingField, "portal_file", nil, nil).
			WithSuggestion("Provide the GSTR-2B file")
	}
	return nil
}

func (r *FileRequest) amendmentsPath() string {
	if r.AmendmentsFile != "" {
		return r.AmendmentsFile
	}
	switch strings.ToLower(filepath.Ext(r.PortalFile)) {
	case ".xlsx", ".xlsm":
		return r.PortalFile
	}
	return ""
}

// Progress tracks the progress of a file reconciliation
type Progress struct {
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	Warnings []string `json:"warnings,omitempty"`
}

// ProgressCallback is called to report reconciliation progress
type ProgressCallback func(*Progress)

const totalSteps = 5

// Orchestrator reads register files, runs the reconciliation and records the run
type Orchestrator struct {
	service     *Service
	parseConfig *parsers.ParseConfig
	loader      *parsers.ConcurrentParser
	links       LinkSource
	recorder    RunRecorder
	logger      logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   *Progress
	progressMutex     sync.Mutex
}

// NewOrchestrator creates a new orchestrator. A nil parse config selects
// parsers.DefaultParseConfig.
func NewOrchestrator(service *Service, parseConfig *parsers.ParseConfig) (*Orchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliation_service", nil, nil).
			WithSuggestion("Provide a valid Service instance")
	}
	if parseConfig == nil {
		parseConfig = parsers.DefaultParseConfig()
	}
	if err := parseConfig.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("orchestrator")
	log.Debug("Created reconciliation orchestrator")

	return &Orchestrator{
		service:         service,
		parseConfig:     parseConfig,
		loader:          parsers.NewConcurrentParser(3),
		logger:          log,
		currentProgress: &Progress{TotalSteps: totalSteps},
	}, nil
}

// WithLinkSource sets where saved manual links are read from
func (o *Orchestrator) WithLinkSource(links LinkSource) *Orchestrator {
	o.links = links
	return o
}

// WithRunRecorder sets where finished runs are recorded
func (o *Orchestrator) WithRunRecorder(recorder RunRecorder) *Orchestrator {
	o.recorder = recorder
	return o
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// InvoiceRun is the result of an invoice file reconciliation
type InvoiceRun struct {
	*InvoiceResult
	RunID      string                         `json:"run_id,omitempty"`
	Meta       RunMeta                        `json:"meta"`
	ParseStats map[string]*parsers.ParseStats `json:"parse_stats"`
	Warnings   []string                       `json:"warnings,omitempty"`
}

// NoteRun is the result of a note file reconciliation
type NoteRun struct {
	*NoteResult
	RunID      string                         `json:"run_id,omitempty"`
	Meta       RunMeta                        `json:"meta"`
	ParseStats map[string]*parsers.ParseStats `json:"parse_stats"`
	Warnings   []string                       `json:"warnings,omitempty"`
}

// ReconcileInvoiceFiles reads the invoice registers of req and reconciles them
func (o *Orchestrator) ReconcileInvoiceFiles(ctx context.Context, req *FileRequest) (*InvoiceRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	layouts := DefaultInvoiceLayouts()
	if req.Layouts != nil {
		layouts = *req.Layouts
	}

	o.initializeProgress()
	startTime := time.Now()
	o.logger.WithRun(req.Meta.logRun(models.ScopeInvoices)).WithFields(logger.Fields{
		"books_file":  req.BooksFile,
		"portal_file": req.PortalFile,
	}).Info("Starting invoice file reconciliation")

	o.updateProgress("Reading registers", 0, 0)
	var books, portal []models.RawInvoice
	var amendments []models.Amendment[models.RawInvoice]
	stats := newStatsCollector()

	loads := map[string]parsers.LoadFunc{
		"books": func(ctx context.Context) error {
			p, err := parsers.NewRegisterParser(layouts.Books, o.parseConfig)
			if err != nil {
				return err
			}
			rows, st, err := p.ParseInvoices(ctx, req.BooksFile)
			stats.put("books", st)
			books = rows
			return err
		},
		"portal": func(ctx context.Context) error {
			p, err := parsers.NewRegisterParser(layouts.Portal, o.parseConfig)
			if err != nil {
				return err
			}
			rows, st, err := p.ParseInvoices(ctx, req.PortalFile)
			stats.put("portal", st)
			portal = rows
			return err
		},
	}
	if path := req.amendmentsPath(); path != "" && layouts.Amendments != nil {
		loads["amendments"] = func(ctx context.Context) error {
			p, err := parsers.NewRegisterParser(layouts.Amendments, o.parseConfig)
			if err != nil {
				return err
			}
			rows, st, err := p.ParseInvoiceAmendments(ctx, path)
			stats.put("amendments", st)
			amendments = rows
			return err
		}
	}
	if err := o.load(ctx, loads); err != nil {
		return nil, err
	}

	o.updateProgress("Loading manual links", 1, time.Since(startTime))
	links, err := o.manualLinks(ctx, models.ScopeInvoices, req.Links)
	if err != nil {
		return nil, err
	}

	o.updateProgress("Reconciling invoices", 2, time.Since(startTime))
	result, err := o.service.ReconcileInvoices(ctx, &InvoiceRequest{
		Books:      books,
		Portal:     portal,
		Amendments: amendments,
		Links:      links,
		Overrides:  req.Overrides,
	})
	if err != nil {
		return nil, err
	}

	o.updateProgress("Recording run", 3, time.Since(startTime))
	runID := o.record(ctx, &RunRecord{
		Scope:     models.ScopeInvoices,
		StartedAt: startTime,
		Tolerance: result.Tolerance,
		Links:     len(links),
		Summary:   result.Summary,
		Meta:      req.Meta,
	})

	o.updateProgress("Completed", totalSteps, time.Since(startTime))
	return &InvoiceRun{
		InvoiceResult: result,
		RunID:         runID,
		Meta:          req.Meta,
		ParseStats:    stats.all(),
		Warnings:      o.warnings(),
	}, nil
}

// ReconcileNoteFiles reads the credit/debit note registers of req and reconciles them
func (o *Orchestrator) ReconcileNoteFiles(ctx context.Context, req *FileRequest) (*NoteRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	layouts := DefaultNoteLayouts()
	if req.Layouts != nil {
		layouts = *req.Layouts
	}

	o.initializeProgress()
	startTime := time.Now()
	o.logger.WithRun(req.Meta.logRun(models.ScopeNotes)).WithFields(logger.Fields{
		"books_file":  req.BooksFile,
		"portal_file": req.PortalFile,
	}).Info("Starting note file reconciliation")

	o.updateProgress("Reading registers", 0, 0)
	var books, portal []models.RawNote
	var amendments []models.Amendment[models.RawNote]
	stats := newStatsCollector()

	loads := map[string]parsers.LoadFunc{
		"books": func(ctx context.Context) error {
			p, err := parsers.NewRegisterParser(layouts.Books, o.parseConfig)
			if err != nil {
				return err
			}
			rows, st, err := p.ParseNotes(ctx, req.BooksFile)
			stats.put("books", st)
			books = rows
			return err
		},
		"portal": func(ctx context.Context) error {
			p, err := parsers.NewRegisterParser(layouts.Portal, o.parseConfig)
			if err != nil {
				return err
			}
			rows, st, err := p.ParseNotes(ctx, req.PortalFile)
			stats.put("portal", st)
			portal = rows
			return err
		},
	}
	if path := req.amendmentsPath(); path != "" && layouts.Amendments != nil {
		loads["amendments"] = func(ctx context.Context) error {
			p, err := parsers.NewRegisterParser(layouts.Amendments, o.parseConfig)
			if err != nil {
				return err
			}
			rows, st, err := p.ParseNoteAmendments(ctx, path)
			stats.put("amendments", st)
			amendments = rows
			return err
		}
	}
	if err := o.load(ctx, loads); err != nil {
		return nil, err
	}

	o.updateProgress("Loading manual links", 1, time.Since(startTime))
	links, err := o.manualLinks(ctx, models.ScopeNotes, req.Links)
	if err != nil {
		return nil, err
	}

	o.updateProgress("Reconciling notes", 2, time.Since(startTime))
	result, err := o.service.ReconcileNotes(ctx, &NoteRequest{
		Books:      books,
		Portal:     portal,
		Amendments: amendments,
		Links:      links,
		Overrides:  req.Overrides,
	})
	if err != nil {
		return nil, err
	}

	o.updateProgress("Recording run", 3, time.Since(startTime))
	runID := o.record(ctx, &RunRecord{
		Scope:     models.ScopeNotes,
		StartedAt: startTime,
		Tolerance: result.Tolerance,
		Links:     len(links),
		Summary:   result.Summary,
		Meta:      req.Meta,
	})

	o.updateProgress("Completed", totalSteps, time.Since(startTime))
	return &NoteRun{
		NoteResult: result,
		RunID:      runID,
		Meta:       req.Meta,
		ParseStats: stats.all(),
		Warnings:   o.warnings(),
	}, nil
}

func (o *Orchestrator) load(ctx context.Context, loads map[string]parsers.LoadFunc) error {
	results, err := o.loader.Run(ctx, loads)
	for _, r := range results {
		o.logger.WithFields(logger.Fields{
			"register": r.Name,
			"duration": r.Duration,
		}).Debug("Register loaded")
	}
	if err != nil {
		o.logger.WithError(err).Error("Failed to read registers")
		return err
	}
	return nil
}

// manualLinks merges the saved links of a scope with the ones given on the request.
// A failing link source is a warning, not an error; the run proceeds without saved links.
func (o *Orchestrator) manualLinks(ctx context.Context, scope models.Scope, extra []models.LinkPair) ([]models.LinkPair, error) {
	if o.links == nil {
		return extra, nil
	}
	saved, err := o.links.Links(ctx, scope)
	if err != nil {
		o.logger.WithRun(logger.Run{Scope: string(scope)}).WithError(err).Warn("Failed to load saved manual links")
		o.addWarning(fmt.Sprintf("saved manual links not loaded: %v", err))
		return extra, nil
	}
	out := make([]models.LinkPair, 0, len(saved)+len(extra))
	out = append(out, saved...)
	return append(out, extra...), nil
}

func (o *Orchestrator) record(ctx context.Context, run *RunRecord) string {
	if o.recorder == nil {
		return ""
	}
	id, err := o.recorder.RecordRun(ctx, run)
	if err != nil {
		o.logger.WithRun(run.LogRun("")).WithError(err).Warn("Failed to record run")
		o.addWarning(fmt.Sprintf("run not recorded: %v", err))
		return ""
	}
	o.logger.WithRun(run.LogRun(id)).Info("Recorded run")
	return id
}

func (o *Orchestrator) initializeProgress() {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	o.currentProgress = &Progress{
		TotalSteps: totalSteps,
		StartTime:  time.Now(),
	}
}

func (o *Orchestrator) updateProgress(step string, completed int, elapsed time.Duration) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	o.currentProgress.CurrentStep = step
	o.currentProgress.CompletedSteps = completed
	o.currentProgress.ElapsedTime = elapsed
	o.currentProgress.PercentComplete = float64(completed) / float64(o.currentProgress.TotalSteps) * 100

	if completed > 0 && completed < o.currentProgress.TotalSteps {
		avgTimePerStep := elapsed / time.Duration(completed)
		o.currentProgress.EstimatedRemaining = avgTimePerStep * time.Duration(o.currentProgress.TotalSteps-completed)
	} else {
		o.currentProgress.EstimatedRemaining = 0
	}

	snapshot := *o.currentProgress
	for _, callback := range o.progressCallbacks {
		callback(&snapshot)
	}
}

func (o *Orchestrator) addWarning(message string) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.currentProgress.Warnings = append(o.currentProgress.Warnings, message)
}

func (o *Orchestrator) warnings() []string {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	return append([]string(nil), o.currentProgress.Warnings...)
}

type statsCollector struct {
	mu    sync.Mutex
	stats map[string]*parsers.ParseStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{stats: make(map[string]*parsers.ParseStats)}
}

func (c *statsCollector) put(name string, st *parsers.ParseStats) {
	if st == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[name] = st
}

func (c *statsCollector) all() map[string]*parsers.ParseStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*parsers.ParseStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}
