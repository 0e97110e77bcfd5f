package logger

import (
	"sync"
	"time"
)

// StepStats describes one completed step of a staged run
type StepStats struct {
	Step       string        `json:"step"`
	Matched    int           `json:"matched"`
	BooksLeft  int           `json:"books_left"`
	PortalLeft int           `json:"portal_left"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ProgressTracker records the steps of a staged run such as a matching cascade
type ProgressTracker struct {
	logger    Logger
	operation string
	startTime time.Time
	lastStep  time.Time
	steps     []StepStats
	mutex     sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation string `json:"operation"`
	Logger    Logger `json:"-"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:    config.Logger.WithComponent("progress").WithField("operation", config.Operation),
		operation: config.Operation,
		startTime: now,
		lastStep:  now,
	}

	tracker.logger.Debug("Starting operation")
	return tracker
}

// Step records a finished step with its match count and the records still unmatched
func (p *ProgressTracker) Step(step string, matched, booksLeft, portalLeft int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := time.Now()
	stats := StepStats{
		Step:       step,
		Matched:    matched,
		BooksLeft:  booksLeft,
		PortalLeft: portalLeft,
		Elapsed:    now.Sub(p.lastStep),
	}
	p.lastStep = now
	p.steps = append(p.steps, stats)

	p.logger.WithFields(Fields{
		"step":        step,
		"matched":     matched,
		"books_left":  booksLeft,
		"portal_left": portalLeft,
	}).Debug("Step completed")
}

// Complete logs the total duration and number of steps
func (p *ProgressTracker) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(Fields{
		"steps":    len(p.steps),
		"duration": time.Since(p.startTime).String(),
	}).Debug("Operation completed")
}

// Steps returns a copy of the recorded steps
func (p *ProgressTracker) Steps() []StepStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	out := make([]StepStats, len(p.steps))
	copy(out, p.steps)
	return out
}

// OperationLogger provides structured logging for operations with timing
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger.WithComponent("operation"),
		operation: operation,
		fields:    Fields{"operation": operation},
		startTime: time.Now(),
	}

	ol.logger.WithFields(ol.fields).Info("Starting operation")
	return ol
}

// WithField adds a field to the operation context
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithFields(ol.fields).
		WithField("duration", time.Since(ol.startTime).String()).
		WithField("status", "success").
		Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).
		WithFields(ol.fields).
		WithField("duration", time.Since(ol.startTime).String()).
		WithField("status", "error").
		Error(message)
}
