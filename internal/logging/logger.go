// Package logging provides categorized logging for cfdwind on top of zap.
// Each pipeline stage logs under its own category; every category is a named
// child of one root zap.Logger, so the category shows up as the logger name in
// both console and JSON output. Categories can be switched off individually.
//
// Until Initialize (or SetLogger) is called every logger is a no-op.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // CLI startup, config loading
	CategoryInput    Category = "input"    // Object tree decoding and filtering
	CategoryDomain   Category = "domain"   // Bounding box, domain and subdomain math
	CategoryCase     Category = "case"     // Case directory writing
	CategorySolver   Category = "solver"   // External process execution
	CategoryHarvest  Category = "harvest"  // Log artifact harvesting
	CategoryResult   Category = "result"   // Flow-field loading and conversion
	CategoryAnnotate Category = "annotate" // Wireframes and wind arrow
	CategoryPipeline Category = "pipeline" // Run sequencing and outcome classification
	CategoryLedger   Category = "ledger"   // Publish/status sink
	CategoryMetrics  Category = "metrics"  // Metric export
	CategoryWatch    Category = "watch"    // Inbox watcher
)

// Options mirrors config.LoggingConfig to avoid circular imports.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional extra output path
	Categories map[string]bool // per-category toggles, missing = enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from opts.
func Initialize(opts Options) error {
	cfg := zap.NewProductionConfig()
	if opts.Format == "console" || opts.Format == "text" {
		cfg = zap.NewDevelopmentConfig()
	}
	if opts.Level != "" {
		lvl, err := zap.ParseAtomicLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = lvl
	}
	cfg.OutputPaths = []string{"stderr"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	SetLogger(l, opts.Categories)
	return nil
}

// SetLogger installs l as the root logger. A nil l resets to no-op.
func SetLogger(l *zap.Logger, cats map[string]bool) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	root = l
	categories = cats
	loggers = make(map[Category]*Logger)
}

// Root returns the root zap logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Root().Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	enabled := IsCategoryEnabled(category)

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	base := root
	if !enabled {
		base = zap.NewNop()
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// With returns a child logger that attaches key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// WithRun returns a logger for category that tags every entry with the run id.
func WithRun(category Category, runID string) *Logger {
	return Get(category).With("run_id", runID)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Input(format string, args ...interface{})      { Get(CategoryInput).Info(format, args...) }
func InputDebug(format string, args ...interface{}) { Get(CategoryInput).Debug(format, args...) }
func InputWarn(format string, args ...interface{})  { Get(CategoryInput).Warn(format, args...) }

func Domain(format string, args ...interface{})      { Get(CategoryDomain).Info(format, args...) }
func DomainDebug(format string, args ...interface{}) { Get(CategoryDomain).Debug(format, args...) }

func Case(format string, args ...interface{})      { Get(CategoryCase).Info(format, args...) }
func CaseDebug(format string, args ...interface{}) { Get(CategoryCase).Debug(format, args...) }
func CaseError(format string, args ...interface{}) { Get(CategoryCase).Error(format, args...) }

func Solver(format string, args ...interface{})      { Get(CategorySolver).Info(format, args...) }
func SolverDebug(format string, args ...interface{}) { Get(CategorySolver).Debug(format, args...) }
func SolverWarn(format string, args ...interface{})  { Get(CategorySolver).Warn(format, args...) }
func SolverError(format string, args ...interface{}) { Get(CategorySolver).Error(format, args...) }

func Harvest(format string, args ...interface{})      { Get(CategoryHarvest).Info(format, args...) }
func HarvestDebug(format string, args ...interface{}) { Get(CategoryHarvest).Debug(format, args...) }

func Result(format string, args ...interface{})     { Get(CategoryResult).Info(format, args...) }
func ResultWarn(format string, args ...interface{}) { Get(CategoryResult).Warn(format, args...) }

func AnnotateDebug(format string, args ...interface{}) { Get(CategoryAnnotate).Debug(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warn(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

func Ledger(format string, args ...interface{})      { Get(CategoryLedger).Info(format, args...) }
func LedgerDebug(format string, args ...interface{}) { Get(CategoryLedger).Debug(format, args...) }

func Watch(format string, args ...interface{})      { Get(CategoryWatch).Info(format, args...) }
func WatchWarn(format string, args ...interface{})  { Get(CategoryWatch).Warn(format, args...) }
func WatchError(format string, args ...interface{}) { Get(CategoryWatch).Error(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
