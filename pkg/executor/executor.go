// Package executor runs validated statements against a connected database
// with hard bounds on time and result size.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/logging"
	"github.com/queryloom/queryloom/pkg/models"
)

// Config bounds statement execution.
type Config struct {
	// Timeout is the per-statement deadline.
	Timeout time.Duration
	// MaxRows caps the number of rows read; results past the cap are
	// dropped and the result marked truncated.
	MaxRows int
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		MaxRows: 1000,
	}
}

// Executor runs statements over database/sql handles. It trusts nothing: an
// empty statement is refused here even though the validator should have
// caught it upstream.
type Executor struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Executor.
func New(cfg Config, logger *zap.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultConfig().MaxRows
	}
	return &Executor{cfg: cfg, logger: logger.Named("executor")}
}

// Query runs a row-returning statement with bound parameters.
func (e *Executor) Query(ctx context.Context, db *sql.DB, sqlQuery string, args []any) (*models.ExecutionResult, error) {
	if strings.TrimSpace(sqlQuery) == "" {
		return nil, apperrors.ErrEmptyStatement
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return e.failure(sqlQuery, start, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return e.failure(sqlQuery, start, err)
	}

	result := &models.ExecutionResult{
		Status:  models.ExecSuccess,
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if len(result.Rows) >= e.cfg.MaxRows {
			result.Truncated = true
			break
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return e.failure(sqlQuery, start, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return e.failure(sqlQuery, start, err)
	}

	result.RowCount = len(result.Rows)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	e.logger.Debug("query executed",
		zap.String("query", logging.SanitizeQuery(sqlQuery)),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Int64("elapsed_ms", result.ExecutionTimeMs))

	return result, nil
}

// Exec runs a statement that modifies rows and reports the affected count.
func (e *Executor) Exec(ctx context.Context, db *sql.DB, sqlQuery string, args []any) (*models.ExecutionResult, error) {
	if strings.TrimSpace(sqlQuery) == "" {
		return nil, apperrors.ErrEmptyStatement
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return e.failure(sqlQuery, start, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report this; the execution still succeeded.
		e.logger.Debug("rows affected unavailable", zap.Error(err))
		affected = 0
	}

	return &models.ExecutionResult{
		Status:          models.ExecSuccess,
		RowsAffected:    affected,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// failure converts a driver error into an ERROR result plus a classified
// pipeline error. Timeouts and cancellations are distinguished so callers
// can report them honestly.
func (e *Executor) failure(sqlQuery string, start time.Time, err error) (*models.ExecutionResult, error) {
	result := &models.ExecutionResult{
		Status:          models.ExecError,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ErrorMessage:    logging.SanitizeError(err),
	}

	var classified error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = models.ExecCancelled
		result.ErrorMessage = "statement exceeded the execution deadline"
		classified = apperrors.New(apperrors.CategoryExecutionTimeout, result.ErrorMessage, err)
	case errors.Is(err, context.Canceled):
		result.Status = models.ExecCancelled
		result.ErrorMessage = "statement cancelled"
		classified = apperrors.New(apperrors.CategoryExecutionError, result.ErrorMessage, err)
	default:
		classified = apperrors.New(apperrors.CategoryExecutionError, "database rejected statement", err)
	}

	e.logger.Warn("execution failed",
		zap.String("query", logging.SanitizeQuery(sqlQuery)),
		zap.String("status", string(result.Status)),
		zap.Error(err))

	return result, classified
}

// normalizeValue converts driver-specific scan types into JSON-friendly
// values.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
