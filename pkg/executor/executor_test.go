package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/models"
)

func newTestExecutor(cfg Config) *Executor {
	return New(cfg, zap.NewNop())
}

func TestQuery_ReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name, email FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"name", "email"}).
			AddRow("John Smith", "john@example.com").
			AddRow("Jane Doe", "jane@example.com"))

	e := newTestExecutor(DefaultConfig())
	result, err := e.Query(context.Background(), db, "SELECT name, email FROM customers", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecSuccess, result.Status)
	assert.Equal(t, []string{"name", "email"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.False(t, result.Truncated)
	assert.Equal(t, "John Smith", result.Rows[0]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_BindsParameters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT \* FROM orders WHERE status = \$1`).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(4).AddRow(6))

	e := newTestExecutor(DefaultConfig())
	result, err := e.Query(context.Background(), db, "SELECT * FROM orders WHERE status = $1", []any{"pending"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_TruncatesAtRowCap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"n"})
	for i := 0; i < 10; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT n FROM t").WillReturnRows(rows)

	e := newTestExecutor(Config{Timeout: time.Second, MaxRows: 3})
	result, err := e.Query(context.Background(), db, "SELECT n FROM t", nil)
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Equal(t, 3, result.RowCount)
}

func TestQuery_EmptyStatementRefused(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := newTestExecutor(DefaultConfig())
	_, err = e.Query(context.Background(), db, "   ", nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptyStatement)
}

func TestQuery_DatabaseErrorClassified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("relation does not exist"))

	e := newTestExecutor(DefaultConfig())
	result, err := e.Query(context.Background(), db, "SELECT broken", nil)
	require.Error(t, err)

	assert.Equal(t, models.ExecError, result.Status)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Equal(t, apperrors.CategoryExecutionError, apperrors.CategoryOf(err))
}

func TestQuery_TimeoutClassified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT slow").WillReturnError(context.DeadlineExceeded)

	e := newTestExecutor(DefaultConfig())
	result, err := e.Query(context.Background(), db, "SELECT slow", nil)
	require.Error(t, err)

	assert.Equal(t, models.ExecCancelled, result.Status)
	assert.Equal(t, apperrors.CategoryExecutionTimeout, apperrors.CategoryOf(err))
}

func TestQuery_ByteSlicesBecomeStrings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow([]byte("Alice Brown")))

	e := newTestExecutor(DefaultConfig())
	result, err := e.Query(context.Background(), db, "SELECT name FROM customers", nil)
	require.NoError(t, err)
	assert.Equal(t, "Alice Brown", result.Rows[0]["name"])
}

func TestExec_ReportsRowsAffected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs("cancelled").
		WillReturnResult(sqlmock.NewResult(0, 2))

	e := newTestExecutor(DefaultConfig())
	result, err := e.Exec(context.Background(), db, "UPDATE orders SET status = $1", []any{"cancelled"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecSuccess, result.Status)
	assert.Equal(t, int64(2), result.RowsAffected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummarize_BoundsSampleRows(t *testing.T) {
	result := &models.ExecutionResult{
		Status:   models.ExecSuccess,
		Columns:  []string{"n"},
		RowCount: 8,
	}
	for i := 0; i < 8; i++ {
		result.Rows = append(result.Rows, map[string]any{"n": i})
	}

	summary := result.Summarize()
	assert.Equal(t, 8, summary.RowCount)
	assert.Len(t, summary.SampleRows, 5)
}
