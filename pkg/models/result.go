package models

// ExecutionStatus reports how a statement execution ended.
type ExecutionStatus string

const (
	ExecSuccess   ExecutionStatus = "SUCCESS"
	ExecError     ExecutionStatus = "ERROR"
	ExecCancelled ExecutionStatus = "CANCELLED"
)

// ExecutionResult holds a bounded result set. It is ephemeral: only the
// Summary is persisted into the conversation turn.
type ExecutionResult struct {
	Status          ExecutionStatus  `json:"status"`
	Columns         []string         `json:"columns,omitempty"`
	Rows            []map[string]any `json:"rows,omitempty"`
	RowCount        int              `json:"row_count"`
	RowsAffected    int64            `json:"rows_affected,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	Truncated       bool             `json:"truncated"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// ExecutionSummary is the bounded view of a result that survives the turn.
// SampleRows holds at most a handful of rows for the explainer's benefit.
type ExecutionSummary struct {
	Status          ExecutionStatus  `json:"status"`
	Columns         []string         `json:"columns,omitempty"`
	RowCount        int              `json:"row_count"`
	SampleRows      []map[string]any `json:"sample_rows,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	Truncated       bool             `json:"truncated"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// maxSampleRows bounds how many rows a summary keeps.
const maxSampleRows = 5

// Summarize produces the persistable summary of a result.
func (r *ExecutionResult) Summarize() *ExecutionSummary {
	if r == nil {
		return nil
	}
	s := &ExecutionSummary{
		Status:          r.Status,
		Columns:         r.Columns,
		RowCount:        r.RowCount,
		ExecutionTimeMs: r.ExecutionTimeMs,
		Truncated:       r.Truncated,
		ErrorMessage:    r.ErrorMessage,
	}
	n := len(r.Rows)
	if n > maxSampleRows {
		n = maxSampleRows
	}
	if n > 0 {
		s.SampleRows = r.Rows[:n]
	}
	return s
}
