package pipeline

import (
	"context"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/models"
	"github.com/queryloom/queryloom/pkg/sqlsafe"
)

// RawRequest is a caller-written statement submitted directly for execution.
type RawRequest struct {
	SQL string
	// ConfirmFingerprint confirms a destructive statement the previous
	// ExecuteRaw call left pending.
	ConfirmFingerprint string
}

// RawResponse reports the raw gate's verdict and, on PASS, the result.
type RawResponse struct {
	Verdict *models.ValidationVerdict `json:"verdict"`
	Result  *models.ExecutionResult   `json:"query_result,omitempty"`
	// PendingFingerprint identifies a destructive statement awaiting
	// confirmation on a retry.
	PendingFingerprint string `json:"pending_fingerprint,omitempty"`
}

// ExecuteRaw runs caller-written SQL through the raw safety gate and, if it
// passes, the bounded executor. Raw statements carry no parameter template;
// the structural, complexity, permission, and destructive checks still apply.
// A nil access means the caller is unrestricted.
func (o *Orchestrator) ExecuteRaw(ctx context.Context, access sqlsafe.TableAccess, req RawRequest) (*RawResponse, error) {
	source, err := o.sources.Active()
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUpstreamUnavailable, "no active database connection", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	verdict := o.validator.ValidateRaw(sqlsafe.RawInput{
		SQL:                  req.SQL,
		Access:               access,
		ConfirmedFingerprint: req.ConfirmFingerprint,
	})

	resp := &RawResponse{Verdict: verdict}
	switch verdict.Outcome {
	case models.VerdictFail:
		return resp, nil
	case models.VerdictNeedsConfirmation:
		resp.PendingFingerprint = verdict.Fingerprint
		return resp, nil
	}

	if sqlsafe.ClassifyStatement(req.SQL).IsDestructive() {
		resp.Result, err = o.executor.Exec(ctx, source.DB, req.SQL, nil)
	} else {
		resp.Result, err = o.executor.Query(ctx, source.DB, req.SQL, nil)
	}
	if err != nil {
		// The result already carries status and error message; the caller
		// sees the failure there rather than as a transport error.
		return resp, nil
	}
	return resp, nil
}
