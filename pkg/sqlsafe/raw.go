package sqlsafe

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/logging"
	"github.com/queryloom/queryloom/pkg/models"
)

// RawInput carries a caller-written statement through the lighter raw gate.
type RawInput struct {
	SQL string
	// Access restricts which tables the caller may reference. Nil means
	// unrestricted.
	Access TableAccess
	// ConfirmedFingerprint matches a previously pending destructive statement.
	ConfirmedFingerprint string
}

// ValidateRaw gates caller-written SQL. Raw statements have no parameter
// template, so the parameterization checks do not apply; structural limits,
// the complexity budget, and the destructive-operation policy still do.
func (v *Validator) ValidateRaw(in RawInput) *models.ValidationVerdict {
	verdict := &models.ValidationVerdict{Outcome: models.VerdictPass}

	norm := ValidateAndNormalize(in.SQL)
	if norm.Error != nil {
		v.fail(verdict, models.FindingStructural, norm.Error.Error())
		return verdict
	}
	if norm.NormalizedSQL == "" {
		v.fail(verdict, models.FindingStructural, "empty statement")
		return verdict
	}
	sql := norm.NormalizedSQL
	verdict.Fingerprint = Fingerprint(sql)

	if in.Access != nil {
		for _, table := range ReferencedTables(sql) {
			if !in.Access.CanAccess(table) {
				v.fail(verdict, models.FindingPermission,
					fmt.Sprintf("access to table %q denied", table))
			}
		}
	}

	if joins := CountJoins(sql); joins > v.budget.MaxJoins {
		v.fail(verdict, models.FindingComplexity,
			fmt.Sprintf("statement has %d joins, budget allows %d", joins, v.budget.MaxJoins))
	}
	if depth := MaxSubqueryDepth(sql); depth > v.budget.MaxSubqueryDepth {
		v.fail(verdict, models.FindingComplexity,
			fmt.Sprintf("subquery depth %d exceeds budget %d", depth, v.budget.MaxSubqueryDepth))
	}

	if verdict.Outcome == models.VerdictFail {
		v.logger.Warn("raw statement rejected",
			zap.String("query", logging.SanitizeQuery(sql)),
			zap.Int("findings", len(verdict.Findings)))
		return verdict
	}

	op := ClassifyStatement(sql)
	if op == models.OpDDL {
		v.fail(verdict, models.FindingDestructive, "DDL statements are not permitted")
		return verdict
	}
	if op.IsDestructive() {
		if in.ConfirmedFingerprint == verdict.Fingerprint {
			verdict.Findings = append(verdict.Findings, models.Finding{
				Category: models.FindingDestructive,
				Severity: models.SeverityInfo,
				Message:  "destructive statement confirmed by caller",
			})
			return verdict
		}
		verdict.Outcome = models.VerdictNeedsConfirmation
		verdict.Findings = append(verdict.Findings, models.Finding{
			Category: models.FindingDestructive,
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("%s statement requires confirmation", op),
		})
	}

	return verdict
}
