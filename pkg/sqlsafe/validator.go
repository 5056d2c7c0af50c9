package sqlsafe

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/logging"
	"github.com/queryloom/queryloom/pkg/models"
)

// TableAccess answers whether the caller may touch a table. A nil TableAccess
// means unrestricted access.
type TableAccess interface {
	CanAccess(table string) bool
}

// Validator is the deterministic safety gate. Every statement passes through
// it before execution; there is no LLM in this path.
type Validator struct {
	budget ComplexityBudget
	logger *zap.Logger
}

// NewValidator creates a validator with the given complexity budget.
func NewValidator(budget ComplexityBudget, logger *zap.Logger) *Validator {
	return &Validator{
		budget: budget,
		logger: logger.Named("sqlsafe"),
	}
}

// ValidateInput carries everything the gate needs for one statement.
type ValidateInput struct {
	Generation *models.SQLGeneration
	// Access restricts table usage; nil means unrestricted.
	Access TableAccess
	// ConfirmedFingerprint is the fingerprint the caller is confirming, if
	// this turn confirms a previously pending destructive statement.
	ConfirmedFingerprint string
}

// Validate runs every check and returns a verdict. Checks accumulate
// findings rather than stopping at the first failure so the caller can
// report everything that is wrong with a statement at once.
func (v *Validator) Validate(in ValidateInput) *models.ValidationVerdict {
	gen := in.Generation
	verdict := &models.ValidationVerdict{Outcome: models.VerdictPass}

	norm := ValidateAndNormalize(gen.SQL)
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

	if misplaced := FindParametersInStringLiterals(sql); len(misplaced) > 0 {
		v.fail(verdict, models.FindingStructural,
			fmt.Sprintf("parameters inside string literals: %s", strings.Join(misplaced, ", ")))
	}

	if err := ValidateParameterValues(sql, gen.Parameters); err != nil {
		v.fail(verdict, models.FindingStructural, err.Error())
	}

	if literals := FindInlineStringLiterals(sql); len(literals) > 0 {
		v.fail(verdict, models.FindingInjectionRisk,
			fmt.Sprintf("inline string literal bypasses parameterization: %q", literals[0]))
	}

	for _, hit := range CheckAllParameters(gen.Parameters) {
		v.fail(verdict, models.FindingInjectionRisk,
			fmt.Sprintf("injection pattern in parameter %q (fingerprint %s)", hit.ParamName, hit.Fingerprint))
	}

	if joins := CountJoins(sql); joins > v.budget.MaxJoins {
		v.fail(verdict, models.FindingComplexity,
			fmt.Sprintf("statement has %d joins, budget allows %d", joins, v.budget.MaxJoins))
	}
	if depth := MaxSubqueryDepth(sql); depth > v.budget.MaxSubqueryDepth {
		v.fail(verdict, models.FindingComplexity,
			fmt.Sprintf("subquery depth %d exceeds budget %d", depth, v.budget.MaxSubqueryDepth))
	}

	if in.Access != nil {
		for _, table := range gen.ReferencedTables {
			if !in.Access.CanAccess(table) {
				v.fail(verdict, models.FindingPermission,
					fmt.Sprintf("access to table %q denied", table))
			}
		}
	}

	if verdict.Outcome == models.VerdictFail {
		v.logger.Warn("statement rejected",
			zap.String("query", logging.SanitizeQuery(sql)),
			zap.Int("findings", len(verdict.Findings)))
		return verdict
	}

	op := ClassifyStatement(sql)
	if op == models.OpDDL {
		// Schema changes never run through this pipeline.
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
		return verdict
	}

	return verdict
}

func (v *Validator) fail(verdict *models.ValidationVerdict, category models.FindingCategory, msg string) {
	verdict.Outcome = models.VerdictFail
	verdict.Findings = append(verdict.Findings, models.Finding{
		Category: category,
		Severity: models.SeverityCritical,
		Message:  msg,
	})
}
