package models

// FindingCategory classifies a safety-validation finding.
type FindingCategory string

const (
	FindingInjectionRisk FindingCategory = "injection-risk"
	FindingComplexity    FindingCategory = "complexity"
	FindingPermission    FindingCategory = "permission"
	FindingDestructive   FindingCategory = "destructive-operation"
	FindingStructural    FindingCategory = "structural"
)

// Severity ranks how serious a finding is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one issue the safety validator raised against a statement.
type Finding struct {
	Category FindingCategory `json:"category"`
	Severity Severity        `json:"severity"`
	Message  string          `json:"message"`
}

// VerdictOutcome is the safety validator's decision.
type VerdictOutcome string

const (
	VerdictPass              VerdictOutcome = "PASS"
	VerdictFail              VerdictOutcome = "FAIL"
	VerdictNeedsConfirmation VerdictOutcome = "NEEDS_CONFIRMATION"
)

// ValidationVerdict is the outcome of the deterministic safety gate.
// Fingerprint identifies the validated statement so a later confirmation turn
// can be matched to it.
type ValidationVerdict struct {
	Outcome     VerdictOutcome `json:"outcome"`
	Findings    []Finding      `json:"findings,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
}

// Passed reports whether execution is permitted.
func (v *ValidationVerdict) Passed() bool {
	return v != nil && v.Outcome == VerdictPass
}
