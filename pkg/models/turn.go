package models

import (
	"time"

	"github.com/google/uuid"
)

// PipelineState tracks a turn through the orchestrator's state machine.
type PipelineState string

const (
	StateReceived            PipelineState = "RECEIVED"
	StateIntentResolved      PipelineState = "INTENT_RESOLVED"
	StateEntitiesMapped      PipelineState = "ENTITIES_MAPPED"
	StateSQLConstructed      PipelineState = "SQL_CONSTRUCTED"
	StateValidated           PipelineState = "VALIDATED"
	StateExecuted            PipelineState = "EXECUTED"
	StateExplained           PipelineState = "EXPLAINED"
	StateComplete            PipelineState = "COMPLETE"
	StateAmbiguous           PipelineState = "AMBIGUOUS"
	StateRejected            PipelineState = "REJECTED"
	StatePendingConfirmation PipelineState = "PENDING_CONFIRMATION"
	StateFailed              PipelineState = "FAILED"
)

// Terminal reports whether the state ends a turn.
func (s PipelineState) Terminal() bool {
	switch s {
	case StateComplete, StateAmbiguous, StateRejected, StatePendingConfirmation, StateFailed:
		return true
	}
	return false
}

// StrategyName identifies which stage implementation served a request.
type StrategyName string

const (
	StrategyEnhanced StrategyName = "enhanced"
	StrategyBase     StrategyName = "base"
)

// ConversationTurn is one request/response cycle. Turns are append-only:
// corrections produce a new turn, never an edit.
type ConversationTurn struct {
	ID             uuid.UUID `json:"turn_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Question       string    `json:"question"`
	CreatedAt      time.Time `json:"created_at"`

	State    PipelineState `json:"state"`
	Intent   *Intent       `json:"intent,omitempty"`
	Mappings []EntityMapping `json:"mappings,omitempty"`

	Generation *SQLGeneration     `json:"sql_generation,omitempty"`
	Verdict    *ValidationVerdict `json:"verdict,omitempty"`
	Result     *ExecutionSummary  `json:"result,omitempty"`

	Explanation *Explanation `json:"explanation,omitempty"`
	Followups   []string     `json:"suggested_followups,omitempty"`

	// ConfirmsFingerprint is set when this turn explicitly confirms a pending
	// destructive statement from the previous turn.
	ConfirmsFingerprint string `json:"confirms_fingerprint,omitempty"`

	// StageStrategies records which strategy served each LLM-backed stage,
	// keyed by stage name ("intent", "construct", "explain").
	StageStrategies map[string]StrategyName `json:"stage_strategies,omitempty"`
}

// StatusEvent is one entry of the observational status stream.
type StatusEvent struct {
	Message   string    `json:"message"`
	Changed   bool      `json:"changed"`
	Timestamp time.Time `json:"timestamp"`
}
