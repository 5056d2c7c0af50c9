package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/catalog"
	"github.com/queryloom/queryloom/pkg/events"
	"github.com/queryloom/queryloom/pkg/executor"
	"github.com/queryloom/queryloom/pkg/llm"
	"github.com/queryloom/queryloom/pkg/models"
	"github.com/queryloom/queryloom/pkg/resolver"
	"github.com/queryloom/queryloom/pkg/sqlsafe"
	"github.com/queryloom/queryloom/pkg/store"
)

// Sources supplies the active data source and its schema snapshot.
// *catalog.Manager satisfies it.
type Sources interface {
	Active() (*catalog.Source, error)
	Snapshot(databaseID string) (*models.SchemaSnapshot, error)
}

var _ Sources = (*catalog.Manager)(nil)

// Stage names recorded in StageStrategies.
const (
	stageIntent    = "intent"
	stageConstruct = "construct"
	stageExplain   = "explain"
)

// Config holds orchestrator tuning knobs.
type Config struct {
	// ConfidenceFloor is the minimum intent confidence; below it the turn
	// terminates AMBIGUOUS with clarification questions.
	ConfidenceFloor float64
	// RequestTimeout bounds one turn end to end, LLM calls included.
	RequestTimeout time.Duration
}

// DefaultConfig returns the standard orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor: 0.5,
		RequestTimeout:  60 * time.Second,
	}
}

// Orchestrator drives one question through the pipeline state machine.
// Independent conversations run concurrently; turns within one conversation
// are serialized so each turn sees its predecessor's persisted context.
type Orchestrator struct {
	cfg       Config
	sources   Sources
	turns     store.TurnStore
	resolver  *resolver.Resolver
	validator *sqlsafe.Validator
	executor  *executor.Executor
	broker    *events.Broker
	enhanced  *Strategies
	base      *Strategies
	logger    *zap.Logger

	convLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewOrchestrator wires the pipeline together. The base strategy set may be
// nil, in which case enhanced-stage failures are terminal.
func NewOrchestrator(
	cfg Config,
	sources Sources,
	turns store.TurnStore,
	res *resolver.Resolver,
	validator *sqlsafe.Validator,
	exec *executor.Executor,
	broker *events.Broker,
	enhanced, base *Strategies,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		sources:   sources,
		turns:     turns,
		resolver:  res,
		validator: validator,
		executor:  exec,
		broker:    broker,
		enhanced:  enhanced,
		base:      base,
		logger:    logger.Named("pipeline"),
	}
}

// ProcessRequest is one question submission.
type ProcessRequest struct {
	Question       string
	ConversationID uuid.UUID // uuid.Nil starts a new conversation
	Style          models.ExplanationStyle
	Execute        bool
	// ConfirmFingerprint confirms the pending destructive statement of the
	// previous turn instead of asking a new question.
	ConfirmFingerprint string
}

// ProcessResponse is the outcome of one turn. ErrorCategory and ErrorMessage
// are set when the turn ended FAILED; internal errors never leak through them.
type ProcessResponse struct {
	ConversationID uuid.UUID                      `json:"conversation_id"`
	TurnID         uuid.UUID                      `json:"turn_id"`
	State          models.PipelineState           `json:"state"`
	Intent         *models.Intent                 `json:"intent,omitempty"`
	Generation     *models.SQLGeneration          `json:"sql_generation,omitempty"`
	Verdict        *models.ValidationVerdict      `json:"verdict,omitempty"`
	Result         *models.ExecutionResult        `json:"query_result,omitempty"`
	Explanation    *models.Explanation            `json:"explanation,omitempty"`
	Followups      []string                       `json:"suggested_followups,omitempty"`
	Clarifications []string                       `json:"clarifications,omitempty"`
	// PendingFingerprint identifies a destructive statement awaiting
	// confirmation on the next turn.
	PendingFingerprint string                         `json:"pending_fingerprint,omitempty"`
	StageStrategies    map[string]models.StrategyName `json:"stage_strategies,omitempty"`
	ErrorCategory      apperrors.Category             `json:"error_category,omitempty"`
	ErrorMessage       string                         `json:"error_message,omitempty"`
}

// Process runs one turn. It returns an error only when no turn could be
// attempted at all (no question, no active database, store unavailable);
// every pipeline-semantic outcome, including FAILED, comes back as a response.
func (o *Orchestrator) Process(ctx context.Context, access sqlsafe.TableAccess, req ProcessRequest) (*ProcessResponse, error) {
	if req.Question == "" && req.ConfirmFingerprint == "" {
		return nil, apperrors.New(apperrors.CategoryInternal, "empty question", nil)
	}

	convID := req.ConversationID
	newConversation := convID == uuid.Nil
	if newConversation {
		convID = uuid.New()
	}

	unlock := o.lockConversation(convID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	turn := &models.ConversationTurn{
		ID:              uuid.New(),
		ConversationID:  convID,
		Question:        req.Question,
		CreatedAt:       time.Now().UTC(),
		State:           models.StateReceived,
		StageStrategies: make(map[string]models.StrategyName),
	}
	o.broker.Publish(convID, "question received", true)

	var history []*models.ConversationTurn
	if !newConversation {
		var err error
		history, err = o.turns.ListTurns(ctx, convID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.New(apperrors.CategoryUpstreamUnavailable, "conversation store unavailable", err)
		}
	}

	source, err := o.sources.Active()
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUpstreamUnavailable, "no active database connection", err)
	}
	snapshot, err := o.sources.Snapshot(source.ID)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryUpstreamUnavailable, "no schema snapshot for active database", err)
	}

	var resp *ProcessResponse
	if req.ConfirmFingerprint != "" {
		resp = o.runConfirmation(ctx, access, req, turn, history, source)
	} else {
		resp = o.runQuestion(ctx, access, req, turn, history, source, snapshot)
	}

	if err := o.turns.AppendTurn(ctx, turn); err != nil {
		// The turn already ran; losing its record costs follow-up context
		// but should not discard the caller's result.
		o.logger.Error("failed to persist turn",
			zap.String("conversation_id", convID.String()),
			zap.Error(err))
	}
	return resp, nil
}

// runQuestion drives the full chain for a fresh question.
func (o *Orchestrator) runQuestion(
	ctx context.Context,
	access sqlsafe.TableAccess,
	req ProcessRequest,
	turn *models.ConversationTurn,
	history []*models.ConversationTurn,
	source *catalog.Source,
	snapshot *models.SchemaSnapshot,
) *ProcessResponse {
	intent, err := runStage(o, turn, stageIntent, func(s *Strategies) (*models.Intent, error) {
		return s.Classifier.Classify(ctx, req.Question, history)
	})
	if err != nil {
		return o.failTurn(turn, stageErrCategory(err, apperrors.CategoryInternal), "intent classification failed", err)
	}
	turn.Intent = intent
	o.transition(turn, models.StateIntentResolved, "intent resolved")

	if intent.Ambiguous || intent.Confidence < o.cfg.ConfidenceFloor {
		if len(intent.Clarifications) == 0 {
			intent.Clarifications = []string{"Could you say more precisely which data you are looking for?"}
		}
		o.transition(turn, models.StateAmbiguous, "question is ambiguous")
		return o.respond(turn, nil)
	}

	mappings := o.resolver.Resolve(intent, snapshot)
	turn.Mappings = mappings
	o.transition(turn, models.StateEntitiesMapped, fmt.Sprintf("%d entities mapped", len(mappings)))

	gen, err := runStage(o, turn, stageConstruct, func(s *Strategies) (*models.SQLGeneration, error) {
		return s.Constructor.Construct(ctx, ConstructInput{
			Intent:   intent,
			Mappings: mappings,
			Snapshot: snapshot,
		})
	})
	if err != nil {
		return o.failTurn(turn, stageErrCategory(err, apperrors.CategoryConstructionFailed), "SQL construction failed", err)
	}
	for _, m := range mappings {
		if !m.Resolved() {
			gen.Warnings = append(gen.Warnings, fmt.Sprintf("mention %q did not resolve to a schema object", m.Mention))
		}
	}
	turn.Generation = gen
	o.transition(turn, models.StateSQLConstructed, "statement constructed")

	verdict := o.validator.Validate(sqlsafe.ValidateInput{Generation: gen, Access: access})
	turn.Verdict = verdict
	o.transition(turn, models.StateValidated, "statement validated")

	switch verdict.Outcome {
	case models.VerdictFail:
		o.transition(turn, models.StateRejected, "statement rejected")
		return o.respond(turn, nil)
	case models.VerdictNeedsConfirmation:
		o.transition(turn, models.StatePendingConfirmation, "confirmation required")
		return o.respond(turn, nil)
	}

	var result *models.ExecutionResult
	if req.Execute {
		result, err = o.execute(ctx, source, gen)
		turn.Result = result.Summarize()
		if err != nil {
			return o.failTurn(turn, apperrors.CategoryOf(err), "execution failed", err)
		}
		o.transition(turn, models.StateExecuted, fmt.Sprintf("%d rows", result.RowCount))
	}

	if err := o.explain(ctx, turn, gen.SQL, req.Style); err != nil {
		return o.failTurn(turn, stageErrCategory(err, apperrors.CategoryInternal), "explanation failed", err)
	}

	o.transition(turn, models.StateComplete, "turn complete")
	return o.respond(turn, result)
}

// runConfirmation executes the previous turn's pending destructive statement
// once the caller has confirmed its fingerprint.
func (o *Orchestrator) runConfirmation(
	ctx context.Context,
	access sqlsafe.TableAccess,
	req ProcessRequest,
	turn *models.ConversationTurn,
	history []*models.ConversationTurn,
	source *catalog.Source,
) *ProcessResponse {
	pending := pendingTurn(history)
	if pending == nil || pending.Verdict.Fingerprint != req.ConfirmFingerprint {
		turn.Verdict = &models.ValidationVerdict{
			Outcome: models.VerdictFail,
			Findings: []models.Finding{{
				Category: models.FindingDestructive,
				Severity: models.SeverityCritical,
				Message:  "confirmation does not match a pending statement",
			}},
		}
		o.transition(turn, models.StateRejected, "stale confirmation rejected")
		return o.respond(turn, nil)
	}

	turn.ConfirmsFingerprint = req.ConfirmFingerprint
	turn.Intent = pending.Intent
	turn.Mappings = pending.Mappings
	turn.Generation = pending.Generation
	if turn.Question == "" {
		turn.Question = pending.Question
	}

	verdict := o.validator.Validate(sqlsafe.ValidateInput{
		Generation:           pending.Generation,
		Access:               access,
		ConfirmedFingerprint: req.ConfirmFingerprint,
	})
	turn.Verdict = verdict
	o.transition(turn, models.StateValidated, "confirmed statement revalidated")
	if verdict.Outcome != models.VerdictPass {
		o.transition(turn, models.StateRejected, "confirmed statement rejected")
		return o.respond(turn, nil)
	}

	result, err := o.execute(ctx, source, pending.Generation)
	turn.Result = result.Summarize()
	if err != nil {
		return o.failTurn(turn, apperrors.CategoryOf(err), "execution failed", err)
	}
	o.transition(turn, models.StateExecuted, fmt.Sprintf("%d rows affected", result.RowsAffected))

	if err := o.explain(ctx, turn, pending.Generation.SQL, req.Style); err != nil {
		return o.failTurn(turn, stageErrCategory(err, apperrors.CategoryInternal), "explanation failed", err)
	}

	o.transition(turn, models.StateComplete, "turn complete")
	return o.respond(turn, result)
}

// execute substitutes parameters for the source dialect and runs the
// statement through the bounded executor.
func (o *Orchestrator) execute(ctx context.Context, source *catalog.Source, gen *models.SQLGeneration) (*models.ExecutionResult, error) {
	bound, args, err := sqlsafe.SubstituteParameters(gen.SQL, gen.Parameters, source.Dialect)
	if err != nil {
		return &models.ExecutionResult{Status: models.ExecError, ErrorMessage: err.Error()},
			apperrors.New(apperrors.CategoryExecutionError, "parameter substitution failed", err)
	}
	if sqlsafe.ClassifyStatement(gen.SQL).IsDestructive() {
		return o.executor.Exec(ctx, source.DB, bound, args)
	}
	return o.executor.Query(ctx, source.DB, bound, args)
}

// explain runs the explainer stage and attaches its output to the turn.
func (o *Orchestrator) explain(ctx context.Context, turn *models.ConversationTurn, sqlText string, style models.ExplanationStyle) error {
	out, err := runStage(o, turn, stageExplain, func(s *Strategies) (explainOutput, error) {
		explanation, followups, err := s.Explainer.Explain(ctx, ExplainInput{
			SQL:      sqlText,
			Mappings: turn.Mappings,
			Summary:  turn.Result,
			Style:    style,
		})
		return explainOutput{explanation: explanation, followups: followups}, err
	})
	if err != nil {
		return err
	}
	turn.Explanation = out.explanation
	turn.Followups = out.followups
	o.transition(turn, models.StateExplained, "explanation ready")
	return nil
}

type explainOutput struct {
	explanation *models.Explanation
	followups   []string
}

// runStage tries the enhanced strategy, falling back to base once. The
// serving strategy is recorded on the turn.
func runStage[T any](o *Orchestrator, turn *models.ConversationTurn, stage string, run func(*Strategies) (T, error)) (T, error) {
	out, err := run(o.enhanced)
	if err == nil {
		turn.StageStrategies[stage] = o.enhanced.Name
		return out, nil
	}

	if o.base == nil {
		var zero T
		return zero, err
	}
	o.logger.Warn("enhanced strategy failed, falling back",
		zap.String("stage", stage),
		zap.Error(err))
	o.broker.Publish(turn.ConversationID, fmt.Sprintf("%s: retrying with base strategy", stage), false)

	out, err = run(o.base)
	if err != nil {
		var zero T
		return zero, err
	}
	turn.StageStrategies[stage] = o.base.Name
	return out, nil
}

// transition advances the turn's state and publishes a status event.
func (o *Orchestrator) transition(turn *models.ConversationTurn, state models.PipelineState, message string) {
	turn.State = state
	o.broker.Publish(turn.ConversationID, message, true)
	o.logger.Debug("state transition",
		zap.String("conversation_id", turn.ConversationID.String()),
		zap.String("state", string(state)))
}

// failTurn marks the turn FAILED and shapes the partial-failure response.
func (o *Orchestrator) failTurn(turn *models.ConversationTurn, category apperrors.Category, message string, err error) *ProcessResponse {
	o.logger.Warn(message,
		zap.String("conversation_id", turn.ConversationID.String()),
		zap.String("category", string(category)),
		zap.Error(err))
	o.transition(turn, models.StateFailed, message)

	resp := o.respond(turn, nil)
	resp.ErrorCategory = category
	resp.ErrorMessage = message
	return resp
}

// respond shapes the response from the turn's accumulated artifacts.
func (o *Orchestrator) respond(turn *models.ConversationTurn, result *models.ExecutionResult) *ProcessResponse {
	resp := &ProcessResponse{
		ConversationID:  turn.ConversationID,
		TurnID:          turn.ID,
		State:           turn.State,
		Intent:          turn.Intent,
		Generation:      turn.Generation,
		Verdict:         turn.Verdict,
		Result:          result,
		Explanation:     turn.Explanation,
		Followups:       turn.Followups,
		StageStrategies: turn.StageStrategies,
	}
	if turn.Intent != nil && turn.State == models.StateAmbiguous {
		resp.Clarifications = turn.Intent.Clarifications
	}
	if turn.State == models.StatePendingConfirmation && turn.Verdict != nil {
		resp.PendingFingerprint = turn.Verdict.Fingerprint
	}
	return resp
}

// pendingTurn returns the latest turn if it left a destructive statement
// awaiting confirmation. Only the immediately preceding turn counts.
func pendingTurn(history []*models.ConversationTurn) *models.ConversationTurn {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.State != models.StatePendingConfirmation || last.Verdict == nil || last.Generation == nil {
		return nil
	}
	return last
}

// stageErrCategory maps an LLM stage error to the error taxonomy: provider
// outages are retryable upstream failures, unparseable model output means the
// stage could not produce a result, everything else uses the fallback.
func stageErrCategory(err error, fallback apperrors.Category) apperrors.Category {
	if llm.IsRetryable(err) {
		return apperrors.CategoryUpstreamUnavailable
	}
	var lerr *llm.Error
	if errors.As(err, &lerr) && lerr.Type == llm.ErrorTypeParse {
		return apperrors.CategoryConstructionFailed
	}
	return fallback
}

// lockConversation serializes turns within one conversation.
func (o *Orchestrator) lockConversation(conversationID uuid.UUID) func() {
	actual, _ := o.convLocks.LoadOrStore(conversationID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
