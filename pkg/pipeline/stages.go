package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/llm"
	"github.com/queryloom/queryloom/pkg/models"
	"github.com/queryloom/queryloom/pkg/sqlsafe"
)

// IntentClassifier extracts structured intent from question text.
type IntentClassifier interface {
	Classify(ctx context.Context, question string, history []*models.ConversationTurn) (*models.Intent, error)
}

// ConstructInput carries everything the constructor stage needs.
type ConstructInput struct {
	Intent   *models.Intent
	Mappings []models.EntityMapping
	Snapshot *models.SchemaSnapshot
}

// QueryConstructor emits a parameterized SQL statement for an intent.
type QueryConstructor interface {
	Construct(ctx context.Context, in ConstructInput) (*models.SQLGeneration, error)
}

// ExplainInput carries everything the explainer stage needs.
type ExplainInput struct {
	SQL      string
	Mappings []models.EntityMapping
	Summary  *models.ExecutionSummary
	Style    models.ExplanationStyle
}

// Explainer produces the natural-language description of an executed
// statement plus suggested follow-up questions.
type Explainer interface {
	Explain(ctx context.Context, in ExplainInput) (*models.Explanation, []string, error)
}

// Strategies is one complete set of LLM-backed stage implementations.
// The orchestrator holds an enhanced and a base set and falls back per
// stage when the enhanced one fails.
type Strategies struct {
	Name        models.StrategyName
	Classifier  IntentClassifier
	Constructor QueryConstructor
	Explainer   Explainer
}

// NewStrategies builds the stage set served by one model client.
func NewStrategies(name models.StrategyName, client llm.Client, logger *zap.Logger) *Strategies {
	return &Strategies{
		Name:        name,
		Classifier:  &llmClassifier{client: client, logger: logger.Named("classify")},
		Constructor: &llmConstructor{client: client, logger: logger.Named("construct")},
		Explainer:   &llmExplainer{client: client, logger: logger.Named("explain")},
	}
}

type llmClassifier struct {
	client llm.Client
	logger *zap.Logger
}

var _ IntentClassifier = (*llmClassifier)(nil)

type intentResponse struct {
	Operation      string                 `json:"operation"`
	Mentions       []models.EntityMention `json:"mentions"`
	Conditions     []models.Condition     `json:"conditions"`
	Confidence     float64                `json:"confidence"`
	Ambiguous      bool                   `json:"ambiguous"`
	Clarifications []string               `json:"clarifications"`
}

func (c *llmClassifier) Classify(ctx context.Context, question string, history []*models.ConversationTurn) (*models.Intent, error) {
	result, err := c.client.Complete(ctx, llm.CompletionRequest{
		System:      intentSystemPrompt,
		Prompt:      BuildIntentPrompt(question, history),
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ParseJSONResponse[intentResponse](result.Content)
	if err != nil {
		c.logger.Warn("unparseable intent response", zap.Error(err))
		return nil, llm.NewError(llm.ErrorTypeParse, "intent response is not valid JSON", false, err)
	}

	intent := &models.Intent{
		Operation:      parseOperation(parsed.Operation),
		Mentions:       parsed.Mentions,
		Conditions:     parsed.Conditions,
		Confidence:     parsed.Confidence,
		Ambiguous:      parsed.Ambiguous,
		Clarifications: parsed.Clarifications,
	}
	c.logger.Debug("classified intent",
		zap.String("operation", string(intent.Operation)),
		zap.Float64("confidence", intent.Confidence),
		zap.Int("mentions", len(intent.Mentions)))
	return intent, nil
}

func parseOperation(s string) models.Operation {
	switch op := models.Operation(strings.ToUpper(strings.TrimSpace(s))); op {
	case models.OpRead, models.OpAggregate, models.OpInsert, models.OpUpdate, models.OpDelete, models.OpDDL:
		return op
	}
	return models.OpUnknown
}

type llmConstructor struct {
	client llm.Client
	logger *zap.Logger
}

var _ QueryConstructor = (*llmConstructor)(nil)

type constructResponse struct {
	SQL               string         `json:"sql"`
	Parameters        map[string]any `json:"parameters"`
	Confidence        float64        `json:"confidence"`
	Alternatives      []string       `json:"alternatives"`
	Warnings          []string       `json:"warnings"`
	ReferencedTables  []string       `json:"referenced_tables"`
	ReferencedColumns []string       `json:"referenced_columns"`
}

func (c *llmConstructor) Construct(ctx context.Context, in ConstructInput) (*models.SQLGeneration, error) {
	tables := models.ResolvedTables(in.Mappings)
	joins, joinable := JoinPath(in.Snapshot, tables)

	result, err := c.client.Complete(ctx, llm.CompletionRequest{
		System:      constructSystemPrompt,
		Prompt:      BuildConstructPrompt(in.Intent, in.Mappings, in.Snapshot, joins, joinable),
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ParseJSONResponse[constructResponse](result.Content)
	if err != nil {
		c.logger.Warn("unparseable construction response", zap.Error(err))
		return nil, llm.NewError(llm.ErrorTypeParse, "construction response is not valid JSON", false, err)
	}
	if strings.TrimSpace(parsed.SQL) == "" {
		return nil, llm.NewError(llm.ErrorTypeParse, "construction response contains no SQL", false, nil)
	}

	gen := &models.SQLGeneration{
		SQL:               parsed.SQL,
		Parameters:        parsed.Parameters,
		Confidence:        parsed.Confidence,
		Alternatives:      parsed.Alternatives,
		Warnings:          parsed.Warnings,
		ReferencedTables:  parsed.ReferencedTables,
		ReferencedColumns: parsed.ReferencedColumns,
	}
	if len(gen.ReferencedTables) == 0 {
		gen.ReferencedTables = tables
	}
	if !joinable && len(tables) > 1 {
		gen.Warnings = append(gen.Warnings,
			fmt.Sprintf("no relationship path connects %s", strings.Join(tables, ", ")))
	}

	// Placeholders and values must agree before the statement goes anywhere
	// near the validator.
	if err := sqlsafe.ValidateParameterValues(gen.SQL, gen.Parameters); err != nil {
		return nil, llm.NewError(llm.ErrorTypeParse, err.Error(), false, err)
	}
	return gen, nil
}

type llmExplainer struct {
	client llm.Client
	logger *zap.Logger
}

var _ Explainer = (*llmExplainer)(nil)

type explainResponse struct {
	Text               string   `json:"text"`
	ReferencedConcepts []string `json:"referenced_concepts"`
	SuggestedFollowups []string `json:"suggested_followups"`
}

func (e *llmExplainer) Explain(ctx context.Context, in ExplainInput) (*models.Explanation, []string, error) {
	result, err := e.client.Complete(ctx, llm.CompletionRequest{
		System:      explainSystemPrompt,
		Prompt:      BuildExplainPrompt(in.SQL, in.Mappings, in.Summary, in.Style),
		Temperature: 0.3,
	})
	if err != nil {
		return nil, nil, err
	}

	parsed, err := llm.ParseJSONResponse[explainResponse](result.Content)
	if err != nil {
		e.logger.Warn("unparseable explanation response", zap.Error(err))
		return nil, nil, llm.NewError(llm.ErrorTypeParse, "explanation response is not valid JSON", false, err)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return nil, nil, llm.NewError(llm.ErrorTypeParse, "explanation response contains no text", false, nil)
	}

	explanation := &models.Explanation{
		Text:               parsed.Text,
		Style:              in.Style,
		ReferencedConcepts: parsed.ReferencedConcepts,
	}
	return explanation, parsed.SuggestedFollowups, nil
}
