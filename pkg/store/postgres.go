package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/database"
	"github.com/queryloom/queryloom/pkg/models"
)

// postgresStore implements TurnStore on the engine's postgres pool.
type postgresStore struct {
	db *database.DB
}

var _ TurnStore = (*postgresStore)(nil)

// NewPostgresStore creates a TurnStore backed by the engine store.
func NewPostgresStore(db *database.DB) TurnStore {
	return &postgresStore{db: db}
}

func (s *postgresStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	payload, err := marshalStages(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn payload: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		turn.ConversationID, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_turns (
			id, conversation_id, question, state,
			confirms_fingerprint, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		turn.ID,
		turn.ConversationID,
		turn.Question,
		string(turn.State),
		turn.ConfirmsFingerprint,
		payload,
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

func (s *postgresStore) ListTurns(ctx context.Context, conversationID uuid.UUID) ([]*models.ConversationTurn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, question, state,
		       confirms_fingerprint, payload, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.ConversationTurn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	if len(turns) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return turns, nil
}

func (s *postgresStore) LatestTurn(ctx context.Context, conversationID uuid.UUID) (*models.ConversationTurn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, question, state,
		       confirms_fingerprint, payload, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest turn: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to load latest turn: %w", err)
		}
		return nil, apperrors.ErrNotFound
	}
	return scanTurn(rows)
}

// turnPayload carries the stage artifacts stored as one JSONB column.
// Scalar columns (question, state, fingerprint) stay queryable; the
// artifacts are only ever read back whole.
type turnPayload struct {
	Intent          *models.Intent                      `json:"intent,omitempty"`
	Mappings        []models.EntityMapping              `json:"mappings,omitempty"`
	Generation      *models.SQLGeneration               `json:"generation,omitempty"`
	Verdict         *models.ValidationVerdict           `json:"verdict,omitempty"`
	Result          *models.ExecutionSummary            `json:"result,omitempty"`
	Explanation     *models.Explanation                 `json:"explanation,omitempty"`
	Followups       []string                            `json:"followups,omitempty"`
	StageStrategies map[string]models.StrategyName      `json:"stage_strategies,omitempty"`
}

func marshalStages(turn *models.ConversationTurn) ([]byte, error) {
	return json.Marshal(turnPayload{
		Intent:          turn.Intent,
		Mappings:        turn.Mappings,
		Generation:      turn.Generation,
		Verdict:         turn.Verdict,
		Result:          turn.Result,
		Explanation:     turn.Explanation,
		Followups:       turn.Followups,
		StageStrategies: turn.StageStrategies,
	})
}

func scanTurn(rows pgx.Rows) (*models.ConversationTurn, error) {
	var (
		turn    models.ConversationTurn
		state   string
		payload []byte
	)
	if err := rows.Scan(
		&turn.ID,
		&turn.ConversationID,
		&turn.Question,
		&state,
		&turn.ConfirmsFingerprint,
		&payload,
		&turn.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan turn: %w", err)
	}
	turn.State = models.PipelineState(state)

	var stages turnPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &stages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn payload: %w", err)
		}
	}
	turn.Intent = stages.Intent
	turn.Mappings = stages.Mappings
	turn.Generation = stages.Generation
	turn.Verdict = stages.Verdict
	turn.Result = stages.Result
	turn.Explanation = stages.Explanation
	turn.Followups = stages.Followups
	turn.StageStrategies = stages.StageStrategies
	return &turn, nil
}
