// Package store persists conversation turns. Turns are append-only:
// corrections and confirmations produce new turns rather than edits, so
// the stored sequence is the full audit trail of a conversation.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/queryloom/queryloom/pkg/models"
)

// TurnStore provides data access for conversation turns.
type TurnStore interface {
	// AppendTurn persists a completed turn. The conversation row is
	// created on first append.
	AppendTurn(ctx context.Context, turn *models.ConversationTurn) error

	// ListTurns returns all turns of a conversation, oldest first.
	// Returns apperrors.ErrNotFound if the conversation does not exist.
	ListTurns(ctx context.Context, conversationID uuid.UUID) ([]*models.ConversationTurn, error)

	// LatestTurn returns the most recent turn of a conversation, or
	// apperrors.ErrNotFound if the conversation has no turns.
	LatestTurn(ctx context.Context, conversationID uuid.UUID) (*models.ConversationTurn, error)
}
