package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/models"
)

func TestMemoryStore_AppendAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	convID := uuid.New()

	first := &models.ConversationTurn{
		ConversationID: convID,
		Question:       "how many customers do we have",
		State:          models.StateComplete,
		CreatedAt:      time.Now().Add(-time.Minute),
	}
	second := &models.ConversationTurn{
		ConversationID: convID,
		Question:       "only the ones from last month",
		State:          models.StateComplete,
	}

	require.NoError(t, s.AppendTurn(ctx, first))
	require.NoError(t, s.AppendTurn(ctx, second))
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.NotEqual(t, uuid.Nil, second.ID)

	turns, err := s.ListTurns(ctx, convID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "how many customers do we have", turns[0].Question)
	assert.Equal(t, "only the ones from last month", turns[1].Question)
}

func TestMemoryStore_LatestTurn(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	convID := uuid.New()

	require.NoError(t, s.AppendTurn(ctx, &models.ConversationTurn{
		ConversationID: convID,
		Question:       "first",
		State:          models.StateComplete,
	}))
	require.NoError(t, s.AppendTurn(ctx, &models.ConversationTurn{
		ConversationID:      convID,
		Question:            "yes, run it",
		State:               models.StatePendingConfirmation,
		ConfirmsFingerprint: "abc123",
	}))

	latest, err := s.LatestTurn(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, "yes, run it", latest.Question)
	assert.Equal(t, "abc123", latest.ConfirmsFingerprint)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.ListTurns(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.LatestTurn(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	convID := uuid.New()

	require.NoError(t, s.AppendTurn(ctx, &models.ConversationTurn{
		ConversationID: convID,
		Question:       "original",
		State:          models.StateComplete,
	}))

	turns, err := s.ListTurns(ctx, convID)
	require.NoError(t, err)
	turns[0].Question = "mutated"

	again, err := s.ListTurns(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Question)
}
