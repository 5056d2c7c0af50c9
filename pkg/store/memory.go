package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/models"
)

// MemoryStore is an in-memory TurnStore used in tests and when the
// engine runs without a persistence backend.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[uuid.UUID][]*models.ConversationTurn
}

var _ TurnStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[uuid.UUID][]*models.ConversationTurn)}
}

func (s *MemoryStore) AppendTurn(_ context.Context, turn *models.ConversationTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	copied := *turn

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], &copied)
	return nil
}

func (s *MemoryStore) ListTurns(_ context.Context, conversationID uuid.UUID) ([]*models.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.turns[conversationID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := make([]*models.ConversationTurn, len(stored))
	for i, t := range stored {
		copied := *t
		out[i] = &copied
	}
	return out, nil
}

func (s *MemoryStore) LatestTurn(_ context.Context, conversationID uuid.UUID) (*models.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.turns[conversationID]
	if !ok || len(stored) == 0 {
		return nil, apperrors.ErrNotFound
	}
	copied := *stored[len(stored)-1]
	return &copied, nil
}
