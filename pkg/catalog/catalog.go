package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/models"
)

// Catalog holds the current schema snapshot for each connected database.
// Refresh builds a complete new snapshot and swaps it in atomically;
// readers always see either the old or the new snapshot, never a mix.
type Catalog struct {
	mu        sync.RWMutex
	snapshots map[string]*models.SchemaSnapshot
	versions  map[string]int64
	logger    *zap.Logger
}

// New creates an empty catalog.
func New(logger *zap.Logger) *Catalog {
	return &Catalog{
		snapshots: make(map[string]*models.SchemaSnapshot),
		versions:  make(map[string]int64),
		logger:    logger.Named("catalog"),
	}
}

// Refresh reflects the database and installs a new snapshot. Relationships
// whose endpoints were dropped during reflection are pruned so the installed
// snapshot always satisfies referential closure.
func (c *Catalog) Refresh(ctx context.Context, databaseID string, reflector Reflector) (*models.SchemaSnapshot, error) {
	tables, err := reflector.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("reflect tables: %w", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("database %s has no reflectable tables", databaseID)
	}

	rels, err := reflector.Relationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("reflect relationships: %w", err)
	}

	snapshot := &models.SchemaSnapshot{
		DatabaseID: databaseID,
		Dialect:    reflector.Dialect(),
		CreatedAt:  time.Now().UTC(),
		Tables:     tables,
	}
	for _, rel := range rels {
		if !snapshot.HasColumn(rel.SourceTable, rel.SourceColumn) ||
			!snapshot.HasColumn(rel.TargetTable, rel.TargetColumn) {
			c.logger.Warn("pruning dangling relationship",
				zap.String("source", rel.SourceTable+"."+rel.SourceColumn),
				zap.String("target", rel.TargetTable+"."+rel.TargetColumn))
			continue
		}
		snapshot.Relationships = append(snapshot.Relationships, rel)
	}

	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot validation: %w", err)
	}

	c.mu.Lock()
	c.versions[databaseID]++
	snapshot.Version = c.versions[databaseID]
	c.snapshots[databaseID] = snapshot
	c.mu.Unlock()

	c.logger.Info("schema snapshot installed",
		zap.String("database_id", databaseID),
		zap.Int64("version", snapshot.Version),
		zap.Int("tables", len(snapshot.Tables)),
		zap.Int("relationships", len(snapshot.Relationships)))

	return snapshot, nil
}

// Snapshot returns the current snapshot for a database.
func (c *Catalog) Snapshot(databaseID string) (*models.SchemaSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot, ok := c.snapshots[databaseID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return snapshot, nil
}

// Invalidate drops the snapshot for a database, forcing the next reader to
// refresh.
func (c *Catalog) Invalidate(databaseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, databaseID)
}
