// Package catalog maintains versioned schema snapshots for connected
// databases. Snapshots are immutable; a refresh builds a new snapshot and
// swaps it in atomically so in-flight requests keep the view they started
// with.
package catalog

import (
	"context"

	"github.com/queryloom/queryloom/pkg/models"
)

// Reflector reads structure from one live database. Implementations tolerate
// partial failure: a table whose metadata cannot be read is skipped and
// logged, not fatal to the whole reflection.
type Reflector interface {
	// Dialect returns the SQL dialect of the reflected database.
	Dialect() string
	// Tables returns the reflected user tables with their columns.
	Tables(ctx context.Context) ([]models.Table, error)
	// Relationships returns foreign-key edges between reflected tables.
	Relationships(ctx context.Context) ([]models.Relationship, error)
}
