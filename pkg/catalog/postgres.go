package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/models"
)

// PostgresReflector reflects schema structure from a PostgreSQL database.
// The handle is expected to use the pgx stdlib driver.
type PostgresReflector struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresReflector creates a reflector over an existing connection.
func NewPostgresReflector(db *sql.DB, logger *zap.Logger) *PostgresReflector {
	return &PostgresReflector{db: db, logger: logger.Named("catalog.postgres")}
}

// Dialect implements Reflector.
func (r *PostgresReflector) Dialect() string { return models.DialectPostgres }

// Tables implements Reflector. A table whose columns cannot be read is
// skipped with a warning so one broken table does not block the snapshot.
func (r *PostgresReflector) Tables(ctx context.Context) ([]models.Table, error) {
	const query = `
		SELECT
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.Name, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	reflected := tables[:0]
	for _, t := range tables {
		columns, err := r.columns(ctx, t.Name)
		if err != nil {
			r.logger.Warn("skipping table, column reflection failed",
				zap.String("table", t.Name),
				zap.Error(err))
			continue
		}
		t.Columns = columns
		reflected = append(reflected, t)
	}

	return reflected, nil
}

func (r *PostgresReflector) columns(ctx context.Context, tableName string) ([]models.Column, error) {
	// pg_index.indisprimary detects PKs even when created as unique indexes.
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(pk.is_pk, false) AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true
			  AND n.nspname = 'public'
			  AND t.relname = $1
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = 'public' AND c.table_name = $1
		ORDER BY c.ordinal_position
	`

	rows, err := r.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var c models.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// Relationships implements Reflector.
func (r *PostgresReflector) Relationships(ctx context.Context) ([]models.Relationship, error) {
	const query = `
		SELECT
			kcu.table_name AS source_table,
			kcu.column_name AS source_column,
			ccu.table_name AS target_table,
			ccu.column_name AS target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var rels []models.Relationship
	for rows.Next() {
		rel := models.Relationship{Type: models.RelForeignKey}
		if err := rows.Scan(&rel.SourceTable, &rel.SourceColumn, &rel.TargetTable, &rel.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return rels, nil
}

var _ Reflector = (*PostgresReflector)(nil)
