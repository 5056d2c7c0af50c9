package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/models"
)

// MSSQLReflector reflects schema structure from a SQL Server database.
type MSSQLReflector struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMSSQLReflector creates a reflector over an existing connection.
func NewMSSQLReflector(db *sql.DB, logger *zap.Logger) *MSSQLReflector {
	return &MSSQLReflector{db: db, logger: logger.Named("catalog.mssql")}
}

// Dialect implements Reflector.
func (r *MSSQLReflector) Dialect() string { return models.DialectMSSQL }

// Tables implements Reflector.
func (r *MSSQLReflector) Tables(ctx context.Context) ([]models.Table, error) {
	const query = `
		SELECT t.TABLE_NAME, COALESCE(p.rows, 0) AS row_count
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN sys.tables st ON st.name = t.TABLE_NAME
		LEFT JOIN sys.partitions p ON p.object_id = st.object_id AND p.index_id IN (0, 1)
		WHERE t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY t.TABLE_NAME
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

func (r *MSSQLReflector) columns(ctx context.Context, tableName string) ([]models.Column, error) {
	const query = `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			  AND tc.TABLE_NAME = @p1
		) pk ON c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION
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
func (r *MSSQLReflector) Relationships(ctx context.Context) ([]models.Relationship, error) {
	const query = `
		SELECT
			OBJECT_NAME(fkc.parent_object_id),
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
			OBJECT_NAME(fkc.referenced_object_id),
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id)
		FROM sys.foreign_key_columns fkc
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

var _ Reflector = (*MSSQLReflector)(nil)
