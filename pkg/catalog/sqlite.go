package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/models"
)

// SQLiteReflector reflects schema structure from a SQLite database. It backs
// the built-in sample database but works against any SQLite file.
type SQLiteReflector struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteReflector creates a reflector over an existing connection.
func NewSQLiteReflector(db *sql.DB, logger *zap.Logger) *SQLiteReflector {
	return &SQLiteReflector{db: db, logger: logger.Named("catalog.sqlite")}
}

// Dialect implements Reflector.
func (r *SQLiteReflector) Dialect() string { return models.DialectSQLite }

// Tables implements Reflector.
func (r *SQLiteReflector) Tables(ctx context.Context) ([]models.Table, error) {
	const query = `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	var tables []models.Table
	for _, name := range names {
		t := models.Table{Name: name}

		columns, err := r.columns(ctx, name)
		if err != nil {
			r.logger.Warn("skipping table, column reflection failed",
				zap.String("table", name),
				zap.Error(err))
			continue
		}
		t.Columns = columns

		// Row count failures are tolerable; the count is advisory.
		if err := r.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, name)).Scan(&t.RowCount); err != nil {
			r.logger.Debug("row count failed", zap.String("table", name), zap.Error(err))
		}

		tables = append(tables, t)
	}

	return tables, nil
}

func (r *SQLiteReflector) columns(ctx context.Context, tableName string) ([]models.Column, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, tableName))
	if err != nil {
		return nil, fmt.Errorf("pragma table_info: %w", err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var (
			cid        int
			name       string
			dataType   string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, models.Column{
			Name:       name,
			DataType:   dataType,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// Relationships implements Reflector.
func (r *SQLiteReflector) Relationships(ctx context.Context) ([]models.Relationship, error) {
	tables, err := r.Tables(ctx)
	if err != nil {
		return nil, err
	}

	var rels []models.Relationship
	for _, t := range tables {
		rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list("%s")`, t.Name))
		if err != nil {
			r.logger.Warn("foreign key reflection failed",
				zap.String("table", t.Name),
				zap.Error(err))
			continue
		}

		for rows.Next() {
			var (
				id, seq                   int
				targetTable, from, to     string
				onUpdate, onDelete, match string
			)
			if err := rows.Scan(&id, &seq, &targetTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan foreign key: %w", err)
			}
			rels = append(rels, models.Relationship{
				SourceTable:  t.Name,
				SourceColumn: from,
				TargetTable:  targetTable,
				TargetColumn: to,
				Type:         models.RelForeignKey,
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate foreign keys: %w", err)
		}
		rows.Close()
	}

	return rels, nil
}

var _ Reflector = (*SQLiteReflector)(nil)
