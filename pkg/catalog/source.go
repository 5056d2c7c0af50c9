package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	// Database drivers registered for data-source connections.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/logging"
	"github.com/queryloom/queryloom/pkg/models"
)

// Source is one connected database: its handle, its reflector, and its
// identity in the catalog.
type Source struct {
	ID       string
	Dialect  string
	DB       *sql.DB
	IsSample bool

	reflector Reflector
}

// ConnectRequest describes a database to connect to. Callers supply either
// an opaque ConnectionString, or the descriptor fields: for sqlite only Path
// is used, for server dialects the host/credential fields build the DSN.
type ConnectRequest struct {
	ID       string `json:"id"`
	Dialect  string `json:"dialect,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	Path     string `json:"path,omitempty"`

	// ConnectionString is passed to the driver as-is. The dialect may be
	// omitted when the string's scheme identifies it.
	ConnectionString string `json:"connection_string,omitempty"`
}

// Manager is the registry of connected databases. One source is active at a
// time; the pipeline resolves questions against the active source.
type Manager struct {
	mu      sync.RWMutex
	sources map[string]*Source
	active  string

	catalog *Catalog
	logger  *zap.Logger
}

// NewManager creates an empty source registry.
func NewManager(catalog *Catalog, logger *zap.Logger) *Manager {
	return &Manager{
		sources: make(map[string]*Source),
		catalog: catalog,
		logger:  logger.Named("sources"),
	}
}

// Connect opens the described database, reflects its schema into the
// catalog, and makes it the active source.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) (*Source, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("source id is required")
	}

	if req.Dialect == "" {
		dialect, err := dialectFromConnectionString(req.ConnectionString)
		if err != nil {
			return nil, err
		}
		req.Dialect = dialect
	}

	dsn, driver, err := buildDSN(req)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.Dialect, err)
	}
	boundPool(db)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		m.logger.Error("connection failed",
			zap.String("source_id", req.ID),
			zap.String("dsn", logging.SanitizeConnectionString(dsn)),
			zap.Error(err))
		return nil, fmt.Errorf("ping %s: %w", req.Dialect, err)
	}

	source := &Source{ID: req.ID, Dialect: req.Dialect, DB: db}
	switch req.Dialect {
	case models.DialectPostgres:
		source.reflector = NewPostgresReflector(db, m.logger)
	case models.DialectMSSQL:
		source.reflector = NewMSSQLReflector(db, m.logger)
	case models.DialectSQLite:
		source.reflector = NewSQLiteReflector(db, m.logger)
	}

	if _, err := m.catalog.Refresh(ctx, source.ID, source.reflector); err != nil {
		db.Close()
		return nil, fmt.Errorf("reflect %s: %w", req.ID, err)
	}

	m.install(source)
	return source, nil
}

// ConnectSample opens the built-in sample database and makes it active.
func (m *Manager) ConnectSample(ctx context.Context, path string) (*Source, error) {
	db, err := OpenSampleDatabase(ctx, path, m.logger)
	if err != nil {
		return nil, err
	}

	source := &Source{
		ID:        SampleDatabaseID,
		Dialect:   models.DialectSQLite,
		DB:        db,
		IsSample:  true,
		reflector: NewSQLiteReflector(db, m.logger),
	}

	if _, err := m.catalog.Refresh(ctx, source.ID, source.reflector); err != nil {
		db.Close()
		return nil, fmt.Errorf("reflect sample database: %w", err)
	}

	m.install(source)
	return source, nil
}

func (m *Manager) install(source *Source) {
	m.mu.Lock()
	if old, ok := m.sources[source.ID]; ok && old.DB != source.DB {
		old.DB.Close()
	}
	m.sources[source.ID] = source
	m.active = source.ID
	m.mu.Unlock()

	m.logger.Info("source connected",
		zap.String("source_id", source.ID),
		zap.String("dialect", source.Dialect),
		zap.Bool("is_sample", source.IsSample))
}

// Active returns the currently active source.
func (m *Manager) Active() (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == "" {
		return nil, apperrors.ErrNoActiveDatabase
	}
	return m.sources[m.active], nil
}

// Get returns a source by id.
func (m *Manager) Get(id string) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, ok := m.sources[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return source, nil
}

// Snapshot returns the current schema snapshot for a source.
func (m *Manager) Snapshot(id string) (*models.SchemaSnapshot, error) {
	return m.catalog.Snapshot(id)
}

// Refresh re-reflects a source's schema into the catalog.
func (m *Manager) Refresh(ctx context.Context, id string) (*models.SchemaSnapshot, error) {
	source, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return m.catalog.Refresh(ctx, source.ID, source.reflector)
}

// Close shuts down every connected source.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, source := range m.sources {
		if err := source.DB.Close(); err != nil {
			m.logger.Warn("close source", zap.String("source_id", source.ID), zap.Error(err))
		}
	}
	m.sources = make(map[string]*Source)
	m.active = ""
}

// Data-source pool limits. User queries share the handle with schema
// reflection, so the pool stays small.
const (
	maxOpenConns    = 10
	maxIdleConns    = 2
	connMaxLifetime = time.Hour
)

// boundPool caps a data-source handle so runaway query load cannot exhaust
// the target database's connection slots.
func boundPool(db *sql.DB) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
}

// dialectFromConnectionString infers the dialect from an opaque connection
// string's scheme.
func dialectFromConnectionString(connStr string) (string, error) {
	switch {
	case connStr == "":
		return "", fmt.Errorf("dialect or connection_string is required")
	case strings.HasPrefix(connStr, "postgres://"), strings.HasPrefix(connStr, "postgresql://"):
		return models.DialectPostgres, nil
	case strings.HasPrefix(connStr, "sqlserver://"), strings.HasPrefix(connStr, "mssql://"):
		return models.DialectMSSQL, nil
	case strings.HasPrefix(connStr, "sqlite://"), strings.HasPrefix(connStr, "file:"):
		return models.DialectSQLite, nil
	default:
		return "", fmt.Errorf("cannot infer dialect from connection string")
	}
}

func buildDSN(req ConnectRequest) (dsn, driver string, err error) {
	if req.ConnectionString != "" {
		switch req.Dialect {
		case models.DialectPostgres:
			return req.ConnectionString, "pgx", nil
		case models.DialectMSSQL:
			return req.ConnectionString, "sqlserver", nil
		case models.DialectSQLite:
			return strings.TrimPrefix(req.ConnectionString, "sqlite://"), "sqlite", nil
		default:
			return "", "", fmt.Errorf("unsupported dialect %q", req.Dialect)
		}
	}

	switch req.Dialect {
	case models.DialectPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(req.User, req.Password),
			Host:   fmt.Sprintf("%s:%d", req.Host, req.Port),
			Path:   req.Database,
		}
		return u.String(), "pgx", nil
	case models.DialectMSSQL:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(req.User, req.Password),
			Host:     fmt.Sprintf("%s:%d", req.Host, req.Port),
			RawQuery: url.Values{"database": {req.Database}}.Encode(),
		}
		return u.String(), "sqlserver", nil
	case models.DialectSQLite:
		if req.Path == "" {
			return "", "", fmt.Errorf("sqlite source requires a path")
		}
		return req.Path, "sqlite", nil
	default:
		return "", "", fmt.Errorf("unsupported dialect %q", req.Dialect)
	}
}
