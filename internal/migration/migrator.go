package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// Dialect selects the SQL dialect of the archive database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ArchiveTables are the governance history tables every dialect's schema
// creates: lifted penalties, their appeals, and finished retraining
// sessions.
var ArchiveTables = []string{"penalties", "appeals", "retraining_sessions"}

// ParseDialect maps a config driver string to its archive dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported archive dialect: %s", s)
	}
}

// source returns the embedded migration files for the dialect.
func (d Dialect) source() (fs.FS, string, error) {
	switch d {
	case DialectPostgres:
		return postgresFS, "migrations/postgres", nil
	case DialectMySQL:
		return mysqlFS, "migrations/mysql", nil
	case DialectSQLite:
		return sqliteFS, "migrations/sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported archive dialect: %s", d)
	}
}

// driverName returns the database/sql driver registered for the dialect.
// SQLite uses the pure-Go modernc driver, same as the GORM archive.
func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectPostgres:
		return "postgres", nil
	case DialectMySQL:
		return "mysql", nil
	case DialectSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported archive dialect: %s", d)
	}
}

// Config locates the archive database the schema is applied to.
type Config struct {
	// Dialect is the archive database dialect.
	Dialect Dialect
	// URL is the database connection string, in the dialect's native form.
	URL string
	// Table is the migration bookkeeping table; empty means
	// schema_migrations.
	Table string
}

// Status describes one embedded migration relative to the applied version.
type Status struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Migrator applies the embedded governance archive schema through
// golang-migrate: forward migration, rollback, jumping to a version, and
// forcing a version number after a failed run.
type Migrator struct {
	cfg    Config
	engine *migrate.Migrate
	db     *sql.DB
}

// NewMigrator connects to the archive database and prepares the embedded
// schema source for its dialect.
func NewMigrator(cfg Config) (*Migrator, error) {
	if cfg.URL == "" {
		return nil, errors.New("archive database URL is required")
	}
	if cfg.Table == "" {
		cfg.Table = "schema_migrations"
	}

	driverName, err := cfg.Dialect.driverName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}

	dbDriver, err := databaseDriver(cfg.Dialect, db, cfg.Table)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migration driver: %w", err)
	}

	fsys, dir, err := cfg.Dialect.source()
	if err != nil {
		db.Close()
		return nil, err
	}
	src, err := iofs.New(fsys, dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("embedded schema source: %w", err)
	}

	engine, err := migrate.NewWithInstance("iofs", src, string(cfg.Dialect), dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migration engine: %w", err)
	}

	return &Migrator{cfg: cfg, engine: engine, db: db}, nil
}

func databaseDriver(d Dialect, db *sql.DB, table string) (database.Driver, error) {
	switch d {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case DialectMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case DialectSQLite:
		return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported archive dialect: %s", d)
	}
}

// Up applies every pending schema migration.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.engine.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply archive schema: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.engine.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back archive schema: %w", err)
	}
	return nil
}

// DownAll rolls back the entire archive schema.
func (m *Migrator) DownAll(ctx context.Context) error {
	if err := m.engine.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back archive schema: %w", err)
	}
	return nil
}

// Goto migrates the archive schema to a specific version, up or down.
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	if err := m.engine.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate archive schema to %d: %w", version, err)
	}
	return nil
}

// Force overwrites the recorded version without running migrations. This is
// the recovery path after a dirty migration, nothing else.
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.engine.Force(version); err != nil {
		return fmt.Errorf("force archive schema version %d: %w", version, err)
	}
	return nil
}

// Version reports the applied schema version and the dirty flag. A pristine
// database reports version 0.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.engine.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read archive schema version: %w", err)
	}
	return version, dirty, nil
}

// Status lists every embedded migration with its applied state, sorted by
// version.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	available, err := m.available()
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(available))
	for _, mig := range available {
		statuses = append(statuses, Status{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: mig.Version <= current,
			Dirty:   dirty && mig.Version == current,
		})
	}
	return statuses, nil
}

// Close releases the migration engine and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.engine.Close()
	return errors.Join(srcErr, dbErr)
}

// available parses the embedded up-migration filenames for the dialect
// (e.g. 000001_init_schema.up.sql) into version/name pairs.
func (m *Migrator) available() ([]Status, error) {
	fsys, dir, err := m.cfg.Dialect.source()
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema directory: %w", err)
	}

	var out []Status
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		out = append(out, Status{
			Version: uint(version),
			Name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// BuildURL assembles a connection URL for the dialect. SQLite treats the
// database name as the file path and enables foreign keys through the
// modernc pragma form.
func BuildURL(d Dialect, host string, port int, database, username, password, sslMode string) string {
	switch d {
	case DialectPostgres:
		if sslMode == "" {
			sslMode = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			username, password, host, port, database, sslMode)
	case DialectMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			username, password, host, port, database)
	case DialectSQLite:
		return fmt.Sprintf("file:%s?mode=rwc&_pragma=foreign_keys(1)", database)
	default:
		return ""
	}
}
