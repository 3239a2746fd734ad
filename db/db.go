package db

import (
	"embed"
	"fmt"

	_ "github.com/tfkr-ae/formrelay/db/migrations"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql migrations/*.go
var embedMigrations embed.FS

// pragmas applied to every connection: WAL with synchronous=FULL so a committed
// submission survives a crash of the process or the host.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Repository is the durable pending store of the relay. It holds the submissions
// that are not yet confirmed by the admin API and the audit trail of forwarding attempts,
// and implements domain.PendingRepository, domain.AttemptRepository and domain.StatsRepository.
type Repository struct {
	dbConn *sqlx.DB
}

// NewRelayRepo wraps a connection opened with New.
func NewRelayRepo(db *sqlx.DB) *Repository {
	return &Repository{
		dbConn: db,
	}
}

// Close closes the pending store. Entries already written stay on disk for the next start.
func (repo *Repository) Close() error {
	if err := repo.dbConn.Close(); err != nil {
		return fmt.Errorf("closing pending store : %w", err)
	}
	return nil
}

// New opens the SQLite file at path and brings its schema up to date.
// The pool is limited to a single connection, the relay is the only writer.
func New(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", fmt.Sprintf("file:%s?%s", path, pragmas))
	if err != nil {
		return nil, fmt.Errorf("opening pending store %s : %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrate applies the embedded migrations that have not run yet.
func migrate(db *sqlx.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return fmt.Errorf("setting dialect for migrations : %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("applying migrations : %w", err)
	}
	return nil
}
