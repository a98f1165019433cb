package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/gslauncher/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS server_history(
			occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			event TEXT NOT NULL,
			server_id TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			exit_code INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_server_history_server_id ON server_history(server_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_history(occurred_at, event, server_id, name, pid, exit_code)
		VALUES(?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), e.ServerID, e.Name, e.PID, history.NullableExit(e.ExitCode))
	return err
}

// Count returns the number of stored events for serverID.
func (s *Sink) Count(ctx context.Context, serverID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_history WHERE server_id = ?`, serverID).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
