package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/gslauncher/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to the native protocol endpoint addr (host:port), verifies
// the connection and creates table when it does not exist.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			type String,
			occurred_at DateTime64(6),
			server_id String,
			name String,
			pid Int64,
			exit_code Nullable(Int64)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, server_id)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, server_id, name, pid, exit_code) VALUES (?, ?, ?, ?, ?, ?)`, s.table)

	var exit *int64
	if e.ExitCode != nil {
		v := int64(*e.ExitCode)
		exit = &v
	}
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.ServerID,
		e.Name,
		int64(e.PID),
		exit,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
