package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "wabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite store, creating the file and schema if
// needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveSession(ctx context.Context, name, operatorID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(name, operator_id) VALUES(?,?)
		 ON CONFLICT(name) DO UPDATE SET operator_id=excluded.operator_id, is_active=1`,
		name, operatorID,
	)
	return err
}

func (s *sqliteStore) DeactivateSession(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0 WHERE name = ?`, name)
	return err
}

func (s *sqliteStore) ListActiveSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, operator_id, is_active, created_at FROM sessions WHERE is_active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *sqliteStore) ListSessionsByOperator(ctx context.Context, operatorID string) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, operator_id, is_active, created_at FROM sessions WHERE operator_id = ? ORDER BY created_at`,
		operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]SessionRecord, error) {
	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var active int
		var created string
		if err := rows.Scan(&rec.Name, &rec.OperatorID, &active, &created); err != nil {
			return nil, err
		}
		rec.Active = active != 0
		rec.CreatedAt = parseSQLiteTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertOperator(ctx context.Context, op Operator) error {
	if strings.TrimSpace(op.ID) == "" {
		return errors.New("operator id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operators(operator_id, username, first_name) VALUES(?,?,?)
		 ON CONFLICT(operator_id) DO UPDATE SET username=excluded.username, first_name=excluded.first_name`,
		op.ID, nullStr(op.Username), nullStr(op.FirstName),
	)
	return err
}

func (s *sqliteStore) ListSubscribedOperators(ctx context.Context) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT operator_id, COALESCE(username,''), COALESCE(first_name,''), created_at
		 FROM operators WHERE subscribed = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operator
	for rows.Next() {
		var op Operator
		var created string
		if err := rows.Scan(&op.ID, &op.Username, &op.FirstName, &created); err != nil {
			return nil, err
		}
		op.Subscribed = true
		op.CreatedAt = parseSQLiteTime(created)
		out = append(out, op)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertSubscriber(ctx context.Context, address, sessionName string) error {
	if strings.TrimSpace(address) == "" {
		return errors.New("subscriber address is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(address, session_name) VALUES(?,?)
		 ON CONFLICT(address) DO UPDATE SET session_name=excluded.session_name, subscribed=1`,
		address, sessionName,
	)
	return err
}

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, session_name FROM subscribers WHERE subscribed = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.Address, &sub.SessionName); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendStatusView(ctx context.Context, sessionName, statusID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_views(session_name, status_id) VALUES(?,?)`,
		sessionName, statusID,
	)
	return err
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05.000Z", time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
