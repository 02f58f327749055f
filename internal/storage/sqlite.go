package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"widgetd/internal/trigger"
	"widgetd/internal/widget"
	logx "widgetd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// stampLayout sorts lexicographically in UTC.
const stampLayout = "2006-01-02T15:04:05.000000000Z"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
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

func (s *sqliteStore) LoadWidgets(ctx context.Context) ([]widget.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, trig, payload, created_at FROM widgets ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []widget.Record
	for rows.Next() {
		var (
			r               widget.Record
			name, payload   sql.NullString
			trigJSON, stamp string
		)
		if err := rows.Scan(&r.ID, &name, &trigJSON, &payload, &stamp); err != nil {
			return nil, err
		}
		var t trigger.Trigger
		if err := json.Unmarshal([]byte(trigJSON), &t); err != nil {
			return nil, fmt.Errorf("widget %s: %w", r.ID, err)
		}
		r.Trigger = t
		r.Name = name.String
		if payload.Valid && payload.String != "" {
			r.Payload = json.RawMessage(payload.String)
		}
		if r.CreatedAt, err = time.Parse(stampLayout, stamp); err != nil {
			return nil, fmt.Errorf("widget %s: created_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveWidgets(ctx context.Context, recs []widget.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
		trig, err := json.Marshal(r.Trigger)
		if err != nil {
			return fmt.Errorf("widget %s: %w", r.ID, err)
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO widgets(id, name, trig, payload, created_at) VALUES(?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET name=excluded.name, trig=excluded.trig, payload=excluded.payload`,
			r.ID, nullStr(r.Name), string(trig), nullStr(string(r.Payload)), r.CreatedAt.UTC().Format(stampLayout),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) DeleteWidget(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
