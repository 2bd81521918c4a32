package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/repo"
)

var (
	_ repo.MonitorStore  = (*Store)(nil)
	_ repo.LogStore      = (*Store)(nil)
	_ repo.SettingsStore = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id                       BIGSERIAL PRIMARY KEY,
	url                      TEXT NOT NULL,
	name                     TEXT NOT NULL,
	is_active                BOOLEAN NOT NULL DEFAULT TRUE,
	last_status              INTEGER NOT NULL DEFAULT 0,
	last_response_time_ms    INTEGER,
	ssl_days_remaining       INTEGER,
	ssl_expires_at           TIMESTAMPTZ,
	has_hsts                 BOOLEAN,
	redirect_count           INTEGER,
	is_wordpress             BOOLEAN,
	wordpress_version        TEXT,
	content_last_modified_at TIMESTAMPTZ,
	stability_score          INTEGER,
	last_checked_at          TIMESTAMPTZ,
	created_at               TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_last_checked_at ON monitors (last_checked_at);

CREATE TABLE IF NOT EXISTS monitor_logs (
	id               BIGSERIAL PRIMARY KEY,
	monitor_id       BIGINT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	status_code      INTEGER,
	response_time_ms INTEGER,
	error_message    TEXT,
	checked_at       TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_logs_monitor_checked ON monitor_logs (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// ---- MonitorStore ----

const monitorColumns = `id, url, name, is_active, last_status, last_response_time_ms,
	ssl_days_remaining, ssl_expires_at, has_hsts, redirect_count, is_wordpress,
	wordpress_version, content_last_modified_at, stability_score, last_checked_at, created_at`

func (s *Store) Create(ctx context.Context, m *domain.Monitor) error {
	if m.Name == "" {
		m.Name = m.URL
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO monitors (url, name, is_active, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		m.URL, m.Name, m.IsActive, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func scanMonitor(row pgx.Row) (*domain.Monitor, error) {
	var m domain.Monitor
	err := row.Scan(&m.ID, &m.URL, &m.Name, &m.IsActive, &m.LastStatus,
		&m.LastResponseTimeMS, &m.SSLDaysRemaining, &m.SSLExpiresAt,
		&m.HasHSTS, &m.RedirectCount, &m.IsWordPress, &m.WordPressVersion,
		&m.ContentLastModifiedAt, &m.StabilityScore, &m.LastCheckedAt,
		&m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan monitor: %w", err)
	}
	return &m, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	return scanMonitor(row)
}

func (s *Store) queryMonitors(ctx context.Context, query string, args ...any) ([]*domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()
	var out []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) List(ctx context.Context) ([]*domain.Monitor, error) {
	return s.queryMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors ORDER BY name, id`)
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Monitor, error) {
	return s.queryMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE is_active ORDER BY name, id`)
}

func (s *Store) ListOldestChecked(ctx context.Context, limit int) ([]*domain.Monitor, error) {
	return s.queryMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		  WHERE is_active
		  ORDER BY last_checked_at ASC NULLS FIRST, id ASC
		  LIMIT $1`, limit)
}

func (s *Store) MaxLastChecked(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(last_checked_at) FROM monitors`).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("max last_checked_at: %w", err)
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, m *domain.Monitor) error {
	if m.Name == "" {
		m.Name = m.URL
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors SET url = $1, name = $2, is_active = $3 WHERE id = $4`,
		m.URL, m.Name, m.IsActive, m.ID)
	if err != nil {
		return fmt.Errorf("update monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateState(ctx context.Context, id int64, u domain.StateUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors SET
			last_status = $1, last_response_time_ms = $2,
			ssl_days_remaining = $3, ssl_expires_at = $4,
			has_hsts = $5, redirect_count = $6,
			is_wordpress = $7, wordpress_version = $8,
			content_last_modified_at = $9, stability_score = $10,
			last_checked_at = $11
		 WHERE id = $12`,
		u.LastStatus, u.LastResponseTimeMS,
		u.SSLDaysRemaining, u.SSLExpiresAt,
		u.HasHSTS, u.RedirectCount,
		u.IsWordPress, u.WordPressVersion,
		u.ContentLastModifiedAt, u.StabilityScore,
		u.LastCheckedAt,
		id)
	if err != nil {
		return fmt.Errorf("update monitor state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateHeartbeat(ctx context.Context, id int64, h domain.HeartbeatUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors SET last_status = $1, last_response_time_ms = $2, last_checked_at = $3
		 WHERE id = $4`,
		h.LastStatus, h.LastResponseTimeMS, h.LastCheckedAt, id)
	if err != nil {
		return fmt.Errorf("update monitor heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- LogStore ----

func (s *Store) Append(ctx context.Context, l *domain.AttemptLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO monitor_logs (monitor_id, status_code, response_time_ms, error_message, checked_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		l.MonitorID, l.StatusCode, l.ResponseTimeMS, l.ErrorMessage, l.CheckedAt, l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *Store) queryLogs(ctx context.Context, query string, args ...any) ([]*domain.AttemptLog, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()
	var out []*domain.AttemptLog
	for rows.Next() {
		var l domain.AttemptLog
		if err := rows.Scan(&l.ID, &l.MonitorID, &l.StatusCode, &l.ResponseTimeMS,
			&l.ErrorMessage, &l.CheckedAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *Store) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*domain.AttemptLog, error) {
	return s.queryLogs(ctx,
		`SELECT id, monitor_id, status_code, response_time_ms, error_message, checked_at, created_at
		   FROM monitor_logs
		  WHERE monitor_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $2`, monitorID, limit)
}

func (s *Store) ListRecent(ctx context.Context, monitorID int64, since time.Time, limit int) ([]*domain.AttemptLog, error) {
	return s.queryLogs(ctx,
		`SELECT id, monitor_id, status_code, response_time_ms, error_message, checked_at, created_at
		   FROM monitor_logs
		  WHERE monitor_id = $1 AND checked_at >= $2
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $3`, monitorID, since, limit)
}

func (s *Store) DeleteForMonitor(ctx context.Context, monitorID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM monitor_logs WHERE monitor_id = $1`, monitorID); err != nil {
		return fmt.Errorf("delete logs: %w", err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM monitor_logs`); err != nil {
		return fmt.Errorf("delete all logs: %w", err)
	}
	return nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitor_logs WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- SettingsStore ----

func (s *Store) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	var v int
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
