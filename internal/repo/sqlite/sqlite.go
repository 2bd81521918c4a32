package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/repo"
)

var (
	_ repo.MonitorStore  = (*Store)(nil)
	_ repo.LogStore      = (*Store)(nil)
	_ repo.SettingsStore = (*Store)(nil)
)

// Store is the embedded sqlite adapter (pure-Go driver, no cgo).
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database file and ensures the schema exists.
func New(ctx context.Context, path string) (*Store, error) {
	// modernc's driver takes pragmas in _pragma=name(value) form; they run on
	// every pooled connection, which is what foreign_keys needs.
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	url                      TEXT NOT NULL,
	name                     TEXT NOT NULL,
	is_active                INTEGER NOT NULL DEFAULT 1,
	last_status              INTEGER NOT NULL DEFAULT 0,
	last_response_time_ms    INTEGER,
	ssl_days_remaining       INTEGER,
	ssl_expires_at           TEXT,
	has_hsts                 INTEGER,
	redirect_count           INTEGER,
	is_wordpress             INTEGER,
	wordpress_version        TEXT,
	content_last_modified_at TEXT,
	stability_score          INTEGER,
	last_checked_at          TEXT,
	created_at               TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_last_checked_at ON monitors (last_checked_at);

CREATE TABLE IF NOT EXISTS monitor_logs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id       INTEGER NOT NULL,
	status_code      INTEGER,
	response_time_ms INTEGER,
	error_message    TEXT,
	checked_at       TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_monitor_logs_monitor_checked ON monitor_logs (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ---- time helpers: sqlite stores timestamps as RFC3339 text ----

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO monitors (url, name, is_active, last_status, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		m.URL, m.Name, boolToInt(m.IsActive), fmtTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("monitor id: %w", err)
	}
	return nil
}

func (s *Store) scanMonitor(row interface{ Scan(...any) error }) (*domain.Monitor, error) {
	var (
		m           domain.Monitor
		isActive    int
		rt          sql.NullInt64
		sslDays     sql.NullInt64
		sslExpires  sql.NullString
		hasHSTS     sql.NullInt64
		redirects   sql.NullInt64
		isWP        sql.NullInt64
		wpVersion   sql.NullString
		lastMod     sql.NullString
		stability   sql.NullInt64
		lastChecked sql.NullString
		createdAt   string
	)
	err := row.Scan(&m.ID, &m.URL, &m.Name, &isActive, &m.LastStatus, &rt,
		&sslDays, &sslExpires, &hasHSTS, &redirects, &isWP,
		&wpVersion, &lastMod, &stability, &lastChecked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan monitor: %w", err)
	}
	m.IsActive = isActive != 0
	m.LastResponseTimeMS = intPtr(rt)
	m.SSLDaysRemaining = intPtr(sslDays)
	m.SSLExpiresAt = parseTimePtr(sslExpires)
	m.HasHSTS = boolPtr(hasHSTS)
	m.RedirectCount = intPtr(redirects)
	m.IsWordPress = boolPtr(isWP)
	if wpVersion.Valid {
		v := wpVersion.String
		m.WordPressVersion = &v
	}
	m.ContentLastModifiedAt = parseTimePtr(lastMod)
	m.StabilityScore = intPtr(stability)
	m.LastCheckedAt = parseTimePtr(lastChecked)
	if t, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
		m.CreatedAt = t
	}
	return &m, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Monitor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	return s.scanMonitor(row)
}

func (s *Store) queryMonitors(ctx context.Context, query string, args ...any) ([]*domain.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()
	var out []*domain.Monitor
	for rows.Next() {
		m, err := s.scanMonitor(rows)
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
		`SELECT `+monitorColumns+` FROM monitors WHERE is_active = 1 ORDER BY name, id`)
}

func (s *Store) ListOldestChecked(ctx context.Context, limit int) ([]*domain.Monitor, error) {
	// NULL last_checked_at sorts first: never-checked monitors go ahead of
	// everything else.
	return s.queryMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		  WHERE is_active = 1
		  ORDER BY last_checked_at IS NOT NULL, last_checked_at ASC, id ASC
		  LIMIT ?`, limit)
}

func (s *Store) MaxLastChecked(ctx context.Context) (*time.Time, error) {
	var ns sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(last_checked_at) FROM monitors`).Scan(&ns)
	if err != nil {
		return nil, fmt.Errorf("max last_checked_at: %w", err)
	}
	return parseTimePtr(ns), nil
}

func (s *Store) Update(ctx context.Context, m *domain.Monitor) error {
	if m.Name == "" {
		m.Name = m.URL
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET url = ?, name = ?, is_active = ? WHERE id = ?`,
		m.URL, m.Name, boolToInt(m.IsActive), m.ID)
	if err != nil {
		return fmt.Errorf("update monitor: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateState(ctx context.Context, id int64, u domain.StateUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET
			last_status = ?, last_response_time_ms = ?,
			ssl_days_remaining = ?, ssl_expires_at = ?,
			has_hsts = ?, redirect_count = ?,
			is_wordpress = ?, wordpress_version = ?,
			content_last_modified_at = ?, stability_score = ?,
			last_checked_at = ?
		 WHERE id = ?`,
		u.LastStatus, u.LastResponseTimeMS,
		u.SSLDaysRemaining, fmtTimePtr(u.SSLExpiresAt),
		boolPtrToInt(u.HasHSTS), u.RedirectCount,
		boolPtrToInt(u.IsWordPress), u.WordPressVersion,
		fmtTimePtr(u.ContentLastModifiedAt), u.StabilityScore,
		fmtTime(u.LastCheckedAt),
		id)
	if err != nil {
		return fmt.Errorf("update monitor state: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateHeartbeat(ctx context.Context, id int64, h domain.HeartbeatUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET last_status = ?, last_response_time_ms = ?, last_checked_at = ?
		 WHERE id = ?`,
		h.LastStatus, h.LastResponseTimeMS, fmtTime(h.LastCheckedAt), id)
	if err != nil {
		return fmt.Errorf("update monitor heartbeat: %w", err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	return requireRow(res)
}

// ---- LogStore ----

func (s *Store) Append(ctx context.Context, l *domain.AttemptLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_logs (monitor_id, status_code, response_time_ms, error_message, checked_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.MonitorID, l.StatusCode, l.ResponseTimeMS, l.ErrorMessage,
		fmtTime(l.CheckedAt), fmtTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("log id: %w", err)
	}
	return nil
}

func (s *Store) queryLogs(ctx context.Context, query string, args ...any) ([]*domain.AttemptLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()
	var out []*domain.AttemptLog
	for rows.Next() {
		var (
			l         domain.AttemptLog
			status    sql.NullInt64
			rt        sql.NullInt64
			errMsg    sql.NullString
			checkedAt string
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.MonitorID, &status, &rt, &errMsg, &checkedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		l.StatusCode = intPtr(status)
		l.ResponseTimeMS = intPtr(rt)
		if errMsg.Valid {
			v := errMsg.String
			l.ErrorMessage = &v
		}
		if t, perr := time.Parse(time.RFC3339Nano, checkedAt); perr == nil {
			l.CheckedAt = t
		}
		if t, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			l.CreatedAt = t
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *Store) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*domain.AttemptLog, error) {
	return s.queryLogs(ctx,
		`SELECT id, monitor_id, status_code, response_time_ms, error_message, checked_at, created_at
		   FROM monitor_logs
		  WHERE monitor_id = ?
		  ORDER BY checked_at DESC, id DESC
		  LIMIT ?`, monitorID, limit)
}

func (s *Store) ListRecent(ctx context.Context, monitorID int64, since time.Time, limit int) ([]*domain.AttemptLog, error) {
	return s.queryLogs(ctx,
		`SELECT id, monitor_id, status_code, response_time_ms, error_message, checked_at, created_at
		   FROM monitor_logs
		  WHERE monitor_id = ? AND checked_at >= ?
		  ORDER BY checked_at DESC, id DESC
		  LIMIT ?`, monitorID, fmtTime(since), limit)
}

func (s *Store) DeleteForMonitor(ctx context.Context, monitorID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM monitor_logs WHERE monitor_id = ?`, monitorID)
	if err != nil {
		return fmt.Errorf("delete logs: %w", err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM monitor_logs`)
	if err != nil {
		return fmt.Errorf("delete all logs: %w", err)
	}
	return nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM monitor_logs WHERE checked_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old logs: %w", err)
	}
	return res.RowsAffected()
}

// ---- SettingsStore ----

func (s *Store) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ---- scan helpers ----

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolPtrToInt(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolPtr(n sql.NullInt64) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Int64 != 0
	return &v
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}
