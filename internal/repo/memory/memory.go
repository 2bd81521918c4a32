package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/repo"
)

var (
	_ repo.MonitorStore  = (*Store)(nil)
	_ repo.LogStore      = (*Store)(nil)
	_ repo.SettingsStore = (*Store)(nil)
)

// Store keeps everything in process memory. Default for local dev and the
// backbone of the test suite.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	nextLogID int64
	monitors  map[int64]*domain.Monitor
	logs      []*domain.AttemptLog
	settings  map[string]int
}

func New() *Store {
	return &Store{
		monitors: make(map[int64]*domain.Monitor),
		logs:     make([]*domain.AttemptLog, 0, 128),
		settings: make(map[string]int),
	}
}

// ---- MonitorStore ----

func (s *Store) Create(ctx context.Context, m *domain.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	if m.Name == "" {
		m.Name = m.URL
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	cp := *m
	s.monitors[m.ID] = &cp
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Monitor, error) {
	all, _ := s.List(ctx)
	out := all[:0]
	for _, m := range all {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ListOldestChecked(ctx context.Context, limit int) ([]*domain.Monitor, error) {
	active, _ := s.ListActive(ctx)
	sort.SliceStable(active, func(i, j int) bool {
		li, lj := active[i].LastCheckedAt, active[j].LastCheckedAt
		switch {
		case li == nil && lj == nil:
			return active[i].ID < active[j].ID
		case li == nil:
			return true
		case lj == nil:
			return false
		default:
			return li.Before(*lj)
		}
	})
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

func (s *Store) MaxLastChecked(ctx context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max *time.Time
	for _, m := range s.monitors {
		if m.LastCheckedAt == nil {
			continue
		}
		if max == nil || m.LastCheckedAt.After(*max) {
			t := *m.LastCheckedAt
			max = &t
		}
	}
	return max, nil
}

func (s *Store) Update(ctx context.Context, m *domain.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[m.ID]; !ok {
		return repo.ErrNotFound
	}
	if m.Name == "" {
		m.Name = m.URL
	}
	cp := *m
	s.monitors[m.ID] = &cp
	return nil
}

func (s *Store) UpdateState(ctx context.Context, id int64, u domain.StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	m.LastStatus = u.LastStatus
	m.LastResponseTimeMS = u.LastResponseTimeMS
	m.SSLDaysRemaining = u.SSLDaysRemaining
	m.SSLExpiresAt = u.SSLExpiresAt
	m.HasHSTS = u.HasHSTS
	m.RedirectCount = u.RedirectCount
	m.IsWordPress = u.IsWordPress
	m.WordPressVersion = u.WordPressVersion
	m.ContentLastModifiedAt = u.ContentLastModifiedAt
	m.StabilityScore = u.StabilityScore
	t := u.LastCheckedAt
	m.LastCheckedAt = &t
	return nil
}

func (s *Store) UpdateHeartbeat(ctx context.Context, id int64, h domain.HeartbeatUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	m.LastStatus = h.LastStatus
	m.LastResponseTimeMS = h.LastResponseTimeMS
	t := h.LastCheckedAt
	m.LastCheckedAt = &t
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.monitors, id)
	// cascade
	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.MonitorID != id {
			kept = append(kept, l)
		}
	}
	s.logs = kept
	return nil
}

// ---- LogStore ----

func (s *Store) Append(ctx context.Context, l *domain.AttemptLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	l.ID = s.nextLogID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	cp := *l
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *Store) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*domain.AttemptLog, error) {
	return s.ListRecent(ctx, monitorID, time.Time{}, limit)
}

func (s *Store) ListRecent(ctx context.Context, monitorID int64, since time.Time, limit int) ([]*domain.AttemptLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.AttemptLog, 0, limit)
	for _, l := range s.logs {
		if l.MonitorID != monitorID {
			continue
		}
		if !since.IsZero() && l.CheckedAt.Before(since) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	// newest first: checked_at desc, id desc
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].CheckedAt.After(out[j].CheckedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteForMonitor(ctx context.Context, monitorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.MonitorID != monitorID {
			kept = append(kept, l)
		}
	}
	s.logs = kept
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = s.logs[:0]
	return nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped int64
	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.CheckedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, l)
	}
	s.logs = kept
	return dropped, nil
}

// ---- SettingsStore ----

func (s *Store) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.settings[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *Store) Set(ctx context.Context, key string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}
