package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lox/ecovision/internal/dashboard"
	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/logger"
	"github.com/lox/ecovision/internal/metrics"
	"github.com/lox/ecovision/internal/store"
)

const (
	sessionCookie = "ecovision_session"
	loadTimeout   = 30 * time.Second
)

// session is one browser's dashboard.
type session struct {
	id   string
	ctrl *dashboard.Controller

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) seen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type sessionManager struct {
	store  *store.Store
	source dashboard.Source
	ttl    time.Duration
	limit  int
	log    *logger.Logger

	mu   sync.Mutex
	byID map[string]*session
}

func newSessionManager(st *store.Store, source dashboard.Source, ttl time.Duration, limit int, log *logger.Logger) *sessionManager {
	return &sessionManager{
		store:  st,
		source: source,
		ttl:    ttl,
		limit:  limit,
		log:    log,
		byID:   make(map[string]*session),
	}
}

func cookieID(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

func (m *sessionManager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

// lookup returns the live session named by the request's cookie. It never
// creates one; a hit slides both the idle deadline and the cookie expiry.
func (m *sessionManager) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := cookieID(r)
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	sess, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess.touch(time.Now())
	m.setCookie(w, id)
	return sess, true
}

// open is the page mount: it returns the caller's session, creating it when the
// request carries no live one, and loads the reference lists unless an earlier
// mount already did.
func (m *sessionManager) open(w http.ResponseWriter, r *http.Request) *session {
	sess, ok := m.lookup(w, r)
	if !ok {
		sess = m.create(w, r)
	}

	// Detached from the request so a dropped connection doesn't cut the load short.
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	if res := sess.ctrl.Load(ctx); res.Err != nil {
		m.log.Errorw("session_load_failed", "session", sess.id, "err", res.Err)
	}
	return sess
}

func (m *sessionManager) create(w http.ResponseWriter, r *http.Request) *session {
	now := time.Now()
	id := cookieID(r)
	if id == "" {
		id = uuid.NewString()
	}
	initial := m.restoreFilters(r.Context(), id)

	m.mu.Lock()
	sess, ok := m.byID[id]
	if !ok {
		if m.limit > 0 && len(m.byID) >= m.limit {
			m.evictOldestLocked()
		}
		sess = &session{
			id:       id,
			ctrl:     dashboard.NewController(m.source, initial, m.log),
			lastSeen: now,
		}
		m.byID[id] = sess
		metrics.ActiveSessions.Set(float64(len(m.byID)))
	}
	m.mu.Unlock()

	sess.touch(now)
	m.setCookie(w, id)
	return sess
}

func (m *sessionManager) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, sess := range m.byID {
		if seen := sess.seen(); oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = id, seen
		}
	}
	if oldestID != "" {
		delete(m.byID, oldestID)
		m.log.Infow("session_evicted", "session", oldestID)
	}
}

func (m *sessionManager) restoreFilters(ctx context.Context, id string) filters.State {
	if m.store == nil {
		return filters.Default()
	}
	f, ok, err := m.store.LoadFilters(ctx, id)
	if err != nil {
		m.log.Errorw("restore_filters_failed", "session", id, "err", err)
		return filters.Default()
	}
	if !ok {
		return filters.Default()
	}
	return f
}

// prune drops sessions idle since before cutoff and returns how many were removed.
func (m *sessionManager) prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, sess := range m.byID {
		if sess.seen().Before(cutoff) {
			delete(m.byID, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.byID)))
	return n
}

func (m *sessionManager) runJanitor(ctx context.Context) {
	interval := m.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.ttl)
			removed := m.prune(cutoff)
			var stored int64
			if m.store != nil {
				var err error
				if stored, err = m.store.PruneSessions(ctx, cutoff); err != nil {
					m.log.Errorw("prune_sessions_failed", "err", err)
				}
			}
			if removed > 0 || stored > 0 {
				m.log.Infow("sessions_pruned", "memory", removed, "stored", stored)
			}
		}
	}
}
