package autosense

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"github.com/segmentio/ksuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the state of one user interaction: the last scan, the
// registration picked from it and the journey started for it.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Candidates   []string  `json:"candidates"`
	RawText      string    `json:"raw_text"`
	Registration string    `json:"registration,omitempty"`
	Condition    string    `json:"condition"`
	JourneyID    string    `json:"journey_id,omitempty"`
}

func NewSession(now time.Time) *Session {
	return &Session{
		ID:         ksuid.New().String(),
		CreatedAt:  now,
		Candidates: []string{},
		Condition:  DefaultCondition,
	}
}

// Reset clears everything but the identity.
func (s *Session) Reset() {
	*s = Session{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Candidates: []string{},
		Condition:  DefaultCondition,
	}
}

// ApplyScan replaces the candidates of a previous scan and forgets the
// registration chosen from them.
func (s *Session) ApplyScan(result ScanResult) {
	s.Candidates = append([]string{}, result.Candidates...)
	s.RawText = result.RawText
	s.Registration = ""
}

func (s Session) clone() Session {
	s.Candidates = append([]string{}, s.Candidates...)
	return s
}

const (
	DefaultSessionIdleTTL = time.Hour
	DefaultMaxSessions    = 10000
)

type sessionEntry struct {
	session  *Session
	lastSeen time.Time
}

// SessionStore owns sessions for the HTTP service. Callers get copies and
// write changes back through Update, so no session is ever shared.
type SessionStore struct {
	// IdleTTL drops sessions nobody touched for that long. Zero keeps them
	// until deleted.
	IdleTTL time.Duration
	// MaxSessions evicts the least recently used session on Create. Zero
	// means no cap.
	MaxSessions int

	mu       deadlock.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		IdleTTL:     DefaultSessionIdleTTL,
		MaxSessions: DefaultMaxSessions,
		sessions:    make(map[string]*sessionEntry),
		now:         time.Now,
	}
}

func (st *SessionStore) expired(entry *sessionEntry, now time.Time) bool {
	return st.IdleTTL > 0 && now.Sub(entry.lastSeen) > st.IdleTTL
}

// lookup returns a live session and marks it as used. Callers hold mu.
func (st *SessionStore) lookup(id string) (*Session, error) {
	now := st.now()
	entry, ok := st.sessions[id]
	if ok && st.expired(entry, now) {
		delete(st.sessions, id)
		ok = false
	}
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "%q", id)
	}
	entry.lastSeen = now
	return entry.session, nil
}

func (st *SessionStore) Create() Session {
	now := st.now()
	session := NewSession(now.UTC())
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.MaxSessions > 0 && len(st.sessions) >= st.MaxSessions {
		st.sweepLocked(now)
		for len(st.sessions) >= st.MaxSessions {
			st.evictOldestLocked()
		}
	}
	st.sessions[session.ID] = &sessionEntry{session: session, lastSeen: now}
	return session.clone()
}

func (st *SessionStore) Get(id string) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	session, err := st.lookup(id)
	if err != nil {
		return Session{}, err
	}
	return session.clone(), nil
}

// Update applies fn to the stored session under the store lock.
func (st *SessionStore) Update(id string, fn func(*Session)) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	session, err := st.lookup(id)
	if err != nil {
		return Session{}, err
	}
	fn(session)
	return session.clone(), nil
}

func (st *SessionStore) Reset(id string) (Session, error) {
	return st.Update(id, (*Session).Reset)
}

func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops idle sessions and returns how many were removed.
func (st *SessionStore) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sweepLocked(st.now())
}

func (st *SessionStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, entry := range st.sessions {
		if st.expired(entry, now) {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Str("component", "SESSIONS").Int("removed", removed).Msg("idle sessions dropped")
	}
	return removed
}

func (st *SessionStore) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, entry := range st.sessions {
		if oldestID == "" || entry.lastSeen.Before(oldest) {
			oldestID, oldest = id, entry.lastSeen
		}
	}
	delete(st.sessions, oldestID)
	log.Info().Str("component", "SESSIONS").Str("session", oldestID).Msg("session limit reached, evicted least recently used")
}

// RunSweeper calls Sweep every interval until ctx is done.
func (st *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}
