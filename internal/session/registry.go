package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaekop/ContextLens/internal/event"
)

// Registry is the single source of truth for which sessions exist. It is
// constructed once at process start and passed to every handler; safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Start returns the session for in.SessionID, creating it when absent and
// stamping now as its creation time. The created flag reports which happened.
// On a duplicate start the non-empty optional fields are merged into the
// existing session, which keeps start safe to repeat for reconnect/resume.
// Construction and insertion are one atomic step; no caller observes a
// half-built session.
func (r *Registry) Start(in event.StartInput, now time.Time) (*Session, bool) {
	id := in.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	if sess, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		sess.Lock()
		merge(sess, in)
		sess.Unlock()
		return sess, false
	}
	sess := newSession(id, in, now)
	r.sessions[id] = sess
	r.mu.Unlock()
	return sess, true
}

// Get looks up a session by id. Removed and never-created ids are
// indistinguishable to callers.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove deletes the session and stops its transcription handle if one is
// attached. Stop errors are logged, not returned. Removing an unknown id is
// a no-op. Remove never takes the session lock, so it is safe to call while
// holding it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if h := sess.DetachSTT(); h != nil {
		if err := h.Stop(); err != nil {
			slog.Warn("stt stop on remove", "session_id", id, "error", err)
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a diagnostic view of all sessions, oldest first.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}
