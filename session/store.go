// Package session implements a cookie-addressable, in-memory session
// store: the same shape as original_source/QtWebApp/httpserver's
// HttpSessionStore, with session identity handed out via crypto/rand
// instead of a UUID library.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polymedia/ember/emberlog"
	"github.com/polymedia/ember/http1"
)

// Options configures a Store. Cookie fields come straight from
// config.Config.
type Options struct {
	CookieName    string
	CookiePath    string
	CookieDomain  string
	CookieComment string

	ExpirationTime time.Duration
	SweepInterval  time.Duration

	Logger *zap.Logger
}

// Store holds every live Session, keyed by cookie value, and expires ones
// that have gone untouched for longer than ExpirationTime.
type Store struct {
	opts Options
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	stop chan struct{}
	done chan struct{}
}

// New constructs a Store and starts its background sweep, matching the
// original's 60-second cleanup timer (Options.SweepInterval defaults to
// one minute when zero).
func New(opts Options) *Store {
	if opts.CookieName == "" {
		opts.CookieName = "sessionid"
	}
	if opts.ExpirationTime <= 0 {
		opts.ExpirationTime = time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	st := &Store{
		opts:     opts,
		log:      emberlog.Or(opts.Logger),
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go st.sweepLoop()
	return st
}

// Close stops the sweep goroutine. Sessions already created are dropped.
func (st *Store) Close() {
	close(st.stop)
	<-st.done
	st.mu.Lock()
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()
}

// sessionID resolves the session cookie value with the same priority the
// original uses: a cookie this response is already about to send wins
// over the one the request arrived with, since the former is what the
// next request will carry.
func (st *Store) sessionID(req *http1.Request, resp *http1.ResponseWriter) string {
	if id, ok := resp.CookieValue(st.opts.CookieName); ok && id != "" {
		return id
	}
	return req.Cookie(st.opts.CookieName)
}

// GetSession resolves the caller's session, refreshing its cookie and
// last-access time if found. When allowCreate is true and no valid
// session cookie was presented, a new Session is created and its cookie
// queued on resp. The second return value is false only when allowCreate
// is false and no session was found.
func (st *Store) GetSession(req *http1.Request, resp *http1.ResponseWriter, allowCreate bool) (*Session, bool) {
	id := st.sessionID(req, resp)

	if id != "" {
		st.mu.RLock()
		s, ok := st.sessions[id]
		st.mu.RUnlock()
		if ok {
			s.touch()
			st.refreshCookie(resp, s.id)
			return s, true
		}
		st.log.Debug("received invalid session cookie", zap.String("id", id))
	}

	if !allowCreate {
		return nil, false
	}

	s := newSession(st.newID())
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	st.refreshCookie(resp, s.id)
	return s, true
}

// Lookup returns the session with the given ID without touching any
// cookie, refreshing its last-access time if found.
func (st *Store) Lookup(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Remove deletes a session immediately, e.g. on logout.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len reports the number of live sessions, for diagnostics.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) refreshCookie(resp *http1.ResponseWriter, id string) {
	resp.SetCookie(http1.Cookie{
		Name:    st.opts.CookieName,
		Value:   id,
		MaxAge:  st.opts.ExpirationTime,
		Path:    st.opts.CookiePath,
		Domain:  st.opts.CookieDomain,
		Comment: st.opts.CookieComment,
	})
}

func (st *Store) newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform's CSPRNG is broken;
		// there is no sane way to proceed without a secure session ID.
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func (st *Store) sweepLoop() {
	defer close(st.done)
	ticker := time.NewTicker(st.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st.sweep()
		case <-st.stop:
			return
		}
	}
}

func (st *Store) sweep() {
	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		if s.idleFor(now) > st.opts.ExpirationTime {
			st.log.Debug("session expired", zap.String("id", id))
			delete(st.sessions, id)
		}
	}
}
