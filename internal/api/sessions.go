package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/services"
)

// sessionRegistry keeps one live builder session per owner and form so that
// edits arriving over several requests share a debounce window.
type sessionRegistry struct {
	builder *services.BuilderService
	idle    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*trackedSession
}

type trackedSession struct {
	session  *services.BuilderSession
	lastUsed time.Time
	// ops serialises edit batches so one request's ops apply together.
	ops sync.Mutex
}

func newSessionRegistry(builder *services.BuilderService, idle time.Duration) *sessionRegistry {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &sessionRegistry{
		builder:  builder,
		idle:     idle,
		now:      time.Now,
		sessions: map[string]*trackedSession{},
	}
}

func (r *sessionRegistry) acquire(ctx context.Context, owner identity.Identity, formID string) (*trackedSession, error) {
	key := owner.UserID + "/" + formID
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, ok := r.sessions[key]; ok && !ts.session.Removed() {
		ts.lastUsed = r.now()
		return ts, nil
	} else if ok {
		delete(r.sessions, key)
		go closeSession(key, ts.session)
	}
	s, err := r.builder.Open(ctx, owner, formID)
	if err != nil {
		return nil, err
	}
	ts := &trackedSession{session: s, lastUsed: r.now()}
	r.sessions[key] = ts
	return ts, nil
}

// sweep closes sessions idle for longer than the registry's idle timeout.
func (r *sessionRegistry) sweep() int {
	r.mu.Lock()
	cutoff := r.now().Add(-r.idle)
	stale := map[string]*services.BuilderSession{}
	for key, ts := range r.sessions {
		if ts.lastUsed.Before(cutoff) {
			stale[key] = ts.session
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()
	for key, s := range stale {
		closeSession(key, s)
	}
	return len(stale)
}

// run sweeps idle sessions until ctx is done, then closes the rest.
func (r *sessionRegistry) run(ctx context.Context) {
	t := time.NewTicker(r.idle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-t.C:
			if n := r.sweep(); n > 0 {
				slog.Debug("closed idle builder sessions", slog.Int("count", n))
			}
		}
	}
}

func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*trackedSession{}
	r.mu.Unlock()
	for key, ts := range all {
		closeSession(key, ts.session)
	}
}

func closeSession(key string, s *services.BuilderSession) {
	if err := s.Close(); err != nil {
		slog.Error("closing builder session", slog.String("session", key), slog.String("error", err.Error()))
	}
}
