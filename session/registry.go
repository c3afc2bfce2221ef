package session

import (
	"context"
	"sync"

	"github.com/Strum355/log"
)

// Registry owns one Session per guild.
type Registry struct {
	ctx  context.Context
	cfg  Config
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(ctx context.Context, cfg Config, deps Deps) *Registry {
	return &Registry{
		ctx:      ctx,
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Get returns the guild's session, creating it on first use. A new session
// loads its persisted queue before Get returns.
func (r *Registry) Get(ctx context.Context, guildID string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	if !ok {
		s = New(r.ctx, guildID, r.cfg, r.deps)
		r.sessions[guildID] = s
	}
	r.mu.Unlock()

	s.restore(ctx)
	return s
}

// Peek returns the guild's session without creating one.
func (r *Registry) Peek(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

func (r *Registry) all() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// MessageDeleted drops messageID from whichever session tracks it. guildID
// may be empty for deletions outside a guild context.
func (r *Registry) MessageDeleted(guildID, messageID string) bool {
	if guildID != "" {
		s, ok := r.Peek(guildID)
		return ok && s.MessageDeleted(messageID)
	}
	matched := false
	for _, s := range r.all() {
		if s.MessageDeleted(messageID) {
			matched = true
		}
	}
	return matched
}

// Shutdown leaves every voice channel. Persisted queues are kept.
func (r *Registry) Shutdown(ctx context.Context) {
	sessions := r.all()
	log.Info("Stopping all voice sessions...")
	for _, s := range sessions {
		s.shutdown(ctx)
	}
	log.Info("All voice sessions stopped")
}
