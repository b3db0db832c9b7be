package adapters

import (
	"sync"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// SessionMemoryAdapter keeps sessions for the lifetime of the process.
type SessionMemoryAdapter struct {
	mu       sync.RWMutex
	sessions map[string]types.Session
}

func NewSessionMemoryAdapter() *SessionMemoryAdapter {
	return &SessionMemoryAdapter{sessions: map[string]types.Session{}}
}

func (a *SessionMemoryAdapter) Get(registry string) (types.Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	session, ok := a.sessions[registry]
	return session, ok
}

func (a *SessionMemoryAdapter) Put(session types.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[session.Registry] = session
}

func (a *SessionMemoryAdapter) Delete(registry string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[registry]
	delete(a.sessions, registry)
	return ok
}

var _ ports.SessionStorePort = (*SessionMemoryAdapter)(nil)
