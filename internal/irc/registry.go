package irc

import (
	"sort"
	"sync"
)

// Registry maps server identity to session state and is the application's
// single point of access: reads come through its accessors, mutation only
// through Receive/Send/Sync. Each entry has one logical owner; the lock
// guards the map itself.
type Registry struct {
	mu      sync.RWMutex
	entries map[Server]*Session
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Server]*Session)}
}

// Disconnected records the server without live session state.
func (r *Registry) Disconnected(server Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[server] = nil
}

// Ready installs freshly connected session state, replacing any previous
// state and dropping its in-flight correlation entries.
func (r *Registry) Ready(server Server, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[server] = session
}

// Remove discards the server entirely, in-flight state included.
func (r *Registry) Remove(server Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, server)
}

func (r *Registry) session(server Server) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[server]
}

func (r *Registry) IsConnected(server Server) bool {
	return r.session(server) != nil
}

// Servers lists all registered servers, connected or not, sorted by name.
func (r *Registry) Servers() []Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Server, 0, len(r.entries))
	for server := range r.entries {
		out = append(out, server)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Nickname(server Server) (string, bool) {
	if s := r.session(server); s != nil {
		return s.Nickname(), true
	}
	return "", false
}

func (r *Registry) Channels(server Server) []string {
	if s := r.session(server); s != nil {
		return s.Channels()
	}
	return nil
}

func (r *Registry) ChannelUsers(server Server, channel string) []User {
	if s := r.session(server); s != nil {
		return s.ChannelUsers(channel)
	}
	return nil
}

// Receive routes one inbound message to the server's session and returns the
// derived events. This is the only mutation path for session state.
func (r *Registry) Receive(server Server, msg Message) []Event {
	if s := r.session(server); s != nil {
		return s.Receive(msg)
	}
	return nil
}

// Sync recomputes the server's flattened membership view.
func (r *Registry) Sync(server Server) {
	if s := r.session(server); s != nil {
		s.Sync()
	}
}

// Send resolves the buffer's server and forwards the message to its session.
func (r *Registry) Send(buffer Buffer, msg Message) {
	if s := r.session(buffer.Server); s != nil {
		s.Send(buffer, msg)
	}
}
