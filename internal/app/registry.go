package app

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/keyra/aicore/internal/core"
)

// task is one long-running per-session loop handle. The coordinator cancels
// it and then waits on done before releasing the resources the loop reads.
type task struct {
	cancel func()
	done   chan struct{}
}

func (t *task) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// sessionStats backs core.SessionStats with atomic counters so processors
// and the listener can mutate them without locking.
type sessionStats struct {
	audioSent     atomic.Uint64
	imagesSent    atomic.Uint64
	imagesSkipped atomic.Uint64
	audioReceived atomic.Uint64
}

func (s *sessionStats) snapshot() core.SessionStats {
	return core.SessionStats{
		AudioSent:     s.audioSent.Load(),
		ImagesSent:    s.imagesSent.Load(),
		ImagesSkipped: s.imagesSkipped.Load(),
		AudioReceived: s.audioReceived.Load(),
	}
}

// sessionEntry aggregates every live resource of one session. The registry
// entry is the unit of ownership: only the Engine creates or deletes it,
// loops read their own handles and touch only their own counters.
type sessionEntry struct {
	sid      core.SessionID
	dialogue core.DialogueConn
	sink     core.EventSink

	systemInstruction string

	transport core.MediaTransport

	audioQ *queue[core.SendItem]
	mediaQ *queue[core.MediaChunk]

	listener *task
	procs    map[string]*task

	stats *sessionStats

	// closers is the resource scope: acquired external resources released
	// together on close, in reverse-acquisition order.
	closers []func() error
}

func (e *sessionEntry) releaseScope() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			log.Error().Err(err).Str("module", "app.registry").Str("sid", string(e.sid)).Msg("release resource")
		}
	}
}

// Registry maps SessionID to its live resources. At most one entry per ID.
type Registry struct {
	mu      sync.RWMutex
	entries map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Get(sid core.SessionID) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sid]
	return e, ok
}

func (r *Registry) Put(e *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.sid] = e
	log.Info().Str("module", "app.registry").Str("sid", string(e.sid)).Msg("registered session")
}

// Remove deletes the entry for sid, returning it for teardown.
func (r *Registry) Remove(sid core.SessionID) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sid]
	if ok {
		delete(r.entries, sid)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed session")
	}
	return e, ok
}

func (r *Registry) IDs() []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0, len(r.entries))
	for sid := range r.entries {
		out = append(out, sid)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
