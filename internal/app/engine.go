package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/keyra/aicore/internal/core"
)

var (
	// ErrSessionNotFound reports an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidAnswer reports a remote description the transport rejected.
	ErrInvalidAnswer = errors.New("invalid answer")
)

const (
	audioQueueCap = 50
	mediaQueueCap = 1

	// DefaultSessionTTL bounds how long a pending session's persisted
	// metadata survives without an answer.
	DefaultSessionTTL = 300 * time.Second
)

func sessionKey(sid core.SessionID) string { return "session:" + string(sid) }

// sessionMeta is the persisted per-session record.
type sessionMeta struct {
	Status            string `json:"status"`
	SystemInstruction string `json:"system_instruction"`
}

// CreateRequest carries everything needed to open a new session.
type CreateRequest struct {
	// ID is optional; a fresh uuid is generated when empty. Reusing an ID
	// fully closes the previous session first.
	ID                core.SessionID
	SystemInstruction string
	SpeakerVoice      string
	InputSampleRate   int
	Sink              core.EventSink
}

// Engine is the session lifecycle coordinator. It owns the registry: it is
// the only component that creates or deletes entries, and it serializes
// create/close per session id.
type Engine struct {
	provider   core.DialogueProvider
	transports core.TransportFactory
	kv         core.KV
	sessionTTL time.Duration

	reg *Registry

	mu    sync.Mutex
	locks map[core.SessionID]*sync.Mutex
}

func NewEngine(provider core.DialogueProvider, transports core.TransportFactory, kv core.KV, sessionTTL time.Duration) *Engine {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Engine{
		provider:   provider,
		transports: transports,
		kv:         kv,
		sessionTTL: sessionTTL,
		reg:        NewRegistry(),
		locks:      make(map[core.SessionID]*sync.Mutex),
	}
}

// lockFor returns the per-session mutex serializing create and close. Locks
// are kept for the process lifetime so two goroutines never hold distinct
// mutexes for the same id.
func (e *Engine) lockFor(sid core.SessionID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[sid]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sid] = l
	}
	return l
}

// CreateSession opens a dialogue connection, wires the per-session queues,
// loops and media transport, persists pending metadata and returns the local
// SDP offer. On any failure nothing is left registered.
func (e *Engine) CreateSession(ctx context.Context, req CreateRequest) (core.SessionID, string, error) {
	sid := req.ID
	if sid == "" {
		sid = core.SessionID(uuid.NewString())
	}

	l := e.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	if _, ok := e.reg.Get(sid); ok {
		log.Warn().Str("module", "app.engine").Str("sid", string(sid)).Msg("session id reused, closing previous session")
		e.closeLocked(ctx, sid)
	}

	conn, err := e.provider.Open(ctx, core.DialogueConfig{
		SystemInstruction: req.SystemInstruction,
		SpeakerVoice:      req.SpeakerVoice,
		InputSampleRate:   req.InputSampleRate,
	})
	if err != nil {
		return "", "", fmt.Errorf("open dialogue connection: %w", err)
	}

	ent := &sessionEntry{
		sid:               sid,
		dialogue:          conn,
		sink:              req.Sink,
		systemInstruction: req.SystemInstruction,
		audioQ:            newQueue[core.SendItem](audioQueueCap),
		mediaQ:            newQueue[core.MediaChunk](mediaQueueCap),
		procs:             make(map[string]*task),
		stats:             &sessionStats{},
	}
	ent.closers = append(ent.closers, conn.Close)

	ent.listener = e.spawn(func(ctx context.Context) { e.runResponseListener(ctx, ent) })
	ent.procs["audio"] = e.spawn(func(ctx context.Context) { e.runAudioProcessor(ctx, ent) })
	ent.procs["media"] = e.spawn(func(ctx context.Context) { e.runMediaProcessor(ctx, ent) })

	transport, err := e.transports.New(sid, core.TransportHooks{
		OnAudioFrame: func(data []byte) { e.handleAudioFrame(sid, data) },
		OnVideoFrame: func(data []byte) { e.handleVideoFrame(sid, data) },
		OnDisconnect: func() {
			log.Info().Str("module", "app.engine").Str("sid", string(sid)).Msg("transport disconnected")
			go e.CloseSession(context.Background(), sid)
		},
	})
	if err != nil {
		e.teardown(ent)
		return "", "", fmt.Errorf("create media transport: %w", err)
	}
	ent.transport = transport

	e.reg.Put(ent)

	if err := e.persistMeta(ctx, sid, sessionMeta{Status: "pending", SystemInstruction: req.SystemInstruction}, e.sessionTTL); err != nil {
		e.closeLocked(ctx, sid)
		return "", "", fmt.Errorf("persist session metadata: %w", err)
	}

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		e.closeLocked(ctx, sid)
		return "", "", fmt.Errorf("create offer: %w", err)
	}

	log.Info().Str("module", "app.engine").Str("sid", string(sid)).Msg("session created")
	return sid, offer, nil
}

// spawn starts one loop under its own cancellable context and returns its
// task handle. Loops derive from Background: a session outlives the HTTP
// request that created it.
func (e *Engine) spawn(run func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		run(ctx)
	}()
	return t
}

// SetAnswer applies the remote SDP answer and flips the persisted session
// status from pending to active.
func (e *Engine) SetAnswer(ctx context.Context, sid core.SessionID, sdp string) error {
	ent, ok := e.reg.Get(sid)
	if !ok {
		return ErrSessionNotFound
	}
	if err := ent.transport.SetAnswer(ctx, sdp); err != nil {
		log.Error().Err(err).Str("module", "app.engine").Str("sid", string(sid)).Msg("set answer")
		return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}

	// Active sessions carry no TTL; they are reclaimed on explicit close.
	if err := e.persistMeta(ctx, sid, sessionMeta{Status: "active", SystemInstruction: ent.systemInstruction}, 0); err != nil {
		log.Error().Err(err).Str("module", "app.engine").Str("sid", string(sid)).Msg("persist active status")
	}
	log.Info().Str("module", "app.engine").Str("sid", string(sid)).Msg("session active")
	return nil
}

func (e *Engine) persistMeta(ctx context.Context, sid core.SessionID, meta sessionMeta, ttl time.Duration) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return e.kv.Set(ctx, sessionKey(sid), string(b), ttl)
}

// CloseSession tears down every resource of sid and removes it from every
// store. It is idempotent: closing an unknown session returns false.
func (e *Engine) CloseSession(ctx context.Context, sid core.SessionID) bool {
	l := e.lockFor(sid)
	l.Lock()
	defer l.Unlock()
	return e.closeLocked(ctx, sid)
}

// closeLocked runs the teardown sequence under the per-session lock:
// transport, listener, processors, resource scope, registry, persisted key.
// Every step is best-effort but the removal is total.
func (e *Engine) closeLocked(ctx context.Context, sid core.SessionID) bool {
	closedLocally := false
	if ent, ok := e.reg.Get(sid); ok {
		st := ent.stats.snapshot()
		log.Info().
			Str("module", "app.engine").
			Str("sid", string(sid)).
			Uint64("audio_sent", st.AudioSent).
			Uint64("images_sent", st.ImagesSent).
			Uint64("images_skipped", st.ImagesSkipped).
			Uint64("audio_received", st.AudioReceived).
			Msg("closing session")

		e.teardown(ent)
		e.reg.Remove(sid)
		closedLocally = true
		log.Info().Str("module", "app.engine").Str("sid", string(sid)).Msg("session closed")
	}

	n, err := e.kv.Delete(ctx, sessionKey(sid))
	if err != nil {
		log.Error().Err(err).Str("module", "app.engine").Str("sid", string(sid)).Msg("delete session metadata")
	}
	return closedLocally || n > 0
}

// teardown stops the loops and releases the entry's resources. Cancellation
// is treated as the normal exit path; a loop must be awaited before the
// handles it reads are released.
func (e *Engine) teardown(ent *sessionEntry) {
	if ent.transport != nil {
		if err := ent.transport.Close(); err != nil {
			log.Error().Err(err).Str("module", "app.engine").Str("sid", string(ent.sid)).Msg("close transport")
		}
	}
	ent.listener.stop()
	ent.procs["audio"].stop()
	ent.procs["media"].stop()
	ent.releaseScope()
}

// CloseAll closes every known session concurrently. Used at shutdown.
func (e *Engine) CloseAll(ctx context.Context) {
	ids := e.reg.IDs()
	var wg sync.WaitGroup
	for _, sid := range ids {
		wg.Add(1)
		go func(sid core.SessionID) {
			defer wg.Done()
			e.CloseSession(ctx, sid)
		}(sid)
	}
	wg.Wait()
	log.Info().Str("module", "app.engine").Int("count", len(ids)).Msg("closed all sessions")
}

// QueueAudio enqueues an inbound audio chunk for forwarding. It never
// blocks: a full queue or unknown session drops the chunk and returns false.
func (e *Engine) QueueAudio(sid core.SessionID, data []byte) bool {
	ent, ok := e.reg.Get(sid)
	if !ok {
		return false
	}
	if !ent.audioQ.TryPut(core.SendItem{Chunk: &core.MediaChunk{Data: data, MIMEType: "audio/pcm"}}) {
		log.Warn().Str("module", "app.engine").Str("sid", string(sid)).Msg("audio queue full, dropping chunk")
		return false
	}
	return true
}

// QueueText enqueues a complete user text turn on the audio/text queue.
func (e *Engine) QueueText(sid core.SessionID, text string) bool {
	ent, ok := e.reg.Get(sid)
	if !ok {
		return false
	}
	if !ent.audioQ.TryPut(core.SendItem{Text: text}) {
		log.Warn().Str("module", "app.engine").Str("sid", string(sid)).Msg("text queue full, dropping turn")
		return false
	}
	return true
}

// QueueImage enqueues an image frame on the media queue. The queue keeps
// only the newest frame: enqueueing over a backlog evicts the older frame,
// which counts as skipped.
func (e *Engine) QueueImage(sid core.SessionID, data []byte, mimeType string) bool {
	ent, ok := e.reg.Get(sid)
	if !ok {
		return false
	}
	if ent.mediaQ.PutLatest(core.MediaChunk{Data: data, MIMEType: mimeType}) {
		ent.stats.imagesSkipped.Add(1)
		log.Debug().Str("module", "app.engine").Str("sid", string(sid)).Msg("media backlog, dropped older frame")
	}
	return true
}

func (e *Engine) handleAudioFrame(sid core.SessionID, data []byte) {
	e.QueueAudio(sid, data)
}

func (e *Engine) handleVideoFrame(sid core.SessionID, data []byte) {
	e.QueueImage(sid, data, "image/jpeg")
}

// ForwardAudio writes model audio back to the session's peer over the
// media transport, best-effort: a session mid-teardown or a not-yet-open
// channel just drops the chunk.
func (e *Engine) ForwardAudio(sid core.SessionID, data []byte) bool {
	ent, ok := e.reg.Get(sid)
	if !ok {
		return false
	}
	if err := ent.transport.SendAudio(data); err != nil {
		log.Debug().Err(err).Str("module", "app.engine").Str("sid", string(sid)).Msg("forward audio to peer")
		return false
	}
	return true
}

// Stats returns a snapshot of the session's counters.
func (e *Engine) Stats(sid core.SessionID) (core.SessionStats, bool) {
	ent, ok := e.reg.Get(sid)
	if !ok {
		return core.SessionStats{}, false
	}
	return ent.stats.snapshot(), true
}

// ActiveSessions lists the ids of every registered session.
func (e *Engine) ActiveSessions() []core.SessionID {
	return e.reg.IDs()
}

// dispatch invokes a sink callback, containing panics so one session's
// faulty callback cannot break a shared loop.
func dispatch(sid core.SessionID, name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.engine").Str("sid", string(sid)).Str("callback", name).Any("panic", r).Msg("sink callback panicked")
		}
	}()
	fn()
}

func (e *Engine) notifyError(ent *sessionEntry, err error) {
	if ent.sink.OnError == nil {
		return
	}
	dispatch(ent.sid, "on_error", func() { ent.sink.OnError(err) })
}
