package app

import (
	"context"
	"sync"
	"time"

	"github.com/keyra/aicore/internal/core"
)

// fakeConn is a scriptable dialogue connection. Gates let tests hold a send
// mid-flight; attempts reports every send attempt for synchronization.
type fakeConn struct {
	mu      sync.Mutex
	audio   [][]byte
	texts   []string
	videos  [][]byte
	sendErr error

	audioGate chan struct{}
	videoGate chan struct{}

	attempts chan string
	events   chan *core.DialogueEvent

	closed int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		attempts: make(chan string, 256),
		events:   make(chan *core.DialogueEvent, 16),
	}
}

func (c *fakeConn) setSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeConn) SendAudio(ctx context.Context, chunk core.MediaChunk) error {
	c.attempts <- "audio"
	if c.audioGate != nil {
		select {
		case <-c.audioGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.audio = append(c.audio, chunk.Data)
	return nil
}

func (c *fakeConn) SendText(ctx context.Context, text string) error {
	c.attempts <- "text"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeConn) SendVideo(ctx context.Context, chunk core.MediaChunk) error {
	c.attempts <- "video"
	if c.videoGate != nil {
		select {
		case <-c.videoGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.videos = append(c.videos, chunk.Data)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (*core.DialogueEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev := <-c.events:
		return ev, nil
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentAudio() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.audio...)
}

func (c *fakeConn) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func (c *fakeConn) sentVideos() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.videos...)
}

type fakeProvider struct {
	mu      sync.Mutex
	openErr error
	conns   []*fakeConn
}

func (p *fakeProvider) Open(ctx context.Context, cfg core.DialogueConfig) (core.DialogueConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	c := newFakeConn()
	p.conns = append(p.conns, c)
	return c, nil
}

func (p *fakeProvider) conn(i int) *fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[i]
}

type fakeTransport struct {
	mu        sync.Mutex
	sid       core.SessionID
	hooks     core.TransportHooks
	offerErr  error
	answerErr error
	answer    string
	sent      [][]byte
	closed    int
}

func (t *fakeTransport) CreateOffer(ctx context.Context) (string, error) {
	if t.offerErr != nil {
		return "", t.offerErr
	}
	return "v=0 fake offer", nil
}

func (t *fakeTransport) SetAnswer(ctx context.Context, sdp string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.answerErr != nil {
		return t.answerErr
	}
	t.answer = sdp
	return nil
}

func (t *fakeTransport) SendAudio(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeFactory struct {
	mu        sync.Mutex
	newErr    error
	answerErr error
	offerErr  error
	made      []*fakeTransport
}

func (f *fakeFactory) New(sid core.SessionID, hooks core.TransportHooks) (core.MediaTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	t := &fakeTransport{sid: sid, hooks: hooks, answerErr: f.answerErr, offerErr: f.offerErr}
	f.made = append(f.made, t)
	return t, nil
}

func (f *fakeFactory) transport(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[i]
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (k *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
	k.ttls[key] = ttl
	return nil
}

func (k *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	return v, ok, nil
}

func (k *fakeKV) Delete(ctx context.Context, key string) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.data[key]; !ok {
		return 0, nil
	}
	delete(k.data, key)
	delete(k.ttls, key)
	return 1, nil
}

func (k *fakeKV) value(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	return v, ok
}

func (k *fakeKV) ttl(key string) time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ttls[key]
}
