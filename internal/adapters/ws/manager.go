package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/keyra/aicore/internal/core"
)

const egressQueueCap = 100

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type egressConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *egressConn) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *egressConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// ConnectionManager fans session audio out to per-session websocket
// connections through bounded egress queues.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[core.SessionID]*egressConn
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{conns: make(map[core.SessionID]*egressConn)}
}

// Broadcast queues audio for the session's websocket. Non-blocking: a full
// queue drops the packet, an unknown session is a no-op.
func (m *ConnectionManager) Broadcast(sid core.SessionID, data []byte) bool {
	m.mu.RLock()
	c, ok := m.conns[sid]
	m.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "ws").Str("sid", string(sid)).Msg("broadcast to unknown session")
		return false
	}
	if !c.trySend(data) {
		log.Warn().Str("module", "ws").Str("sid", string(sid)).Msg("egress queue full, dropping packet")
		return false
	}
	return true
}

// Disconnect tears down the session's websocket, if any.
func (m *ConnectionManager) Disconnect(sid core.SessionID) {
	m.mu.Lock()
	c, ok := m.conns[sid]
	delete(m.conns, sid)
	m.mu.Unlock()
	if ok {
		c.close()
		log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("websocket cleaned up")
	}
}

// HandleAudio upgrades the request and streams session audio to the client
// until either side goes away. Blocks for the life of the connection.
func (m *ConnectionManager) HandleAudio(ctx context.Context, c *gin.Context, sid core.SessionID) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("ws upgrade")
		return
	}

	ec := &egressConn{conn: conn, send: make(chan []byte, egressQueueCap)}
	m.mu.Lock()
	if prev, ok := m.conns[sid]; ok {
		prev.close()
	}
	m.conns[sid] = ec
	m.mu.Unlock()
	log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("websocket connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The client never sends audio here; the read loop only notices when
	// it hangs up.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	m.writePump(ctx, sid, ec)
	m.remove(sid, ec)
}

// remove drops sid's entry only if it still points at ec, so a handler
// exiting after a reconnect cannot tear down the replacement connection.
func (m *ConnectionManager) remove(sid core.SessionID, ec *egressConn) {
	m.mu.Lock()
	if m.conns[sid] == ec {
		delete(m.conns, sid)
	}
	m.mu.Unlock()
	ec.close()
	log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("websocket cleaned up")
}

func (m *ConnectionManager) writePump(ctx context.Context, sid core.SessionID, c *egressConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		}
	}
}
