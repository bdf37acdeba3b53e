package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"navsense/internal/location"
)

const (
	streamBuffer = 32
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxReadSize  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same box on whatever address the client
	// used to reach it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamHub attaches one listener per websocket client to the source.
type streamHub struct {
	src     location.Source
	clients atomic.Int64
	dropped atomic.Uint64

	// closed is set by closeAll; later upgrades are refused.
	mu     sync.Mutex
	conns  map[*streamClient]struct{}
	closed bool
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	exec *location.SerialExecutor
	l    *location.ListenerFuncs
}

func (h *streamHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: ws upgrade failed: %v", err)
		return
	}

	c := &streamClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, streamBuffer),
		done: make(chan struct{}),
	}
	c.exec = location.NewSerialExecutor("ws-" + c.id)
	c.l = &location.ListenerFuncs{
		Location: func(s location.Sample) {
			h.enqueue(c, StreamMessage{Type: "location", Location: toLocationJSON(s)})
		},
		Heading: func(deg float64) {
			h.enqueue(c, StreamMessage{Type: "heading", HeadingDeg: &deg})
		},
	}

	hello, _ := json.Marshal(StreamMessage{Type: "hello", ClientID: c.id})
	c.send <- hello

	if !h.track(c) {
		c.exec.Close()
		_ = conn.Close()
		return
	}
	if err := h.src.AddListener(c.l, c.exec); err != nil {
		log.Printf("web: ws client %s: %v", c.id, err)
		h.untrack(c)
		c.exec.Close()
		_ = conn.Close()
		return
	}
	h.clients.Add(1)
	log.Printf("web: ws client %s connected from %s", c.id, r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *streamHub) track(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.conns == nil {
		h.conns = make(map[*streamClient]struct{})
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *streamHub) untrack(c *streamClient) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// closeAll closes every client connection so each readPump returns and
// detaches its listener. http.Server.Shutdown does not touch hijacked
// connections.
func (h *streamHub) closeAll() {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = nil
	h.mu.Unlock()

	for c := range conns {
		_ = c.conn.Close()
	}
}

// enqueue runs on the client's executor. A slow client loses messages
// instead of stalling the executor. send is never closed, so a delivery that
// races with disconnect is simply dropped.
func (h *streamHub) enqueue(c *streamClient, msg StreamMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
		h.dropped.Add(1)
	}
}

// readPump discards client frames and returns when the connection ends.
func (h *streamHub) readPump(c *streamClient) {
	defer func() {
		h.untrack(c)
		h.src.RemoveListener(c.l)
		c.exec.Close()
		h.clients.Add(-1)
		close(c.done)
		log.Printf("web: ws client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: ws client %s read: %v", c.id, err)
			}
			return
		}
	}
}

func (h *streamHub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
