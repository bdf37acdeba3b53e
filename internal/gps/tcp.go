package gps

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	tcpReconnectDelay = 1 * time.Second
	tcpDialTimeout    = 2 * time.Second
	tcpMaxLineBytes   = 4096
)

// TCPSnapshot describes the NMEA-over-TCP link, when that source is in use.
type TCPSnapshot struct {
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Lines       uint64 `json:"lines"`
}

// tcpLineReader connects to a TCP endpoint that emits newline-delimited
// NMEA (ser2net, phone GPS apps, multiplexers) and reconnects on failure.
type tcpLineReader struct {
	addr           string
	reconnectDelay time.Duration
	dialTimeout    time.Duration

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	count    uint64
}

func newTCPLineReader(addr string) *tcpLineReader {
	return &tcpLineReader{
		addr:           addr,
		reconnectDelay: tcpReconnectDelay,
		dialTimeout:    tcpDialTimeout,
		state:          "stopped",
	}
}

// run blocks until ctx is done. onLine gets each trimmed, non-empty line.
func (c *tcpLineReader) run(ctx context.Context, onLine func(line string) error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}

	for {
		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}

		c.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			c.setState("error", err.Error())
			if !sleepCtx(ctx, c.reconnectDelay) {
				c.setState("stopped", "")
				return
			}
			continue
		}

		c.setState("connected", "")
		c.readConn(ctx, conn, onLine)

		if !sleepCtx(ctx, c.reconnectDelay) {
			c.setState("stopped", "")
			return
		}
	}
}

func (c *tcpLineReader) readConn(ctx context.Context, conn net.Conn, onLine func(string) error) {
	// Unblock the pending read when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				c.setState("disconnected", "")
			} else {
				c.setState("disconnected", err.Error())
			}
			return
		}
		if len(line) > tcpMaxLineBytes {
			c.setState("error", fmt.Sprintf("line too large (%d bytes)", len(line)))
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		if err := onLine(string(line)); err != nil {
			c.setState("error", "handler: "+err.Error())
			continue
		}

		c.mu.Lock()
		c.lastSeen = time.Now().UTC()
		c.count++
		c.mu.Unlock()
	}
}

func (c *tcpLineReader) snapshot() TCPSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := TCPSnapshot{Addr: c.addr, State: c.state, LastError: c.lastErr, Lines: c.count}
	if !c.lastSeen.IsZero() {
		out.LastSeenUTC = c.lastSeen.Format(time.RFC3339Nano)
	}
	return out
}

func (c *tcpLineReader) setState(state string, lastErr string) {
	c.mu.Lock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == "connected" || state == "connecting" || state == "stopped" {
		// A transient startup failure should not linger once the link is healthy.
		c.lastErr = ""
	}
	c.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
