// Package tunnel implements the reverse HTTP tunnel of spec.md §4.11
// (C11): the agent dials out to a control-plane endpoint over a
// persistent websocket connection and serves inbound HTTP requests
// against its own handler in-process, so no inbound port ever needs to
// be opened on the agent's host.
package tunnel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/events"
)

const (
	pingInterval = 25 * time.Second
	pongWait     = 10 * time.Second
	minBackoff   = 1 * time.Second
	maxBackoff   = 30 * time.Second
)

// Client is the reverse HTTP tunnel's single persistent connection
// (spec.md §4.11, C11): the agent dials out through any firewall/NAT to a
// control-plane endpoint, which then proxies inbound HTTP requests back
// over that connection as http_request/http_response frames, and relays
// outbound domain events as event frames.
type Client struct {
	cfg        cmn.TunnelConfig
	exec       *executor
	bus        *events.Bus
	log        *nlog.Logger
	reconnects prometheus.Counter

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New builds a Client that will execute inbound requests against handler
// and, once connected, also serves as an events.Relay forwarding bus
// events over the same connection.
func New(cfg cmn.TunnelConfig, handler http.Handler, bus *events.Bus) *Client {
	return &Client{
		cfg:  cfg,
		exec: newExecutor(handler),
		bus:  bus,
		log:  nlog.Named("tunnel"),
	}
}

// SetReconnectCounter wires a prometheus counter incremented every time a
// reconnection attempt begins, i.e. every connection attempt after the
// first (spec.md §A4 "tunnel reconnects"). Optional
// — a Client with no counter set simply doesn't record the metric.
func (c *Client) SetReconnectCounter(counter prometheus.Counter) {
	c.reconnects = counter
}

// Run connects and reconnects with exponential backoff (1s..30s) until ctx
// is cancelled. It blocks.
func (c *Client) Run(ctx context.Context) {
	backoff := minBackoff
	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if !first && c.reconnects != nil {
			c.reconnects.Inc()
		}
		first = false
		if err := c.runOnce(ctx); err != nil {
			c.log.Warnf("tunnel connection ended: %v (retrying in %s)", err, backoff)
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	if c.cfg.URL == "" {
		return cmn.NewError("tunnel.connect", cmn.KindConfigMiss, "tunnel URL not configured", nil)
	}
	cred, err := issueCredential(c.cfg.AgentID, c.cfg.Token)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred)
	header.Set("X-Agent-Id", c.cfg.AgentID)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, header)
	if err != nil {
		return cmn.NewError("tunnel.connect", cmn.KindTransient, "dial", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		conn.Close()
	}()

	c.log.Infof("tunnel connected to %s", c.cfg.URL)

	connCtx, stop := context.WithCancel(ctx)
	defer stop()

	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		return nil
	})

	go c.keepalive(connCtx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return cmn.NewError("tunnel.read", cmn.KindTransient, "read frame", err)
		}
		frame, err := decodeFrame(raw)
		if err != nil {
			c.log.Warnf("dropping unreadable frame: %v", err)
			continue
		}
		if frame.Kind != FrameHTTPRequest {
			continue
		}
		go c.handleRequest(conn, frame)
	}
}

func (c *Client) handleRequest(conn *websocket.Conn, f Frame) {
	resp := c.exec.execute(f)
	buf, err := encodeFrame(resp)
	if err != nil {
		c.log.Errorf("encode response frame: %v", err)
		return
	}
	if err := c.writeMessage(buf); err != nil {
		c.log.Warnf("write response frame: %v", err)
	}
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(buf []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return cmn.NewError("tunnel.write", cmn.KindTransient, "not connected", nil)
	}
	return c.conn.WriteMessage(websocket.TextMessage, buf)
}

// Relay implements events.Relay: bus events are forwarded as event frames
// over the tunnel's connection when one is established. Forwarding is
// best-effort — a disconnected tunnel silently drops the event, matching
// events.Bus's documented no-backpressure contract.
func (c *Client) Relay(ev events.Event) {
	buf, err := encodeFrame(Frame{
		Kind: FrameEvent, EventKind: string(ev.Kind), EntityID: ev.EntityID, Data: ev.Data,
	})
	if err != nil {
		c.log.Warnf("encode event frame: %v", err)
		return
	}
	if err := c.writeMessage(buf); err != nil {
		c.log.Debugf("dropping relayed event, tunnel not connected: %v", err)
	}
}
