// Package link keeps a TCP connection to the socket proxy and writes device
// presence and tracking objects to it as NDJSON.
package link

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/pipeline"
)

var ErrNotConnected = errors.New("link: not connected")

const (
	dialRetry      = 5 * time.Second
	reconnectDelay = 2 * time.Second
	writeTimeout   = 5 * time.Second
)

type Client struct {
	addr   string
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

func NewClient(addr string, lg *slog.Logger) *Client {
	return &Client{addr: addr, logger: lg.With("component", "link")}
}

func (c *Client) Name() string { return "link" }

// Run dials the proxy and redials whenever the connection drops, until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("link: dial failed", "addr", c.addr, "err", err)
			if !sleep(ctx, dialRetry) {
				return nil
			}
			continue
		}

		c.setConn(conn)
		c.logger.Info("link: connected", "remote", conn.RemoteAddr().String())

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		c.readLoop(conn)
		stop()

		c.clearConn(conn)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("link: connection closed, reconnecting")
		if !sleep(ctx, reconnectDelay) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) clearConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Connected reports whether a proxy connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// readLoop only logs what the proxy sends back.
func (c *Client) readLoop(conn net.Conn) {
	r := bufio.NewScanner(conn)
	for r.Scan() {
		c.logger.Info("link: incoming line", "line", r.Text())
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn("link: read error", "err", err)
	}
}

// sendNDJSON writes every value as one line while holding the connection.
func (c *Client) sendNDJSON(vs ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	var buf []byte
	for _, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf = append(append(buf, b...), '\n')
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("link: write: %w", err)
	}
	return nil
}

type deviceConnectPayload struct {
	DeviceConnect bool   `json:"device_connect"`
	IMEI          string `json:"imei"`
	RemoteIP      string `json:"remote_ip,omitempty"`
	RemotePort    int    `json:"remote_port,omitempty"`
	At            string `json:"dt"`
}

type deviceDisconnectPayload struct {
	DeviceDisconnect bool   `json:"device_disconnect"`
	IMEI             string `json:"imei"`
	At               string `json:"dt"`
}

// Announce sends device_connect or device_disconnect.
func (c *Client) Announce(_ context.Context, info dispatcher.DeviceInfo) error {
	at := info.At.UTC().Format(time.RFC3339)
	switch info.State {
	case dispatcher.DeviceStateConnect:
		return c.sendNDJSON(deviceConnectPayload{
			DeviceConnect: true,
			IMEI:          info.IMEI,
			RemoteIP:      info.RemoteIP,
			RemotePort:    info.RemotePort,
			At:            at,
		})
	case dispatcher.DeviceStateDisconnect:
		return c.sendNDJSON(deviceDisconnectPayload{DeviceDisconnect: true, IMEI: info.IMEI, At: at})
	default:
		return nil
	}
}

// Deliver sends one tracking line per record of b.
func (c *Client) Deliver(_ context.Context, b dispatcher.Batch) error {
	trs := pipeline.Track(b.IMEI, b.Packets, time.Now())
	if len(trs) == 0 {
		return nil
	}
	vs := make([]any, len(trs))
	for i, tr := range trs {
		vs[i] = tr
	}
	return c.sendNDJSON(vs...)
}
