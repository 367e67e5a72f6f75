// Package client is a terminal peer for the relay: it performs the name
// handshake, sends chat lines in the "<name>: <body>" form and classifies what
// the server relays back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Client is one connection to the relay.
type Client struct {
	name string
	conn *websocket.Conn
	log  *slog.Logger

	// gorilla allows a single concurrent writer.
	writeMu sync.Mutex
}

// Dial connects to cfg.URL and sends cfg.Name as the handshake frame.
func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	header := http.Header{}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{name: cfg.Name, conn: conn, log: log.With("name", cfg.Name)}
	if err := c.write(cfg.Name); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send name: %w", err)
	}
	c.log.Debug("Connected", "url", cfg.URL)
	return c, nil
}

// Name returns the display name sent in the handshake.
func (c *Client) Name() string {
	return c.name
}

// Send relays body to every peer, prefixed with this client's name.
func (c *Client) Send(body string) error {
	return c.write(protocol.FormatChat(c.name, body))
}

func (c *Client) write(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Receive reads frames until the connection ends and passes each parsed text
// frame to handle. A normal close returns nil.
func (c *Client) Receive(handle func(protocol.Line)) error {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(protocol.Parse(string(data)))
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Render writes a line the way the terminal client shows it.
func Render(w io.Writer, line protocol.Line) {
	switch line.Kind {
	case protocol.KindNotice:
		_, _ = fmt.Fprintf(w, "* %s\n", line.Body)
	case protocol.KindChat:
		_, _ = fmt.Fprintf(w, "[%s] %s\n", line.Name, line.Body)
	default:
		_, _ = fmt.Fprintln(w, line.Text)
	}
}
