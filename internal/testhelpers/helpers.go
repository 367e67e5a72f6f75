// Package testhelpers provides common utilities for testing the relay server
// and client over real WebSocket connections.
package testhelpers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/server"
)

// ReadTimeout bounds every blocking read in tests.
const ReadTimeout = 2 * time.Second

// TestConfig returns a configuration with short timeouts suited to tests.
func TestConfig() *server.Config {
	cfg := server.NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// Relay is a running hub behind an httptest server.
type Relay struct {
	Hub    *server.Hub
	Server *httptest.Server
	// URL is the ws:// address of the /ws endpoint.
	URL string
}

// StartRelay starts a hub with cfg (TestConfig when nil) and registers
// cleanup that shuts it down.
func StartRelay(t *testing.T, cfg *server.Config) *Relay {
	t.Helper()
	if cfg == nil {
		cfg = TestConfig()
	}

	hub := server.NewHub(cfg, logs.GetLoggerFromLevel(slog.LevelDebug))
	testServer := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		testServer.Close()
	})

	return &Relay{
		Hub:    hub,
		Server: testServer,
		URL:    WebSocketURL(testServer.URL) + "/ws",
	}
}

// WebSocketURL converts an http:// test server URL to ws://.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.Dial(url, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Join connects to url, sends name as the handshake frame and waits until the
// relay registered the peer by reading its own join notice. Frames received
// before that notice are discarded.
func Join(t *testing.T, url, name string) *websocket.Conn {
	t.Helper()

	conn, err := ConnectWebSocket(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(name)))
	ReadUntil(t, conn, protocol.JoinNotice(name))
	return conn
}

// SendText sends a raw text frame.
func SendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

// ReadText reads the next frame and requires it to be text.
func ReadText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

// ExpectTexts requires the next frames on conn to be exactly want, in order.
func ExpectTexts(t *testing.T, conn *websocket.Conn, want ...string) {
	t.Helper()

	got := make([]string, 0, len(want))
	for range want {
		got = append(got, ReadText(t, conn))
	}
	require.Equal(t, want, got)
}

// ReadUntil reads frames until one equals want and returns the frames seen
// before it.
func ReadUntil(t *testing.T, conn *websocket.Conn, want string) []string {
	t.Helper()

	var before []string
	for {
		text := ReadText(t, conn)
		if text == want {
			return before
		}
		before = append(before, text)
	}
}

// ExpectNoMessage requires that nothing arrives on conn within d. gorilla
// connections cannot be read again after a timeout, so this must be the last
// read on conn.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %q", string(data))
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode)
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	require.Equal(t, expected, resp.Header.Get("Content-Type"))
}
