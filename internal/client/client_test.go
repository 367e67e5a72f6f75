package client

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/testhelpers"
)

// lineSink collects lines handed to Receive.
type lineSink struct {
	mu    sync.Mutex
	lines []protocol.Line
}

func (s *lineSink) add(line protocol.Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, 0, len(s.lines))
	for _, line := range s.lines {
		texts = append(texts, line.Text)
	}
	return texts
}

func testConfig(url, name string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Name = name
	return cfg
}

func TestClient_Chat_Round_Trip(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, nil)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	alice, err := Dial(context.Background(), testConfig(relay.URL, "Alice"), log)
	req.NoError(err)
	req.Equal("Alice", alice.Name())

	sink := &lineSink{}
	received := make(chan error, 1)
	go func() { received <- alice.Receive(sink.add) }()

	req.Eventually(func() bool { return len(sink.texts()) == 1 }, 2*time.Second, 10*time.Millisecond)

	bob := testhelpers.Join(t, relay.URL, "Bob")
	req.NoError(alice.Send("hi"))
	testhelpers.ExpectTexts(t, bob, "Alice: hi")

	testhelpers.SendText(t, bob, "Bob: hello")
	testhelpers.ExpectTexts(t, bob, "Bob: hello")

	req.Eventually(func() bool { return len(sink.texts()) == 4 }, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{
		"-- Alice is entering. --",
		"-- Bob is entering. --",
		"Alice: hi",
		"Bob: hello",
	}, sink.texts())

	req.NoError(alice.Close())
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		req.Fail("Receive did not return after Close")
	}
	testhelpers.ExpectTexts(t, bob, "-- Alice is exited. --")
}

func TestClient_Receive_Returns_On_Server_Shutdown(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, nil)

	c, err := Dial(context.Background(), testConfig(relay.URL, "Alice"), nil)
	req.NoError(err)
	defer c.Close()

	received := make(chan error, 1)
	go func() { received <- c.Receive(func(protocol.Line) {}) }()

	req.Eventually(func() bool { return relay.Hub.Registry().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	req.NoError(relay.Hub.Shutdown(time.Second))

	select {
	case err := <-received:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("Receive did not return after shutdown")
	}
}

func TestDial_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := Dial(context.Background(), testConfig("ws://127.0.0.1:1", ""), nil)
		require.ErrorContains(t, err, "invalid client configuration")
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := Dial(context.Background(), testConfig("ws://127.0.0.1:1", "Alice"), nil)
		require.ErrorContains(t, err, "dial ws://127.0.0.1:1")
	})
}

func TestConfigFromEnv(t *testing.T) {
	req := require.New(t)
	t.Setenv("CHAT_URL", "ws://relay.example:9000/ws")
	t.Setenv("CHAT_NAME", "Dana")
	t.Setenv("CHAT_DIAL_TIMEOUT", "2s")

	cfg, err := ConfigFromEnv()
	req.NoError(err)
	req.Equal("ws://relay.example:9000/ws", cfg.URL)
	req.Equal("Dana", cfg.Name)
	req.Equal(2*time.Second, cfg.DialTimeout)
	req.NoError(cfg.Validate())
}

func TestRender(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"-- Bob is entering. --", "* Bob is entering.\n"},
		{"Alice: hi", "[Alice] hi\n"},
		{"plain", "plain\n"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var buf bytes.Buffer
			Render(&buf, protocol.Parse(tt.text))
			require.Equal(t, tt.want, buf.String())
		})
	}
}
