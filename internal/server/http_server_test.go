package server_test

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/testhelpers"
)

func TestListen_Fails_When_Address_Is_Taken(t *testing.T) {
	req := require.New(t)

	first := server.CreateServer("127.0.0.1:0", http.NewServeMux())
	ln, err := server.Listen(first)
	req.NoError(err)
	defer ln.Close()

	second := server.CreateServer(ln.Addr().String(), http.NewServeMux())
	_, err = server.Listen(second)
	req.Error(err)
	req.Contains(err.Error(), "failed to listen")
}

func TestServer_Lifecycle(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	cfg := testhelpers.TestConfig()

	hub := server.NewHub(cfg, log)
	httpServer := server.CreateServer(cfg.Addr, server.SetupRoutes(hub))
	ln, err := server.Listen(httpServer)
	req.NoError(err)

	served := make(chan error, 1)
	go func() { served <- server.StartServer(httpServer, ln, log) }()

	wsURL := "ws://" + ln.Addr().String() + "/ws"
	alice := testhelpers.Join(t, wsURL, "Alice")
	testhelpers.SendText(t, alice, "Alice: hello")
	testhelpers.ExpectTexts(t, alice, "Alice: hello")

	req.NoError(server.ShutdownServer(httpServer, time.Second, log))
	req.NoError(hub.Shutdown(time.Second))

	select {
	case err := <-served:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("StartServer did not return after shutdown")
	}
	req.Equal(0, hub.Registry().Len())
}
