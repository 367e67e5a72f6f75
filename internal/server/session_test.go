package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/relaychat/internal/mocks"
)

type frame struct {
	messageType int
	data        string
}

// frameRecorder collects what the writer pump sends.
type frameRecorder struct {
	mu     sync.Mutex
	frames []frame
}

func (r *frameRecorder) record(messageType int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{messageType: messageType, data: string(data)})
	return nil
}

func (r *frameRecorder) all() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame(nil), r.frames...)
}

// blockingRead makes ReadMessage wait until the mock connection is closed.
type blockingRead struct {
	once   sync.Once
	closed chan struct{}
}

func newBlockingRead() *blockingRead {
	return &blockingRead{closed: make(chan struct{})}
}

func (b *blockingRead) close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *blockingRead) read() (int, []byte, error) {
	<-b.closed
	return 0, nil, errors.New("use of closed network connection")
}

func expectSetup(conn *mocks.MockConn) {
	conn.EXPECT().SetReadLimit(gomock.Any()).AnyTimes()
	conn.EXPECT().SetReadDeadline(gomock.Any()).Return(nil).AnyTimes()
	conn.EXPECT().SetWriteDeadline(gomock.Any()).Return(nil).AnyTimes()
	conn.EXPECT().SetPongHandler(gomock.Any()).AnyTimes()
}

func newTestSession(conn Conn, registry *Registry) *Session {
	return NewSession(conn, registry, NewConfig(), "192.0.2.1:5000", logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestSession_Handshake_Rejects_Non_Text_First_Frame(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockConn(ctrl)
	registry := newTestRegistry()
	observer := NewHandle(4)
	registry.Register(observer)

	expectSetup(conn)
	conn.EXPECT().ReadMessage().Return(websocket.BinaryMessage, []byte("Alice"), nil)
	conn.EXPECT().Close().Return(nil).Times(1)

	session := newTestSession(conn, registry)
	err := session.Run(context.Background())

	req.ErrorIs(err, ErrHandshake)
	req.Equal(StateClosed, session.State())
	req.Empty(session.Name())
	req.Equal(1, registry.Len())
	req.Empty(drain(observer))
}

func TestSession_Handshake_Fails_When_Peer_Closes_First(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockConn(ctrl)
	registry := newTestRegistry()

	expectSetup(conn)
	conn.EXPECT().ReadMessage().Return(0, nil, io.EOF)
	conn.EXPECT().Close().Return(nil).Times(1)

	session := newTestSession(conn, registry)
	err := session.Run(context.Background())

	req.ErrorIs(err, ErrHandshake)
	req.ErrorIs(err, io.EOF)
	req.Equal(StateClosed, session.State())
	req.Equal(0, registry.Len())
}

func TestSession_Relays_Messages_And_Leaves_On_End_Of_Stream(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockConn(ctrl)
	registry := newTestRegistry()
	observer := NewHandle(8)
	registry.Register(observer)
	written := &frameRecorder{}

	expectSetup(conn)
	gomock.InOrder(
		conn.EXPECT().ReadMessage().Return(websocket.TextMessage, []byte("Alice"), nil),
		conn.EXPECT().ReadMessage().Return(websocket.BinaryMessage, []byte{0x1}, nil),
		conn.EXPECT().ReadMessage().Return(websocket.TextMessage, []byte("Alice: hi"), nil),
		conn.EXPECT().ReadMessage().Return(0, nil, io.EOF),
	)
	conn.EXPECT().WriteMessage(gomock.Any(), gomock.Any()).DoAndReturn(written.record).AnyTimes()
	conn.EXPECT().Close().Return(nil).Times(1)

	session := newTestSession(conn, registry)
	req.NoError(session.Run(context.Background()))

	// Then the session went through its whole lifecycle
	req.Equal(StateClosed, session.State())
	req.Equal("Alice", session.Name())
	req.Equal(1, registry.Len())

	// And other peers saw join, message and exactly one leave notice
	req.Equal([]string{
		"-- Alice is entering. --",
		"Alice: hi",
		"-- Alice is exited. --",
	}, drain(observer))

	// And the session echoed its own traffic before closing
	req.Equal([]frame{
		{websocket.TextMessage, "-- Alice is entering. --"},
		{websocket.TextMessage, "Alice: hi"},
		{websocket.CloseMessage, string(websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))},
	}, written.all())
}

func TestSession_Write_Failure_Ends_Session(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockConn(ctrl)
	registry := newTestRegistry()
	observer := NewHandle(8)
	registry.Register(observer)
	reads := newBlockingRead()

	expectSetup(conn)
	gomock.InOrder(
		conn.EXPECT().ReadMessage().Return(websocket.TextMessage, []byte("Bob"), nil),
		conn.EXPECT().ReadMessage().DoAndReturn(reads.read),
	)
	conn.EXPECT().WriteMessage(gomock.Any(), gomock.Any()).Return(errors.New("broken pipe")).MinTimes(1)
	conn.EXPECT().Close().DoAndReturn(reads.close).Times(1)

	session := newTestSession(conn, registry)
	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("session did not end after write failure")
	}

	req.Equal(StateClosed, session.State())
	req.Equal([]string{"-- Bob is entering. --", "-- Bob is exited. --"}, drain(observer))
}

func TestSession_Shutdown_Sends_Going_Away(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockConn(ctrl)
	registry := newTestRegistry()
	observer := NewHandle(8)
	registry.Register(observer)
	reads := newBlockingRead()
	goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")

	expectSetup(conn)
	gomock.InOrder(
		conn.EXPECT().ReadMessage().Return(websocket.TextMessage, []byte("Carol"), nil),
		conn.EXPECT().ReadMessage().DoAndReturn(reads.read),
	)
	conn.EXPECT().WriteMessage(websocket.TextMessage, gomock.Any()).Return(nil).MaxTimes(1)
	conn.EXPECT().WriteMessage(websocket.CloseMessage, goingAway).Return(nil).Times(1)
	conn.EXPECT().Close().DoAndReturn(reads.close).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	session := newTestSession(conn, registry)
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	req.Eventually(func() bool { return session.State() == StateActive }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("session did not end after shutdown")
	}

	req.Equal(StateClosed, session.State())
	req.Equal(1, registry.Len())
}

func TestState_String(t *testing.T) {
	req := require.New(t)
	req.Equal("connecting", StateConnecting.String())
	req.Equal("handshaking", StateHandshaking.String())
	req.Equal("active", StateActive.String())
	req.Equal("closing", StateClosing.String())
	req.Equal("closed", StateClosed.String())
	req.Equal("unknown", State(42).String())
}
