package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

func startTestServer(t *testing.T, opts core.SessionOptions) (*httptest.Server, *core.Directory) {
	t.Helper()

	dir := core.NewDirectory("")
	disabledLogger := zerolog.Nop()
	cfg := config.Default()
	cfg.Addr = ":0"

	server := NewServer(dir, opts, cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, dir
}

func dial(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	return dialURL(t, ctx, strings.Replace(ts.URL, "http", "ws", 1)+"/ws")
}

func dialURL(t *testing.T, ctx context.Context, wsURL string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, frame []byte) {
	t.Helper()

	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func setUsername(t *testing.T, ctx context.Context, conn *websocket.Conn, name, room string) {
	t.Helper()

	frame, err := proto.EncodeSetUsername(name, room)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	send(t, ctx, conn, frame)
}

func chat(t *testing.T, ctx context.Context, conn *websocket.Conn, text string) {
	t.Helper()

	frame, err := proto.EncodeChat(text)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	send(t, ctx, conn, frame)
}

func expectText(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) {
	t.Helper()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read (want %q): %v", want, err)
	}
	if typ != websocket.MessageText || string(data) != want {
		t.Fatalf("expected text %q, got %v %q", want, typ, data)
	}
}

func waitForMembers(t *testing.T, dir *core.Directory, room string, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(dir.Members(room)) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %q never reached %d members: %v", room, n, dir.Members(room))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, core.SessionOptions{})

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Fatal("missing request id header")
	}
}

func TestWebSocketJoinChatLeave(t *testing.T) {
	ts, dir := startTestServer(t, core.SessionOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dial(t, ctx, ts)
	setUsername(t, ctx, connA, "alice", "")
	expectText(t, ctx, connA, "alice joined")

	connB := dial(t, ctx, ts)
	setUsername(t, ctx, connB, "bob", "")
	chat(t, ctx, connB, "hi")

	for _, conn := range []*websocket.Conn{connA, connB} {
		expectText(t, ctx, conn, "bob joined")
		expectText(t, ctx, conn, "bob: hi")
	}

	connA.Close(websocket.StatusNormalClosure, "bye")
	expectText(t, ctx, connB, "alice left")
	waitForMembers(t, dir, core.DefaultRoom, 1)
}

func TestWebSocketDropsMalformedAndEarlyChat(t *testing.T) {
	ts, dir := startTestServer(t, core.SessionOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, ts)
	send(t, ctx, conn, []byte("not json"))
	send(t, ctx, conn, []byte(`{"type":"Shout","data":"hi"}`))
	chat(t, ctx, conn, "too early")
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0x1}); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	// The connection survives and the first delivered line is the join announcement.
	setUsername(t, ctx, conn, "carol", "")
	expectText(t, ctx, conn, "carol joined")
	if n := dir.Clients(); n != 1 {
		t.Fatalf("expected 1 client, got %d", n)
	}
}

func TestWebSocketRoomsAreIsolated(t *testing.T) {
	ts, dir := startTestServer(t, core.SessionOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	general := dial(t, ctx, ts)
	setUsername(t, ctx, general, "gina", "")
	expectText(t, ctx, general, "gina joined")

	lobby := dial(t, ctx, ts)
	setUsername(t, ctx, lobby, "leo", "lobby")
	expectText(t, ctx, lobby, "leo joined")
	chat(t, ctx, lobby, "psst")
	expectText(t, ctx, lobby, "leo: psst")

	chat(t, ctx, general, "hello")
	expectText(t, ctx, general, "gina: hello")

	resp, err := ts.Client().Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	defer resp.Body.Close()

	var rooms RoomsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if rooms.Clients != 2 || len(rooms.Rooms) != 2 {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}

	lobby.Close(websocket.StatusNormalClosure, "bye")
	waitForMembers(t, dir, "lobby", 0)

	missing, err := ts.Client().Get(ts.URL + "/api/rooms/lobby")
	if err != nil {
		t.Fatalf("room request failed: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != stdhttp.StatusNotFound {
		t.Fatalf("expected pruned lobby to 404, got %d", missing.StatusCode)
	}
}

func TestWebSocketAbruptDisconnectAnnouncesLeave(t *testing.T) {
	ts, dir := startTestServer(t, core.SessionOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dial(t, ctx, ts)
	setUsername(t, ctx, connA, "alice", "")
	expectText(t, ctx, connA, "alice joined")

	connB := dial(t, ctx, ts)
	setUsername(t, ctx, connB, "bob", "")
	expectText(t, ctx, connA, "bob joined")

	// No close handshake: the server only sees the TCP connection drop.
	connB.CloseNow()
	expectText(t, ctx, connA, "bob left")
	waitForMembers(t, dir, core.DefaultRoom, 1)
}

func TestWebSocketSlowClientIsDisconnected(t *testing.T) {
	dir := core.NewDirectory("")
	disabledLogger := zerolog.Nop()

	// Both endpoints share one directory; only the slow side has a bounded outbox.
	slowTS := httptest.NewServer(NewWSHandler(dir, core.SessionOptions{
		Relay: core.RelayOptions{Limit: 1, Overflow: core.OverflowDisconnect},
	}, WSOptions{InsecureSkipVerify: true}, &disabledLogger))
	t.Cleanup(slowTS.Close)
	peerTS := httptest.NewServer(NewWSHandler(dir, core.SessionOptions{}, WSOptions{
		ReadLimit:          1 << 20,
		InsecureSkipVerify: true,
	}, &disabledLogger))
	t.Cleanup(peerTS.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	slow := dialURL(t, ctx, strings.Replace(slowTS.URL, "http", "ws", 1))
	slow.SetReadLimit(1 << 20)
	setUsername(t, ctx, slow, "sloth", "")
	waitForMembers(t, dir, core.DefaultRoom, 1)

	peer := dialURL(t, ctx, strings.Replace(peerTS.URL, "http", "ws", 1))
	peer.SetReadLimit(1 << 20)
	setUsername(t, ctx, peer, "pat", "")
	waitForMembers(t, dir, core.DefaultRoom, 2)

	sawLeft := make(chan struct{})
	go func() {
		for {
			_, data, err := peer.Read(ctx)
			if err != nil {
				return
			}
			if string(data) == "sloth left" {
				close(sawLeft)
				return
			}
		}
	}()

	// The slow client never reads while the peer floods the room.
	frame, err := proto.EncodeChat(strings.Repeat("x", 16<<10))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
flood:
	for i := 0; i < 4000; i++ {
		select {
		case <-sawLeft:
			break flood
		default:
		}
		if err := peer.Write(ctx, websocket.MessageText, frame); err != nil {
			t.Fatalf("flood write %d: %v", i, err)
		}
	}

	select {
	case <-sawLeft:
	case <-ctx.Done():
		t.Fatal("peer never saw the slow client leave")
	}
	waitForMembers(t, dir, core.DefaultRoom, 1)

	for {
		_, _, err := slow.Read(ctx)
		if err == nil {
			continue
		}
		if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
			t.Fatalf("expected close status %v, got %v (%v)", websocket.StatusPolicyViolation, status, err)
		}
		break
	}
}
