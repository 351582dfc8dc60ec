package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// alertServer upgrades each request and hands the connection to handle with
// its 1-based sequence number. Requests refused by refuse get a 503 instead.
type alertServer struct {
	*httptest.Server
	hits atomic.Int32

	mu    sync.Mutex
	times []time.Time
}

func newAlertServer(t *testing.T, refuse func(n int32) bool, handle func(n int32, conn *websocket.Conn)) *alertServer {
	t.Helper()
	s := &alertServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.hits.Add(1)
		s.mu.Lock()
		s.times = append(s.times, time.Now())
		s.mu.Unlock()

		if refuse != nil && refuse(n) {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		if handle != nil {
			handle(n, conn)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *alertServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *alertServer) hitTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.times...)
}

// drain reads until the peer goes away.
func drain(_ int32, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			return
		}
	}
}

// dropFirst closes the first connection at once and drains the rest.
func dropFirst(n int32, conn *websocket.Conn) {
	if n == 1 {
		return
	}
	drain(n, conn)
}

type stateChange struct {
	state State
	err   error
}

// stateLog records every state hook call.
type stateLog struct {
	mu      sync.Mutex
	changes []stateChange
}

func (l *stateLog) record(state State, err error) {
	l.mu.Lock()
	l.changes = append(l.changes, stateChange{state: state, err: err})
	l.mu.Unlock()
}

func (l *stateLog) snapshot() []stateChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]stateChange(nil), l.changes...)
}

func (l *stateLog) states() []State {
	var out []State
	for _, c := range l.snapshot() {
		out = append(out, c.state)
	}
	return out
}

func (l *stateLog) count(state State) int {
	n := 0
	for _, c := range l.snapshot() {
		if c.state == state {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func equalStates(got, want []State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url, "alert-websocket")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 20 * time.Millisecond
	cfg.MaxBackoff = time.Second
	return cfg
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); !apperror.HasCode(err, apperror.CodeConfigurationError) {
		t.Errorf("empty url: err = %v", err)
	}

	c, err := New(Config{URL: "ws://example.invalid", MaxBackoff: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if c.config.InitialBackoff != time.Second || c.config.MaxBackoff != time.Second {
		t.Errorf("backoff = %s/%s, want both raised to 1s", c.config.InitialBackoff, c.config.MaxBackoff)
	}
	if c.State() != StateDisconnected {
		t.Errorf("initial state = %s", c.State())
	}
}

func TestClient_SendJSONAlert(t *testing.T) {
	received := make(chan []byte, 1)
	srv := newAlertServer(t, nil, func(_ int32, conn *websocket.Conn) {
		_, data, err := conn.Read(context.Background())
		if err == nil {
			received <- data
		}
	})

	client, err := New(testConfig(srv.url()))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := client.SendJSON(ctx, map[string]any{"taskId": "eth-arb", "spreadPercent": 2.0}); err != nil {
		t.Fatalf("SendJSON: %v", err)
	}

	select {
	case data := <-received:
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("frame is not JSON: %s", data)
		}
		if got["taskId"] != "eth-arb" || got["spreadPercent"] != 2.0 {
			t.Errorf("frame = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the alert")
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	srv := newAlertServer(t, func(int32) bool { return true }, nil)

	client, err := New(testConfig(srv.url()))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	log := &stateLog{}
	client.OnStateChange(log.record)

	err = client.Connect(context.Background())
	if !apperror.HasCode(err, apperror.CodeWebSocketConnectionError) {
		t.Fatalf("err = %v, want %s", err, apperror.CodeWebSocketConnectionError)
	}

	changes := log.snapshot()
	if len(changes) != 2 || changes[0].state != StateConnecting || changes[1].state != StateDisconnected {
		t.Fatalf("states = %v", log.states())
	}
	if changes[1].err == nil {
		t.Error("disconnected hook should carry the dial error")
	}

	// a failed first dial is not retried in the background
	time.Sleep(100 * time.Millisecond)
	if hits := srv.hits.Load(); hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
}

func TestClient_RedialAfterDrop(t *testing.T) {
	srv := newAlertServer(t, nil, dropFirst)

	client, err := New(testConfig(srv.url()))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	log := &stateLog{}
	client.OnStateChange(log.record)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, "second connection", func() bool { return log.count(StateConnected) == 2 })

	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnected}
	if got := log.states(); !equalStates(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if cause := log.snapshot()[2].err; cause == nil {
		t.Error("reconnecting hook should carry the read error that dropped the connection")
	}

	// the redialed connection is the one sends go out on
	if err := client.Send(ctx, []byte(`{"taskId":"eth-arb"}`)); err != nil {
		t.Errorf("Send after redial: %v", err)
	}
	if hits := srv.hits.Load(); hits != 2 {
		t.Errorf("server hits = %d, want 2", hits)
	}
}

func TestClient_RedialExhausted(t *testing.T) {
	// first connection drops, every redial is refused
	srv := newAlertServer(t, func(n int32) bool { return n > 1 }, dropFirst)

	cfg := testConfig(srv.url())
	cfg.MaxReconnects = 2
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	log := &stateLog{}
	client.OnStateChange(log.record)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, "disconnected", func() bool { return client.State() == StateDisconnected })

	want := []State{
		StateConnecting, StateConnected,
		StateReconnecting,                    // drop
		StateReconnecting, StateReconnecting, // two refused redials
		StateDisconnected,
	}
	if got := log.states(); !equalStates(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	last := log.snapshot()[len(want)-1]
	if last.err == nil || !strings.Contains(last.err.Error(), "exhausted") {
		t.Errorf("final hook err = %v", last.err)
	}

	if hits := srv.hits.Load(); hits != 3 {
		t.Errorf("server hits = %d, want 1 connect + 2 redials", hits)
	}

	// backoff doubles between redials
	times := srv.hitTimes()
	if gap := times[1].Sub(times[0]); gap < cfg.InitialBackoff {
		t.Errorf("first redial after %s, want >= %s", gap, cfg.InitialBackoff)
	}
	if gap := times[2].Sub(times[1]); gap < 2*cfg.InitialBackoff {
		t.Errorf("second redial after %s, want >= %s", gap, 2*cfg.InitialBackoff)
	}

	if err := client.Send(context.Background(), []byte("x")); !apperror.HasCode(err, apperror.CodeWebSocketClosed) {
		t.Errorf("Send while disconnected: err = %v", err)
	}
}

func TestClient_CloseStopsRedial(t *testing.T) {
	srv := newAlertServer(t, func(n int32) bool { return n > 1 }, dropFirst)

	client, err := New(testConfig(srv.url())) // MaxReconnects 0 retries forever
	if err != nil {
		t.Fatal(err)
	}

	log := &stateLog{}
	client.OnStateChange(log.record)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "a refused redial", func() bool { return srv.hits.Load() >= 2 })

	closed := make(chan struct{})
	go func() {
		client.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while redialing")
	}

	if client.State() != StateClosed {
		t.Errorf("state = %s, want closed", client.State())
	}

	hits := srv.hits.Load()
	changes := len(log.snapshot())
	time.Sleep(150 * time.Millisecond)
	if got := srv.hits.Load(); got != hits {
		t.Errorf("redial continued after Close: hits %d -> %d", hits, got)
	}
	if got := len(log.snapshot()); got != changes {
		t.Errorf("state hook fired after Close: %v", log.states()[changes:])
	}

	if err := client.Connect(context.Background()); !apperror.HasCode(err, apperror.CodeWebSocketClosed) {
		t.Errorf("Connect after Close: err = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestClient_SendDuringBackoff(t *testing.T) {
	srv := newAlertServer(t, nil, dropFirst)

	cfg := testConfig(srv.url())
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "reconnecting", func() bool { return client.State() == StateReconnecting })

	err = client.Send(context.Background(), []byte("x"))
	if !apperror.HasCode(err, apperror.CodeWebSocketClosed) {
		t.Fatalf("err = %v, want %s", err, apperror.CodeWebSocketClosed)
	}
	if !strings.Contains(err.Error(), string(StateReconnecting)) {
		t.Errorf("error should name the state: %v", err)
	}

	// Close must not wait out the pending backoff
	closed := make(chan struct{})
	go func() {
		client.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited for the backoff timer")
	}
}

func TestClient_StaleDetachIgnored(t *testing.T) {
	srv := newAlertServer(t, nil, drain)

	client, err := New(testConfig(srv.url()))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	log := &stateLog{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	client.OnStateChange(log.record)

	// a read failure reported for a connection the client no longer owns
	other, _, err := websocket.Dial(ctx, srv.url(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer other.CloseNow()
	client.detach(other, errors.New("read from replaced connection"))

	time.Sleep(50 * time.Millisecond)
	if states := log.states(); len(states) != 0 {
		t.Errorf("stale detach changed state: %v", states)
	}
	if !client.IsConnected() {
		t.Fatalf("state = %s, want connected", client.State())
	}
	if err := client.Send(ctx, []byte(`{}`)); err != nil {
		t.Errorf("Send on live connection: %v", err)
	}
	if hits := srv.hits.Load(); hits != 2 {
		t.Errorf("server hits = %d, stale detach must not redial", hits)
	}
}

func TestClient_OversizedFrameRedials(t *testing.T) {
	srv := newAlertServer(t, nil, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			_ = conn.Write(context.Background(), websocket.MessageText, []byte(strings.Repeat("A", 4096)))
		}
		drain(n, conn)
	})

	cfg := testConfig(srv.url())
	cfg.MaxMessageSize = 128
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	var delivered atomic.Int32
	client.OnMessage(func(context.Context, []byte) { delivered.Add(1) })
	log := &stateLog{}
	client.OnStateChange(log.record)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, "redial after oversized frame", func() bool { return log.count(StateConnected) == 2 })
	if delivered.Load() != 0 {
		t.Error("oversized frame reached the message handler")
	}
}
