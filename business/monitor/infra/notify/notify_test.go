package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

type mockLogger struct {
	warns atomic.Int32
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               { m.warns.Add(1) }
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func testAlert(t *testing.T) domain.Alert {
	t.Helper()
	task, err := domain.NewMonitoringTask("eth-arb", "ethereum:ETH/USDC", "arbitrum:ETH/USDC", 1, 60)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := pricingDomain.NewQuote("ethereum", "ETH/USDC", 100, "pool", at)
	b := pricingDomain.NewQuote("arbitrum", "ETH/USDC", 102, "oracle", at)
	return domain.NewAlert(task, a, b, 2, at)
}

func decodeEnvelope(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewConsoleNotifier(&buf)
	alert := testAlert(t)

	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"ABNORMAL CROSS-CHAIN SPREAD", alert.ID, "eth-arb", "$100.0000", "$102.0000", "(oracle)", "2.0000%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWebhookNotifier(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "rejected", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []byte
			var contentType string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				contentType = r.Header.Get("Content-Type")
				got, _ = io.ReadAll(r.Body)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			n, err := NewWebhookNotifier(srv.URL+"/hook", time.Second)
			if err != nil {
				t.Fatal(err)
			}

			alert := testAlert(t)
			err = n.Notify(context.Background(), alert)
			if tt.wantErr {
				if !apperror.HasCode(err, apperror.CodeNotifyFailed) {
					t.Errorf("err = %v, want NOTIFY_FAILED", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if contentType != "application/json" {
				t.Errorf("content type = %q", contentType)
			}
			env := decodeEnvelope(t, got)
			if env.Type != "spread_alert" || env.Alert.ID != alert.ID || env.Alert.PriceB != 102 {
				t.Errorf("envelope = %+v", env)
			}
		})
	}

	if _, err := NewWebhookNotifier("", 0); err == nil {
		t.Error("empty url should be rejected")
	}
}

func TestWebSocketNotifier(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		received <- data
		_, _, _ = conn.Read(r.Context())
	}))
	defer srv.Close()

	n, err := NewWebSocketNotifier("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	alert := testAlert(t)
	if err := n.Notify(context.Background(), alert); !apperror.HasCode(err, apperror.CodeNotifyFailed) {
		t.Errorf("notify before connect: err = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := n.Notify(ctx, alert); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case data := <-received:
		if env := decodeEnvelope(t, data); env.Alert.ID != alert.ID {
			t.Errorf("alert id = %s", env.Alert.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the alert")
	}
}

// fakePublisher records PUBLISH calls.
type fakePublisher struct {
	mu       sync.Mutex
	channel  string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	if b, ok := message.([]byte); ok {
		f.payloads = append(f.payloads, b)
	}
	return redis.NewIntResult(0, f.err)
}

func TestRedisPublisher(t *testing.T) {
	pub := &fakePublisher{}
	n := NewRedisPublisher(pub, "")
	alert := testAlert(t)

	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if pub.channel != "pricegap:alerts" {
		t.Errorf("channel = %s", pub.channel)
	}
	if len(pub.payloads) != 1 || decodeEnvelope(t, pub.payloads[0]).Alert.TaskID != "eth-arb" {
		t.Errorf("payloads = %s", pub.payloads)
	}

	pub.err = errors.New("connection refused")
	if err := n.Notify(context.Background(), alert); !apperror.HasCode(err, apperror.CodeNotifyFailed) {
		t.Errorf("err = %v", err)
	}
}

// stubSink is a NamedNotifier with scripted behaviour.
type stubSink struct {
	name  string
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Notify(ctx context.Context, a domain.Alert) error {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func TestFanOut(t *testing.T) {
	log := &mockLogger{}
	ok := &stubSink{name: "ok"}
	bad := &stubSink{name: "bad", err: errors.New("boom")}
	slow := &stubSink{name: "slow", delay: time.Hour}

	f := NewFanOut(log, ok, bad, slow)
	if got := f.Names(); len(got) != 3 || got[2] != "slow" {
		t.Errorf("Names() = %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := f.Notify(ctx, testAlert(t))
	if time.Since(start) > time.Second {
		t.Error("a slow sink held the fan-out past its deadline")
	}

	if err == nil || !strings.Contains(err.Error(), "bad: boom") || !strings.Contains(err.Error(), "slow:") {
		t.Errorf("err = %v", err)
	}
	for _, s := range []*stubSink{ok, bad, slow} {
		if s.calls.Load() != 1 {
			t.Errorf("%s calls = %d", s.name, s.calls.Load())
		}
	}
	if log.warns.Load() != 2 {
		t.Errorf("warnings = %d, want 2", log.warns.Load())
	}
}
