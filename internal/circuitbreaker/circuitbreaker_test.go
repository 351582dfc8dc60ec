package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State

	cfg := DefaultConfig("rpc-arbitrum-primary")
	cfg.ConsecutiveFailures = 3
	cfg.Timeout = time.Hour
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	cb := New[[]byte](cfg)

	boom := errors.New("dial tcp: connection refused")
	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected underlying error, got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open state, got %v", cb.State())
	}

	called := false
	_, err := cb.Execute(func() ([]byte, error) {
		called = true
		return nil, nil
	})
	if called {
		t.Error("open breaker must not invoke fn")
	}
	if apperror.GetCode(err) != apperror.CodeCircuitOpen {
		t.Errorf("expected CodeCircuitOpen, got %v", apperror.GetCode(err))
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("expected one transition to open, got %v", transitions)
	}
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cfg := DefaultConfig("index")
	cfg.ConsecutiveFailures = 1
	cb := New[int](cfg)

	_, err := cb.Execute(func() (int, error) { return 0, context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected breaker to stay closed, got %v", cb.State())
	}
}

func TestCircuitBreaker_PassesResult(t *testing.T) {
	cb := New[int](DefaultConfig("ok"))

	v, err := cb.Execute(func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Errorf("expected 42, nil; got %d, %v", v, err)
	}
	if cb.Name() != "ok" {
		t.Errorf("expected name ok, got %s", cb.Name())
	}
}
