package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewInterval_SerializesCallers(t *testing.T) {
	l := NewInterval(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx); err != nil {
				t.Errorf("Wait: %v", err)
			}
		}()
	}
	wg.Wait()

	// first token is immediate, the next two wait one interval each
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected callers to be spaced, finished after %s", elapsed)
	}
}

func TestNewInterval_ContextCancel(t *testing.T) {
	l := NewInterval(time.Hour)
	if !l.Allow() {
		t.Fatal("first request must be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	if err == nil {
		t.Fatal("expected Wait to fail when the next token is an hour away")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("unexpected cancel error: %v", err)
	}
}

func TestNewInterval_Disabled(t *testing.T) {
	l := NewInterval(0)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("request %d rejected by disabled limiter", i)
		}
	}
}

func TestNewPerMinute(t *testing.T) {
	l := NewPerMinute(600)
	if l.Interval() != 100*time.Millisecond {
		t.Errorf("Interval = %s, want 100ms", l.Interval())
	}
	allowed := 0
	for i := 0; i < 100; i++ {
		if l.Allow() {
			allowed++
		}
	}
	if allowed != 60 {
		t.Errorf("expected burst of 60, got %d", allowed)
	}
}
