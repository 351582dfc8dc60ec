package di

import (
	"sync"
	"sync/atomic"
	"testing"
)

type greeter struct{ name string }

func TestContainer_RegisterAndGet(t *testing.T) {
	c := NewContainer()
	c.Register("config", "value")

	if !c.Has("config") {
		t.Fatal("expected config to be registered")
	}
	if got := c.Get("config"); got != "value" {
		t.Errorf("expected value, got %v", got)
	}
}

func TestContainer_FactoryIsLazySingleton(t *testing.T) {
	c := NewContainer()
	var calls atomic.Int32

	tok := NewToken[*greeter]("greeter")
	RegisterToken(c, tok, func(sr ServiceRegistry) *greeter {
		calls.Add(1)
		return &greeter{name: sr.Get("name").(string)}
	})
	c.Register("name", "monitor")

	if calls.Load() != 0 {
		t.Fatal("factory must not run before first Get")
	}

	var wg sync.WaitGroup
	results := make([]*greeter, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = GetToken(c, tok)
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected factory to run once, ran %d times", calls.Load())
	}
	for _, g := range results {
		if g != results[0] {
			t.Fatal("expected the same instance for every Get")
		}
	}
	if results[0].name != "monitor" {
		t.Errorf("expected name resolved from registry, got %q", results[0].name)
	}
}

func TestContainer_UnknownServicePanics(t *testing.T) {
	c := NewContainer()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown service")
		}
	}()
	c.Get("missing")
}
