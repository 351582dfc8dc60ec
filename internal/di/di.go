// Package di provides a small lazy dependency injection container with typed tokens.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves registered services by name.
type ServiceRegistry interface {
	Get(name string) any
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry
	Register(name string, v any)
	RegisterFactory(name string, factory func(sr ServiceRegistry) any)
	Has(name string) bool
}

type entry struct {
	once    sync.Once
	factory func(sr ServiceRegistry) any
	value   any
}

type container struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewContainer creates an empty Container.
func NewContainer() Container {
	return &container{entries: make(map[string]*entry)}
}

// Register stores an already constructed value.
func (c *container) Register(name string, v any) {
	e := &entry{value: v}
	e.once.Do(func() {})

	c.mu.Lock()
	c.entries[name] = e
	c.mu.Unlock()
}

// RegisterFactory stores a factory invoked once on first Get.
func (c *container) RegisterFactory(name string, factory func(sr ServiceRegistry) any) {
	c.mu.Lock()
	c.entries[name] = &entry{factory: factory}
	c.mu.Unlock()
}

// Has reports whether name is registered.
func (c *container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// Get resolves name, building it on first use. Panics when name is unknown,
// which only happens on wiring mistakes.
func (c *container) Get(name string) any {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}

	// factories may resolve other services, so no container lock is held here
	e.once.Do(func() {
		e.value = e.factory(c)
	})
	return e.value
}

// Token is a typed service key.
type Token[T any] struct {
	name string
}

// NewToken creates a Token for name.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the registry key.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a typed lazy factory.
func RegisterToken[T any](c Container, tok Token[T], factory func(sr ServiceRegistry) T) {
	c.RegisterFactory(tok.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service.
func GetToken[T any](sr ServiceRegistry, tok Token[T]) T {
	v, ok := sr.Get(tok.name).(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type", tok.name))
	}
	return v
}
