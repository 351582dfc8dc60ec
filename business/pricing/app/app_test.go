package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

// fakeSource is a PriceSource driven by a function.
type fakeSource struct {
	name     string
	priority int
	fn       func(ctx context.Context, chain string) (float64, error)
	calls    atomic.Int32
}

func (f *fakeSource) Name() string  { return f.name }
func (f *fakeSource) Priority() int { return f.priority }

func (f *fakeSource) GetPrice(ctx context.Context, chain string) (float64, error) {
	f.calls.Add(1)
	return f.fn(ctx, chain)
}

func fixed(price float64) func(context.Context, string) (float64, error) {
	return func(context.Context, string) (float64, error) { return price, nil }
}

func failing(msg string) func(context.Context, string) (float64, error) {
	return func(context.Context, string) (float64, error) { return 0, errors.New(msg) }
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testRegistry(t *testing.T, chains ...string) *domain.ChainRegistry {
	t.Helper()
	descs := make([]domain.ChainDescriptor, 0, len(chains))
	for _, c := range chains {
		descs = append(descs, domain.ChainDescriptor{Name: c, Pair: "ETH/USDC"})
	}
	reg, err := domain.NewChainRegistry(descs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}
