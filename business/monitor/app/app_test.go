package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	pricingApp "github.com/fd1az/pricegap-monitor/business/pricing/app"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
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

// fakeClock is a settable time source shared by the cache, manager and monitor.
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

// priceTable is a PriceSource answering per chain from a mutable table.
// A missing or non-positive entry is a failure.
type priceTable struct {
	name     string
	priority int

	mu     sync.Mutex
	prices map[string]float64
	block  chan struct{} // when set, calls wait on it
	calls  atomic.Int32
}

func newPriceTable(prices map[string]float64) *priceTable {
	return newNamedTable("table", 1, prices)
}

func newNamedTable(name string, priority int, prices map[string]float64) *priceTable {
	return &priceTable{name: name, priority: priority, prices: prices}
}

func (p *priceTable) Name() string  { return p.name }
func (p *priceTable) Priority() int { return p.priority }

func (p *priceTable) GetPrice(ctx context.Context, chain string) (float64, error) {
	p.calls.Add(1)

	p.mu.Lock()
	block := p.block
	price, ok := p.prices[chain]
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if !ok || price <= 0 {
		return 0, errors.New("no price for " + chain)
	}
	return price, nil
}

func (p *priceTable) Set(chain string, price float64) {
	p.mu.Lock()
	p.prices[chain] = price
	p.mu.Unlock()
}

// manualTicker fires only when the test sends on ch.
type manualTicker struct{ ch chan time.Time }

func newManualTicker() *manualTicker { return &manualTicker{ch: make(chan time.Time)} }

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

// recordingNotifier collects alerts.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) Alerts() []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Alert(nil), n.alerts...)
}

// reportChan forwards tick reports to a buffered channel.
type reportChan chan domain.TickReport

func (c reportChan) ObserveTick(r domain.TickReport) { c <- r }

func (c reportChan) next(t *testing.T) domain.TickReport {
	t.Helper()
	select {
	case r := <-c:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return domain.TickReport{}
	}
}

// harness wires a real SourceManager and PriceCache to a Monitor.
type harness struct {
	clock    *fakeClock
	table    *priceTable
	cache    *pricingApp.PriceCache
	notifier *recordingNotifier
	ticker   *manualTicker
	reports  reportChan
	monitor  *Monitor
}

func newHarness(t *testing.T, prices map[string]float64) *harness {
	t.Helper()
	return newHarnessWithSources(t, newPriceTable(prices))
}

// newHarnessWithSources builds a harness over several tables; h.table is the first.
func newHarnessWithSources(t *testing.T, tables ...*priceTable) *harness {
	t.Helper()

	reg, err := pricingDomain.NewChainRegistry(
		pricingDomain.ChainDescriptor{Name: "ethereum", Pair: "ETH/USDC"},
		pricingDomain.ChainDescriptor{Name: "arbitrum", Pair: "ETH/USDC"},
		pricingDomain.ChainDescriptor{Name: "base", Pair: "ETH/USDC"},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	h := &harness{
		clock:    newFakeClock(),
		table:    tables[0],
		notifier: &recordingNotifier{},
		ticker:   newManualTicker(),
		reports:  make(reportChan, 64),
	}
	h.cache = pricingApp.NewPriceCache(30*time.Second, h.clock.Now)

	sources := make([]pricingApp.PriceSource, len(tables))
	for i, tbl := range tables {
		sources[i] = tbl
	}
	mgr, err := pricingApp.NewSourceManager(pricingApp.ManagerConfig{Clock: h.clock.Now}, reg, h.cache, &mockLogger{}, sources...)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	h.monitor, err = NewMonitor(Config{
		Clock:     h.clock.Now,
		NewTicker: func(time.Duration) Ticker { return h.ticker },
	}, reg, mgr, h.cache, h.notifier, &mockLogger{})
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	h.monitor.AddObserver(h.reports)

	t.Cleanup(h.monitor.StopAll)
	return h
}

// tick fires the manual ticker and returns the resulting report.
func (h *harness) tick(t *testing.T) domain.TickReport {
	t.Helper()
	select {
	case h.ticker.ch <- h.clock.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not accept tick")
	}
	return h.reports.next(t)
}

func mustTask(t *testing.T, id, a, b string, threshold float64, cooldown int64) domain.MonitoringTask {
	t.Helper()
	task, err := domain.NewMonitoringTask(id, a, b, threshold, cooldown)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	return task
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
