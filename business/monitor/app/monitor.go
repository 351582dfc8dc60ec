package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

const (
	tracerName = "github.com/fd1az/pricegap-monitor/business/monitor/app"
	meterName  = "github.com/fd1az/pricegap-monitor/business/monitor/app"

	// DefaultInterval is the polling interval for tasks started without one.
	DefaultInterval = 15 * time.Second
	// DefaultNotifyTimeout bounds alert delivery.
	DefaultNotifyTimeout = 10 * time.Second
)

// Config holds Monitor settings.
type Config struct {
	DefaultInterval time.Duration
	MaxParallel     int
	NotifyTimeout   time.Duration
	Clock           func() time.Time
	NewTicker       TickerFunc
}

type monitorMetrics struct {
	ticks       metric.Int64Counter
	alerts      metric.Int64Counter
	spread      metric.Float64Histogram
	activeTasks metric.Int64UpDownCounter
}

// runningTask is the loop state of one task.
type runningTask struct {
	task     domain.MonitoringTask
	interval time.Duration
	gate     *domain.CooldownGate

	active   atomic.Bool
	inFlight atomic.Bool
	ticks    atomic.Int64
	skipped  atomic.Int64
	alerts   atomic.Int64
	lastTick atomic.Int64 // unix millis, 0 before the first tick

	cancel context.CancelFunc
	done   chan struct{}
}

// Monitor runs one polling loop per task and raises cooldown-gated alerts.
type Monitor struct {
	cfg      Config
	registry *pricingDomain.ChainRegistry
	prices   PriceFetcher
	cache    QuoteCache
	notifier Notifier
	logger   logger.LoggerInterface

	mu    sync.Mutex
	tasks map[string]*runningTask

	obsMu     sync.RWMutex
	observers []TickObserver

	tracer  trace.Tracer
	metrics *monitorMetrics
}

// NewMonitor creates a Monitor. notifier may be nil.
func NewMonitor(
	cfg Config,
	registry *pricingDomain.ChainRegistry,
	prices PriceFetcher,
	cache QuoteCache,
	notifier Notifier,
	log logger.LoggerInterface,
) (*Monitor, error) {
	if registry == nil || prices == nil || cache == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("monitor needs a registry, a price fetcher and a cache"))
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultInterval
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}

	m := &Monitor{
		cfg:      cfg,
		registry: registry,
		prices:   prices,
		cache:    cache,
		notifier: notifier,
		logger:   log,
		tasks:    make(map[string]*runningTask),
		tracer:   otel.Tracer(tracerName),
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return m, nil
}

func (m *Monitor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &monitorMetrics{}

	m.metrics.ticks, err = meter.Int64Counter(
		"monitor_ticks_total",
		metric.WithDescription("Task evaluations by outcome"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return err
	}

	m.metrics.alerts, err = meter.Int64Counter(
		"monitor_alerts_total",
		metric.WithDescription("Alerts raised"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return err
	}

	m.metrics.spread, err = meter.Float64Histogram(
		"monitor_spread_percent",
		metric.WithDescription("Observed cross-chain spread"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return err
	}

	m.metrics.activeTasks, err = meter.Int64UpDownCounter(
		"monitor_active_tasks",
		metric.WithDescription("Running monitoring tasks"),
		metric.WithUnit("{task}"),
	)
	return err
}

// AddObserver registers obs for every subsequent tick.
func (m *Monitor) AddObserver(obs TickObserver) {
	m.obsMu.Lock()
	m.observers = append(m.observers, obs)
	m.obsMu.Unlock()
}

// Registry returns the chain registry tasks are validated against.
func (m *Monitor) Registry() *pricingDomain.ChainRegistry {
	return m.registry
}

// GetPrice returns a fresh cached quote, else asks the sources. When every
// source fails a stale cached quote is served if one exists. Only an unknown
// chain returns an error; other failures come back as an unsuccessful quote.
func (m *Monitor) GetPrice(ctx context.Context, chain string) (pricingDomain.PriceQuote, error) {
	desc, ok := m.registry.Describe(chain)
	if !ok {
		err := apperror.NotFound(apperror.CodeUnsupportedChain, chain)
		return pricingDomain.FailedQuote(chain, "", m.cfg.Clock(), err), err
	}

	if q, fresh, found := m.cache.Get(ctx, chain, desc.Pair); found && fresh {
		return q, nil
	}

	q := m.prices.GetPrice(ctx, chain)
	if q.Usable() {
		return q, nil
	}

	if stale, _, found := m.cache.Get(ctx, chain, desc.Pair); found {
		m.logger.Debug(ctx, "serving stale quote", "chain", chain, "age", stale.Age(m.cfg.Clock()).String(), "error", q.Error)
		return stale, nil
	}

	return q, nil
}

// BatchGetPrices prices chains concurrently in chunks. Chains that are unknown,
// or failed with nothing cached, are left out of the result.
func (m *Monitor) BatchGetPrices(ctx context.Context, chains []string) map[string]pricingDomain.PriceQuote {
	result := make(map[string]pricingDomain.PriceQuote, len(chains))
	pairs := make(map[string]string, len(chains))
	var missing []string

	for _, chain := range lo.Uniq(chains) {
		desc, ok := m.registry.Describe(chain)
		if !ok {
			m.logger.Warn(ctx, "skipping unsupported chain", "chain", chain)
			continue
		}
		pairs[chain] = desc.Pair

		if q, fresh, found := m.cache.Get(ctx, chain, desc.Pair); found && fresh {
			result[chain] = q
			continue
		}
		missing = append(missing, chain)
	}

	if len(missing) == 0 {
		return result
	}

	for i, q := range m.prices.BatchGetPrices(ctx, missing, m.cfg.MaxParallel) {
		chain := missing[i]
		if q.Usable() {
			result[chain] = q
			continue
		}
		if stale, _, found := m.cache.Get(ctx, chain, pairs[chain]); found {
			result[chain] = stale
			continue
		}
		m.logger.Debug(ctx, "no price for chain", "chain", chain, "error", q.Error)
	}

	return result
}

// StartTask validates task and starts its loop. The first tick runs at once.
// A non-positive interval uses the configured default.
func (m *Monitor) StartTask(task domain.MonitoringTask, interval time.Duration) error {
	for _, side := range []pricingDomain.ChainPair{task.ChainA, task.ChainB} {
		if err := m.checkChainPair(side); err != nil {
			return err
		}
	}
	if interval <= 0 {
		interval = m.cfg.DefaultInterval
	}

	m.mu.Lock()
	if _, exists := m.tasks[task.ID]; exists {
		m.mu.Unlock()
		return apperror.Conflict(apperror.CodeTaskAlreadyRunning, task.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &runningTask{
		task:     task,
		interval: interval,
		gate:     domain.NewCooldownGate(task.CooldownSeconds, task.LastAlertAtUnixMillis),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	rt.active.Store(task.Active)
	m.tasks[task.ID] = rt
	m.mu.Unlock()

	if task.Active {
		m.metrics.activeTasks.Add(ctx, 1)
	}
	m.logger.Info(ctx, "monitoring task started",
		"task", task.ID,
		"active", task.Active,
		"chain_a", task.ChainA.String(),
		"chain_b", task.ChainB.String(),
		"threshold_percent", task.ThresholdPercent,
		"cooldown_seconds", task.CooldownSeconds,
		"interval", interval.String(),
	)

	go m.run(ctx, rt)
	return nil
}

func (m *Monitor) checkChainPair(cp pricingDomain.ChainPair) error {
	desc, ok := m.registry.Describe(cp.Chain)
	if !ok {
		return apperror.NotFound(apperror.CodeUnsupportedChain, cp.Chain)
	}
	if cp.Pair != "" && !strings.EqualFold(cp.Pair, desc.Pair) {
		return apperror.Validation(apperror.CodeInvalidChainPair,
			fmt.Sprintf("%s prices %s, not %s", cp.Chain, desc.Pair, cp.Pair))
	}
	return nil
}

// StopTask stops the task and waits for its loop to exit. It reports false,
// after logging a warning, when no such task is running.
func (m *Monitor) StopTask(id string) bool {
	m.mu.Lock()
	rt, ok := m.tasks[id]
	delete(m.tasks, id)
	m.mu.Unlock()

	if !ok {
		m.logger.Warn(context.Background(), "stop requested for task that is not running", "task", id)
		return false
	}

	m.stop(rt)
	<-rt.done
	return true
}

// StopAll stops every task and waits for all loops to exit.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	running := lo.Values(m.tasks)
	m.tasks = make(map[string]*runningTask)
	m.mu.Unlock()

	for _, rt := range running {
		m.stop(rt)
	}
	for _, rt := range running {
		<-rt.done
	}

	if len(running) > 0 {
		m.logger.Info(context.Background(), "all monitoring tasks stopped", "count", len(running))
	}
}

func (m *Monitor) stop(rt *runningTask) {
	if rt.active.Swap(false) {
		m.metrics.activeTasks.Add(context.Background(), -1)
	}
	rt.cancel()
	m.logger.Info(context.Background(), "monitoring task stopped", "task", rt.task.ID)
}

// Tasks returns snapshots of the running tasks ordered by id.
func (m *Monitor) Tasks() []domain.TaskSnapshot {
	m.mu.Lock()
	running := lo.Values(m.tasks)
	m.mu.Unlock()

	snaps := lo.Map(running, func(rt *runningTask, _ int) domain.TaskSnapshot {
		return rt.snapshot()
	})
	slices.SortFunc(snaps, func(a, b domain.TaskSnapshot) int {
		return strings.Compare(a.ID, b.ID)
	})
	return snaps
}

// Task returns the snapshot of one running task.
func (m *Monitor) Task(id string) (domain.TaskSnapshot, bool) {
	m.mu.Lock()
	rt, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return domain.TaskSnapshot{}, false
	}
	return rt.snapshot(), true
}

// Liveness fails when a running task has not ticked within three intervals.
func (m *Monitor) Liveness() error {
	now := m.cfg.Clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rt := range m.tasks {
		last := rt.lastTick.Load()
		if last == 0 {
			continue
		}
		if age := now.Sub(time.UnixMilli(last)); age > 3*rt.interval {
			return fmt.Errorf("task %s last ticked %s ago", id, age.Truncate(time.Second))
		}
	}
	return nil
}

func (rt *runningTask) snapshot() domain.TaskSnapshot {
	s := domain.TaskSnapshot{
		ID:               rt.task.ID,
		ChainPair:        rt.task.ChainPair(),
		ThresholdPercent: rt.task.ThresholdPercent,
		CooldownSeconds:  rt.task.CooldownSeconds,
		Interval:         rt.interval.String(),
		Active:           rt.active.Load(),
		Ticks:            rt.ticks.Load(),
		SkippedTicks:     rt.skipped.Load(),
		Alerts:           rt.alerts.Load(),
	}
	if last, ok := rt.gate.LastAlert(); ok {
		at := time.UnixMilli(last)
		s.LastAlertAt = &at
	}
	if last := rt.lastTick.Load(); last != 0 {
		at := time.UnixMilli(last)
		s.LastTickAt = &at
	}
	return s
}

// run owns the task's ticker until ctx is cancelled, then waits for the
// in-flight tick before closing done.
func (m *Monitor) run(ctx context.Context, rt *runningTask) {
	defer close(rt.done)

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := m.cfg.NewTicker(rt.interval)
	defer ticker.Stop()

	m.dispatch(ctx, rt, &wg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.dispatch(ctx, rt, &wg)
		}
	}
}

// dispatch starts a tick unless the previous one is still running.
func (m *Monitor) dispatch(ctx context.Context, rt *runningTask, wg *sync.WaitGroup) {
	if !rt.inFlight.CompareAndSwap(false, true) {
		rt.skipped.Add(1)
		m.logger.Debug(ctx, "previous tick still running, skipping", "task", rt.task.ID)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		report := m.tick(ctx, rt)
		rt.inFlight.Store(false)
		m.publish(report)
	}()
}

// tick evaluates the task once. The caller publishes the report.
func (m *Monitor) tick(ctx context.Context, rt *runningTask) domain.TickReport {
	task := rt.task
	now := m.cfg.Clock()
	report := domain.TickReport{TaskID: task.ID, At: now, ThresholdPercent: task.ThresholdPercent}

	if !rt.active.Load() || ctx.Err() != nil {
		report.Outcome = domain.OutcomeInactive
		return report
	}

	ctx, span := m.tracer.Start(ctx, "monitor.tick",
		trace.WithAttributes(
			attribute.String("task", task.ID),
			attribute.String("chain_a", task.ChainA.String()),
			attribute.String("chain_b", task.ChainB.String()),
		),
	)
	defer span.End()

	rt.ticks.Add(1)
	rt.lastTick.Store(now.UnixMilli())

	// Every registered chain is refreshed so other tasks and price
	// lookups read warm cache entries.
	quotes := m.BatchGetPrices(ctx, m.registry.AllChains())
	qa, okA := m.quoteFor(ctx, quotes, task.ChainA.Chain)
	qb, okB := m.quoteFor(ctx, quotes, task.ChainB.Chain)

	if okA {
		report.QuoteA = &qa
	}
	if okB {
		report.QuoteB = &qb
	}

	switch {
	case !okA || !okB:
		report.Outcome = domain.OutcomeUnavailable
		m.logger.Warn(ctx, "price unavailable, skipping tick",
			"task", task.ID,
			"chain_a", task.ChainA.Chain, "have_a", okA,
			"chain_b", task.ChainB.Chain, "have_b", okB,
		)

	default:
		report.Spread = pricingDomain.ReadSpread(qa.Price, qb.Price)
		m.metrics.spread.Record(ctx, report.Spread.Percent,
			metric.WithAttributes(attribute.String("task", task.ID)))
		span.SetAttributes(attribute.Float64("spread_percent", report.Spread.Percent))

		if !report.Spread.Exceeds(task.ThresholdPercent) {
			report.Outcome = domain.OutcomeBelowThreshold
			break
		}

		fired, remaining := rt.gate.Acquire(now)
		if !fired {
			report.Outcome = domain.OutcomeSuppressed
			report.CooldownRemaining = remaining
			m.logger.Info(ctx, "spread above threshold, alert suppressed by cooldown",
				"task", task.ID,
				"spread_percent", report.Spread.Percent,
				"cooldown_remaining", remaining.String(),
			)
			break
		}

		alert := domain.NewAlert(task, qa, qb, report.Spread.Percent, now)
		report.Outcome = domain.OutcomeAlerted
		report.Alert = &alert
		rt.alerts.Add(1)
		m.metrics.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task.ID)))
		span.AddEvent("alert", trace.WithAttributes(attribute.String("alert_id", alert.ID)))

		m.logger.Info(ctx, "abnormal spread detected",
			"task", task.ID,
			"alert_id", alert.ID,
			"price_a", qa.Price,
			"price_b", qb.Price,
			"spread_percent", alert.SpreadPercent,
			"threshold_percent", task.ThresholdPercent,
		)
		m.notify(ctx, alert)
	}

	m.metrics.ticks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task.ID),
		attribute.String("outcome", string(report.Outcome)),
	))
	return report
}

// quoteFor takes chain's quote from the batch result, falling back to a single lookup.
func (m *Monitor) quoteFor(ctx context.Context, quotes map[string]pricingDomain.PriceQuote, chain string) (pricingDomain.PriceQuote, bool) {
	if q, ok := quotes[chain]; ok {
		return q, true
	}
	q, err := m.GetPrice(ctx, chain)
	if err != nil || !q.Usable() {
		return q, false
	}
	return q, true
}

func (m *Monitor) notify(ctx context.Context, alert domain.Alert) {
	if m.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
	defer cancel()

	if err := m.notifier.Notify(nctx, alert); err != nil {
		m.logger.Error(ctx, "alert delivery failed", "task", alert.TaskID, "alert_id", alert.ID, "error", err)
	}
}

func (m *Monitor) publish(report domain.TickReport) {
	m.obsMu.RLock()
	observers := slices.Clone(m.observers)
	m.obsMu.RUnlock()

	for _, obs := range observers {
		obs.ObserveTick(report)
	}
}
