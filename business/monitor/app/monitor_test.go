package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

func TestMonitor_GetPrice_FreshThenStale(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100})
	ctx := context.Background()

	q, err := h.monitor.GetPrice(ctx, "ethereum")
	if err != nil || !q.Success || q.Price != 100 {
		t.Fatalf("first GetPrice = %+v, %v", q, err)
	}

	if _, err := h.monitor.GetPrice(ctx, "ethereum"); err != nil {
		t.Fatal(err)
	}
	if calls := h.table.calls.Load(); calls != 1 {
		t.Errorf("fresh cache should answer, source calls = %d", calls)
	}

	h.table.Set("ethereum", 0)
	h.clock.Advance(31 * time.Second)

	q, err = h.monitor.GetPrice(ctx, "ethereum")
	if err != nil {
		t.Fatalf("stale GetPrice: %v", err)
	}
	if !q.Stale || q.Price != 100 || !q.Success {
		t.Errorf("want stale 100, got %+v", q)
	}
	if calls := h.table.calls.Load(); calls != 2 {
		t.Errorf("source calls = %d, want 2", calls)
	}
}

func TestMonitor_GetPrice_Failures(t *testing.T) {
	h := newHarness(t, map[string]float64{})
	ctx := context.Background()

	q, err := h.monitor.GetPrice(ctx, "solana")
	if !apperror.HasCode(err, apperror.CodeUnsupportedChain) {
		t.Errorf("unknown chain err = %v", err)
	}
	if q.Success {
		t.Error("unknown chain quote should not succeed")
	}

	q, err = h.monitor.GetPrice(ctx, "base")
	if err != nil {
		t.Fatalf("source failure should not be an error: %v", err)
	}
	if q.Success || q.Error == "" {
		t.Errorf("want failed quote with diagnostics, got %+v", q)
	}
}

func TestMonitor_BatchGetPrices(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "base": 101})
	ctx := context.Background()

	// seed a stale base quote, then break its source
	if _, err := h.monitor.GetPrice(ctx, "base"); err != nil {
		t.Fatal(err)
	}
	h.table.Set("base", 0)
	h.clock.Advance(45 * time.Second)

	got := h.monitor.BatchGetPrices(ctx, []string{"ethereum", "arbitrum", "solana", "ethereum", "base"})

	if len(got) != 2 {
		t.Fatalf("got %d quotes, want 2: %+v", len(got), got)
	}
	if q := got["ethereum"]; q.Price != 100 || q.Stale {
		t.Errorf("ethereum = %+v", q)
	}
	if q := got["base"]; q.Price != 101 || !q.Stale {
		t.Errorf("base should be the stale quote, got %+v", q)
	}
	if _, ok := got["arbitrum"]; ok {
		t.Error("failed chain without cache should be omitted")
	}
}

func TestMonitor_EndToEnd_SingleAlert(t *testing.T) {
	// ethereum prices from the pool; arbitrum falls through pool and oracle to the api
	pool := newNamedTable("pool", 1, map[string]float64{"ethereum": 100})
	oracle := newNamedTable("oracle", 2, map[string]float64{})
	api := newNamedTable("api", 3, map[string]float64{"arbitrum": 102})
	h := newHarnessWithSources(t, pool, oracle, api)
	ctx := context.Background()

	quotes := h.monitor.BatchGetPrices(ctx, []string{"ethereum", "arbitrum"})
	if len(quotes) != 2 {
		t.Fatalf("BatchGetPrices = %+v, want both chains", quotes)
	}
	if q := quotes["ethereum"]; q.Price != 100 || q.Provenance != "pool" {
		t.Errorf("ethereum = %+v, want 100 from pool", q)
	}
	if q := quotes["arbitrum"]; q.Price != 102 || q.Provenance != "api" {
		t.Errorf("arbitrum = %+v, want 102 from api", q)
	}
	if oracle.calls.Load() == 0 {
		t.Error("oracle should have been tried for arbitrum before the api")
	}

	// expire the batch so the task's first tick goes back to the sources
	h.clock.Advance(31 * time.Second)

	task := mustTask(t, "eth-arb", "ethereum:ETH/USDC", "arbitrum:ETH/USDC", 1.0, 0)
	if err := h.monitor.StartTask(task, time.Second); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	r := h.reports.next(t)
	if r.Outcome != domain.OutcomeAlerted {
		t.Fatalf("outcome = %s, want alerted", r.Outcome)
	}
	if math.Abs(r.Spread.Percent-2.0) > 1e-9 || r.Spread.Direction != "B_ABOVE_A" {
		t.Errorf("spread = %+v", r.Spread)
	}

	alerts := h.notifier.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.TaskID != "eth-arb" || a.PriceA != 100 || a.PriceB != 102 || math.Abs(a.SpreadPercent-2.0) > 1e-9 {
		t.Errorf("alert = %+v", a)
	}
	if a.ProvenanceA != "pool" || a.ProvenanceB != "api" {
		t.Errorf("provenance = %s/%s, want pool/api", a.ProvenanceA, a.ProvenanceB)
	}
}

func TestMonitor_TickRefreshesAllChains(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 102, "base": 101})
	ctx := context.Background()

	if err := h.monitor.StartTask(mustTask(t, "eth-arb", "ethereum", "arbitrum", 5, 0), time.Second); err != nil {
		t.Fatal(err)
	}
	if r := h.reports.next(t); r.Outcome != domain.OutcomeBelowThreshold {
		t.Fatalf("outcome = %s", r.Outcome)
	}

	q, fresh, found := h.cache.Get(ctx, "base", "ETH/USDC")
	if !found || !fresh || q.Price != 101 {
		t.Errorf("base should be cached by the tick, got %+v (found=%v fresh=%v)", q, found, fresh)
	}
	if calls := h.table.calls.Load(); calls != 3 {
		t.Errorf("source calls = %d, want one per registered chain", calls)
	}

	// a lookup on the unrelated chain is now served from cache
	if _, err := h.monitor.GetPrice(ctx, "base"); err != nil {
		t.Fatal(err)
	}
	if calls := h.table.calls.Load(); calls != 3 {
		t.Errorf("GetPrice(base) went to the sources, calls = %d", calls)
	}
}

func TestMonitor_InactiveTask(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 110})

	task := mustTask(t, "paused", "ethereum", "arbitrum", 1, 0)
	task.Active = false
	if err := h.monitor.StartTask(task, time.Second); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		var r domain.TickReport
		if i == 0 {
			r = h.reports.next(t)
		} else {
			r = h.tick(t)
		}
		if r.Outcome != domain.OutcomeInactive {
			t.Fatalf("tick %d: outcome = %s, want inactive", i, r.Outcome)
		}
	}

	if calls := h.table.calls.Load(); calls != 0 {
		t.Errorf("inactive task called the sources %d times", calls)
	}
	if n := len(h.notifier.Alerts()); n != 0 {
		t.Errorf("inactive task alerted %d times", n)
	}
	s, ok := h.monitor.Task("paused")
	if !ok || s.Active || s.Ticks != 0 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestMonitor_CooldownAcrossTicks(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 102})

	task := mustTask(t, "cd", "ethereum", "arbitrum", 1, 60)
	if err := h.monitor.StartTask(task, 10*time.Second); err != nil {
		t.Fatal(err)
	}

	if r := h.reports.next(t); r.Outcome != domain.OutcomeAlerted {
		t.Fatalf("t=0: outcome = %s", r.Outcome)
	}

	for _, sec := range []int{10, 20, 30, 40, 50, 60} {
		h.clock.Advance(10 * time.Second)
		r := h.tick(t)
		if r.Outcome != domain.OutcomeSuppressed {
			t.Fatalf("t=%d: outcome = %s, want suppressed", sec, r.Outcome)
		}
		if want := time.Duration(60-sec) * time.Second; r.CooldownRemaining != want {
			t.Errorf("t=%d: remaining = %s, want %s", sec, r.CooldownRemaining, want)
		}
	}

	h.clock.Advance(time.Second)
	if r := h.tick(t); r.Outcome != domain.OutcomeAlerted {
		t.Fatalf("t=61: outcome = %s, want alerted", r.Outcome)
	}

	if n := len(h.notifier.Alerts()); n != 2 {
		t.Errorf("alerts = %d, want 2", n)
	}

	snap, ok := h.monitor.Task("cd")
	if !ok {
		t.Fatal("task snapshot missing")
	}
	if snap.Alerts != 2 || snap.Ticks != 8 || snap.LastAlertAt == nil {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.LastAlertAt.Equal(h.clock.Now().Truncate(time.Millisecond)) {
		t.Errorf("LastAlertAt = %s", snap.LastAlertAt)
	}
}

func TestMonitor_BelowThresholdAndUnavailable(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100})

	task := mustTask(t, "t", "ethereum", "arbitrum", 1, 0)
	if err := h.monitor.StartTask(task, time.Second); err != nil {
		t.Fatal(err)
	}

	r := h.reports.next(t)
	if r.Outcome != domain.OutcomeUnavailable {
		t.Fatalf("outcome = %s, want unavailable", r.Outcome)
	}
	if r.QuoteA == nil || r.QuoteB != nil {
		t.Errorf("quotes = %v / %v", r.QuoteA, r.QuoteB)
	}

	h.table.Set("arbitrum", 100.5)
	if r := h.tick(t); r.Outcome != domain.OutcomeBelowThreshold {
		t.Fatalf("outcome = %s, want below_threshold", r.Outcome)
	}

	h.table.Set("arbitrum", 101.5)
	h.clock.Advance(31 * time.Second)
	if r := h.tick(t); r.Outcome != domain.OutcomeAlerted {
		t.Fatalf("outcome = %s, want alerted", r.Outcome)
	}
}

func TestMonitor_NotifierFailureKeepsRunning(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 110})
	h.notifier.err = errors.New("sink down")

	if err := h.monitor.StartTask(mustTask(t, "t", "ethereum", "arbitrum", 1, 0), time.Second); err != nil {
		t.Fatal(err)
	}
	if r := h.reports.next(t); r.Outcome != domain.OutcomeAlerted {
		t.Fatalf("outcome = %s", r.Outcome)
	}

	h.clock.Advance(time.Second)
	if r := h.tick(t); r.Outcome != domain.OutcomeAlerted {
		t.Fatalf("second tick outcome = %s", r.Outcome)
	}
}

func TestMonitor_StartTask_Errors(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 102})

	task := mustTask(t, "dup", "ethereum", "arbitrum", 1, 0)
	if err := h.monitor.StartTask(task, time.Second); err != nil {
		t.Fatal(err)
	}
	h.reports.next(t)

	tests := []struct {
		name     string
		task     domain.MonitoringTask
		wantCode apperror.Code
	}{
		{name: "duplicate id", task: task, wantCode: apperror.CodeTaskAlreadyRunning},
		{name: "unknown chain", task: mustTask(t, "x", "ethereum", "solana", 1, 0), wantCode: apperror.CodeUnsupportedChain},
		{name: "pair mismatch", task: mustTask(t, "y", "ethereum:BTC/USDC", "arbitrum", 1, 0), wantCode: apperror.CodeInvalidChainPair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.monitor.StartTask(tt.task, time.Second)
			if !apperror.HasCode(err, tt.wantCode) {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}

	if n := len(h.monitor.Tasks()); n != 1 {
		t.Errorf("running tasks = %d, want 1", n)
	}
	if n := len(h.notifier.Alerts()); n != 1 {
		t.Errorf("duplicate start must not tick again, alerts = %d", n)
	}
}

func TestMonitor_SkipsOverlappingTicks(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 102})
	block := make(chan struct{})
	h.table.block = block

	if err := h.monitor.StartTask(mustTask(t, "slow", "ethereum", "arbitrum", 1, 0), time.Second); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return h.table.calls.Load() > 0 })

	h.ticker.ch <- h.clock.Now()
	waitFor(t, func() bool {
		s, _ := h.monitor.Task("slow")
		return s.SkippedTicks == 1
	})

	close(block)
	if r := h.reports.next(t); r.Outcome != domain.OutcomeAlerted {
		t.Fatalf("outcome = %s", r.Outcome)
	}

	s, _ := h.monitor.Task("slow")
	if s.Ticks != 1 {
		t.Errorf("ticks = %d, want 1", s.Ticks)
	}
}

func TestMonitor_StopTask(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 102})
	h.table.block = make(chan struct{}) // never released; stop must cancel it

	if err := h.monitor.StartTask(mustTask(t, "t", "ethereum", "arbitrum", 1, 0), time.Second); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return h.table.calls.Load() > 0 })

	done := make(chan bool)
	go func() { done <- h.monitor.StopTask("t") }()

	select {
	case stopped := <-done:
		if !stopped {
			t.Error("StopTask should report the task as stopped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StopTask did not return")
	}

	if h.monitor.StopTask("t") {
		t.Error("second StopTask should be a no-op")
	}
	if len(h.monitor.Tasks()) != 0 {
		t.Error("task still listed after stop")
	}

	// the id can be reused once stopped
	h.table.block = nil
	if err := h.monitor.StartTask(mustTask(t, "t", "ethereum", "arbitrum", 1, 0), time.Second); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestMonitor_StopAllAndLiveness(t *testing.T) {
	h := newHarness(t, map[string]float64{"ethereum": 100, "arbitrum": 100, "base": 100})

	for _, id := range []string{"b", "a"} {
		if err := h.monitor.StartTask(mustTask(t, id, "ethereum", "base", 1, 0), 10*time.Second); err != nil {
			t.Fatal(err)
		}
		h.reports.next(t)
	}

	snaps := h.monitor.Tasks()
	if len(snaps) != 2 || snaps[0].ID != "a" || snaps[1].ID != "b" {
		t.Fatalf("Tasks() = %+v", snaps)
	}
	if err := h.monitor.Liveness(); err != nil {
		t.Errorf("Liveness: %v", err)
	}

	h.clock.Advance(31 * time.Second)
	if err := h.monitor.Liveness(); err == nil {
		t.Error("Liveness should fail after three missed intervals")
	}

	h.monitor.StopAll()
	if len(h.monitor.Tasks()) != 0 {
		t.Error("StopAll left tasks running")
	}
	if err := h.monitor.Liveness(); err != nil {
		t.Errorf("Liveness with no tasks: %v", err)
	}
}
