package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

// Ensure FanOut implements Notifier.
var _ app.Notifier = (*FanOut)(nil)

// NamedNotifier is a Notifier with a name for logs.
type NamedNotifier interface {
	app.Notifier
	Name() string
}

// FanOut delivers each alert to every sink concurrently. A failing sink is
// logged and does not affect the others.
type FanOut struct {
	sinks  []NamedNotifier
	logger logger.LoggerInterface
}

// NewFanOut creates a FanOut over sinks.
func NewFanOut(log logger.LoggerInterface, sinks ...NamedNotifier) *FanOut {
	return &FanOut{sinks: sinks, logger: log}
}

// Len returns the number of sinks.
func (f *FanOut) Len() int { return len(f.sinks) }

// Names returns the sink names.
func (f *FanOut) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Notify waits for every sink and returns their joined errors.
func (f *FanOut) Notify(ctx context.Context, a domain.Alert) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, sink := range f.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Notify(ctx, a); err != nil {
				f.logger.Warn(ctx, "alert sink failed", "sink", sink.Name(), "alert_id", a.ID, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
