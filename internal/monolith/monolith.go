// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"sync"

	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/config"
	"github.com/fd1az/pricegap-monitor/internal/di"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	ChainRegistry() *domain.ChainRegistry
	Services() di.ServiceRegistry
	// OnClose registers fn to run when the monolith closes, in reverse order.
	OnClose(fn func() error)
}

// App is a Monolith that also drives the module lifecycle.
type App interface {
	Monolith
	RegisterModules(modules ...Module) error
	StartModules(ctx context.Context, modules ...Module) error
	Close() error
}

var _ App = (*app)(nil)

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	registry  *domain.ChainRegistry
	container di.Container

	closeMu  sync.Mutex
	closers  []func() error
	isClosed bool
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface, registry *domain.ChainRegistry) (*app, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("chain registry is empty")
	}

	container := di.NewContainer()

	// Register global services
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("chainRegistry", registry)

	return &app{
		config:    cfg,
		logger:    log,
		registry:  registry,
		container: container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) ChainRegistry() *domain.ChainRegistry {
	return a.registry
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

func (a *app) OnClose(fn func() error) {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	a.closers = append(a.closers, fn)
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close runs registered closers, last registered first. It is idempotent.
func (a *app) Close() error {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()

	if a.isClosed {
		return nil
	}
	a.isClosed = true

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
