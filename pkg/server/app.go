package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	applogger "NiftyPulse/pkg/logger"
)

// Runner is a long-lived component that blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

type component struct {
	name string
	r    Runner
}

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the application lifecycle: it runs every registered component
// until a signal arrives or one of them fails, then releases resources in
// reverse registration order.
type App struct {
	l          *applogger.Logger
	components []component
	closers    []closer
	signals    []os.Signal
	closeAfter time.Duration
}

type Option func(*App)

// WithLogger sets the lifecycle logger.
func WithLogger(l *applogger.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.l = l
		}
	}
}

// WithSignals overrides the signals that trigger shutdown. No signals disables
// signal handling, which tests rely on.
func WithSignals(sig ...os.Signal) Option {
	return func(a *App) { a.signals = sig }
}

// WithCloseTimeout bounds the time spent waiting for components after cancellation.
func WithCloseTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.closeAfter = d
		}
	}
}

// New creates a new App.
func New(opts ...Option) *App {
	a := &App{
		l:          applogger.NewNop(),
		signals:    []os.Signal{os.Interrupt, syscall.SIGTERM},
		closeAfter: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add registers a component. Nil runners are ignored so optional components can
// be passed through unconditionally.
func (a *App) Add(name string, r Runner) {
	if r == nil {
		return
	}
	a.components = append(a.components, component{name: name, r: r})
}

// OnClose registers a cleanup function run after every component has returned.
func (a *App) OnClose(name string, fn func() error) {
	if fn == nil {
		return
	}
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Components returns the registered component names in order.
func (a *App) Components() []string {
	names := make([]string, 0, len(a.components))
	for _, c := range a.components {
		names = append(names, c.name)
	}
	return names
}

// Run starts all components and blocks until ctx is cancelled, a shutdown
// signal is received, or a component fails.
func (a *App) Run(ctx context.Context) error {
	if len(a.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, a.signals...)
		defer stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range a.components {
		a.l.Info("component starting", applogger.String("component", c.name))
		g.Go(func() error {
			if err := c.r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.l.Error("component failed", applogger.String("component", c.name), applogger.Error(err))
				return fmt.Errorf("%s: %w", c.name, err)
			}
			a.l.Info("component stopped", applogger.String("component", c.name))
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var runErr error
	select {
	case runErr = <-done:
	case <-gctx.Done():
		a.l.Info("shutdown requested")
		select {
		case runErr = <-done:
		case <-time.After(a.closeAfter):
			runErr = fmt.Errorf("components did not stop within %s", a.closeAfter)
			a.l.Warn("shutdown timed out", applogger.Duration("timeout", a.closeAfter))
		}
	}

	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	a.l.Info("shutdown complete")
	return runErr
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.l.Warn("close failed", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
