package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/config"
	"github.com/kardianos/service"
)

// stopGrace bounds Stop beyond the configured shutdown timeout.
const stopGrace = 5 * time.Second

// ErrStopTimeout indicates the application did not finish within the stop budget.
var ErrStopTimeout = errors.New("service did not stop in time")

// program adapts the application to the kardianos/service start/stop contract.
type program struct {
	cfg *config.Config
	log *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

var _ service.Interface = (*program)(nil)

func newProgram(cfg *config.Config, log *logger.Logger) *program {
	return &program{cfg: cfg, log: log}
}

// Start builds the application and serves it in the background.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())

	application, err := newApp(ctx, p.cfg, p.log)
	if err != nil {
		cancel()

		return fmt.Errorf("failed to build application: %w", err)
	}

	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)

		serveErr := application.serve(ctx)
		if serveErr != nil {
			p.log.Error("Application stopped with error: %v", serveErr)

			p.mu.Lock()
			p.err = serveErr
			p.mu.Unlock()
		}
	}()

	return nil
}

// Stop cancels the application and waits for its shutdown sweep.
func (p *program) Stop(_ service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}

	p.log.Info("Stop requested; shutting down.")
	cancel()

	budget := stopGrace
	if p.cfg != nil {
		budget += p.cfg.ShutdownTimeout() + p.cfg.RequestTimeout()
	}

	select {
	case <-done:
		return nil
	case <-time.After(budget):
		return ErrStopTimeout
	}
}

// Err returns the error the application stopped with, if any.
func (p *program) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}
