package capability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/core"
)

// Capability names.
const (
	NameASR         = "asr"
	NameCorrection  = "correction"
	NameTranslation = "translation"
	NameSpeech      = "speech"
)

const (
	logFmtLoaded     = "Capability %s loaded"
	logFmtLoadFailed = "Capability %s unavailable: %v"
	logFmtReleased   = "Released accelerator memory of %s"
)

// Factory constructs one capability.
type Factory func(ctx context.Context) (any, error)

// Provider returns a constructed capability or an error wrapping
// core.ErrCapabilityUnavailable.
type Provider[T any] func(ctx context.Context) (T, error)

type entry struct {
	once  sync.Once
	build Factory
	value any
	err   error
}

// Loader constructs every registered capability at most once. A failed
// construction is remembered, so later callers fail fast with the same error.
type Loader struct {
	log *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewLoader creates an empty loader.
func NewLoader(log *logger.Logger) *Loader {
	return &Loader{log: log, entries: make(map[string]*entry)}
}

// Register adds or replaces a capability. Call it before the loader is used.
func (l *Loader) Register(name string, build Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[name] = &entry{build: build}
}

// Get returns the capability registered under name, constructing it on first use.
// Construction is detached from ctx cancellation so a cancelled first caller
// cannot poison the capability for everyone else.
func (l *Loader) Get(ctx context.Context, name string) (any, error) {
	l.mu.Lock()
	found, ok := l.entries[name]
	l.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", core.ErrCapabilityUnavailable, name)
	}

	found.once.Do(func() {
		value, err := found.build(context.WithoutCancel(ctx))

		// Status and Release read the results under the loader lock.
		l.mu.Lock()
		defer l.mu.Unlock()

		if err != nil {
			found.err = fmt.Errorf("%w: %s: %w", core.ErrCapabilityUnavailable, name, err)
			l.log.Error(logFmtLoadFailed, name, err)

			return
		}

		found.value = value
		l.log.Info(logFmtLoaded, name)
	})

	return found.value, found.err
}

// Warm constructs every registered capability and returns the failures by name.
func (l *Loader) Warm(ctx context.Context) map[string]error {
	failures := make(map[string]error)

	for _, name := range l.Names() {
		_, err := l.Get(ctx, name)
		if err != nil {
			failures[name] = err
		}
	}

	return failures
}

// Names returns the registered capability names in sorted order.
func (l *Loader) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Status reports, for every registered capability, whether it is loaded.
// Capabilities never requested are reported as not loaded.
func (l *Loader) Status() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := make(map[string]bool, len(l.entries))
	for name, found := range l.entries {
		status[name] = found.value != nil && found.err == nil
	}

	return status
}

// Release frees accelerator memory on every loaded capability implementing
// core.Releaser. Capabilities that were never loaded are not constructed.
func (l *Loader) Release(ctx context.Context) error {
	l.mu.Lock()

	releasers := make(map[string]core.Releaser)

	for name, found := range l.entries {
		if releaser, ok := found.value.(core.Releaser); ok {
			releasers[name] = releaser
		}
	}
	l.mu.Unlock()

	var errs []error

	for name, releaser := range releasers {
		err := releaser.Release(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", name, err))

			continue
		}

		l.log.Info(logFmtReleased, name)
	}

	return errors.Join(errs...)
}

// Provide returns a typed Provider for the capability registered under name.
func Provide[T any](l *Loader, name string) Provider[T] {
	return func(ctx context.Context) (T, error) {
		var zero T

		value, err := l.Get(ctx, name)
		if err != nil {
			return zero, err
		}

		typed, ok := value.(T)
		if !ok {
			return zero, fmt.Errorf("%w: %s has type %T", core.ErrCapabilityUnavailable, name, value)
		}

		return typed, nil
	}
}

// Static returns a Provider that always yields value.
func Static[T any](value T) Provider[T] {
	return func(context.Context) (T, error) {
		return value, nil
	}
}

// Unavailable returns a Provider that always fails with err wrapped in
// core.ErrCapabilityUnavailable.
func Unavailable[T any](err error) Provider[T] {
	wrapped := fmt.Errorf("%w: %w", core.ErrCapabilityUnavailable, err)

	return func(context.Context) (T, error) {
		var zero T

		return zero, wrapped
	}
}
