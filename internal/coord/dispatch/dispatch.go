// Package dispatch implements the Reaction Dispatcher.
//
// Handlers are registered per component id. Dispatch routes a ChangeEvent
// to every handler registered for its component, in registration order.
// Events for components with no handler go to the fallback, which only logs.
//
// Each handler invocation is isolated: an error or panic in one handler is
// logged as a warning and never stops the remaining handlers, or the pass.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Handler reacts to a version change of one component.
type Handler interface {
	Handle(ctx context.Context, event schema.ChangeEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event schema.ChangeEvent) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, event schema.ChangeEvent) error {
	return f(ctx, event)
}

type registration struct {
	name    string
	handler Handler
}

// Dispatcher routes change events to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	fallback Handler
	logger   *log.Logger
}

// New creates a Dispatcher with the log-only fallback.
// If logger is nil, a default logger writing to stderr is used.
func New(logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(os.Stderr, "[dispatch] ", log.LstdFlags)
	}
	d := &Dispatcher{
		handlers: make(map[string][]registration),
		logger:   logger,
	}
	d.fallback = HandlerFunc(d.logOnly)
	return d
}

// Register adds a named handler for componentID. Several handlers may be
// registered for the same component; they run in registration order.
func (d *Dispatcher) Register(componentID, name string, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("dispatch: Register handler is nil for %s", componentID))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[componentID] = append(d.handlers[componentID], registration{name: name, handler: h})
}

// SetFallback replaces the handler used for unregistered components.
func (d *Dispatcher) SetFallback(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		h = HandlerFunc(d.logOnly)
	}
	d.fallback = h
}

// HasHandler reports whether componentID has at least one handler.
func (d *Dispatcher) HasHandler(componentID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[componentID]) > 0
}

// Handlers returns the handler names registered for componentID.
func (d *Dispatcher) Handlers(componentID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers[componentID]))
	for _, r := range d.handlers[componentID] {
		names = append(names, r.name)
	}
	return names
}

// Dispatch runs every handler for event.ComponentID and returns the errors
// they produced. A non-empty result is informational: all handlers ran.
func (d *Dispatcher) Dispatch(ctx context.Context, event schema.ChangeEvent) []error {
	d.mu.RLock()
	regs := append([]registration(nil), d.handlers[event.ComponentID]...)
	fallback := d.fallback
	d.mu.RUnlock()

	if len(regs) == 0 {
		regs = []registration{{name: "fallback", handler: fallback}}
	}

	var errs []error
	for _, r := range regs {
		if err := d.invoke(ctx, r, event); err != nil {
			d.logger.Printf("WARNING: handler %s failed for %s: %v", r.name, event.ComponentID, err)
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	return errs
}

// DispatchAll dispatches events in order. A failing handler for one event
// never prevents later events from being dispatched.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []schema.ChangeEvent) []error {
	var errs []error
	for _, e := range events {
		errs = append(errs, d.Dispatch(ctx, e)...)
	}
	return errs
}

func (d *Dispatcher) invoke(ctx context.Context, r registration, event schema.ChangeEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", schema.ErrHandlerPanic, p)
		}
	}()
	return r.handler.Handle(ctx, event)
}

func (d *Dispatcher) logOnly(ctx context.Context, event schema.ChangeEvent) error {
	d.logger.Printf("Version change with no reaction: %s", event)
	return nil
}
