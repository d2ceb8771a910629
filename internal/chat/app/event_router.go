package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"washery_chat/internal/chat/domain"
	"washery_chat/pkg/logger"
	"washery_chat/pkg/metrics"

	"go.uber.org/zap"
)

// HandlerFunc handle the data part of one inbound event
type HandlerFunc func(ctx context.Context, data json.RawMessage) error

// EventRouter event name → handler.
// dispatch is serialized so handlers run one at a time in arrival order.
type EventRouter struct {
	dispatchMu sync.Mutex

	mu       sync.RWMutex
	handlers map[domain.Event]HandlerFunc
}

// NewEventRouter create EventRouter
func NewEventRouter() *EventRouter {
	return &EventRouter{handlers: make(map[domain.Event]HandlerFunc)}
}

// Handle register fn for event, replaces a previous handler
func (r *EventRouter) Handle(event domain.Event, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = fn
}

// Remove unregister event
func (r *EventRouter) Remove(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, event)
}

// Has report whether event has a handler
func (r *EventRouter) Has(event domain.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[event]
	return ok
}

// Events registered event names, sorted
func (r *EventRouter) Events() []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Event, 0, len(r.handlers))
	for e := range r.handlers {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DispatchRaw decode a text frame and dispatch it, malformed frames are dropped
func (r *EventRouter) DispatchRaw(ctx context.Context, frame []byte) bool {
	var env domain.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		metrics.DroppedFrames.Inc()
		logger.Log.Warn("drop malformed frame", zap.Int("size", len(frame)), zap.Error(err))
		return false
	}
	return r.Dispatch(ctx, env)
}

// Dispatch run the handler of env.Event, unknown events are ignored.
// a panicking handler is recovered, the caller's loop keeps going.
func (r *EventRouter) Dispatch(ctx context.Context, env domain.Envelope) (handled bool) {
	r.mu.RLock()
	fn, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		logger.Log.Debug("ignore unknown event", zap.String("event", string(env.Event)))
		return false
	}

	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	metrics.EventsReceived.WithLabelValues(string(env.Event)).Inc()

	defer func() {
		if rec := recover(); rec != nil {
			metrics.HandlerPanics.Inc()
			logger.Log.Error("event handler panic",
				zap.String("event", string(env.Event)),
				zap.String("panic", fmt.Sprint(rec)),
			)
			handled = false
		}
	}()

	if err := fn(ctx, env.Data); err != nil {
		logger.Log.Warn("event handler failed", zap.String("event", string(env.Event)), zap.Error(err))
		return false
	}
	return true
}
