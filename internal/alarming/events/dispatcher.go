package events

import (
	"context"
	"time"

	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/rs/zerolog/log"
)

// Handler consumes one domain event. Handlers run on the dispatcher goroutine
// and must not block for long; anything slow belongs behind its own queue.
type Handler func(ctx context.Context, ev model.Event)

// Dispatcher decouples best-effort side effects (ticket hints, notifications)
// from engine transactions. Publish never blocks: when the buffer is full the
// event is dropped with a warning, engine correctness does not depend on
// consumers keeping up.
type Dispatcher struct {
	ch chan model.Event
}

func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	return &Dispatcher{ch: make(chan model.Event, size)}
}

// Publish enqueues an event, stamping At when unset.
func (d *Dispatcher) Publish(ev model.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case d.ch <- ev:
	default:
		log.Warn().Str("type", string(ev.Type)).Str("tenant", ev.TenantID).Msg("event channel full, dropping event")
	}
}

// Start runs the consumer loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, handlers ...Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.ch:
			for _, h := range handlers {
				h(ctx, ev)
			}
		}
	}
}

// LogHandler is the built-in consumer: structured log per event.
func LogHandler(_ context.Context, ev model.Event) {
	log.Info().
		Str("type", string(ev.Type)).
		Str("tenant", ev.TenantID).
		Str("alarm_id", ev.AlarmID).
		Str("correlation_id", ev.CorrelationID).
		Str("instance_id", ev.InstanceID).
		Msg("domain event")
}
