package observability

import (
	"log/slog"

	"revenueos/core/events"
)

// LogEmitter forwards ledger events to structured logs. It is the daemon's
// default subscriber; richer sinks can wrap it.
type LogEmitter struct {
	Log *slog.Logger
}

// Emit implements events.Emitter.
func (e LogEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	logger := e.Log
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{"event", evt.EventType()}
	if payload, ok := evt.(*events.Payload); ok {
		for k, v := range payload.Attributes {
			args = append(args, k, v)
		}
	}
	logger.Info("ledger event", args...)
}
