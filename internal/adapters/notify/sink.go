package notify

// sink.go — sink de observabilidad asíncrono. Emit nunca bloquea al core:
// con el buffer lleno el evento se descarta y se cuenta.

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alejandrodnm/signalbot/internal/ports"
)

// AsyncSink implementa ports.ObservabilitySink sobre un canal acotado con
// un único consumidor.
type AsyncSink struct {
	events  chan ports.Event
	handler func(ports.Event)
	dropped atomic.Int64

	once sync.Once
	done chan struct{}
}

// NewAsyncSink arranca el consumidor. handler nil loguea los eventos con slog.
func NewAsyncSink(buffer int, handler func(ports.Event)) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	if handler == nil {
		handler = logEvent
	}
	s := &AsyncSink{
		events:  make(chan ports.Event, buffer),
		handler: handler,
		done:    make(chan struct{}),
	}
	go s.consume()
	return s
}

// Emit encola el evento sin bloquear; si el buffer está lleno lo descarta.
func (s *AsyncSink) Emit(event ports.Event) {
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

// Dropped devuelve cuántos eventos se descartaron por buffer lleno.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close drena los eventos encolados y para el consumidor.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *AsyncSink) consume() {
	defer close(s.done)
	for event := range s.events {
		s.handler(event)
	}
}

func logEvent(e ports.Event) {
	slog.Debug("pipeline event",
		"type", e.Type, "signal", e.SignalID, "stage", e.Stage,
		"progress", e.Progress, "detail", e.Detail)
}
