package ports

import "time"

// Event es una notificación de progreso u observabilidad del pipeline.
type Event struct {
	Type     string // p.ej. fast_path_progress, fast_path_error, batch_complete
	SignalID string
	Stage    string
	Progress int // 0-100
	Detail   string
	At       time.Time
}

// ObservabilitySink recibe eventos fire-and-forget. Emit nunca bloquea y
// nunca devuelve error al core: los fallos de emisión se absorben.
type ObservabilitySink interface {
	Emit(event Event)
}

// NopSink descarta todos los eventos. Útil como default y en tests.
type NopSink struct{}

// Emit implementa ObservabilitySink.
func (NopSink) Emit(Event) {}
