package ports

import (
	"context"
	"time"
)

// ServiceHealth gradúa el estado de un servicio downstream en vez de un
// binario up/down.
type ServiceHealth string

const (
	HealthNormal   ServiceHealth = "normal"
	HealthPartial  ServiceHealth = "partial"
	HealthDegraded ServiceHealth = "degraded"
	HealthOffline  ServiceHealth = "offline"
)

// QuoteResult es el movimiento de precio de un target desde un instante.
// Stale marca valores last-known-good servidos durante degradación.
type QuoteResult struct {
	MovePct    float64
	CapturedAt time.Time
	Stale      bool
}

// QuoteProvider captura el movimiento realizado de un target, para fijar
// outcomes de predicciones expiradas.
type QuoteProvider interface {
	// GetMove devuelve el movimiento % del target desde since.
	GetMove(ctx context.Context, targetID string, since time.Time) (QuoteResult, error)

	// Health devuelve el estado graduado del servicio.
	Health() ServiceHealth
}
