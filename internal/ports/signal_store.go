package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// SignalStore persiste signals y sus transiciones de disposition.
type SignalStore interface {
	// Create persiste un signal nuevo en disposition pending.
	Create(ctx context.Context, s domain.Signal) error

	// Get devuelve el signal o domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.Signal, error)

	// Claim es el CAS atómico pending→claimed. Devuelve nil (sin error)
	// si otro worker ya lo reclamó: es el único mecanismo de exclusión
	// del pipeline.
	Claim(ctx context.Context, id string) (*domain.Signal, error)

	// UpdateDisposition aplica una transición legal; las ilegales
	// (p.ej. rejected→pending) devuelven error sin tocar la fila.
	UpdateDisposition(ctx context.Context, id string, from, to domain.Disposition) error

	// FindPendingGroupedByURL agrupa los pending por URL de origen.
	FindPendingGroupedByURL(ctx context.Context) ([]domain.SignalGroup, error)

	// ExpireStale pasa a expired los pending detectados antes del cutoff.
	// Devuelve cuántos expiró.
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
}
