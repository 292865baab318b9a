package ports

import (
	"context"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// FingerprintStore indexa fingerprints por target dentro de una ventana
// de lookback, para las capas fuzzy (3) y de solapamiento de frases (4).
type FingerprintStore interface {
	// FindRecentForTarget devuelve hasta limit fingerprints del target
	// creados en las últimas hoursBack horas, los más recientes primero.
	FindRecentForTarget(ctx context.Context, targetID string, hoursBack int, limit int) ([]domain.ContentFingerprint, error)

	// FindByPhraseOverlap devuelve candidatos que comparten al menos una
	// key phrase con el set dado, con su conteo de solapamiento.
	FindByPhraseOverlap(ctx context.Context, targetID string, phrases []string, hoursBack int, limit int) ([]domain.PhraseOverlap, error)

	// Create persiste un fingerprint nuevo.
	Create(ctx context.Context, fp domain.ContentFingerprint) error
}
