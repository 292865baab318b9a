package ports

import (
	"context"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// MarkSeenResult indica si el par (source, hash) era nuevo al registrarlo.
type MarkSeenResult struct {
	IsNew bool
	Seen  domain.SeenItem
}

// SeenItemStore persiste la primera aparición de cada (source, hash).
// Es la base de las capas 1 y 2 de dedup.
type SeenItemStore interface {
	// MarkSeen registra el item con semántica first-seen: si el par ya
	// existía devuelve IsNew=false y la fila original.
	MarkSeen(ctx context.Context, sourceID, contentHash, url, targetID string) (MarkSeenResult, error)

	// HasBeenSeenForTarget busca el hash para el target en cualquier fuente
	// distinta de excludeSourceID (la capa 1 ya registró la propia).
	HasBeenSeenForTarget(ctx context.Context, contentHash, targetID, excludeSourceID string) (bool, error)
}
