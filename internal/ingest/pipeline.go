package ingest

// pipeline.go — convierte un item crawleado en un Signal persistido si y
// solo si no es un duplicado.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/signalbot/internal/dedup"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Pipeline es el punto de entrada de items crawleados al sistema.
type Pipeline struct {
	dedup   *dedup.Engine
	signals ports.SignalStore
}

// New crea un Pipeline con las dependencias inyectadas.
func New(d *dedup.Engine, signals ports.SignalStore) *Pipeline {
	return &Pipeline{dedup: d, signals: signals}
}

// Ingest deduplica el item y, si es nuevo, crea el Signal en pending.
// Devuelve (nil, result) para duplicados, con la capa que lo detectó.
func (p *Pipeline) Ingest(ctx context.Context, item domain.CrawledItem) (*domain.Signal, domain.ProcessItemResult, error) {
	if err := validate(item); err != nil {
		return nil, domain.ProcessItemResult{}, err
	}

	signalID := uuid.New().String()

	res, err := p.dedup.ProcessItem(ctx, item, signalID)
	if err != nil {
		return nil, domain.ProcessItemResult{}, fmt.Errorf("ingest.Ingest: dedup: %w", err)
	}
	if !res.IsNew {
		slog.Debug("ingest: duplicate dropped",
			"target", item.TargetID,
			"source", item.SourceID,
			"reason", res.Reason,
			"similar_signal", res.SimilarSignalID,
		)
		return nil, res, nil
	}

	detectedAt := item.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}

	sig := domain.Signal{
		ID:          signalID,
		TargetID:    item.TargetID,
		SourceID:    item.SourceID,
		Content:     item.Content,
		Direction:   item.Direction,
		Disposition: domain.DispositionPending,
		DetectedAt:  detectedAt,
		URL:         item.URL,
		Metadata:    item.Metadata,
		IsTest:      item.IsTest,
	}
	if err := p.signals.Create(ctx, sig); err != nil {
		return nil, res, fmt.Errorf("ingest.Ingest: create signal: %w", err)
	}

	slog.Info("ingest: signal created",
		"signal", sig.ID,
		"target", sig.TargetID,
		"source", sig.SourceID,
		"direction", sig.Direction,
	)
	return &sig, res, nil
}

// validate aplica las invariantes de entrada: los signals de test solo
// pueden apuntar a targets del namespace de test.
func validate(item domain.CrawledItem) error {
	if item.TargetID == "" || item.SourceID == "" {
		return fmt.Errorf("ingest.Ingest: missing target or source: %w", domain.ErrValidation)
	}
	if item.IsTest && !domain.IsTestTarget(item.TargetID) {
		return fmt.Errorf("ingest.Ingest: test item with non-test target %q: %w",
			item.TargetID, domain.ErrValidation)
	}
	return nil
}
