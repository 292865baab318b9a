package dedup

// engine.go — detección de duplicados en 4 capas ordenadas con short-circuit.
//
//  1. hash exacto, misma fuente (SeenItemStore, semántica first-seen)
//  2. hash exacto, cross-source para el mismo target
//  3. fuzzy sobre título normalizado contra la ventana de fingerprints
//  4. solapamiento de key phrases contra la misma ventana
//
// Cada capa se evalúa solo si las anteriores no encontraron duplicado.
// El lookup es read-then-write: dos crawls simultáneos del mismo contenido
// pueden pasar ambos la capa 1 antes de que el write commitee. Es una
// propiedad best-effort aceptada, no una garantía dura.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/fingerprint"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Config controla qué capas se evalúan y sus umbrales.
type Config struct {
	CrossSourceEnabled       bool
	FuzzyEnabled             bool
	LookbackHours            int
	CandidateLimit           int
	TitleSimilarityThreshold float64
	PhraseOverlapThreshold   float64
	MaxKeyPhrases            int
}

// DefaultConfig devuelve los umbrales de producción.
func DefaultConfig() Config {
	return Config{
		CrossSourceEnabled:       true,
		FuzzyEnabled:             true,
		LookbackHours:            72,
		CandidateLimit:           100,
		TitleSimilarityThreshold: 0.85,
		PhraseOverlapThreshold:   0.7,
		MaxKeyPhrases:            10,
	}
}

// Engine aplica las 4 capas de dedup usando los dos stores de lookup.
type Engine struct {
	cfg  Config
	seen ports.SeenItemStore
	fps  ports.FingerprintStore
}

// New crea un Engine con las dependencias inyectadas.
func New(cfg Config, seen ports.SeenItemStore, fps ports.FingerprintStore) *Engine {
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 72
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 100
	}
	if cfg.MaxKeyPhrases <= 0 {
		cfg.MaxKeyPhrases = 10
	}
	return &Engine{cfg: cfg, seen: seen, fps: fps}
}

// ProcessItem evalúa las capas en orden y devuelve el veredicto.
// signalID es el id que recibirá el signal si el item resulta nuevo; se
// incluye en el fingerprint persistido para que futuros matches puedan
// referenciarlo.
func (e *Engine) ProcessItem(ctx context.Context, item domain.CrawledItem, signalID string) (domain.ProcessItemResult, error) {
	hash := fingerprint.HashArticle(item.Title, item.Content)

	// Capa 1: hash exacto, misma fuente. MarkSeen siempre registra el item
	// (first-seen), el resultado dice si ya existía.
	marked, err := e.seen.MarkSeen(ctx, item.SourceID, hash, item.URL, item.TargetID)
	if err != nil {
		return domain.ProcessItemResult{}, fmt.Errorf("dedup.ProcessItem: mark seen: %w", err)
	}
	if !marked.IsNew {
		return domain.ProcessItemResult{Reason: domain.ReasonExactHashMatch}, nil
	}

	// Capa 2: mismo hash para el target desde otra fuente.
	if e.cfg.CrossSourceEnabled {
		dup, err := e.seen.HasBeenSeenForTarget(ctx, hash, item.TargetID, item.SourceID)
		if err != nil {
			return domain.ProcessItemResult{}, fmt.Errorf("dedup.ProcessItem: cross-source lookup: %w", err)
		}
		if dup {
			return domain.ProcessItemResult{Reason: domain.ReasonCrossSourceDuplicate}, nil
		}
	}

	titleNorm := fingerprint.Normalize(item.Title)
	phrases := fingerprint.ExtractKeyPhrases(item.Content, e.cfg.MaxKeyPhrases)

	if e.cfg.FuzzyEnabled {
		// Capa 3: fuzzy sobre títulos de la ventana de lookback.
		candidates, err := e.fps.FindRecentForTarget(ctx, item.TargetID, e.cfg.LookbackHours, e.cfg.CandidateLimit)
		if err != nil {
			return domain.ProcessItemResult{}, fmt.Errorf("dedup.ProcessItem: recent fingerprints: %w", err)
		}
		for _, c := range candidates {
			if fingerprint.IsSimilar(titleNorm, c.TitleNormalized, e.cfg.TitleSimilarityThreshold) {
				return domain.ProcessItemResult{
					Reason:          domain.ReasonFuzzyTitleMatch,
					SimilarSignalID: c.SignalID,
				}, nil
			}
		}

		// Capa 4: solapamiento de key phrases. Los candidatos vienen
		// pre-filtrados por compartir al menos una frase.
		if len(phrases) > 0 {
			overlaps, err := e.fps.FindByPhraseOverlap(ctx, item.TargetID, phrases, e.cfg.LookbackHours, e.cfg.CandidateLimit)
			if err != nil {
				return domain.ProcessItemResult{}, fmt.Errorf("dedup.ProcessItem: phrase overlap: %w", err)
			}
			for _, o := range overlaps {
				ratio := float64(o.OverlapCount) / float64(len(phrases))
				if ratio >= e.cfg.PhraseOverlapThreshold {
					return domain.ProcessItemResult{
						Reason:          domain.ReasonPhraseOverlap,
						SimilarSignalID: o.SignalID,
					}, nil
				}
			}
		}
	}

	// Nuevo: persistir el fingerprint para las comparaciones futuras de las
	// capas 3 y 4. Un fallo aquí no invalida el veredicto.
	fp := domain.ContentFingerprint{
		ContentHash:     hash,
		TitleNormalized: titleNorm,
		KeyPhrases:      phrases,
		CreatedAt:       item.DetectedAt,
		TargetID:        item.TargetID,
		SourceID:        item.SourceID,
		SignalID:        signalID,
	}
	if err := e.fps.Create(ctx, fp); err != nil {
		slog.Warn("dedup: failed to persist fingerprint",
			"target", item.TargetID, "source", item.SourceID, "err", err)
	}

	return domain.ProcessItemResult{IsNew: true}, nil
}
