package batch

// processor.go — procesamiento batch de signals pendientes. Los signals se
// agrupan por URL de origen y los grupos se reparten entre workers; la única
// exclusión entre workers es el claim CAS del store, así que un signal
// reclamado por otro worker simplemente se salta.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// FastPath es el subconjunto del fast path que el batch necesita.
type FastPath interface {
	Process(ctx context.Context, sig domain.Signal, det domain.DetectionResult) (*domain.Prediction, error)
}

// Config parametriza el procesador batch.
type Config struct {
	// Workers procesan grupos en paralelo. <=0 usa 4.
	Workers int

	// DetectionTimeout acota cada llamada al servicio de detección.
	DetectionTimeout time.Duration

	// SignalTTL: pending más viejos que esto pasan a expired en el sweep.
	SignalTTL time.Duration

	// PredictorTTL es la vida de los predictors creados por el ciclo normal.
	PredictorTTL time.Duration
}

// DefaultConfig devuelve la configuración de producción.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		DetectionTimeout: 60 * time.Second,
		SignalTTL:        24 * time.Hour,
		PredictorTTL:     24 * time.Hour,
	}
}

// Processor reclama signals pendientes y los enruta según el veredicto de
// detección: rechazo, fast path urgente o creación de predictor.
type Processor struct {
	cfg        Config
	signals    ports.SignalStore
	predictors ports.PredictorStore
	detector   ports.DetectionService
	fastPath   FastPath
	sink       ports.ObservabilitySink
}

// NewProcessor crea un Processor. sink nil usa NopSink.
func NewProcessor(
	cfg Config,
	signals ports.SignalStore,
	predictors ports.PredictorStore,
	detector ports.DetectionService,
	fastPath FastPath,
	sink ports.ObservabilitySink,
) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DetectionTimeout <= 0 {
		cfg.DetectionTimeout = 60 * time.Second
	}
	if sink == nil {
		sink = ports.NopSink{}
	}
	return &Processor{
		cfg:        cfg,
		signals:    signals,
		predictors: predictors,
		detector:   detector,
		fastPath:   fastPath,
		sink:       sink,
	}
}

// RunBatchProcessing procesa todos los signals pendientes agrupados por URL.
// Un error por-signal incrementa Errors y no aborta el resto del run.
func (p *Processor) RunBatchProcessing(ctx context.Context) (domain.BatchRunResult, error) {
	groups, err := p.signals.FindPendingGroupedByURL(ctx)
	if err != nil {
		return domain.BatchRunResult{}, fmt.Errorf("batch.RunBatchProcessing: %w", err)
	}
	if len(groups) == 0 {
		return domain.BatchRunResult{}, nil
	}

	workCh := make(chan domain.SignalGroup, len(groups))
	for _, g := range groups {
		workCh <- g
	}
	close(workCh)

	var mu sync.Mutex
	var result domain.BatchRunResult

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range workCh {
				for _, sig := range group.Signals {
					outcome := p.processSignal(ctx, sig)
					mu.Lock()
					result.Processed += outcome.processed
					result.PredictorsCreated += outcome.predictors
					result.Rejected += outcome.rejected
					result.FastPathTriggered += outcome.fastPath
					result.Errors += outcome.errors
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	p.sink.Emit(ports.Event{
		Type:   "batch_complete",
		Detail: fmt.Sprintf("processed=%d predictors=%d rejected=%d fast=%d errors=%d",
			result.Processed, result.PredictorsCreated, result.Rejected,
			result.FastPathTriggered, result.Errors),
		At: time.Now().UTC(),
	})
	return result, nil
}

type signalOutcome struct {
	processed, predictors, rejected, fastPath, errors int
}

// processSignal reclama y enruta un signal. Un claim perdido no cuenta.
func (p *Processor) processSignal(ctx context.Context, sig domain.Signal) signalOutcome {
	claimed, err := p.signals.Claim(ctx, sig.ID)
	if err != nil {
		slog.Error("claim failed", "signal", sig.ID, "error", err)
		return signalOutcome{errors: 1}
	}
	if claimed == nil {
		// Otro worker ganó la carrera.
		return signalOutcome{}
	}

	detCtx, cancel := context.WithTimeout(ctx, p.cfg.DetectionTimeout)
	det, err := p.detector.ProcessSignal(detCtx, *claimed)
	cancel()
	if err != nil {
		slog.Error("detection failed", "signal", sig.ID, "error", err)
		return signalOutcome{processed: 1, errors: 1}
	}

	if !det.ShouldCreatePredictor {
		if err := p.signals.UpdateDisposition(ctx, sig.ID,
			domain.DispositionClaimed, domain.DispositionRejected); err != nil {
			slog.Error("reject transition failed", "signal", sig.ID, "error", err)
			return signalOutcome{processed: 1, errors: 1}
		}
		return signalOutcome{processed: 1, rejected: 1}
	}

	if det.Urgency == domain.UrgencyUrgent {
		prediction, err := p.fastPath.Process(ctx, *claimed, det)
		if err != nil {
			slog.Error("fast path failed", "signal", sig.ID, "error", err)
			return signalOutcome{processed: 1, errors: 1}
		}
		if prediction != nil {
			if err := p.signals.UpdateDisposition(ctx, sig.ID,
				domain.DispositionClaimed, domain.DispositionPredictorCreated); err != nil {
				slog.Error("fast path transition failed", "signal", sig.ID, "error", err)
				return signalOutcome{processed: 1, errors: 1}
			}
			return signalOutcome{processed: 1, fastPath: 1}
		}
		// Deferred por el fast path: cae al ciclo normal.
	}

	if err := p.createPredictor(ctx, *claimed, det); err != nil {
		slog.Error("create predictor failed", "signal", sig.ID, "error", err)
		return signalOutcome{processed: 1, errors: 1}
	}
	return signalOutcome{processed: 1, predictors: 1}
}

// createPredictor persiste el predictor del ciclo normal y cierra el signal.
func (p *Processor) createPredictor(ctx context.Context, sig domain.Signal, det domain.DetectionResult) error {
	now := time.Now().UTC()
	predictor := domain.Predictor{
		ID:          uuid.NewString(),
		SignalID:    sig.ID,
		TargetID:    sig.TargetID,
		Direction:   sig.Direction,
		Strength:    det.Confidence,
		Confidence:  det.Confidence,
		Reasoning:   det.Reasoning,
		AnalystSlug: det.AnalystSlug,
		Status:      domain.PredictorActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(p.cfg.PredictorTTL),
	}
	if err := p.predictors.Create(ctx, predictor); err != nil {
		return fmt.Errorf("batch.createPredictor: %w", err)
	}
	if err := p.signals.UpdateDisposition(ctx, sig.ID,
		domain.DispositionClaimed, domain.DispositionPredictorCreated); err != nil {
		return fmt.Errorf("batch.createPredictor: transition: %w", err)
	}
	return nil
}

// ExpireStale pasa a expired los pending más viejos que SignalTTL.
func (p *Processor) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-p.cfg.SignalTTL)
	n, err := p.signals.ExpireStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("batch.ExpireStale: %w", err)
	}
	if n > 0 {
		slog.Info("expired stale signals", "count", n)
	}
	return n, nil
}
