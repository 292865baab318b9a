package fastpath

// processor.go — camino rápido para signals urgentes de alta confianza.
// Avanza por etapas lineales emitiendo progreso por el sink; las
// notificaciones son best-effort y nunca afectan al resultado. Los fallos
// de las operaciones core sí se propagan al caller.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Etapas del fast path y su progreso.
const (
	StageStarted             = "started"
	StagePredictorCreated    = "predictor_created"
	StageThresholdMet        = "threshold_met"
	StagePredictionGenerated = "prediction_generated"
	StageSnapshotCreated     = "snapshot_created"
	StageCompleted           = "completed"
	StageDeferred            = "deferred"
	StageAborted             = "aborted"
)

// Config parametriza el fast path.
type Config struct {
	// ConfidenceThreshold es la confianza mínima para entrar al fast path.
	ConfidenceThreshold float64

	// PredictorTTL es la vida del predictor sintetizado.
	PredictorTTL time.Duration

	// PredictionTimeframe es el horizonte de la predicción generada.
	PredictionTimeframe time.Duration
}

// DefaultConfig devuelve la configuración de producción.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.90,
		PredictorTTL:        24 * time.Hour,
		PredictionTimeframe: 24 * time.Hour,
	}
}

// Processor convierte un veredicto urgente en predicción en una sola pasada,
// sin esperar a la agregación multi-predictor del ciclo normal.
type Processor struct {
	cfg         Config
	predictors  ports.PredictorStore
	predictions ports.PredictionStore
	snapshots   ports.SnapshotStore
	sink        ports.ObservabilitySink
}

// NewProcessor crea un Processor. sink nil usa NopSink.
func NewProcessor(
	cfg Config,
	predictors ports.PredictorStore,
	predictions ports.PredictionStore,
	snapshots ports.SnapshotStore,
	sink ports.ObservabilitySink,
) *Processor {
	if sink == nil {
		sink = ports.NopSink{}
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.90
	}
	return &Processor{
		cfg:         cfg,
		predictors:  predictors,
		predictions: predictions,
		snapshots:   snapshots,
		sink:        sink,
	}
}

// Process ejecuta el fast path para un signal claimed con veredicto urgente.
// Devuelve nil sin error si el signal no alcanza el umbral (deferred).
func (p *Processor) Process(ctx context.Context, sig domain.Signal, det domain.DetectionResult) (*domain.Prediction, error) {
	p.emit(sig.ID, StageStarted, 0, "")

	if det.Confidence < p.cfg.ConfidenceThreshold {
		p.emit(sig.ID, StageDeferred, 0,
			fmt.Sprintf("confidence %.2f below %.2f", det.Confidence, p.cfg.ConfidenceThreshold))
		return nil, nil
	}

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
		return nil, p.abort(sig.ID, StagePredictorCreated, fmt.Errorf("fastpath.Process: create predictor: %w", err))
	}
	p.emit(sig.ID, StagePredictorCreated, 25, predictor.ID)

	// Regla relajada: un único predictor urgente por encima del umbral basta.
	p.emit(sig.ID, StageThresholdMet, 50, "")

	prediction := domain.Prediction{
		ID:             uuid.NewString(),
		TargetID:       sig.TargetID,
		Direction:      domain.ToPredictionDirection(predictor.Direction),
		Magnitude:      magnitudeForConfidence(det.Confidence),
		Confidence:     det.Confidence,
		TimeframeHours: p.cfg.PredictionTimeframe.Hours(),
		PredictedAt:    now,
		ExpiresAt:      now.Add(p.cfg.PredictionTimeframe),
	}
	if err := p.predictions.Create(ctx, prediction); err != nil {
		return nil, p.abort(sig.ID, StagePredictionGenerated, fmt.Errorf("fastpath.Process: create prediction: %w", err))
	}
	if err := p.predictors.Consume(ctx, predictor.ID); err != nil {
		return nil, p.abort(sig.ID, StagePredictionGenerated, fmt.Errorf("fastpath.Process: consume predictor: %w", err))
	}
	p.emit(sig.ID, StagePredictionGenerated, 75, prediction.ID)

	// El snapshot es explicabilidad: su fallo no tumba el fast path.
	if err := p.snapshots.SaveSnapshot(ctx, prediction.ID, snapshotDetail(sig, det, predictor, prediction)); err != nil {
		slog.Warn("fast path snapshot failed", "prediction", prediction.ID, "error", err)
	} else {
		p.emit(sig.ID, StageSnapshotCreated, 85, "")
	}

	p.emit(sig.ID, StageCompleted, 100, prediction.ID)
	return &prediction, nil
}

// magnitudeForConfidence deriva la magnitud de la confianza del veredicto.
func magnitudeForConfidence(confidence float64) domain.Magnitude {
	switch {
	case confidence >= 0.97:
		return domain.MagnitudeLarge
	case confidence >= 0.93:
		return domain.MagnitudeMedium
	default:
		return domain.MagnitudeSmall
	}
}

// snapshotDetail arma el registro de explicabilidad de la predicción.
func snapshotDetail(sig domain.Signal, det domain.DetectionResult, predictor domain.Predictor, prediction domain.Prediction) string {
	detail := map[string]any{
		"signal_id":    sig.ID,
		"predictor_id": predictor.ID,
		"target_id":    sig.TargetID,
		"direction":    prediction.Direction,
		"magnitude":    prediction.Magnitude,
		"confidence":   det.Confidence,
		"reasoning":    det.Reasoning,
		"analyst":      det.AnalystSlug,
		"key_factors":  strings.Join(det.KeyFactors, "; "),
		"risks":        strings.Join(det.Risks, "; "),
	}
	b, err := json.Marshal(detail)
	if err != nil {
		return fmt.Sprintf("signal=%s predictor=%s", sig.ID, predictor.ID)
	}
	return string(b)
}

// abort emite un evento de error (tipo aparte del progreso normal, para que
// el stream distinga fallo de deferral) y propaga el error al caller.
func (p *Processor) abort(signalID, stage string, err error) error {
	slog.Error("fast path aborted", "signal", signalID, "stage", stage, "error", err)
	p.sink.Emit(ports.Event{
		Type:     "fast_path_error",
		SignalID: signalID,
		Stage:    StageAborted,
		Progress: 0,
		Detail:   fmt.Sprintf("%s: %v", stage, err),
		At:       time.Now().UTC(),
	})
	return err
}

func (p *Processor) emit(signalID, stage string, progress int, detail string) {
	p.sink.Emit(ports.Event{
		Type:     "fast_path_progress",
		SignalID: signalID,
		Stage:    stage,
		Progress: progress,
		Detail:   detail,
		At:       time.Now().UTC(),
	})
}
