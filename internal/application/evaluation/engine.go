package evaluation

// engine.go — evaluación de predicciones resueltas. Compone la matemática
// pura de domain/evaluation.go con los stores y agrega aprendizajes
// sugeridos sobre batches de resultados.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Umbrales de la generación de aprendizajes.
const (
	minLearningSamples = 5

	lowDirectionAccuracy  = 0.5
	underestimateRatio    = 1.5 // real > 1.5× predicho cuenta como subestimación
	underestimateFraction = 0.3
	overconfidenceLevel   = 0.8
	overconfidenceCount   = 3
)

// Engine captura outcomes de predicciones expiradas, las puntúa y marca su
// evaluación.
type Engine struct {
	predictions ports.PredictionStore
	quotes      ports.QuoteProvider
}

// NewEngine crea un Engine. quotes nil deshabilita la captura de outcomes.
func NewEngine(predictions ports.PredictionStore, quotes ports.QuoteProvider) *Engine {
	return &Engine{predictions: predictions, quotes: quotes}
}

// CaptureOutcomes fija el outcome de predicciones expiradas consultando el
// movimiento realizado del target. Valores stale se aceptan: un outcome
// tardío es mejor que ninguno. Un fallo por-predicción no corta el barrido.
func (e *Engine) CaptureOutcomes(ctx context.Context, limit int) (int, error) {
	if e.quotes == nil {
		return 0, nil
	}
	expired, err := e.predictions.FindExpiredWithoutOutcome(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("evaluation.CaptureOutcomes: %w", err)
	}

	captured := 0
	for _, p := range expired {
		quote, err := e.quotes.GetMove(ctx, p.TargetID, p.PredictedAt)
		if err != nil {
			slog.Warn("outcome capture failed", "prediction", p.ID,
				"target", p.TargetID, "error", err)
			continue
		}
		if err := e.predictions.SetOutcome(ctx, p.ID, quote.MovePct, quote.CapturedAt); err != nil {
			if errors.Is(err, domain.ErrOutcomeAlreadySet) {
				continue
			}
			slog.Error("set outcome failed", "prediction", p.ID, "error", err)
			continue
		}
		captured++
	}
	return captured, nil
}

// EvaluatePrediction puntúa una predicción por id. Devuelve
// domain.ErrNotFound si no existe y domain.ErrNoOutcome si su outcome aún
// no fue capturado.
func (e *Engine) EvaluatePrediction(ctx context.Context, id string) (domain.EvaluationResult, error) {
	p, err := e.predictions.Get(ctx, id)
	if err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("evaluation.EvaluatePrediction: %w", err)
	}
	if !p.HasOutcome() {
		return domain.EvaluationResult{}, fmt.Errorf("evaluation.EvaluatePrediction %s: %w",
			id, domain.ErrNoOutcome)
	}

	result := score(p)
	if err := e.predictions.MarkEvaluated(ctx, id, result.OverallScore); err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("evaluation.EvaluatePrediction: mark: %w", err)
	}
	return result, nil
}

// EvaluateResolved barre las predicciones resueltas sin evaluar. Un fallo
// por-predicción se loguea y no corta el barrido.
func (e *Engine) EvaluateResolved(ctx context.Context, limit int) ([]domain.EvaluationResult, error) {
	pending, err := e.predictions.FindResolvedUnevaluated(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("evaluation.EvaluateResolved: %w", err)
	}

	results := make([]domain.EvaluationResult, 0, len(pending))
	for _, p := range pending {
		result := score(p)
		if err := e.predictions.MarkEvaluated(ctx, p.ID, result.OverallScore); err != nil {
			slog.Error("mark evaluated failed", "prediction", p.ID, "error", err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// score aplica el scoring puro de domain a una predicción resuelta.
func score(p domain.Prediction) domain.EvaluationResult {
	outcome := *p.OutcomeValue
	actual := domain.ActualDirection(outcome)
	directionCorrect := actual == p.Direction

	predictedMagnitude := domain.MagnitudeValue(p.Magnitude)
	magnitudeAcc := domain.MagnitudeAccuracy(predictedMagnitude, outcome)

	var capturedAt time.Time
	if p.OutcomeCapturedAt != nil {
		capturedAt = *p.OutcomeCapturedAt
	}
	timingAcc := domain.TimingAccuracy(p.PredictedAt, p.ExpiresAt, capturedAt)

	overall := domain.OverallScore(directionCorrect, magnitudeAcc, timingAcc, p.Confidence)

	return domain.EvaluationResult{
		PredictionID:       p.ID,
		DirectionCorrect:   directionCorrect,
		MagnitudeAccuracy:  magnitudeAcc,
		TimingAccuracy:     timingAcc,
		OverallScore:       overall,
		ActualDirection:    actual,
		ActualMagnitude:    abs(outcome),
		PredictedMagnitude: predictedMagnitude,
		Confidence:         p.Confidence,
		Details: fmt.Sprintf("predicted=%s/%s actual=%s move=%.2f%%",
			p.Direction, p.Magnitude, actual, outcome),
	}
}

// GenerateLearnings agrega un batch de evaluaciones en ajustes sugeridos.
// Con menos de 5 muestras no sugiere nada.
func GenerateLearnings(evals []domain.EvaluationResult) []domain.SuggestedLearning {
	if len(evals) < minLearningSamples {
		return nil
	}

	var learnings []domain.SuggestedLearning

	correct := 0
	underestimates := 0
	overconfidentWrong := 0
	for _, ev := range evals {
		if ev.DirectionCorrect {
			correct++
		} else if ev.Confidence > overconfidenceLevel {
			overconfidentWrong++
		}
		// Subestimación de más del 50%: real supera 1.5× lo predicho.
		if ev.PredictedMagnitude > 0 &&
			ev.ActualMagnitude > ev.PredictedMagnitude*underestimateRatio {
			underestimates++
		}
	}

	accuracy := float64(correct) / float64(len(evals))
	if accuracy < lowDirectionAccuracy {
		learnings = append(learnings, domain.SuggestedLearning{
			Kind: "raise_confidence_threshold",
			Description: fmt.Sprintf(
				"direction accuracy %.0f%% over %d evaluations; raise the minimum confidence for acting",
				accuracy*100, len(evals)),
			Evidence: len(evals) - correct,
		})
	}

	if float64(underestimates) >= float64(len(evals))*underestimateFraction {
		learnings = append(learnings, domain.SuggestedLearning{
			Kind: "adjust_magnitude_weight",
			Description: fmt.Sprintf(
				"magnitude underestimated by >50%% in %d of %d evaluations",
				underestimates, len(evals)),
			Evidence: underestimates,
		})
	}

	if overconfidentWrong > overconfidenceCount {
		learnings = append(learnings, domain.SuggestedLearning{
			Kind: "avoid_overconfidence",
			Description: fmt.Sprintf(
				"%d wrong calls at confidence above %.2f",
				overconfidentWrong, overconfidenceLevel),
			Evidence: overconfidentWrong,
		})
	}

	return learnings
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
