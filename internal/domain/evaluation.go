package domain

import (
	"math"
	"time"
)

// evaluation.go — matemática pura del scoring de predicciones resueltas.
//
// Todas las funciones son deterministas y sin estado; el motor de evaluación
// (application/evaluation) las compone con los stores.

// FlatThresholdPct es el movimiento mínimo (en %) para considerar que
// hubo dirección; por debajo, el outcome real cuenta como flat.
const FlatThresholdPct = 0.5

// Pesos del score compuesto: dirección domina, luego magnitud, luego timing.
const (
	weightDirection = 0.5
	weightMagnitude = 0.3
	weightTiming    = 0.2
)

// EvaluationResult es el resultado derivado de puntuar una predicción
// resuelta contra su outcome real. No se persiste como entidad mutable.
type EvaluationResult struct {
	PredictionID       string
	DirectionCorrect   bool
	MagnitudeAccuracy  float64
	TimingAccuracy     float64
	OverallScore       float64 // [0,1] tras redondeo y clamp
	ActualDirection    PredictionDirection
	ActualMagnitude    float64 // |outcome| en %
	PredictedMagnitude float64 // movimiento esperado en % según la magnitud categórica
	Confidence         float64
	Details            string
}

// SuggestedLearning es un ajuste de comportamiento sugerido tras agregar
// un batch de evaluaciones.
type SuggestedLearning struct {
	Kind        string // raise_confidence_threshold | adjust_magnitude_weight | avoid_overconfidence
	Description string
	Evidence    int
}

// ActualDirection clasifica el movimiento real: flat si |outcome| < 0.5%,
// si no, el signo del valor.
func ActualDirection(outcomeValue float64) PredictionDirection {
	if math.Abs(outcomeValue) < FlatThresholdPct {
		return PredictionFlat
	}
	if outcomeValue > 0 {
		return PredictionUp
	}
	return PredictionDown
}

// MagnitudeValue mapea la magnitud categórica predicha a un movimiento
// numérico esperado en %.
func MagnitudeValue(m Magnitude) float64 {
	switch m {
	case MagnitudeSmall:
		return 2.0
	case MagnitudeMedium:
		return 5.0
	case MagnitudeLarge:
		return 10.0
	default:
		return 3.0
	}
}

// MagnitudeAccuracy puntúa cuánto se acercó la magnitud predicha a la real.
//
// Fórmula: max(0, 1 - |log2(|actual/predicted|)| / 2), redondeada a 2 decimales.
// Un error de 2x (predicho 5, real 10) puntúa 0.5; un error de 4x puntúa 0.
// Casos borde: ambos cero → 1.0; predicho cero y real no → 0.
func MagnitudeAccuracy(predicted, actual float64) float64 {
	actual = math.Abs(actual)
	predicted = math.Abs(predicted)

	if predicted == 0 && actual == 0 {
		return 1.0
	}
	if predicted == 0 || actual == 0 {
		return 0
	}

	score := 1.0 - math.Abs(math.Log2(actual/predicted))/2.0
	return Round2(Clamp01(score))
}

// TimingAccuracy puntúa cuándo se capturó el outcome respecto al horizonte.
//
//   - Dentro del horizonte: 0.8 + (1 - elapsed/horizon)×0.2 → rango [0.8, 1.0],
//     cuanto antes mejor.
//   - Después de expirar: decae linealmente desde 0.8 hacia 0 según la tardanza
//     relativa al horizonte, con suelo en 0.
//   - Captura desconocida (o horizonte inválido): 0.5 neutral.
func TimingAccuracy(predictedAt, expiresAt, capturedAt time.Time) float64 {
	if capturedAt.IsZero() {
		return 0.5
	}
	horizon := expiresAt.Sub(predictedAt)
	if horizon <= 0 {
		return 0.5
	}

	if !capturedAt.After(expiresAt) {
		elapsed := capturedAt.Sub(predictedAt)
		frac := Clamp01(float64(elapsed) / float64(horizon))
		return Round2(0.8 + (1-frac)*0.2)
	}

	lateness := float64(capturedAt.Sub(expiresAt)) / float64(horizon)
	return Round2(math.Max(0, 0.8*(1-lateness)))
}

// CalibrationFactor ajusta el score según la confianza declarada.
// Acertar con confianza alta premia poco; fallar con confianza alta
// penaliza el doble.
func CalibrationFactor(directionCorrect bool, confidence float64) float64 {
	if directionCorrect {
		return 1 + (confidence-0.5)*0.1
	}
	return 1 - (confidence-0.5)*0.2
}

// OverallScore compone dirección (0.5), magnitud (0.3) y timing (0.2),
// escala por el factor de calibración, redondea a 2 decimales y hace clamp
// a [0,1]. El clamp es posterior al redondeo: un acierto perfecto con
// confianza 1.0 daría 1.05 antes del clamp.
func OverallScore(directionCorrect bool, magnitudeAcc, timingAcc, confidence float64) float64 {
	dir := 0.0
	if directionCorrect {
		dir = 1.0
	}
	base := dir*weightDirection + magnitudeAcc*weightMagnitude + timingAcc*weightTiming
	return Clamp01(Round2(base * CalibrationFactor(directionCorrect, confidence)))
}

// Round2 redondea a 2 decimales.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Clamp01 limita el valor al rango [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
