package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// --- ActualDirection ---

func TestActualDirection_Boundaries(t *testing.T) {
	assert.Equal(t, PredictionUp, ActualDirection(0.5))
	assert.Equal(t, PredictionFlat, ActualDirection(0.49))
	assert.Equal(t, PredictionFlat, ActualDirection(0.0))
	assert.Equal(t, PredictionFlat, ActualDirection(-0.49))
	assert.Equal(t, PredictionDown, ActualDirection(-0.5))
}

// --- MagnitudeAccuracy ---

func TestMagnitudeAccuracy_Exact(t *testing.T) {
	assert.Equal(t, 1.0, MagnitudeAccuracy(5, 5))
	// El signo del movimiento real no importa, solo su magnitud.
	assert.Equal(t, 1.0, MagnitudeAccuracy(5, -5))
}

func TestMagnitudeAccuracy_BothZero(t *testing.T) {
	assert.Equal(t, 1.0, MagnitudeAccuracy(0, 0))
}

func TestMagnitudeAccuracy_OneZero(t *testing.T) {
	assert.Equal(t, 0.0, MagnitudeAccuracy(0, 5))
	assert.Equal(t, 0.0, MagnitudeAccuracy(5, 0))
}

func TestMagnitudeAccuracy_TwoTimesError(t *testing.T) {
	// Un error de 2x en cualquier dirección puntúa exactamente 0.5.
	assert.Equal(t, 0.5, MagnitudeAccuracy(5, 10))
	assert.Equal(t, 0.5, MagnitudeAccuracy(10, 5))
}

func TestMagnitudeAccuracy_FourTimesError(t *testing.T) {
	assert.Equal(t, 0.0, MagnitudeAccuracy(5, 20))
	assert.Equal(t, 0.0, MagnitudeAccuracy(20, 5))
}

func TestMagnitudeAccuracy_Intermediate(t *testing.T) {
	// predicho 2, real 5: 1 - log2(2.5)/2 = 0.339 → 0.34
	assert.InDelta(t, 0.34, MagnitudeAccuracy(2, 5), 0.001)
}

// --- TimingAccuracy ---

func TestTimingAccuracy_WithinHorizon(t *testing.T) {
	predictedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := predictedAt.Add(24 * time.Hour)

	assert.Equal(t, 1.0, TimingAccuracy(predictedAt, expiresAt, predictedAt))
	assert.Equal(t, 0.9, TimingAccuracy(predictedAt, expiresAt, predictedAt.Add(12*time.Hour)))
	assert.Equal(t, 0.8, TimingAccuracy(predictedAt, expiresAt, expiresAt))
}

func TestTimingAccuracy_LinearDecayAfterExpiry(t *testing.T) {
	predictedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := predictedAt.Add(24 * time.Hour)

	// Tardanza de medio horizonte: 0.8 × 0.5.
	assert.Equal(t, 0.4, TimingAccuracy(predictedAt, expiresAt, expiresAt.Add(12*time.Hour)))
	// Un horizonte completo de tardanza toca el suelo.
	assert.Equal(t, 0.0, TimingAccuracy(predictedAt, expiresAt, expiresAt.Add(24*time.Hour)))
	// Más allá no baja de 0.
	assert.Equal(t, 0.0, TimingAccuracy(predictedAt, expiresAt, expiresAt.Add(96*time.Hour)))
}

func TestTimingAccuracy_UnknownCapture(t *testing.T) {
	predictedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := predictedAt.Add(24 * time.Hour)

	assert.Equal(t, 0.5, TimingAccuracy(predictedAt, expiresAt, time.Time{}))
	// Horizonte inválido también es neutral.
	assert.Equal(t, 0.5, TimingAccuracy(expiresAt, predictedAt, expiresAt))
}

// --- CalibrationFactor / OverallScore ---

func TestCalibrationFactor(t *testing.T) {
	assert.InDelta(t, 1.04, CalibrationFactor(true, 0.9), 0.001)
	assert.InDelta(t, 1.0, CalibrationFactor(true, 0.5), 0.001)
	assert.InDelta(t, 0.92, CalibrationFactor(false, 0.9), 0.001)
	assert.InDelta(t, 1.0, CalibrationFactor(false, 0.5), 0.001)
}

func TestOverallScore_ConfidentWrongScoresBelowUnconfidentWrong(t *testing.T) {
	confident := OverallScore(false, 0.8, 0.9, 0.9)
	unconfident := OverallScore(false, 0.8, 0.9, 0.6)
	assert.Less(t, confident, unconfident)
	assert.InDelta(t, 0.39, confident, 0.001)
	assert.InDelta(t, 0.41, unconfident, 0.001)
}

func TestOverallScore_ClampAfterRounding(t *testing.T) {
	// Acierto perfecto con confianza 1.0: 1.0 × 1.05 = 1.05 antes del clamp.
	assert.Equal(t, 1.0, OverallScore(true, 1.0, 1.0, 1.0))
}

func TestOverallScore_Weights(t *testing.T) {
	// dirección 0.5 + magnitud 0.3×0.5 + timing 0.2×0.8 = 0.81, calibración neutral
	assert.InDelta(t, 0.81, OverallScore(true, 0.5, 0.8, 0.5), 0.001)
}
