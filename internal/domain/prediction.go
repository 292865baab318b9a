package domain

import "time"

// PredictionDirection es la dirección agregada de una predicción.
type PredictionDirection string

const (
	PredictionUp   PredictionDirection = "up"
	PredictionDown PredictionDirection = "down"
	PredictionFlat PredictionDirection = "flat"
)

// Magnitude es el tamaño categórico del movimiento predicho.
type Magnitude string

const (
	MagnitudeSmall  Magnitude = "small"
	MagnitudeMedium Magnitude = "medium"
	MagnitudeLarge  Magnitude = "large"
)

// Prediction es el forecast agregado y acotado en el tiempo para un target.
// Los campos de outcome se fijan exactamente una vez, externamente,
// antes de que la evaluación sea posible.
type Prediction struct {
	ID                string
	TargetID          string
	Direction         PredictionDirection
	Magnitude         Magnitude
	Confidence        float64
	TimeframeHours    float64
	PredictedAt       time.Time
	ExpiresAt         time.Time
	OutcomeValue      *float64 // movimiento real en %, nil hasta captura
	OutcomeCapturedAt *time.Time
}

// HasOutcome devuelve true si el outcome ya fue capturado.
func (p Prediction) HasOutcome() bool {
	return p.OutcomeValue != nil
}

// ToPredictionDirection mapea la dirección de un signal/predictor a la de predicción.
func ToPredictionDirection(d Direction) PredictionDirection {
	switch d {
	case DirectionBullish:
		return PredictionUp
	case DirectionBearish:
		return PredictionDown
	default:
		return PredictionFlat
	}
}
