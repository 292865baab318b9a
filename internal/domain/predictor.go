package domain

import "time"

// PredictorStatus es el ciclo de vida de un predictor.
type PredictorStatus string

const (
	PredictorActive   PredictorStatus = "active"
	PredictorConsumed PredictorStatus = "consumed"
	PredictorExpired  PredictorStatus = "expired"
)

// Urgency clasifica cómo de urgente es procesar un signal según detección.
type Urgency string

const (
	UrgencyRoutine Urgency = "routine"
	UrgencyNotable Urgency = "notable"
	UrgencyUrgent  Urgency = "urgent"
)

// Predictor es una valoración direccional aceptada, derivada de un signal
// por un analista. Se consume como máximo una vez al agregarse en una Prediction.
type Predictor struct {
	ID          string
	SignalID    string
	TargetID    string
	Direction   Direction
	Strength    float64
	Confidence  float64 // [0,1]
	Reasoning   string
	AnalystSlug string
	Status      PredictorStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// DetectionResult es la respuesta del servicio de detección para un signal claimed.
type DetectionResult struct {
	ShouldCreatePredictor bool     `json:"should_create_predictor"`
	Urgency               Urgency  `json:"urgency"`
	Confidence            float64  `json:"confidence"`
	Reasoning             string   `json:"reasoning"`
	AnalystSlug           string   `json:"analyst_slug"`
	KeyFactors            []string `json:"key_factors"`
	Risks                 []string `json:"risks"`
}
