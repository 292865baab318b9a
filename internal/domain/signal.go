package domain

import (
	"strings"
	"time"
)

// Direction es la dirección de mercado que sugiere un signal.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Disposition es el estado de procesamiento de un signal.
// Un signal nunca se borra: termina en predictor_created, rejected o expired.
type Disposition string

const (
	DispositionPending          Disposition = "pending"
	DispositionClaimed          Disposition = "claimed"
	DispositionPredictorCreated Disposition = "predictor_created"
	DispositionRejected         Disposition = "rejected"
	DispositionExpired          Disposition = "expired"
)

// CanTransition devuelve true si el cambio de disposition es legal.
// rejected y expired son estados terminales: nunca vuelven a pending.
func CanTransition(from, to Disposition) bool {
	switch from {
	case DispositionPending:
		return to == DispositionClaimed || to == DispositionExpired
	case DispositionClaimed:
		return to == DispositionPredictorCreated || to == DispositionRejected
	default:
		return false
	}
}

// TestTargetPrefix es el namespace reservado para targets de test.
// Un signal con IsTest=true solo puede apuntar a targets con este prefijo.
const TestTargetPrefix = "test-"

// IsTestTarget devuelve true si el target pertenece al namespace de test.
func IsTestTarget(targetID string) bool {
	return strings.HasPrefix(targetID, TestTargetPrefix)
}

// CrawledItem es una pieza de contenido recién crawleada, antes de dedup.
// Los tags JSON siguen el formato de los crawlers que alimentan el pipeline.
type CrawledItem struct {
	TargetID   string            `json:"target_id"`
	SourceID   string            `json:"source_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	URL        string            `json:"url"`
	Direction  Direction         `json:"direction"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IsTest     bool              `json:"is_test,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
}

// Signal es una observación direccional extraída de un item crawleado.
// Creado por el pipeline de ingesta; solo muta vía transiciones de disposition.
type Signal struct {
	ID          string
	TargetID    string
	SourceID    string
	Content     string
	Direction   Direction
	Disposition Disposition
	DetectedAt  time.Time
	URL         string
	Metadata    map[string]string
	IsTest      bool
}

// SignalGroup agrupa signals pendientes que comparten URL de origen,
// para evitar llamadas de detección redundantes sobre el mismo evento.
type SignalGroup struct {
	URL     string
	Signals []Signal
}
