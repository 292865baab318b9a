package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// PredictorStore persiste predictors y su consumo at-most-once.
type PredictorStore interface {
	// Create persiste un predictor nuevo en estado active.
	Create(ctx context.Context, p domain.Predictor) error

	// FindActiveByTarget devuelve los predictors activos y no expirados del target.
	FindActiveByTarget(ctx context.Context, targetID string) ([]domain.Predictor, error)

	// Consume marca el predictor como consumido (CAS active→consumed).
	// Devuelve domain.ErrNotFound si no estaba active.
	Consume(ctx context.Context, id string) error
}

// PredictionStore persiste predicciones y la captura única de su outcome.
type PredictionStore interface {
	// Create persiste una predicción nueva sin outcome.
	Create(ctx context.Context, p domain.Prediction) error

	// Get devuelve la predicción o domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.Prediction, error)

	// SetOutcome fija el outcome exactamente una vez; un segundo intento
	// devuelve domain.ErrOutcomeAlreadySet.
	SetOutcome(ctx context.Context, id string, value float64, capturedAt time.Time) error

	// FindResolvedUnevaluated devuelve predicciones con outcome aún sin evaluar.
	FindResolvedUnevaluated(ctx context.Context, limit int) ([]domain.Prediction, error)

	// FindExpiredWithoutOutcome devuelve predicciones ya expiradas cuyo
	// outcome aún no fue capturado.
	FindExpiredWithoutOutcome(ctx context.Context, limit int) ([]domain.Prediction, error)

	// MarkEvaluated registra el score de la evaluación de la predicción.
	MarkEvaluated(ctx context.Context, id string, overallScore float64) error
}

// SnapshotStore guarda el registro de explicabilidad del fast path.
// Su fallo nunca aborta el pipeline.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, predictionID string, detail string) error
}
