package storage

// predictions.go — stores de predictors, predicciones y snapshots.
// El consumo de un predictor y la captura de outcome son UPDATEs
// condicionales: at-most-once por construcción.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// PredictorStore implementa ports.PredictorStore.
type PredictorStore struct {
	db *sql.DB
}

// Create persiste un predictor nuevo.
func (s *PredictorStore) Create(ctx context.Context, p domain.Predictor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO predictors (id, signal_id, target_id, direction, strength,
		                        confidence, reasoning, analyst_slug, status,
		                        created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SignalID, p.TargetID, string(p.Direction), p.Strength,
		p.Confidence, p.Reasoning, p.AnalystSlug, string(p.Status),
		fmtTime(p.CreatedAt), fmtTime(p.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("storage.Create predictor %s: %w", p.ID, err)
	}
	return nil
}

// FindActiveByTarget devuelve predictors activos y no expirados del target,
// los más recientes primero.
func (s *PredictorStore) FindActiveByTarget(ctx context.Context, targetID string) ([]domain.Predictor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, signal_id, target_id, direction, strength, confidence,
		       reasoning, analyst_slug, status, created_at, expires_at
		FROM predictors
		WHERE target_id = ? AND status = 'active' AND expires_at > ?
		ORDER BY created_at DESC`,
		targetID, fmtTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.FindActiveByTarget: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Predictor
	for rows.Next() {
		var p domain.Predictor
		var direction, status, createdAt, expiresAt string
		if err := rows.Scan(&p.ID, &p.SignalID, &p.TargetID, &direction,
			&p.Strength, &p.Confidence, &p.Reasoning, &p.AnalystSlug,
			&status, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("storage.FindActiveByTarget: scan: %w", err)
		}
		p.Direction = domain.Direction(direction)
		p.Status = domain.PredictorStatus(status)
		p.CreatedAt = parseTime(createdAt)
		p.ExpiresAt = parseTime(expiresAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Consume marca el predictor como consumido. CAS active→consumed: un
// segundo intento devuelve domain.ErrNotFound.
func (s *PredictorStore) Consume(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictors SET status = 'consumed'
		WHERE id = ? AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("storage.Consume %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.Consume %s: rows affected: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("storage.Consume %s: not active: %w", id, domain.ErrNotFound)
	}
	return nil
}

// PredictionStore implementa ports.PredictionStore.
type PredictionStore struct {
	db *sql.DB
}

// Create persiste una predicción nueva sin outcome.
func (s *PredictionStore) Create(ctx context.Context, p domain.Prediction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (id, target_id, direction, magnitude, confidence,
		                         timeframe_hours, predicted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TargetID, string(p.Direction), string(p.Magnitude),
		p.Confidence, p.TimeframeHours, fmtTime(p.PredictedAt), fmtTime(p.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("storage.Create prediction %s: %w", p.ID, err)
	}
	return nil
}

// Get devuelve la predicción o domain.ErrNotFound.
func (s *PredictionStore) Get(ctx context.Context, id string) (domain.Prediction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_id, direction, magnitude, confidence, timeframe_hours,
		       predicted_at, expires_at, outcome_value, outcome_captured_at
		FROM predictions WHERE id = ?`, id)

	p, err := scanPrediction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Prediction{}, fmt.Errorf("storage.Get prediction %s: %w", id, domain.ErrNotFound)
		}
		return domain.Prediction{}, fmt.Errorf("storage.Get prediction %s: %w", id, err)
	}
	return p, nil
}

// SetOutcome fija el outcome exactamente una vez. El WHERE exige que siga
// NULL: un segundo intento devuelve domain.ErrOutcomeAlreadySet.
func (s *PredictionStore) SetOutcome(ctx context.Context, id string, value float64, capturedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions SET outcome_value = ?, outcome_captured_at = ?
		WHERE id = ? AND outcome_value IS NULL`,
		value, fmtTime(capturedAt), id,
	)
	if err != nil {
		return fmt.Errorf("storage.SetOutcome %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.SetOutcome %s: rows affected: %w", id, err)
	}
	if rows == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("storage.SetOutcome %s: %w", id, domain.ErrOutcomeAlreadySet)
	}
	return nil
}

// FindResolvedUnevaluated devuelve predicciones con outcome capturado y
// aún sin evaluar, las más antiguas primero.
func (s *PredictionStore) FindResolvedUnevaluated(ctx context.Context, limit int) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, direction, magnitude, confidence, timeframe_hours,
		       predicted_at, expires_at, outcome_value, outcome_captured_at
		FROM predictions
		WHERE outcome_value IS NOT NULL AND evaluated_at IS NULL
		ORDER BY outcome_captured_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.FindResolvedUnevaluated: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("storage.FindResolvedUnevaluated: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindExpiredWithoutOutcome devuelve predicciones expiradas sin outcome,
// las más antiguas primero.
func (s *PredictionStore) FindExpiredWithoutOutcome(ctx context.Context, limit int) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, direction, magnitude, confidence, timeframe_hours,
		       predicted_at, expires_at, outcome_value, outcome_captured_at
		FROM predictions
		WHERE outcome_value IS NULL AND expires_at <= ?
		ORDER BY expires_at
		LIMIT ?`, fmtTime(time.Now().UTC()), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.FindExpiredWithoutOutcome: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("storage.FindExpiredWithoutOutcome: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkEvaluated registra el score de la evaluación.
func (s *PredictionStore) MarkEvaluated(ctx context.Context, id string, overallScore float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE predictions SET evaluated_at = ?, overall_score = ? WHERE id = ?`,
		fmtTime(time.Now().UTC()), overallScore, id,
	)
	if err != nil {
		return fmt.Errorf("storage.MarkEvaluated %s: %w", id, err)
	}
	return nil
}

// SnapshotStore implementa ports.SnapshotStore.
type SnapshotStore struct {
	db *sql.DB
}

// SaveSnapshot guarda el registro de explicabilidad de una predicción.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, predictionID, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (prediction_id, detail, created_at) VALUES (?, ?, ?)`,
		predictionID, detail, fmtTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot %s: %w", predictionID, err)
	}
	return nil
}

// scanPrediction deserializa una fila de predictions.
func scanPrediction(scan func(...any) error) (domain.Prediction, error) {
	var p domain.Prediction
	var direction, magnitude, predictedAt, expiresAt string
	var outcome sql.NullFloat64
	var capturedAt sql.NullString

	if err := scan(&p.ID, &p.TargetID, &direction, &magnitude, &p.Confidence,
		&p.TimeframeHours, &predictedAt, &expiresAt, &outcome, &capturedAt); err != nil {
		return domain.Prediction{}, err
	}
	p.Direction = domain.PredictionDirection(direction)
	p.Magnitude = domain.Magnitude(magnitude)
	p.PredictedAt = parseTime(predictedAt)
	p.ExpiresAt = parseTime(expiresAt)
	if outcome.Valid {
		v := outcome.Float64
		p.OutcomeValue = &v
	}
	if capturedAt.Valid && capturedAt.String != "" {
		t := parseTime(capturedAt.String)
		p.OutcomeCapturedAt = &t
	}
	return p, nil
}
