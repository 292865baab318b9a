package storage

// fingerprints.go — implementación de ports.FingerprintStore.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// FingerprintStore implementa ports.FingerprintStore.
type FingerprintStore struct {
	db *sql.DB
}

// Create persiste el fingerprint y sus key phrases en una transacción.
func (s *FingerprintStore) Create(ctx context.Context, fp domain.ContentFingerprint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Create fingerprint: begin tx: %w", err)
	}
	defer tx.Rollback()

	createdAt := fp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO fingerprints (signal_id, target_id, source_id, content_hash, title_normalized, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fp.SignalID, fp.TargetID, fp.SourceID, fp.ContentHash, fp.TitleNormalized, fmtTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("storage.Create fingerprint: insert: %w", err)
	}
	fpID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage.Create fingerprint: last insert id: %w", err)
	}

	for i, phrase := range fp.KeyPhrases {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fingerprint_phrases (fingerprint_id, phrase, position) VALUES (?, ?, ?)`,
			fpID, phrase, i,
		); err != nil {
			return fmt.Errorf("storage.Create fingerprint: insert phrase: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Create fingerprint: commit: %w", err)
	}
	return nil
}

// FindRecentForTarget devuelve hasta limit fingerprints del target dentro
// de la ventana, los más recientes primero, con sus frases cargadas.
func (s *FingerprintStore) FindRecentForTarget(ctx context.Context, targetID string, hoursBack, limit int) ([]domain.ContentFingerprint, error) {
	cutoff := fmtTime(time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour))
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, signal_id, target_id, source_id, content_hash, title_normalized, created_at
		FROM fingerprints
		WHERE target_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`,
		targetID, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.FindRecentForTarget: query: %w", err)
	}
	defer rows.Close()

	var fps []domain.ContentFingerprint
	var ids []int64
	for rows.Next() {
		var fp domain.ContentFingerprint
		var id int64
		var createdAt string
		if err := rows.Scan(&id, &fp.SignalID, &fp.TargetID, &fp.SourceID,
			&fp.ContentHash, &fp.TitleNormalized, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.FindRecentForTarget: scan: %w", err)
		}
		fp.CreatedAt = parseTime(createdAt)
		fps = append(fps, fp)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.FindRecentForTarget: rows: %w", err)
	}

	if err := s.loadPhrases(ctx, ids, fps); err != nil {
		return nil, err
	}
	return fps, nil
}

// FindByPhraseOverlap cuenta en SQL cuántas frases del set comparte cada
// fingerprint del target dentro de la ventana. Los candidatos vienen
// pre-filtrados por compartir al menos una frase.
func (s *FingerprintStore) FindByPhraseOverlap(ctx context.Context, targetID string, phrases []string, hoursBack, limit int) ([]domain.PhraseOverlap, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	cutoff := fmtTime(time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour))

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(phrases)), ",")
	args := make([]any, 0, len(phrases)+3)
	args = append(args, targetID, cutoff)
	for _, p := range phrases {
		args = append(args, p)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT f.signal_id, COUNT(*) AS overlap
		FROM fingerprints f
		JOIN fingerprint_phrases p ON p.fingerprint_id = f.id
		WHERE f.target_id = ? AND f.created_at >= ? AND p.phrase IN (%s)
		GROUP BY f.id, f.signal_id
		ORDER BY overlap DESC
		LIMIT ?`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.FindByPhraseOverlap: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PhraseOverlap
	for rows.Next() {
		var o domain.PhraseOverlap
		if err := rows.Scan(&o.SignalID, &o.OverlapCount); err != nil {
			return nil, fmt.Errorf("storage.FindByPhraseOverlap: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// loadPhrases rellena KeyPhrases de los fingerprints dados, en orden.
func (s *FingerprintStore) loadPhrases(ctx context.Context, ids []int64, fps []domain.ContentFingerprint) error {
	for i, id := range ids {
		rows, err := s.db.QueryContext(ctx, `
			SELECT phrase FROM fingerprint_phrases
			WHERE fingerprint_id = ? ORDER BY position`, id)
		if err != nil {
			return fmt.Errorf("storage.loadPhrases: query: %w", err)
		}
		for rows.Next() {
			var phrase string
			if err := rows.Scan(&phrase); err != nil {
				rows.Close()
				return fmt.Errorf("storage.loadPhrases: scan: %w", err)
			}
			fps[i].KeyPhrases = append(fps[i].KeyPhrases, phrase)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("storage.loadPhrases: rows: %w", err)
		}
		rows.Close()
	}
	return nil
}
