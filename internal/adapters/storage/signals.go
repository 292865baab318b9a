package storage

// signals.go — implementación de ports.SignalStore. El claim es un UPDATE
// condicional pending→claimed: el único mecanismo de exclusión entre workers.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// SignalStore implementa ports.SignalStore.
type SignalStore struct {
	db *sql.DB
}

// Create persiste un signal nuevo.
func (s *SignalStore) Create(ctx context.Context, sig domain.Signal) error {
	meta, err := encodeMetadata(sig.Metadata)
	if err != nil {
		return fmt.Errorf("storage.Create signal: metadata: %w", err)
	}
	isTest := 0
	if sig.IsTest {
		isTest = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (id, target_id, source_id, content, direction, disposition,
		                     detected_at, url, metadata, is_test)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.TargetID, sig.SourceID, sig.Content, string(sig.Direction),
		string(sig.Disposition), fmtTime(sig.DetectedAt), sig.URL, meta, isTest,
	)
	if err != nil {
		return fmt.Errorf("storage.Create signal %s: %w", sig.ID, err)
	}
	return nil
}

// Get devuelve el signal o domain.ErrNotFound.
func (s *SignalStore) Get(ctx context.Context, id string) (domain.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_id, source_id, content, direction, disposition,
		       detected_at, url, metadata, is_test
		FROM signals WHERE id = ?`, id)

	sig, err := scanSignal(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Signal{}, fmt.Errorf("storage.Get signal %s: %w", id, domain.ErrNotFound)
		}
		return domain.Signal{}, fmt.Errorf("storage.Get signal %s: %w", id, err)
	}
	return sig, nil
}

// Claim es el CAS atómico pending→claimed. Si RowsAffected es 0 otro
// worker ganó la carrera y devolvemos nil sin error.
func (s *SignalStore) Claim(ctx context.Context, id string) (*domain.Signal, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE signals SET disposition = 'claimed', claimed_at = ?
		WHERE id = ? AND disposition = 'pending'`,
		fmtTime(time.Now().UTC()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Claim %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("storage.Claim %s: rows affected: %w", id, err)
	}
	if rows == 0 {
		return nil, nil
	}

	sig, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

// UpdateDisposition aplica una transición legal; el guard está duplicado
// en el WHERE para que una carrera tampoco pueda saltárselo.
func (s *SignalStore) UpdateDisposition(ctx context.Context, id string, from, to domain.Disposition) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("storage.UpdateDisposition %s: %s→%s: %w",
			id, from, to, domain.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE signals SET disposition = ? WHERE id = ? AND disposition = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateDisposition %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.UpdateDisposition %s: rows affected: %w", id, err)
	}
	if rows == 0 {
		// O no existe, o la disposition actual no era from.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("storage.UpdateDisposition %s: not in %s: %w",
			id, from, domain.ErrValidation)
	}
	return nil
}

// FindPendingGroupedByURL agrupa los signals pendientes por URL de origen,
// en orden de detección dentro de cada grupo.
func (s *SignalStore) FindPendingGroupedByURL(ctx context.Context) ([]domain.SignalGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, source_id, content, direction, disposition,
		       detected_at, url, metadata, is_test
		FROM signals
		WHERE disposition = 'pending'
		ORDER BY url, detected_at`)
	if err != nil {
		return nil, fmt.Errorf("storage.FindPendingGroupedByURL: query: %w", err)
	}
	defer rows.Close()

	var groups []domain.SignalGroup
	for rows.Next() {
		sig, err := scanSignal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("storage.FindPendingGroupedByURL: scan: %w", err)
		}
		if n := len(groups); n > 0 && groups[n-1].URL == sig.URL {
			groups[n-1].Signals = append(groups[n-1].Signals, sig)
			continue
		}
		groups = append(groups, domain.SignalGroup{URL: sig.URL, Signals: []domain.Signal{sig}})
	}
	return groups, rows.Err()
}

// ExpireStale pasa a expired los pending detectados antes del cutoff.
func (s *SignalStore) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE signals SET disposition = 'expired'
		WHERE disposition = 'pending' AND detected_at < ?`,
		fmtTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.ExpireStale: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage.ExpireStale: rows affected: %w", err)
	}
	return int(rows), nil
}

// scanSignal deserializa una fila de signals desde cualquier Scan.
func scanSignal(scan func(...any) error) (domain.Signal, error) {
	var sig domain.Signal
	var direction, disposition, detectedAt string
	var meta sql.NullString
	var isTest int

	if err := scan(&sig.ID, &sig.TargetID, &sig.SourceID, &sig.Content,
		&direction, &disposition, &detectedAt, &sig.URL, &meta, &isTest); err != nil {
		return domain.Signal{}, err
	}
	sig.Direction = domain.Direction(direction)
	sig.Disposition = domain.Disposition(disposition)
	sig.DetectedAt = parseTime(detectedAt)
	sig.IsTest = isTest == 1
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &sig.Metadata); err != nil {
			return domain.Signal{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return sig, nil
}

// encodeMetadata serializa el metadata como JSON, o NULL si está vacío.
func encodeMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
