package storage

// seen.go — implementación de ports.SeenItemStore.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// SeenStore implementa ports.SeenItemStore.
type SeenStore struct {
	db *sql.DB
}

// MarkSeen registra el par (source, hash) con semántica first-seen: el
// INSERT condicional no toca la fila si ya existía, y RowsAffected dice
// quién llegó primero.
func (s *SeenStore) MarkSeen(ctx context.Context, sourceID, contentHash, url, targetID string) (ports.MarkSeenResult, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_items (source_id, content_hash, target_id, url, first_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, content_hash) DO NOTHING`,
		sourceID, contentHash, targetID, url, fmtTime(now),
	)
	if err != nil {
		return ports.MarkSeenResult{}, fmt.Errorf("storage.MarkSeen: insert: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return ports.MarkSeenResult{}, fmt.Errorf("storage.MarkSeen: rows affected: %w", err)
	}
	if rows == 1 {
		return ports.MarkSeenResult{
			IsNew: true,
			Seen: domain.SeenItem{
				SourceID:    sourceID,
				ContentHash: contentHash,
				URL:         url,
				FirstSeenAt: now,
			},
		}, nil
	}

	// Ya existía: devolver la fila original (first-seen).
	var item domain.SeenItem
	var firstSeen string
	err = s.db.QueryRowContext(ctx, `
		SELECT source_id, content_hash, url, first_seen_at
		FROM seen_items WHERE source_id = ? AND content_hash = ?`,
		sourceID, contentHash,
	).Scan(&item.SourceID, &item.ContentHash, &item.URL, &firstSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// La fila desapareció entre el INSERT y el SELECT (prune).
			return ports.MarkSeenResult{IsNew: false}, nil
		}
		return ports.MarkSeenResult{}, fmt.Errorf("storage.MarkSeen: select existing: %w", err)
	}
	item.FirstSeenAt = parseTime(firstSeen)
	return ports.MarkSeenResult{IsNew: false, Seen: item}, nil
}

// HasBeenSeenForTarget busca el hash para el target en cualquier fuente
// distinta de excludeSourceID.
func (s *SeenStore) HasBeenSeenForTarget(ctx context.Context, contentHash, targetID, excludeSourceID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seen_items
		WHERE content_hash = ? AND target_id = ? AND source_id <> ?`,
		contentHash, targetID, excludeSourceID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.HasBeenSeenForTarget: %w", err)
	}
	return n > 0, nil
}
