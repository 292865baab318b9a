package storage

// sqlite.go — persistencia del pipeline sobre SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - seen_items: una fila por (source, hash), semántica first-seen. Es la
//     base de las capas 1 y 2 de dedup.
//   - fingerprints + fingerprint_phrases: ventana de near-duplicados por
//     target; las frases van en tabla hija para poder contar solapamiento
//     en SQL con un IN + GROUP BY.
//   - signals / predictors / predictions: entidades del pipeline; el claim
//     de un signal es un UPDATE condicional (el único mecanismo de
//     exclusión entre workers).
//   - portfolios + positions + journal: estado del subsistema de motivación.
//   - Prune automático al arrancar: seen_items y fingerprints fuera de la
//     ventana de retención.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
-- Primera aparición de cada (source, hash). Dedup capas 1 y 2.
CREATE TABLE IF NOT EXISTS seen_items (
    source_id     TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    target_id     TEXT NOT NULL,
    url           TEXT,
    first_seen_at DATETIME NOT NULL,
    PRIMARY KEY (source_id, content_hash)
);

-- Firma de near-duplicados por target. Dedup capas 3 y 4.
CREATE TABLE IF NOT EXISTS fingerprints (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    signal_id        TEXT NOT NULL,
    target_id        TEXT NOT NULL,
    source_id        TEXT NOT NULL,
    content_hash     TEXT NOT NULL,
    title_normalized TEXT NOT NULL,
    created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS fingerprint_phrases (
    fingerprint_id INTEGER NOT NULL,
    phrase         TEXT NOT NULL,
    position       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
    id          TEXT PRIMARY KEY,
    target_id   TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    content     TEXT,
    direction   TEXT NOT NULL,
    disposition TEXT NOT NULL DEFAULT 'pending',
    detected_at DATETIME NOT NULL,
    url         TEXT,
    metadata    TEXT,
    is_test     INTEGER NOT NULL DEFAULT 0,
    claimed_at  DATETIME
);

CREATE TABLE IF NOT EXISTS predictors (
    id           TEXT PRIMARY KEY,
    signal_id    TEXT NOT NULL,
    target_id    TEXT NOT NULL,
    direction    TEXT NOT NULL,
    strength     REAL NOT NULL DEFAULT 0,
    confidence   REAL NOT NULL DEFAULT 0,
    reasoning    TEXT,
    analyst_slug TEXT,
    status       TEXT NOT NULL DEFAULT 'active',
    created_at   DATETIME NOT NULL,
    expires_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
    id                  TEXT PRIMARY KEY,
    target_id           TEXT NOT NULL,
    direction           TEXT NOT NULL,
    magnitude           TEXT NOT NULL,
    confidence          REAL NOT NULL DEFAULT 0,
    timeframe_hours     REAL NOT NULL DEFAULT 0,
    predicted_at        DATETIME NOT NULL,
    expires_at          DATETIME NOT NULL,
    outcome_value       REAL,
    outcome_captured_at DATETIME,
    evaluated_at        DATETIME,
    overall_score       REAL
);

-- Registro de explicabilidad del fast path.
CREATE TABLE IF NOT EXISTS snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    prediction_id TEXT NOT NULL,
    detail        TEXT,
    created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolios (
    id                TEXT PRIMARY KEY,
    analyst_id        TEXT NOT NULL,
    fork_type         TEXT NOT NULL,
    initial_balance   REAL NOT NULL,
    current_balance   REAL NOT NULL,
    win_count         INTEGER NOT NULL DEFAULT 0,
    loss_count        INTEGER NOT NULL DEFAULT 0,
    status            TEXT NOT NULL DEFAULT 'active',
    status_changed_at DATETIME NOT NULL,
    UNIQUE (analyst_id, fork_type)
);

CREATE TABLE IF NOT EXISTS positions (
    id           TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    target_id    TEXT,
    realized_pnl REAL NOT NULL DEFAULT 0,
    confidence   REAL NOT NULL DEFAULT 0,
    closed_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS status_journal (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    analyst_id  TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    reason      TEXT,
    changed_at  DATETIME NOT NULL
);

-- Notas aditivas a las instrucciones por tier. Nunca se sobreescriben.
CREATE TABLE IF NOT EXISTS instruction_notes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    analyst_id TEXT NOT NULL,
    tier       TEXT NOT NULL,
    note       TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS self_modifications (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    analyst_id   TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    detail       TEXT,
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_seen_target_hash  ON seen_items(target_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_fp_target_created ON fingerprints(target_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fpp_phrase        ON fingerprint_phrases(phrase);
CREATE INDEX IF NOT EXISTS idx_fpp_fp            ON fingerprint_phrases(fingerprint_id);
CREATE INDEX IF NOT EXISTS idx_signals_disp      ON signals(disposition);
CREATE INDEX IF NOT EXISTS idx_signals_url       ON signals(url);
CREATE INDEX IF NOT EXISTS idx_predictors_target ON predictors(target_id, status);
CREATE INDEX IF NOT EXISTS idx_positions_pf      ON positions(portfolio_id, closed_at DESC);
`

const (
	// Retención de los datos de dedup; fuera de la ventana ya no pueden
	// producir matches en las capas 3/4.
	retentionSeen         = 30 * 24 * time.Hour
	retentionFingerprints = 14 * 24 * time.Hour
)

// SQLiteStorage agrupa los stores del pipeline sobre una única conexión.
// Cada port de persistencia tiene su sub-store con accessor propio.
type SQLiteStorage struct {
	db *sql.DB

	seen         *SeenStore
	fingerprints *FingerprintStore
	signals      *SignalStore
	predictors   *PredictorStore
	predictions  *PredictionStore
	snapshots    *SnapshotStore
	portfolios   *PortfolioStore
}

// Seen devuelve el store de seen items (ports.SeenItemStore).
func (s *SQLiteStorage) Seen() *SeenStore { return s.seen }

// Fingerprints devuelve el store de fingerprints (ports.FingerprintStore).
func (s *SQLiteStorage) Fingerprints() *FingerprintStore { return s.fingerprints }

// Signals devuelve el store de signals (ports.SignalStore).
func (s *SQLiteStorage) Signals() *SignalStore { return s.signals }

// Predictors devuelve el store de predictors (ports.PredictorStore).
func (s *SQLiteStorage) Predictors() *PredictorStore { return s.predictors }

// Predictions devuelve el store de predicciones (ports.PredictionStore).
func (s *SQLiteStorage) Predictions() *PredictionStore { return s.predictions }

// Snapshots devuelve el store de snapshots (ports.SnapshotStore).
func (s *SQLiteStorage) Snapshots() *SnapshotStore { return s.snapshots }

// Portfolios devuelve el store de portfolios (ports.PortfolioStore).
func (s *SQLiteStorage) Portfolios() *PortfolioStore { return s.portfolios }

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia los datos de dedup antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{
		db:           db,
		seen:         &SeenStore{db: db},
		fingerprints: &FingerprintStore{db: db},
		signals:      &SignalStore{db: db},
		predictors:   &PredictorStore{db: db},
		predictions:  &PredictionStore{db: db},
		snapshots:    &SnapshotStore{db: db},
		portfolios:   &PortfolioStore{db: db},
	}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina datos de dedup fuera de la ventana de retención.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM fingerprint_phrases WHERE fingerprint_id IN
		(SELECT id FROM fingerprints WHERE created_at < ?)`,
		fmtTime(now.Add(-retentionFingerprints)))
	s.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE created_at < ?`,
		fmtTime(now.Add(-retentionFingerprints)))
	s.db.ExecContext(ctx, `DELETE FROM seen_items WHERE first_seen_at < ?`,
		fmtTime(now.Add(-retentionSeen)))
}

// fmtTime serializa un instante como RFC3339 UTC para SQLite.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserializa lo que fmtTime escribió. Cadena vacía → zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullTime serializa un *time.Time opcional.
func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return fmtTime(*t)
}
