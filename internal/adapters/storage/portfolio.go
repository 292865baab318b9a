package storage

// portfolio.go — implementación de ports.PortfolioStore.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// PortfolioStore implementa ports.PortfolioStore.
type PortfolioStore struct {
	db *sql.DB
}

// CreatePortfolio da de alta un portfolio simulado. Pensado para seeds y tests.
func (s *PortfolioStore) CreatePortfolio(ctx context.Context, p domain.AnalystPortfolio) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, analyst_id, fork_type, initial_balance,
		                        current_balance, win_count, loss_count, status, status_changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AnalystID, string(p.ForkType), p.InitialBalance, p.CurrentBalance,
		p.WinCount, p.LossCount, string(p.Status), fmtTime(p.StatusChangedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.CreatePortfolio %s: %w", p.ID, err)
	}
	return nil
}

// SetBalance actualiza el balance simulado (settlement externo).
func (s *PortfolioStore) SetBalance(ctx context.Context, portfolioID string, balance float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE portfolios SET current_balance = ? WHERE id = ?`, balance, portfolioID)
	if err != nil {
		return fmt.Errorf("storage.SetBalance %s: %w", portfolioID, err)
	}
	return nil
}

// AddClosedPosition registra un trade cerrado y actualiza los contadores.
func (s *PortfolioStore) AddClosedPosition(ctx context.Context, pos domain.AnalystPosition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.AddClosedPosition: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO positions (id, portfolio_id, target_id, realized_pnl, confidence, closed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pos.ID, pos.PortfolioID, pos.TargetID, pos.RealizedPnL, pos.Confidence,
		fmtTime(pos.ClosedAt),
	); err != nil {
		return fmt.Errorf("storage.AddClosedPosition: insert: %w", err)
	}

	col := "loss_count"
	if pos.RealizedPnL > 0 {
		col = "win_count"
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE portfolios SET %s = %s + 1 WHERE id = ?`, col, col),
		pos.PortfolioID,
	); err != nil {
		return fmt.Errorf("storage.AddClosedPosition: update counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.AddClosedPosition: commit: %w", err)
	}
	return nil
}

// GetAnalystPortfolio devuelve el portfolio del analista o domain.ErrNotFound.
func (s *PortfolioStore) GetAnalystPortfolio(ctx context.Context, analystID string, fork domain.ForkType) (domain.AnalystPortfolio, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, analyst_id, fork_type, initial_balance, current_balance,
		       win_count, loss_count, status, status_changed_at
		FROM portfolios WHERE analyst_id = ? AND fork_type = ?`,
		analystID, string(fork))

	p, err := scanPortfolio(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AnalystPortfolio{}, fmt.Errorf("storage.GetAnalystPortfolio %s: %w",
				analystID, domain.ErrNotFound)
		}
		return domain.AnalystPortfolio{}, fmt.Errorf("storage.GetAnalystPortfolio %s: %w", analystID, err)
	}
	return p, nil
}

// GetAllAnalystPortfolios devuelve todos los portfolios del fork dado.
func (s *PortfolioStore) GetAllAnalystPortfolios(ctx context.Context, fork domain.ForkType) ([]domain.AnalystPortfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analyst_id, fork_type, initial_balance, current_balance,
		       win_count, loss_count, status, status_changed_at
		FROM portfolios WHERE fork_type = ?
		ORDER BY analyst_id`, string(fork))
	if err != nil {
		return nil, fmt.Errorf("storage.GetAllAnalystPortfolios: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AnalystPortfolio
	for rows.Next() {
		p, err := scanPortfolio(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("storage.GetAllAnalystPortfolios: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetClosedPositionsForAnalyst devuelve posiciones cerradas, las más
// recientes primero.
func (s *PortfolioStore) GetClosedPositionsForAnalyst(ctx context.Context, portfolioID string) ([]domain.AnalystPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_id, target_id, realized_pnl, confidence, closed_at
		FROM positions WHERE portfolio_id = ?
		ORDER BY closed_at DESC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetClosedPositionsForAnalyst: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AnalystPosition
	for rows.Next() {
		var pos domain.AnalystPosition
		var closedAt string
		if err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.TargetID,
			&pos.RealizedPnL, &pos.Confidence, &closedAt); err != nil {
			return nil, fmt.Errorf("storage.GetClosedPositionsForAnalyst: scan: %w", err)
		}
		pos.ClosedAt = parseTime(closedAt)
		out = append(out, pos)
	}
	return out, rows.Err()
}

// RealizedPnLSince suma el P&L realizado de posiciones cerradas desde t.
func (s *PortfolioStore) RealizedPnLSince(ctx context.Context, portfolioID string, t time.Time) (float64, error) {
	var pnl sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(realized_pnl) FROM positions
		WHERE portfolio_id = ? AND closed_at >= ?`,
		portfolioID, fmtTime(t),
	).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("storage.RealizedPnLSince %s: %w", portfolioID, err)
	}
	return pnl.Float64, nil
}

// UpdateStatus persiste la transición de estado y la registra en el
// journal dentro de la misma transacción.
func (s *PortfolioStore) UpdateStatus(ctx context.Context, portfolioID string, event domain.StatusChangeEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.UpdateStatus: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE portfolios SET status = ?, status_changed_at = ? WHERE id = ?`,
		string(event.To), fmtTime(event.ChangedAt), portfolioID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateStatus %s: %w", portfolioID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("storage.UpdateStatus %s: %w", portfolioID, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO status_journal (analyst_id, from_status, to_status, reason, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.AnalystID, string(event.From), string(event.To), event.Trigger,
		fmtTime(event.ChangedAt),
	); err != nil {
		return fmt.Errorf("storage.UpdateStatus: journal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.UpdateStatus: commit: %w", err)
	}
	return nil
}

// AppendInstructionNote añade una nota al texto de instrucciones del tier.
// Siempre INSERT: las notas previas nunca se tocan.
func (s *PortfolioStore) AppendInstructionNote(ctx context.Context, analystID string, tier domain.PortfolioStatus, note string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instruction_notes (analyst_id, tier, note, created_at)
		VALUES (?, ?, ?, ?)`,
		analystID, string(tier), note, fmtTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendInstructionNote %s: %w", analystID, err)
	}
	return nil
}

// GetInstructionNotes devuelve las notas del analista en orden de inserción.
func (s *PortfolioStore) GetInstructionNotes(ctx context.Context, analystID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT note FROM instruction_notes WHERE analyst_id = ? ORDER BY id`, analystID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetInstructionNotes: query: %w", err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("storage.GetInstructionNotes: scan: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// LogAgentSelfModification registra una adaptación aplicada por el agente.
func (s *PortfolioStore) LogAgentSelfModification(ctx context.Context, analystID string, patternType domain.PatternType, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO self_modifications (analyst_id, pattern_type, detail, created_at)
		VALUES (?, ?, ?, ?)`,
		analystID, string(patternType), detail, fmtTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("storage.LogAgentSelfModification %s: %w", analystID, err)
	}
	return nil
}

// scanPortfolio deserializa una fila de portfolios.
func scanPortfolio(scan func(...any) error) (domain.AnalystPortfolio, error) {
	var p domain.AnalystPortfolio
	var fork, status, changedAt string
	if err := scan(&p.ID, &p.AnalystID, &fork, &p.InitialBalance, &p.CurrentBalance,
		&p.WinCount, &p.LossCount, &status, &changedAt); err != nil {
		return domain.AnalystPortfolio{}, err
	}
	p.ForkType = domain.ForkType(fork)
	p.Status = domain.PortfolioStatus(status)
	p.StatusChangedAt = parseTime(changedAt)
	return p, nil
}
