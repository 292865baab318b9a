package motivation

// state_machine.go — escalera de estados de los portfolios de analistas.
// El estado deriva solo del balance; las transiciones se persisten junto a
// una entrada de journal, y las bajadas a probation/suspended añaden una
// nota de instrucciones que nunca sobreescribe las anteriores.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// StateMachine evalúa y persiste los cambios de estado de los portfolios.
type StateMachine struct {
	portfolios ports.PortfolioStore
	fork       domain.ForkType
}

// NewStateMachine crea un StateMachine para los portfolios del fork dado.
func NewStateMachine(portfolios ports.PortfolioStore, fork domain.ForkType) *StateMachine {
	return &StateMachine{portfolios: portfolios, fork: fork}
}

// EvaluateAndUpdateStatus deriva el estado del balance actual y lo persiste
// si cambió. Devuelve nil sin error cuando el estado no cambia.
func (m *StateMachine) EvaluateAndUpdateStatus(ctx context.Context, analystID string) (*domain.StatusChangeEvent, error) {
	p, err := m.portfolios.GetAnalystPortfolio(ctx, analystID, m.fork)
	if err != nil {
		return nil, fmt.Errorf("motivation.EvaluateAndUpdateStatus: %w", err)
	}

	next := domain.StatusForBalance(p.CurrentBalance, p.InitialBalance)
	if next == p.Status {
		return nil, nil
	}

	// La salida de suspended no pasa por aquí: solo por recovery.
	if p.Status == domain.StatusSuspended && domain.StatusRank(next) > domain.StatusRank(p.Status) {
		return nil, nil
	}

	event := domain.StatusChangeEvent{
		AnalystID: analystID,
		From:      p.Status,
		To:        next,
		Trigger: fmt.Sprintf("balance %.2f (%.1f%% of initial %.2f)",
			p.CurrentBalance, balanceFraction(p)*100, p.InitialBalance),
		ChangedAt: time.Now().UTC(),
	}
	if err := m.portfolios.UpdateStatus(ctx, p.ID, event); err != nil {
		return nil, fmt.Errorf("motivation.EvaluateAndUpdateStatus: %w", err)
	}

	slog.Info("portfolio status changed",
		"analyst", analystID, "from", event.From, "to", event.To,
		"balance", p.CurrentBalance)

	if event.IsDowngrade() && (next == domain.StatusProbation || next == domain.StatusSuspended) {
		note := downgradeNote(next, p)
		if err := m.portfolios.AppendInstructionNote(ctx, analystID, next, note); err != nil {
			// La nota es feedback aditivo, no parte de la transición.
			slog.Error("append instruction note failed", "analyst", analystID, "error", err)
		}
	}
	return &event, nil
}

// CheckRecoveryEligibility saca de suspended a probation cuando el P&L
// realizado desde la suspensión alcanza +20% del balance inicial. Nunca
// directamente a active.
func (m *StateMachine) CheckRecoveryEligibility(ctx context.Context, analystID string) (*domain.StatusChangeEvent, error) {
	p, err := m.portfolios.GetAnalystPortfolio(ctx, analystID, m.fork)
	if err != nil {
		return nil, fmt.Errorf("motivation.CheckRecoveryEligibility: %w", err)
	}
	if p.Status != domain.StatusSuspended {
		return nil, nil
	}

	pnl, err := m.portfolios.RealizedPnLSince(ctx, p.ID, p.StatusChangedAt)
	if err != nil {
		return nil, fmt.Errorf("motivation.CheckRecoveryEligibility: %w", err)
	}
	required := p.InitialBalance * domain.RecoveryPnLFraction
	if pnl < required {
		return nil, nil
	}

	event := domain.StatusChangeEvent{
		AnalystID: analystID,
		From:      domain.StatusSuspended,
		To:        domain.StatusProbation,
		Trigger: fmt.Sprintf("recovery: realized pnl %.2f since suspension >= %.2f",
			pnl, required),
		ChangedAt: time.Now().UTC(),
	}
	if err := m.portfolios.UpdateStatus(ctx, p.ID, event); err != nil {
		return nil, fmt.Errorf("motivation.CheckRecoveryEligibility: %w", err)
	}
	slog.Info("portfolio recovered to probation", "analyst", analystID, "pnl", pnl)
	return &event, nil
}

// EvaluateAll barre todos los portfolios del fork. Un error por-analista se
// loguea y el barrido continúa.
func (m *StateMachine) EvaluateAll(ctx context.Context) ([]domain.StatusChangeEvent, error) {
	portfolios, err := m.portfolios.GetAllAnalystPortfolios(ctx, m.fork)
	if err != nil {
		return nil, fmt.Errorf("motivation.EvaluateAll: %w", err)
	}

	var events []domain.StatusChangeEvent
	for _, p := range portfolios {
		var event *domain.StatusChangeEvent
		var err error
		if p.Status == domain.StatusSuspended {
			event, err = m.CheckRecoveryEligibility(ctx, p.AnalystID)
		} else {
			event, err = m.EvaluateAndUpdateStatus(ctx, p.AnalystID)
		}
		if err != nil {
			slog.Error("status evaluation failed", "analyst", p.AnalystID, "error", err)
			continue
		}
		if event != nil {
			events = append(events, *event)
		}
	}
	return events, nil
}

// AppendAdaptationNote registra una adaptación del propio agente: nota
// aditiva de instrucciones más entrada en el log de auto-modificaciones.
func (m *StateMachine) AppendAdaptationNote(ctx context.Context, analystID string, pattern domain.PatternType, note string) error {
	p, err := m.portfolios.GetAnalystPortfolio(ctx, analystID, m.fork)
	if err != nil {
		return fmt.Errorf("motivation.AppendAdaptationNote: %w", err)
	}
	if err := m.portfolios.AppendInstructionNote(ctx, analystID, p.Status, note); err != nil {
		return fmt.Errorf("motivation.AppendAdaptationNote: %w", err)
	}
	if err := m.portfolios.LogAgentSelfModification(ctx, analystID, pattern, note); err != nil {
		return fmt.Errorf("motivation.AppendAdaptationNote: log: %w", err)
	}
	return nil
}

func downgradeNote(to domain.PortfolioStatus, p domain.AnalystPortfolio) string {
	if to == domain.StatusSuspended {
		return fmt.Sprintf(
			"suspended at balance %.2f (%.1f%% of initial): excluded from the ensemble until recovery",
			p.CurrentBalance, balanceFraction(p)*100)
	}
	return fmt.Sprintf(
		"on probation at balance %.2f (%.1f%% of initial): weight halved, tighten conviction",
		p.CurrentBalance, balanceFraction(p)*100)
}

func balanceFraction(p domain.AnalystPortfolio) float64 {
	if p.InitialBalance <= 0 {
		return 0
	}
	return p.CurrentBalance / p.InitialBalance
}
