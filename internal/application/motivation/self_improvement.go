package motivation

// self_improvement.go — detección de patrones negativos en el historial de
// posiciones cerradas y auto-adaptación vía notas de instrucciones. Cada
// patrón es independiente: un analista puede disparar varios a la vez.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Umbrales de detección de patrones.
const (
	minPositions = 5

	consecutiveLossLimit = 3
	recentWindow         = 10
	recentLossFraction   = 0.6
	lowWinRateLimit      = 0.4
	drawdownLimit        = 0.2
)

// Analyzer detecta patrones en el historial de un analista y aplica las
// adaptaciones sugeridas.
type Analyzer struct {
	portfolios   ports.PortfolioStore
	stateMachine *StateMachine
	fork         domain.ForkType
}

// NewAnalyzer crea un Analyzer que aplica adaptaciones vía el state machine.
func NewAnalyzer(portfolios ports.PortfolioStore, sm *StateMachine, fork domain.ForkType) *Analyzer {
	return &Analyzer{portfolios: portfolios, stateMachine: sm, fork: fork}
}

// Analyze examina el historial del analista. Con menos de 5 posiciones
// cerradas no detecta nada.
func (a *Analyzer) Analyze(ctx context.Context, analystID string) ([]domain.PatternDetectionResult, error) {
	p, err := a.portfolios.GetAnalystPortfolio(ctx, analystID, a.fork)
	if err != nil {
		return nil, fmt.Errorf("motivation.Analyze: %w", err)
	}
	positions, err := a.portfolios.GetClosedPositionsForAnalyst(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("motivation.Analyze: %w", err)
	}
	if len(positions) < minPositions {
		return nil, nil
	}

	var patterns []domain.PatternDetectionResult

	if n := consecutiveLosses(positions); n >= consecutiveLossLimit {
		patterns = append(patterns, domain.PatternDetectionResult{
			PatternType:   domain.PatternConsecutiveLosses,
			AnalystID:     analystID,
			Description:   fmt.Sprintf("%d consecutive losses ending at the most recent close", n),
			EvidenceCount: n,
			SuggestedAdaptation: "pause new positions on this target class until one paper win; " +
				"halve position size on re-entry",
		})
	}

	if losses, window := recentLosses(positions); window >= minPositions &&
		float64(losses) > float64(window)*recentLossFraction {
		patterns = append(patterns, domain.PatternDetectionResult{
			PatternType:   domain.PatternCalibrationIssue,
			AnalystID:     analystID,
			Description:   fmt.Sprintf("%d losses in the last %d closes", losses, window),
			EvidenceCount: losses,
			SuggestedAdaptation: "recalibrate stated confidence against recent hit rate " +
				"before sizing the next position",
		})
	}

	if wr := p.WinRate(); wr < lowWinRateLimit && p.WinCount+p.LossCount >= minPositions {
		patterns = append(patterns, domain.PatternDetectionResult{
			PatternType:         domain.PatternLowWinRate,
			AnalystID:           analystID,
			Description:         fmt.Sprintf("win rate %.0f%% across %d trades", wr*100, p.WinCount+p.LossCount),
			EvidenceCount:       p.WinCount + p.LossCount,
			SuggestedAdaptation: "raise the entry bar: act only on signals above the current confidence threshold",
		})
	}

	if dd := p.Drawdown(); dd >= drawdownLimit {
		patterns = append(patterns, domain.PatternDetectionResult{
			PatternType:         domain.PatternDrawdown,
			AnalystID:           analystID,
			Description:         fmt.Sprintf("drawdown %.0f%% from initial balance", dd*100),
			EvidenceCount:       p.LossCount,
			SuggestedAdaptation: "cap per-position exposure until balance recovers above 90% of initial",
		})
	}

	return patterns, nil
}

// AnalyzeAndAdapt detecta patrones y aplica cada adaptación como nota de
// auto-modificación. Un apply fallido se loguea y no bloquea el resto.
func (a *Analyzer) AnalyzeAndAdapt(ctx context.Context, analystID string) ([]domain.PatternDetectionResult, error) {
	patterns, err := a.Analyze(ctx, analystID)
	if err != nil {
		return nil, err
	}
	for _, pattern := range patterns {
		note := fmt.Sprintf("[%s] %s — %s",
			pattern.PatternType, pattern.Description, pattern.SuggestedAdaptation)
		if err := a.stateMachine.AppendAdaptationNote(ctx, analystID, pattern.PatternType, note); err != nil {
			slog.Error("apply adaptation failed",
				"analyst", analystID, "pattern", pattern.PatternType, "error", err)
			continue
		}
	}
	return patterns, nil
}

// AnalyzeAndAdaptAll barre todos los portfolios del fork y aplica las
// adaptaciones detectadas. Un fallo por-analista se loguea y el barrido sigue.
func (a *Analyzer) AnalyzeAndAdaptAll(ctx context.Context) ([]domain.PatternDetectionResult, error) {
	portfolios, err := a.portfolios.GetAllAnalystPortfolios(ctx, a.fork)
	if err != nil {
		return nil, fmt.Errorf("motivation.AnalyzeAndAdaptAll: %w", err)
	}

	var all []domain.PatternDetectionResult
	for _, p := range portfolios {
		patterns, err := a.AnalyzeAndAdapt(ctx, p.AnalystID)
		if err != nil {
			slog.Error("pattern analysis failed", "analyst", p.AnalystID, "error", err)
			continue
		}
		all = append(all, patterns...)
	}
	return all, nil
}

// consecutiveLosses cuenta pérdidas seguidas desde la más reciente hacia atrás.
// positions viene ordenado de más reciente a más antigua.
func consecutiveLosses(positions []domain.AnalystPosition) int {
	n := 0
	for _, pos := range positions {
		if pos.RealizedPnL >= 0 {
			break
		}
		n++
	}
	return n
}

// recentLosses cuenta pérdidas en la ventana de los últimos 10 cierres.
func recentLosses(positions []domain.AnalystPosition) (losses, window int) {
	window = len(positions)
	if window > recentWindow {
		window = recentWindow
	}
	for _, pos := range positions[:window] {
		if pos.RealizedPnL < 0 {
			losses++
		}
	}
	return losses, window
}
