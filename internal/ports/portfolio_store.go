package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// PortfolioStore persiste portfolios simulados, posiciones cerradas y el
// journal de cambios de estado e instrucciones del analista.
type PortfolioStore interface {
	// GetAnalystPortfolio devuelve el portfolio del analista o domain.ErrNotFound.
	GetAnalystPortfolio(ctx context.Context, analystID string, fork domain.ForkType) (domain.AnalystPortfolio, error)

	// GetAllAnalystPortfolios devuelve todos los portfolios del fork dado.
	GetAllAnalystPortfolios(ctx context.Context, fork domain.ForkType) ([]domain.AnalystPortfolio, error)

	// GetClosedPositionsForAnalyst devuelve posiciones cerradas, las más
	// recientes primero.
	GetClosedPositionsForAnalyst(ctx context.Context, portfolioID string) ([]domain.AnalystPosition, error)

	// RealizedPnLSince suma el P&L realizado de posiciones cerradas desde t.
	RealizedPnLSince(ctx context.Context, portfolioID string, t time.Time) (float64, error)

	// UpdateStatus persiste la transición de estado y la registra en el journal.
	UpdateStatus(ctx context.Context, portfolioID string, event domain.StatusChangeEvent) error

	// AppendInstructionNote añade (nunca sobreescribe) una nota al texto de
	// instrucciones del tier del analista.
	AppendInstructionNote(ctx context.Context, analystID string, tier domain.PortfolioStatus, note string) error

	// LogAgentSelfModification registra una adaptación aplicada por el
	// propio agente sobre sus reglas de comportamiento.
	LogAgentSelfModification(ctx context.Context, analystID string, patternType domain.PatternType, detail string) error
}
