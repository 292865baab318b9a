package ports

import (
	"context"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Reporter presenta el resultado de un ciclo del pipeline al operador.
type Reporter interface {
	// ReportRun muestra los contadores del batch run.
	ReportRun(ctx context.Context, result domain.BatchRunResult) error

	// ReportPortfolios muestra el estado de los portfolios de analistas.
	ReportPortfolios(ctx context.Context, portfolios []domain.AnalystPortfolio) error
}
