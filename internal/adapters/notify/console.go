package notify

// console.go — salida hacia el operador. Compact: una línea por run.
// Table: tabla completa de contadores y de portfolios.

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Console implementa ports.Reporter.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// ReportRun imprime los contadores del run en el modo configurado.
func (c *Console) ReportRun(_ context.Context, r domain.BatchRunResult) error {
	now := time.Now().Format("15:04:05")

	if r.Processed == 0 {
		fmt.Fprintf(c.out, "[%s] no pending signals\n", now)
		return nil
	}

	if !c.table {
		fmt.Fprintf(c.out, "[%s] %d signals → pred:%d fast:%d rej:%d err:%d\n",
			now, r.Processed, r.PredictorsCreated, r.FastPathTriggered,
			r.Rejected, r.Errors)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] batch run — %d signals processed\n", now, r.Processed)
	t := tablewriter.NewWriter(c.out)
	t.Header("Processed", "Predictors", "Fast path", "Rejected", "Errors")
	t.Append(
		fmt.Sprintf("%d", r.Processed),
		fmt.Sprintf("%d", r.PredictorsCreated),
		fmt.Sprintf("%d", r.FastPathTriggered),
		fmt.Sprintf("%d", r.Rejected),
		fmt.Sprintf("%d", r.Errors),
	)
	t.Render()
	return nil
}

// ReportPortfolios imprime el estado de cada portfolio de analista.
func (c *Console) ReportPortfolios(_ context.Context, portfolios []domain.AnalystPortfolio) error {
	if len(portfolios) == 0 {
		fmt.Fprintln(c.out, "no analyst portfolios")
		return nil
	}

	if !c.table {
		for _, p := range portfolios {
			fmt.Fprintf(c.out, "%s %s: $%.2f (%.0f%%) wr:%.0f%% %s\n",
				statusIcon(p.Status), p.AnalystID, p.CurrentBalance,
				balanceFraction(p)*100, p.WinRate()*100, p.Status)
		}
		return nil
	}

	t := tablewriter.NewWriter(c.out)
	t.Header("Analyst", "Fork", "Balance", "Of initial", "W/L", "Win rate", "Status")
	for _, p := range portfolios {
		t.Append(
			p.AnalystID,
			string(p.ForkType),
			fmt.Sprintf("$%.2f", p.CurrentBalance),
			fmt.Sprintf("%.1f%%", balanceFraction(p)*100),
			fmt.Sprintf("%d/%d", p.WinCount, p.LossCount),
			fmt.Sprintf("%.0f%%", p.WinRate()*100),
			fmt.Sprintf("%s %s", statusIcon(p.Status), p.Status),
		)
	}
	t.Render()
	return nil
}

func balanceFraction(p domain.AnalystPortfolio) float64 {
	if p.InitialBalance <= 0 {
		return 0
	}
	return p.CurrentBalance / p.InitialBalance
}

func statusIcon(s domain.PortfolioStatus) string {
	switch s {
	case domain.StatusActive:
		return "[A]"
	case domain.StatusWarning:
		return "[W]"
	case domain.StatusProbation:
		return "[P]"
	case domain.StatusSuspended:
		return "[S]"
	}
	return "[?]"
}
