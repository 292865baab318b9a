package domain

import "time"

// portfolio.go — portfolio simulado por analista y la escalera de estados
// que modula su peso en el ensemble.

// ForkType distingue el origen del portfolio simulado.
type ForkType string

const (
	ForkAI    ForkType = "ai"
	ForkAgent ForkType = "agent"
	ForkUser  ForkType = "user"
)

// PortfolioStatus es el estado de un analista según su balance simulado.
type PortfolioStatus string

const (
	StatusActive    PortfolioStatus = "active"
	StatusWarning   PortfolioStatus = "warning"
	StatusProbation PortfolioStatus = "probation"
	StatusSuspended PortfolioStatus = "suspended"
)

// Umbrales como fracción del balance inicial.
const (
	activeFloor    = 0.80
	warningFloor   = 0.60
	probationFloor = 0.40

	// RecoveryPnLFraction: P&L realizado desde la suspensión necesario
	// para volver a probation (+20% del balance inicial).
	RecoveryPnLFraction = 0.20
)

// AnalystPortfolio es el balance simulado de un analista y su estado.
// Solo lo mutan las transiciones del state machine y el settlement externo.
type AnalystPortfolio struct {
	ID              string
	AnalystID       string
	ForkType        ForkType
	InitialBalance  float64
	CurrentBalance  float64
	WinCount        int
	LossCount       int
	Status          PortfolioStatus
	StatusChangedAt time.Time
}

// WinRate devuelve la fracción de trades ganadores, o 0 sin historial.
func (p AnalystPortfolio) WinRate() float64 {
	total := p.WinCount + p.LossCount
	if total == 0 {
		return 0
	}
	return float64(p.WinCount) / float64(total)
}

// Drawdown devuelve el declive porcentual del balance respecto al inicial.
func (p AnalystPortfolio) Drawdown() float64 {
	if p.InitialBalance <= 0 {
		return 0
	}
	return (p.InitialBalance - p.CurrentBalance) / p.InitialBalance
}

// AnalystPosition es un trade cerrado — input read-only para detección de patrones.
type AnalystPosition struct {
	ID          string
	PortfolioID string
	TargetID    string
	RealizedPnL float64
	Confidence  float64
	ClosedAt    time.Time
}

// StatusForBalance deriva el estado desde la fracción balance/inicial.
// Los límites son inclusivos por abajo: exactamente 80% → active,
// 60% → warning, 40% → probation.
func StatusForBalance(current, initial float64) PortfolioStatus {
	if initial <= 0 {
		return StatusSuspended
	}
	frac := current / initial
	switch {
	case frac >= activeFloor:
		return StatusActive
	case frac >= warningFloor:
		return StatusWarning
	case frac >= probationFloor:
		return StatusProbation
	default:
		return StatusSuspended
	}
}

// StatusRank ordena la escalera: suspended < probation < warning < active.
func StatusRank(s PortfolioStatus) int {
	switch s {
	case StatusSuspended:
		return 0
	case StatusProbation:
		return 1
	case StatusWarning:
		return 2
	case StatusActive:
		return 3
	}
	return -1
}

// EffectiveWeight escala el peso base del analista según su estado:
// probation lo reduce a la mitad, suspended lo anula.
func EffectiveWeight(base float64, s PortfolioStatus) float64 {
	switch s {
	case StatusProbation:
		return base * 0.5
	case StatusSuspended:
		return 0
	default:
		return base
	}
}

// ShouldIncludeInEnsemble excluye solo a los suspendidos de la agregación.
// Siguen produciendo valoraciones paper-only.
func ShouldIncludeInEnsemble(s PortfolioStatus) bool {
	return s != StatusSuspended
}

// StatusChangeEvent registra una transición de estado persistida.
type StatusChangeEvent struct {
	AnalystID string
	From      PortfolioStatus
	To        PortfolioStatus
	Trigger   string // razón legible: balance y fracción que cruzó el umbral
	ChangedAt time.Time
}

// IsDowngrade devuelve true si la transición baja en la escalera.
func (e StatusChangeEvent) IsDowngrade() bool {
	return StatusRank(e.To) < StatusRank(e.From)
}
