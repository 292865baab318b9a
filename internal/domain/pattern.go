package domain

// PatternType identifica un patrón de comportamiento detectado en el
// historial de posiciones cerradas de un analista.
type PatternType string

const (
	PatternConsecutiveLosses PatternType = "consecutive_losses"
	PatternCalibrationIssue  PatternType = "confidence_calibration"
	PatternLowWinRate        PatternType = "low_win_rate"
	PatternDrawdown          PatternType = "significant_drawdown"
)

// PatternDetectionResult es el output efímero del analizador de
// auto-mejora: un patrón detectado y la adaptación de regla sugerida.
type PatternDetectionResult struct {
	PatternType         PatternType
	AnalystID           string
	Description         string
	EvidenceCount       int
	SuggestedAdaptation string
}
