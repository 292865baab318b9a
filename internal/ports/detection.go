package ports

import (
	"context"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// DetectionService es el colaborador externo (LLM) que decide si un signal
// claimed merece predictor. Las llamadas pueden suspenderse arbitrariamente:
// el caller aplica timeout y trata el timeout como fallo normal, no crash.
type DetectionService interface {
	ProcessSignal(ctx context.Context, s domain.Signal) (domain.DetectionResult, error)
}
