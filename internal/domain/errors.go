package domain

import "errors"

// Errores sentinela del pipeline. Se comprueban con errors.Is en los bordes:
// los fallos por-item dentro de un batch se cuentan y el batch continúa,
// los fallos de la API de entidad única se propagan al caller.
var (
	// ErrNotFound indica que la entidad referenciada no existe.
	ErrNotFound = errors.New("not found")

	// ErrValidation indica input inválido para la operación (fatal para esa llamada).
	ErrValidation = errors.New("validation error")

	// ErrNoOutcome indica que la predicción aún no tiene outcome capturado.
	ErrNoOutcome = errors.New("prediction has no outcome")

	// ErrAlreadyClaimed indica que otro worker ganó el claim atómico del signal.
	ErrAlreadyClaimed = errors.New("signal already claimed")

	// ErrOutcomeAlreadySet indica un intento de capturar el outcome dos veces.
	ErrOutcomeAlreadySet = errors.New("outcome already captured")
)
