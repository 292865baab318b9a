package domain

// BatchRunResult son los contadores de un run del procesador batch.
// Un error por-signal incrementa Errors y no aborta el resto del run.
type BatchRunResult struct {
	Processed         int
	PredictorsCreated int
	Rejected          int
	FastPathTriggered int
	Errors            int
}

// Total devuelve cuántos signals terminaron en algún estado contabilizado.
func (r BatchRunResult) Total() int {
	return r.PredictorsCreated + r.Rejected + r.FastPathTriggered + r.Errors
}
