package domain

import "time"

// ContentFingerprint es la firma de near-duplicados de un item: título
// normalizado + key phrases. Inmutable una vez creado; lo indexa el store
// por target dentro de una ventana de lookback.
type ContentFingerprint struct {
	ContentHash     string // hex(sha256) del contenido normalizado
	TitleNormalized string
	KeyPhrases      []string // bigramas ordenados, ver fingerprint.ExtractKeyPhrases
	CreatedAt       time.Time
	TargetID        string
	SourceID        string
	SignalID        string
}

// SeenItem registra la primera vez que un (source, hash) fue visto.
// Su existencia implica duplicado exacto en la capa 1 de dedup.
type SeenItem struct {
	SourceID    string
	ContentHash string
	FirstSeenAt time.Time
	URL         string
}

// DedupReason identifica la capa que detectó el duplicado.
type DedupReason string

const (
	ReasonExactHashMatch       DedupReason = "exact_hash_match"
	ReasonCrossSourceDuplicate DedupReason = "cross_source_duplicate"
	ReasonFuzzyTitleMatch      DedupReason = "fuzzy_title_match"
	ReasonPhraseOverlap        DedupReason = "phrase_overlap"
)

// ProcessItemResult es el veredicto del motor de dedup sobre un item.
type ProcessItemResult struct {
	IsNew           bool
	Reason          DedupReason // vacío si IsNew
	SimilarSignalID string      // signal existente que causó el match, si se conoce
}

// PhraseOverlap es un candidato de la capa 4: cuántas key phrases comparte
// un fingerprint existente con el item entrante.
type PhraseOverlap struct {
	SignalID     string
	OverlapCount int
}
