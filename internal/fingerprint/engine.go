package fingerprint

// engine.go — identidad de contenido y features de near-duplicados.
//
// Todo es función pura del texto normalizado: mismo contenido con distinto
// case, espaciado o URLs produce el mismo hash. Las key phrases son una
// firma semántica barata (bigramas), no un hash.

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// contentHashCap limita cuánto contenido entra en el hash de artículo.
	// Artículos casi idénticos con colas divergentes siguen colisionando.
	contentHashCap = 500

	// urlPlaceholder sustituye cualquier URL antes de hashear: los trackers
	// y shorteners cambian entre fuentes para el mismo contenido.
	urlPlaceholder = " url "

	// minTokenLen filtra tokens cortos (artículos, preposiciones) de las
	// comparaciones por tokens.
	minTokenLen = 3
)

var (
	urlRe    = regexp.MustCompile(`https?://\S+`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	spacesRe = regexp.MustCompile(`\s+`)

	// Set fijo de entidades HTML que aparecen en feeds de noticias.
	entityReplacer = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// Normalize canonicaliza el texto: lowercase, URLs → placeholder, decodifica
// el set fijo de entidades, quita tags, colapsa espacios y hace trim.
func Normalize(content string) string {
	s := strings.ToLower(content)
	s = urlRe.ReplaceAllString(s, urlPlaceholder)
	s = entityReplacer.Replace(s)
	s = tagRe.ReplaceAllString(s, " ")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Hash devuelve hex(sha256) del contenido normalizado.
// Determinista: ediciones neutras a la normalización no cambian el hash.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// HashArticle hashea título + contenido truncado a contentHashCap runas
// (ambos normalizados). El cap hace que artículos largos casi idénticos
// con colas distintas produzcan el mismo hash.
func HashArticle(title, content string) string {
	body := Normalize(content)
	if runes := []rune(body); len(runes) > contentHashCap {
		body = string(runes[:contentHashCap])
	}
	sum := sha256.Sum256([]byte(Normalize(title) + body))
	return hex.EncodeToString(sum[:])
}

// ExtractKeyPhrases devuelve bigramas ordenados de tokens normalizados con
// longitud > 3, sin repetidos, hasta maxPhrases.
func ExtractKeyPhrases(content string, maxPhrases int) []string {
	if maxPhrases <= 0 {
		return nil
	}
	tokens := significantTokens(Normalize(content))
	if len(tokens) < 2 {
		return nil
	}

	seen := make(map[string]bool, len(tokens))
	phrases := make([]string, 0, maxPhrases)
	for i := 0; i+1 < len(tokens); i++ {
		phrase := tokens[i] + " " + tokens[i+1]
		if seen[phrase] {
			continue
		}
		seen[phrase] = true
		phrases = append(phrases, phrase)
		if len(phrases) >= maxPhrases {
			break
		}
	}
	return phrases
}

// IsSimilar compara dos títulos normalizados: match exacto → true,
// substring en cualquier dirección → true, si no similitud Jaccard de los
// sets de tokens (longitud > 3) contra el umbral. Simétrica por construcción.
func IsSimilar(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return jaccard(tokenSet(a), tokenSet(b)) >= threshold
}

// significantTokens devuelve los tokens con más de minTokenLen runas, en orden.
func significantTokens(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > minTokenLen {
			out = append(out, f)
		}
	}
	return out
}

// tokenSet devuelve el set de tokens significativos de un texto.
func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range significantTokens(s) {
		set[t] = true
	}
	return set
}

// jaccard = |intersección| / |unión| de dos sets de tokens.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
