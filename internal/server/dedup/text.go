package dedup

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/cryptox"
)

// NormalizeText canonicalizes text for comparison: Unicode NFKC, full case
// folding and every run of whitespace collapsed to a single space.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	// A Caser carries state, so each call gets its own.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Signature is the BLAKE3 digest of the normalized text, or "" for text
// that normalizes to nothing.
func Signature(s string) string {
	n := NormalizeText(s)
	if n == "" {
		return ""
	}
	return cryptox.Digest([]byte(n))
}

// shingles returns the set of word trigrams of normalized text. Texts
// shorter than three words yield the whole text as a single shingle.
func shingles(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	set := make(map[string]struct{})
	if len(words) == 0 {
		return set
	}
	if len(words) < 3 {
		set[strings.Join(words, " ")] = struct{}{}
		return set
	}
	for i := 0; i+3 <= len(words); i++ {
		set[words[i]+" "+words[i+1]+" "+words[i+2]] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard index of the word-trigram sets of a and b after
// normalization, in [0,1]. Two empty texts are not similar.
func Similarity(a, b string) float64 {
	sa, sb := shingles(NormalizeText(a)), shingles(NormalizeText(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	if len(sa) > len(sb) {
		sa, sb = sb, sa
	}
	inter := 0
	for s := range sa {
		if _, ok := sb[s]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}
