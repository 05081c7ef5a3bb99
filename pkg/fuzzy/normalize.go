// Package fuzzy provides name normalisation and similarity scoring for lineup matching.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s&]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
	leadingTheRegex = regexp.MustCompile(`^the\s+`)
)

// Key returns the case-insensitive identity of an artist name.
// Two names with the same Key are the same artist within a project.
func Key(name string) string {
	name = norm.NFKC.String(name)
	name = whitespaceRegex.ReplaceAllString(strings.TrimSpace(name), " ")
	return cases.Fold().String(name)
}

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeArtist reduces a name to a comparable form: no accents, no punctuation,
// lower case, "and" folded to "&", a leading "the" dropped.
func (n *Normalizer) NormalizeArtist(artist string) string {
	artist = n.basicNormalize(artist)

	artist = strings.ReplaceAll(artist, " and ", " & ")
	artist = leadingTheRegex.ReplaceAllString(artist, "")

	return strings.TrimSpace(artist)
}

func (n *Normalizer) basicNormalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = cases.Fold().String(text)
	return strings.TrimSpace(text)
}

// Similarity scores two already-normalised strings in [0,1] by longest common subsequence.
func (n *Normalizer) Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}

	return float64(longestCommonSubsequence(r1, r2)) / float64(max(len(r1), len(r2)))
}

// ArtistSimilarity normalises both names before scoring them.
func (n *Normalizer) ArtistSimilarity(a, b string) float64 {
	return n.Similarity(n.NormalizeArtist(a), n.NormalizeArtist(b))
}

func longestCommonSubsequence(s1, s2 []rune) int {
	m, n := len(s1), len(s2)
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if s1[i-1] == s2[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
