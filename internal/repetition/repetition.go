// Package repetition removes self-repetition inside a single model response.
//
// The checks are heuristics and have known false negatives: paraphrased
// repeats, synonyms, and repeated content whose chunk boundaries are not
// uniform (three copies plus a trailing fragment, for instance) pass
// through untouched. A miss is never reported as an error.
package repetition

import (
	"strings"

	"github.com/dlclark/regexp2"

	"sinhome/internal/textnorm"
)

const (
	// NGramSize is the word window used to detect looping output.
	NGramSize = 6
	// NGramMinHits is how many times a window must occur to count as a loop.
	NGramMinHits = 2
)

var (
	// Sentence boundaries need a lookbehind, which RE2 does not support.
	sentenceBreakRe = regexp2.MustCompile(`(?<=[\.!?…])\s+`, regexp2.None)
	paragraphRe     = regexp2.MustCompile(`\n\s*\n`, regexp2.None)
	breakTagRe      = regexp2.MustCompile(`<br\s*/?>`, regexp2.IgnoreCase)
	wordRe          = regexp2.MustCompile(`\w+`, regexp2.None)
)

// foldDivisors are tried in order; the largest fold wins.
var foldDivisors = []int{4, 3, 2}

// Collapse removes verbatim folds, consecutive duplicate paragraphs and,
// when a repeated word n-gram is present, duplicate sentences. Blank input
// is returned unchanged.
func Collapse(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	s := strings.TrimSpace(text)

	if first, ok := foldExact(s); ok {
		return first
	}

	normalized, err := breakTagRe.Replace(s, "\n", -1, -1)
	if err != nil {
		normalized = s
	}
	var kept []string
	prev := ""
	for _, p := range splitOn(paragraphRe, normalized) {
		p = strings.TrimSpace(p)
		np := textnorm.Canonicalize(p)
		if np == "" || np == prev {
			continue
		}
		kept = append(kept, p)
		prev = np
	}

	if len(kept) <= 1 {
		if HasRepeatedNGrams(s, NGramSize, NGramMinHits) {
			return DedupeSentences(s)
		}
		return s
	}

	candidate := strings.TrimSpace(strings.Join(kept, "\n\n"))
	if HasRepeatedNGrams(candidate, NGramSize, NGramMinHits) {
		candidate = DedupeSentences(candidate)
	}
	return candidate
}

// foldExact reports whether s is k verbatim copies of one chunk for some k
// in foldDivisors, and returns that chunk trimmed. Chunks are compared by
// case-preserving canonical form. Only exact k-way splits of the rune count
// are tried.
func foldExact(s string) (string, bool) {
	runes := []rune(s)
	n := len(runes)
	for _, k := range foldDivisors {
		if n%k != 0 {
			continue
		}
		if first, ok := foldChunks(runes, k, n/k); ok {
			return first, true
		}
	}
	return "", false
}

func foldChunks(runes []rune, k, size int) (string, bool) {
	chunks := make([]string, k)
	for i := range chunks {
		chunks[i] = string(runes[i*size : (i+1)*size])
	}
	first := textnorm.Canonicalize(chunks[0])
	if first == "" {
		return "", false
	}
	for _, c := range chunks[1:] {
		if textnorm.Canonicalize(c) != first {
			return "", false
		}
	}
	return strings.TrimSpace(chunks[0]), true
}

// HasRepeatedNGrams reports whether some run of n consecutive words occurs
// at least minHits times in text. Words are taken from the lowercased
// canonical form. Texts shorter than 2n words never match.
func HasRepeatedNGrams(text string, n, minHits int) bool {
	if n <= 0 {
		return false
	}
	words := findWords(textnorm.Key(text))
	if len(words) < n*2 {
		return false
	}
	seen := make(map[string]int)
	for i := 0; i+n <= len(words); i++ {
		gram := strings.Join(words[i:i+n], " ")
		seen[gram]++
		if seen[gram] >= minHits {
			return true
		}
	}
	return false
}

// DedupeSentences drops every sentence whose case-insensitive canonical
// form already appeared earlier in text. The trimmed input is returned
// when nothing was dropped.
func DedupeSentences(text string) string {
	trimmed := strings.TrimSpace(text)
	var sentences []string
	for _, s := range splitOn(sentenceBreakRe, trimmed) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) <= 1 {
		return trimmed
	}

	seen := make(map[string]struct{}, len(sentences))
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		key := textnorm.Key(s)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 || len(out) == len(sentences) {
		return trimmed
	}
	return strings.TrimSpace(strings.Join(out, " "))
}

// splitOn splits s around every match of re. Match offsets from regexp2
// are rune offsets.
func splitOn(re *regexp2.Regexp, s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	m, err := re.FindStringMatch(s)
	for err == nil && m != nil {
		out = append(out, string(runes[start:m.Index]))
		start = m.Index + m.Length
		m, err = re.FindNextMatch(m)
	}
	return append(out, string(runes[start:]))
}

func findWords(s string) []string {
	var words []string
	m, err := wordRe.FindStringMatch(s)
	for err == nil && m != nil {
		words = append(words, m.String())
		m, err = wordRe.FindNextMatch(m)
	}
	return words
}
