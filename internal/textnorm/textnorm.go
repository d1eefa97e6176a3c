// Package textnorm normalizes chat text for equality checks and provides the
// cheap noise and refusal predicates used around the completion backend.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	breakTagRe     = regexp.MustCompile(`(?i)<br\s*/?>`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
	trailingBreaks = regexp.MustCompile(`(?i)(?:\s|<br\s*/?>)+$`)
)

// NormalizeBreaks converts CRLF, CR and <br> markup to "\n" and squeezes
// three or more consecutive newlines down to a single blank line.
// Paragraph structure survives, so callers can still split on blank lines.
func NormalizeBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = breakTagRe.ReplaceAllString(s, "\n")
	return blankRunRe.ReplaceAllString(s, "\n\n")
}

// Canonicalize returns the case-preserving canonical form of s: breaks are
// normalized, every whitespace run becomes one space, and the ends are
// trimmed. It never fails; the result may be empty.
func Canonicalize(s string) string {
	return strings.Join(strings.Fields(NormalizeBreaks(s)), " ")
}

// Key returns the case-insensitive canonical form used for duplicate and
// refusal detection.
func Key(s string) string {
	return strings.ToLower(Canonicalize(s))
}

// isLatinAlnum matches ASCII letters and digits plus the Latin-1 accented
// letters À-Ö, Ø-ö and ø-ÿ.
func isLatinAlnum(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r >= 'À' && r <= 'Ö', r >= 'Ø' && r <= 'ö', r >= 'ø' && r <= 'ÿ':
		return true
	}
	return false
}

// LooksOnlyEmojiOrPunct reports whether s holds no ASCII or Latin-accented
// alphanumeric character. Empty and whitespace-only text count as noise.
func LooksOnlyEmojiOrPunct(s string) bool {
	return strings.IndexFunc(strings.TrimSpace(s), isLatinAlnum) < 0
}

var refusalNeedles = []string{
	"désolé, mais je ne peux pas",
	"desole, mais je ne peux pas",
	"je ne peux pas répondre",
	"je ne peux pas repondre",
	"je ne peux pas t'aider",
	"je ne peux pas vous aider",
	"i can't help with",
	"i cannot help with",
	"i can't comply",
	"i cannot comply",
	"i'm sorry, but i can't",
	"i am sorry, but i can't",
}

// LooksLikeRefusal reports whether s contains one of the known English or
// French policy-refusal phrases.
func LooksLikeRefusal(s string) bool {
	k := Key(s)
	if k == "" {
		return false
	}
	// Curly apostrophes are common in model output.
	k = strings.ReplaceAll(k, "’", "'")
	for _, n := range refusalNeedles {
		if strings.Contains(k, n) {
			return true
		}
	}
	return false
}

// StripTrailingBreaks trims surrounding whitespace and any trailing <br>
// markup.
func StripTrailingBreaks(s string) string {
	if s == "" {
		return s
	}
	s = strings.TrimSpace(s)
	s = trailingBreaks.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// TruncateAtWordBoundary trims s and cuts it to at most maxChars runes.
// When the cut would split a word, the partial word is dropped. A single
// word longer than maxChars is hard-cut. maxChars <= 0 disables the limit.
func TruncateAtWordBoundary(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	runes := []rune(s)
	cut := runes[:maxChars]
	if isWordRune(runes[maxChars]) && isWordRune(cut[len(cut)-1]) {
		i := len(cut)
		for i > 0 && isWordRune(cut[i-1]) {
			i--
		}
		if strings.TrimSpace(string(cut[:i])) != "" {
			cut = cut[:i]
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace)
}
