package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	archiveExtRe    = regexp.MustCompile(`(?i)\.(zip|rar|7z)(\.[0-9]+)?$`)
	volumeSuffixRe  = regexp.MustCompile(`(?i)\.(part[0-9]+|r[0-9]{2}|z[0-9]{2}|[0-9]{3,})$`)
	bracketReplacer = strings.NewReplacer("[", " ", "]", " ", "{", " ", "}", " ", "(", " ", ")", " ")
	separatorRunRe  = regexp.MustCompile(`[._\-]+`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
	latinTokenRe    = regexp.MustCompile(`[a-z0-9]+`)
)

// Fold converts full-width punctuation, letters, and the ideographic space to
// their half-width/ASCII equivalents.
func Fold(s string) string {
	return width.Fold.String(s)
}

// StripArchiveSuffix removes a trailing archive extension and any multi-volume
// numeric suffix: ".zip"/".rar"/".7z" optionally followed by ".NNN", or a bare
// ".partN"/".rNN"/".zNN"/3+-digit trailing suffix.
func StripArchiveSuffix(name string) string {
	name = archiveExtRe.ReplaceAllString(name, "")
	return volumeSuffixRe.ReplaceAllString(name, "")
}

// Normalize canonicalizes a raw filename or title for matching. The result is
// stable under repeated application: width-folded, lowercased, archive suffix
// stripped, brackets and separator runs collapsed to single spaces, trimmed.
func Normalize(s string) string {
	s = strings.ToLower(Fold(s))
	s = StripArchiveSuffix(s)
	s = bracketReplacer.Replace(s)
	s = separatorRunRe.ReplaceAllString(s, " ")
	s = whitespaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// LatinTokens returns the deduplicated alphanumeric runs of length >= 2 found
// in a normalized string, in order of first appearance.
func LatinTokens(s string) []string {
	var tokens []string
	seen := make(map[string]struct{})
	for _, tok := range latinTokenRe.FindAllString(s, -1) {
		if len(tok) < 2 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}

// IsCJK reports whether the rune falls in the character ranges the matcher
// treats as CJK: Hiragana/Katakana, CJK Unified (plus extension A), and
// half-width Katakana.
func IsCJK(r rune) bool {
	switch {
	case r >= 0x3040 && r <= 0x30FF:
		return true
	case r >= 0x3400 && r <= 0x4DBF:
		return true
	case r >= 0x4E00 && r <= 0x9FFF:
		return true
	case r >= 0xFF66 && r <= 0xFF9F:
		return true
	}
	return false
}

// HasCJK reports whether the string contains at least one CJK rune.
func HasCJK(s string) bool {
	for _, r := range s {
		if IsCJK(r) {
			return true
		}
	}
	return false
}

// CJKBigrams returns deduplicated adjacent-pair substrings formed from the
// CJK runes of s, in order of first appearance. Non-CJK runes are filtered
// out first, not treated as separators, so adjacency is taken over the
// filtered sequence.
func CJKBigrams(s string) []string {
	var cjk []rune
	for _, r := range s {
		if IsCJK(r) {
			cjk = append(cjk, r)
		}
	}
	var bigrams []string
	seen := make(map[string]struct{})
	for i := 0; i+1 < len(cjk); i++ {
		bg := string(cjk[i : i+2])
		if _, ok := seen[bg]; ok {
			continue
		}
		seen[bg] = struct{}{}
		bigrams = append(bigrams, bg)
	}
	return bigrams
}
