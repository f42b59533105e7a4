// Package entity rewrites text into numeric HTML character references.
//
// Two transforms share one substitution table. SanitizeForStorage neutralizes every
// structural and punctuation character unconditionally and is applied before text is
// persisted or used in a lookup. EncodeForDisplay does the same for output but leaves
// well-formed references (&#DD; and &#DDD;) intact so that re-rendering stored text
// does not corrupt it.
package entity

import "strings"

// structural characters; these are the only bytes a numeric reference is built from.
var structural = map[byte]string{
	'&': "&#38;",
	';': "&#59;",
	'#': "&#35;",
}

// punctuation is rewritten after the structural pass. None of the replacements
// contain a punctuation character, so a single pass is equivalent to chained rewrites.
var punctuation = strings.NewReplacer(
	"<", "&#60;",
	">", "&#62;",
	"/", "&#47;",
	"\\", "&#92;",
	"%", "&#37;",
	"-", "&#45;",
	"\"", "&#34;",
	"'", "&#39;",
	"[", "&#91;",
	"]", "&#93;",
	"{", "&#123;",
	"}", "&#125;",
	"(", "&#40;",
	")", "&#41;",
	":", "&#58;",
	"!", "&#33;",
	"+", "&#43;",
	"=", "&#61;",
	"?", "&#63;",
	"^", "&#94;",
	"`", "&#96;",
	"~", "&#126;",
)

// SanitizeForStorage rewrites &, ; and # first and then the punctuation set.
// It is not reference-aware: sanitizing already sanitized text encodes it again.
func SanitizeForStorage(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if ref, ok := structural[s[i]]; ok {
			b.WriteString(ref)
			continue
		}
		b.WriteByte(s[i])
	}
	return punctuation.Replace(b.String())
}

// EncodeForDisplay rewrites text for output. An & that opens a well-formed numeric
// reference is copied through together with the reference; any other &, and every
// bare ; or #, is rewritten. The punctuation set is rewritten unconditionally.
func EncodeForDisplay(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c == '&' {
			if n := referenceLen(s[i:]); n > 0 {
				b.WriteString(s[i : i+n])
				i += n
				continue
			}
		}
		if ref, ok := structural[c]; ok {
			b.WriteString(ref)
		} else {
			b.WriteByte(c)
		}
		i++
	}
	return punctuation.Replace(b.String())
}

// referenceLen returns the length of the reference s starts with, or 0.
// Accepted forms are &#DD; and &#DDD; with a non-zero leading digit.
func referenceLen(s string) int {
	if len(s) < 5 || s[0] != '&' || s[1] != '#' || s[2] < '1' || s[2] > '9' || !isDigit(s[3]) {
		return 0
	}
	if s[4] == ';' {
		return 5
	}
	if len(s) >= 6 && isDigit(s[4]) && s[5] == ';' {
		return 6
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
