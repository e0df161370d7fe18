// Package transcript post-processes raw speech-to-text output before it
// enters the conversation. Its keyword corrector repairs domain vocabulary
// that general-purpose STT models reliably mangle — product names, project
// codenames, jargon — by matching transcribed tokens against a configured
// keyword list with Double Metaphone phonetic codes and ranking candidates
// by Jaro-Winkler similarity.
//
// The corrector runs in-process with no network calls, so it adds
// microseconds to a turn, not milliseconds.
package transcript

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// keyword is a configured vocabulary entry with its phonetic codes
// precomputed at construction.
type keyword struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Corrector replaces phonetically mangled keywords in a transcript with
// their canonical spelling. It is read-only after construction and safe for
// concurrent use.
type Corrector struct {
	keywords          []keyword
	maxKeywordTokens  int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched keyword to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// NewCorrector builds a corrector over the given keyword list. Keywords may
// be multi-word phrases; blank entries are rejected.
func NewCorrector(keywords []string, opts ...Option) (*Corrector, error) {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	for _, k := range keywords {
		trimmed := strings.TrimSpace(k)
		if trimmed == "" {
			return nil, fmt.Errorf("transcript: blank keyword in list")
		}
		lower := strings.ToLower(trimmed)
		tokens := strings.Fields(lower)
		c.keywords = append(c.keywords, keyword{
			canonical: trimmed,
			lower:     lower,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
		if len(tokens) > c.maxKeywordTokens {
			c.maxKeywordTokens = len(tokens)
		}
	}
	return c, nil
}

// Correct rewrites text, replacing token windows that match a configured
// keyword. At each position the longest matching n-gram wins, so multi-word
// keywords take precedence over partial single-word matches. Tokens that
// match nothing pass through unchanged, punctuation included.
func (c *Corrector) Correct(text string) string {
	if len(c.keywords) == 0 {
		return text
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text
	}

	var output []string
	i := 0
	for i < len(tokens) {
		maxN := c.maxKeywordTokens
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			canonical, _, ok := c.match(window)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(canonical)...)
			i += n
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}
	return strings.Join(output, " ")
}

// match tests one token window against the keyword list and returns the best
// candidate above threshold. Phonetic candidates (Double Metaphone code
// overlap) are ranked against the lower phonetic threshold; when no keyword
// overlaps phonetically, a pure Jaro-Winkler pass applies the stricter fuzzy
// threshold.
func (c *Corrector) match(window string) (canonical string, score float64, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(window))
	if lower == "" {
		return window, 0, false
	}
	windowTokens := strings.Fields(lower)
	windowCodes := codesForTokens(windowTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for _, kw := range c.keywords {
		// An exact hit keeps the canonical casing but needs no rewrite
		// when the spelling already matches.
		if lower == kw.lower {
			return kw.canonical, 1, true
		}

		phonetic := codesOverlap(windowCodes, kw.codes)
		jw := bestSimilarity(windowTokens, kw.tokens, lower, kw.lower)

		switch {
		case phonetic && jw >= c.phoneticThreshold:
			if !bestPhonetic || jw > bestScore {
				best, bestScore, bestPhonetic = kw.canonical, jw, true
			}
		case !phonetic && !bestPhonetic && jw >= c.fuzzyThreshold && jw > bestScore:
			best, bestScore = kw.canonical, jw
		}
	}

	if best == "" {
		return window, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of Double Metaphone codes for the tokens.
// Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler score between the window
// and the keyword: full strings, space-stripped concatenations, and the best
// pairwise token score.
func bestSimilarity(windowTokens, keywordTokens []string, windowFull, keywordFull string) float64 {
	score := matchr.JaroWinkler(windowFull, keywordFull, false)

	if len(windowTokens) > 1 || len(keywordTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(windowTokens, ""), strings.Join(keywordTokens, ""), false); s > score {
			score = s
		}
	}

	for _, wt := range windowTokens {
		for _, kt := range keywordTokens {
			if s := matchr.JaroWinkler(wt, kt, false); s > score {
				score = s
			}
		}
	}
	return score
}
