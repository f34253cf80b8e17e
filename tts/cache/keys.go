package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// priorityPrefixPattern matches a leading scheduling hint such as
// "high priority: fetch the report" that callers sometimes prepend to
// synthesis text. The hint changes nothing about the audio, so it must
// not change the cache key.
var priorityPrefixPattern = regexp.MustCompile(`(?i)^(low|medium|high)\s+priority:\s*`)

// punctuationPattern matches everything that is neither a word character
// nor whitespace.
var punctuationPattern = regexp.MustCompile(`[^\w\s]`)

// whitespacePattern matches runs of internal whitespace.
var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeOptions controls which normalization steps apply during key
// derivation.
type NormalizeOptions struct {
	// CaseSensitive keeps the original casing of the text. When false
	// (the default), text differing only by case maps to the same key.
	CaseSensitive bool

	// StripPriorityPrefixes removes a leading "low|medium|high priority:"
	// marker before hashing.
	StripPriorityPrefixes bool

	// NormalizeWhitespace trims the text and collapses internal runs of
	// whitespace to a single space.
	NormalizeWhitespace bool

	// StripPunctuation removes all non-word, non-space characters.
	StripPunctuation bool

	// CustomTransform, if set, is applied after all built-in steps.
	CustomTransform func(string) string
}

// DefaultNormalizeOptions returns the normalization applied when the
// caller does not specify anything.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		CaseSensitive:         false,
		StripPriorityPrefixes: true,
		NormalizeWhitespace:   true,
		StripPunctuation:      false,
	}
}

// KeyParams are the raw synthesis parameters a cache key is derived from.
type KeyParams struct {
	Provider    string
	Text        string
	Model       string
	Voice       string
	Speed       float64
	Format      string
	ExtraParams map[string]string
}

// NormalizationResult reports what key derivation did to the input text.
// It is regenerated per call and never persisted.
type NormalizationResult struct {
	OriginalText     string
	NormalizedText   string
	CacheKey         string
	StepsApplied     []string
	OriginalLength   int
	NormalizedLength int
	ProcessingTime   time.Duration
}

// NormalizeText applies the configured normalization steps to text and
// returns the canonical form plus the names of the steps that ran.
// Normalization is total: any input, including the empty string, yields
// a valid result.
func NormalizeText(text string, opts NormalizeOptions) (string, []string) {
	var steps []string

	if opts.NormalizeWhitespace {
		text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
		steps = append(steps, "whitespace")
	}

	if opts.StripPriorityPrefixes {
		if stripped := priorityPrefixPattern.ReplaceAllString(text, ""); stripped != text {
			text = stripped
		}
		steps = append(steps, "priority-prefix")
	}

	if opts.StripPunctuation {
		text = punctuationPattern.ReplaceAllString(text, "")
		steps = append(steps, "punctuation")
	}

	if !opts.CaseSensitive {
		text = strings.ToLower(text)
		steps = append(steps, "case-fold")
	}

	if opts.CustomTransform != nil {
		text = opts.CustomTransform(text)
		steps = append(steps, "custom")
	}

	return text, steps
}

// DeriveKey normalizes the text in params and derives the cache key.
// The same logical request always yields the same key: format casing and
// ExtraParams ordering are canonicalized before hashing.
func DeriveKey(params KeyParams, opts NormalizeOptions) NormalizationResult {
	start := time.Now()

	normalized, steps := NormalizeText(params.Text, opts)

	components := []string{
		params.Provider,
		normalized,
		params.Model,
		params.Voice,
		fmt.Sprintf("%.2f", params.Speed),
		strings.ToLower(params.Format),
	}

	if len(params.ExtraParams) > 0 {
		keys := make([]string, 0, len(params.ExtraParams))
		for k := range params.ExtraParams {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+params.ExtraParams[k])
		}
		components = append(components, strings.Join(pairs, "&"))
	}

	hash := sha256.Sum256([]byte(strings.Join(components, "|")))

	return NormalizationResult{
		OriginalText:     params.Text,
		NormalizedText:   normalized,
		CacheKey:         hex.EncodeToString(hash[:]),
		StepsApplied:     steps,
		OriginalLength:   len(params.Text),
		NormalizedLength: len(normalized),
		ProcessingTime:   time.Since(start),
	}
}
