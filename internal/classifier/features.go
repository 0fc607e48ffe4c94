package classifier

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cloudflare/ahocorasick"
)

// Features are the derived signals computed from record content at call
// time. They are encoded per model version and never persisted separately.
type Features struct {
	Sentiment        float64
	KeywordCount     int
	ObfuscationCount int
}

// negativeTerms is the lexicon for the naive sentiment signal. The models
// only need a coarse polarity, not a real sentiment analysis.
var negativeTerms = []string{
	"attack", "breach", "compromise", "critical", "danger", "exploit",
	"leak", "malicious", "ransom", "stolen", "threat", "vulnerab",
}

// obfuscationRunes are characters commonly used to obfuscate content.
var obfuscationRunes = map[rune]bool{
	'\u200b': true, // zero-width space
	'\u200c': true, // zero-width non-joiner
	'\u200d': true, // zero-width joiner
	'\ufeff': true, // zero-width no-break space
	'\u00ad': true, // soft hyphen
}

// Extractor computes the feature bag from raw record markup.
type Extractor struct {
	keywords *ahocorasick.Matcher
}

// NewExtractor builds an extractor with the configured keyword dictionary.
func NewExtractor(keywords []string) *Extractor {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Extractor{keywords: ahocorasick.NewStringMatcher(lowered)}
}

// Extract derives the feature bag from content. Markup is stripped to
// visible text first; unparseable content falls back to the raw string.
func (e *Extractor) Extract(content string) Features {
	text := strings.ToLower(visibleText(content))

	return Features{
		Sentiment:        sentimentScore(text),
		KeywordCount:     len(e.keywords.Match([]byte(text))),
		ObfuscationCount: obfuscationCount(content),
	}
}

func visibleText(content string) string {
	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(content))
	if parseErr != nil {
		return content
	}
	doc.Find("script, style, noscript").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		return content
	}
	return text
}

// sentimentScore returns the negative-term density in [-1, 0]. Threat
// content scores lower.
func sentimentScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	hits := 0
	for _, term := range negativeTerms {
		hits += strings.Count(text, term)
	}

	score := -float64(hits) / float64(len(words))
	if score < -1 {
		score = -1
	}
	return score
}

func obfuscationCount(content string) int {
	count := 0
	for _, r := range content {
		if obfuscationRunes[r] {
			count++
		}
	}
	// Percent-encoded bytes are a cheap signal for obfuscated locators.
	count += strings.Count(content, "%2")
	count += strings.Count(content, "&#")
	return count
}

// Model version identifiers with a known feature-encoding convention.
const (
	VersionV2  = "v2"
	VersionV32 = "v3_2"
)

// EncodeFeatures maps the extracted features onto the keys a model version
// expects. Versions without a dedicated convention get the v3_2 keys.
func EncodeFeatures(version string, f Features) map[string]float64 {
	switch version {
	case VersionV2:
		return map[string]float64{
			"Sentiment Score":   f.Sentiment,
			"Keyword Count":     float64(f.KeywordCount),
			"Obfuscation Level": float64(f.ObfuscationCount),
		}
	default:
		return map[string]float64{
			"sentiment":     f.Sentiment,
			"keyword_count": float64(f.KeywordCount),
			"obfuscation":   float64(f.ObfuscationCount),
		}
	}
}
