package classifier

import "testing"

func TestExtractor_KeywordCount(t *testing.T) {
	e := NewExtractor([]string{"exploit", "zero-day", "cve"})

	f := e.Extract(`<html><body>
		<p>A new EXPLOIT for CVE-2024-1234 was posted.</p>
		<script>var exploit = "ignored? no - scripts are stripped";</script>
	</body></html>`)

	// "exploit" and "cve" are present in visible text; "zero-day" is not.
	if f.KeywordCount != 2 {
		t.Errorf("KeywordCount = %d, want 2", f.KeywordCount)
	}
}

func TestExtractor_SentimentIsNegativeForThreatContent(t *testing.T) {
	e := NewExtractor(nil)

	threat := e.Extract("critical exploit threat malicious breach")
	benign := e.Extract("the quick brown fox jumps over the lazy dog")

	if threat.Sentiment >= 0 {
		t.Errorf("threat sentiment = %v, want < 0", threat.Sentiment)
	}
	if benign.Sentiment != 0 {
		t.Errorf("benign sentiment = %v, want 0", benign.Sentiment)
	}
	if threat.Sentiment < -1 {
		t.Errorf("sentiment %v below -1", threat.Sentiment)
	}
}

func TestExtractor_ObfuscationCount(t *testing.T) {
	e := NewExtractor(nil)

	f := e.Extract("pay\u200bload %2F%2E &#x41;")
	if f.ObfuscationCount < 3 {
		t.Errorf("ObfuscationCount = %d, want >= 3", f.ObfuscationCount)
	}

	clean := e.Extract("plain text")
	if clean.ObfuscationCount != 0 {
		t.Errorf("clean ObfuscationCount = %d, want 0", clean.ObfuscationCount)
	}
}

func TestEncodeFeatures(t *testing.T) {
	f := Features{Sentiment: -0.32, KeywordCount: 3, ObfuscationCount: 12}

	v2 := EncodeFeatures(VersionV2, f)
	if v2["Sentiment Score"] != -0.32 || v2["Keyword Count"] != 3 || v2["Obfuscation Level"] != 12 {
		t.Errorf("v2 encoding wrong: %v", v2)
	}

	v32 := EncodeFeatures(VersionV32, f)
	if v32["sentiment"] != -0.32 || v32["keyword_count"] != 3 || v32["obfuscation"] != 12 {
		t.Errorf("v3_2 encoding wrong: %v", v32)
	}

	// Unknown versions fall back to the v3_2 convention.
	unknown := EncodeFeatures("v9", f)
	if unknown["sentiment"] != -0.32 {
		t.Errorf("unknown version encoding wrong: %v", unknown)
	}
}
