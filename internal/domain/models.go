// Package domain contains the core domain models for the connector: harvested
// records, classification verdicts, and the enrichment bundle container.
package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Category is a classifier's binary finding for a record.
type Category string

const (
	// CategoryExploit is the positive class; it admits a record to enrichment.
	CategoryExploit Category = "Exploit"
	// CategoryNonExploit is the negative class.
	CategoryNonExploit Category = "Non-Exploit"
)

// IsPositive reports whether the category is the positive class.
func (c Category) IsPositive() bool {
	return c == CategoryExploit
}

// Record is one unit of harvested content awaiting classification,
// enrichment, and publication.
//
// The three stage flags are monotonic: the pipeline only ever sets them to
// true. Resetting a flag is the job of external reprocessing tooling.
type Record struct {
	ID               int64     `db:"id"                 json:"id"`
	URL              string    `db:"url"                json:"url"`
	MatchedKeywords  string    `db:"matched_keywords"   json:"matched_keywords"`
	Content          string    `db:"content"            json:"content"`
	Timestamp        time.Time `db:"timestamp"          json:"timestamp"`
	Processed        bool      `db:"processed"          json:"processed"`
	SentToEnrichment bool      `db:"sent_to_enrichment" json:"sent_to_enrichment"`
	SentToOpenCTI    bool      `db:"sent_to_opencti"    json:"sent_to_opencti"`
}

// ReportName returns the human-readable name used for the record's enrichment
// report and for entity lookups in the knowledge base.
func (r *Record) ReportName() string {
	return "Report " + strconv.FormatInt(r.ID, 10)
}

// Verdict is a single classifier's output for a record. Verdicts are
// append-only; the most recent verdict per model version is authoritative.
type Verdict struct {
	ID           int64           `db:"id"            json:"id"`
	RecordID     int64           `db:"record_id"     json:"record_id"`
	ModelVersion string          `db:"model_version" json:"model_version"`
	Category     Category        `db:"category"      json:"category"`
	Confidence   float64         `db:"confidence"    json:"confidence"`
	RawResult    json.RawMessage `db:"raw_result"    json:"raw_result,omitempty"`
	Timestamp    time.Time       `db:"timestamp"     json:"timestamp"`
}

// Bundle is the structured-intelligence container produced by enrichment.
// The pipeline routes its objects unmodified apart from relationship
// normalization; their inner shape is opaque.
type Bundle struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Objects []map[string]any `json:"objects"`
}

// BundleTypeMarker is the container marker a well-formed bundle must carry.
const BundleTypeMarker = "bundle"

// IsWellFormed reports whether the bundle has the container marker and a
// non-empty object list.
func (b *Bundle) IsWellFormed() bool {
	return b != nil && b.Type == BundleTypeMarker && len(b.Objects) > 0
}

// RunStats aggregates the outcome of one pipeline run.
type RunStats struct {
	Success    int       `json:"success"`
	Errors     int       `json:"errors"`
	Total      int       `json:"total"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
