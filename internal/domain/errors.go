package domain

import "errors"

// Sentinel errors shared across pipeline stages.
var (
	// ErrNotFound indicates a record, verdict, or bundle does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformedBundle indicates a stored bundle is not a well-formed
	// container. Malformed bundles are a hard failure, never retried.
	ErrMalformedBundle = errors.New("malformed bundle")
	// ErrArtifactsMissing indicates the converter's output artifacts never
	// appeared within the polling budget.
	ErrArtifactsMissing = errors.New("converter artifacts missing")
)
