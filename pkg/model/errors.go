package model

import "errors"

// Error taxonomy. Per-record errors (ErrUnrecognizedSchema, ErrAmbiguousMatch)
// are collected and reported, never abort a batch. Per-batch errors roll the
// whole transaction back.
var (
	// ErrUnrecognizedSchema means an input row cannot be mapped to a
	// canonical shape. The row is skipped and counted, never fabricated.
	ErrUnrecognizedSchema = errors.New("unrecognized schema")

	// ErrAmbiguousMatch means multiple candidates survived all matching
	// stages. No link is created; the case is surfaced for manual review.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	// ErrIntegrityViolation means a post-recompute invariant failed. It
	// blocks commit for the affected entity.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrProtectedRecord means a mutation touched a verified or locked
	// record. Fatal for that operation under every run mode.
	ErrProtectedRecord = errors.New("protected record mutation attempt")
)
