// Package models defines retrieval-augmented decision inputs and results.
package models

import (
	memorymodels "bankguard/internal/memory/models"
)

// Fixed result used whenever the model cannot produce a usable answer.
const (
	FallbackScore       = 0.7
	FallbackExplanation = "Automated analysis unavailable. Flagged for manual review."
	ActionManualReview  = "MANUAL_REVIEW"
)

// Result is a scored decision. Flagged is derived from the score and the
// configured threshold. Degraded marks the fixed fallback.
type Result struct {
	Score             float64
	Explanation       string
	RecommendedAction string
	Flagged           bool
	Degraded          bool
}

// Fallback returns the conservative result: always flagged for review.
func Fallback() *Result {
	return &Result{
		Score:             FallbackScore,
		Explanation:       FallbackExplanation,
		RecommendedAction: ActionManualReview,
		Flagged:           true,
		Degraded:          true,
	}
}

// Retrieval names one similarity lookup run with the subject's embedding.
// An empty Owner searches every owner.
type Retrieval struct {
	Label string
	Kind  memorymodels.Kind
	Owner string
}

// Request is shared by scored and free-text decisions. Subject may be nil
// for free-text requests, in which case no retrieval runs. Background
// blocks are added to the context verbatim.
type Request struct {
	Instructions string
	Query        string
	Subject      memorymodels.Document
	Retrievals   []Retrieval
	Background   []string
}

// Text is a free-text decision.
type Text struct {
	Text     string
	Degraded bool
}
