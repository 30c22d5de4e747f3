package service

import (
	"fmt"
	"strings"

	"bankguard/internal/decision/models"
	memorymodels "bankguard/internal/memory/models"
	"bankguard/internal/reasoning"
)

const scoreSchema = `Respond with a single JSON object and nothing else:
{"score": <number between 0.0 and 1.0>, "explanation": "<short explanation>", "recommendedAction": "<action>"}`

// contextBlock is one labelled group of retrieved records.
type contextBlock struct {
	Label   string
	Entries []string
}

// buildSystemPrompt renders instructions, then every non-empty context block
// as a bulleted list, then background text. scored appends the response schema.
func buildSystemPrompt(instructions string, blocks []contextBlock, background []string, scored bool) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instructions))
	for _, block := range blocks {
		if len(block.Entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s:", block.Label)
		for _, entry := range block.Entries {
			b.WriteString("\n- ")
			b.WriteString(entry)
		}
	}
	for _, text := range background {
		if text = strings.TrimSpace(text); text != "" {
			b.WriteString("\n\n")
			b.WriteString(text)
		}
	}
	if scored {
		b.WriteString("\n\n")
		b.WriteString(scoreSchema)
	}
	return b.String()
}

// buildPrompt renders the caller's query followed by the subject's canonical text.
func buildPrompt(query string, subject memorymodels.Document) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(query))
	if subject != nil {
		b.WriteString("\n\nSubject:\n")
		b.WriteString(memorymodels.CanonicalText(subject.Fields()))
	}
	return b.String()
}

type scoreAnswer struct {
	Score             *float64 `json:"score"`
	Explanation       string   `json:"explanation"`
	RecommendedAction string   `json:"recommendedAction"`
}

// decodeScore accepts only a numeric score in [0, 1]. Any other shape wraps
// reasoning.ErrMalformed.
func decodeScore(text string, flagThreshold float64) (*models.Result, error) {
	var answer scoreAnswer
	if err := reasoning.DecodeJSON(text, &answer); err != nil {
		return nil, err
	}
	if answer.Score == nil {
		return nil, fmt.Errorf("%w: score is required", reasoning.ErrMalformed)
	}
	score := *answer.Score
	if score < 0 || score > 1 {
		return nil, fmt.Errorf("%w: score %v outside [0, 1]", reasoning.ErrMalformed, score)
	}
	return &models.Result{
		Score:             score,
		Explanation:       strings.TrimSpace(answer.Explanation),
		RecommendedAction: strings.TrimSpace(answer.RecommendedAction),
		Flagged:           score >= flagThreshold,
	}, nil
}
