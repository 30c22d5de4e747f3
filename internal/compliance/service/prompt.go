package service

import (
	"fmt"
	"strings"

	"bankguard/internal/compliance/models"
	"bankguard/internal/reasoning"
)

const (
	promptIntro = "You are a compliance validation system for a bank. " +
		"Your task is to check if the user input complies with all the following rules:"
	promptInstructions = `Analyze the user input and determine if it violates any of these rules.
If it complies with all rules, respond with: {"compliant": true}
If it violates any rules, respond with: {"compliant": false, "violations": ["<rule name>", ...], "explanation": "..."}
Only respond with the JSON format specified above, nothing else.`
)

// BuildSystemPrompt lists rules in the order given, which callers keep at
// priority descending.
func BuildSystemPrompt(rules []*models.Rule) string {
	blocks := make([]string, 0, len(rules))
	for _, r := range rules {
		blocks = append(blocks, fmt.Sprintf("Rule %s (%s): %s", r.Name, r.Category, r.Definition))
	}
	var b strings.Builder
	b.WriteString(promptIntro)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\n")
	b.WriteString(promptInstructions)
	return b.String()
}

type verdictPayload struct {
	Compliant   *bool    `json:"compliant"`
	Violations  []string `json:"violations"`
	Explanation string   `json:"explanation"`
}

// decodeVerdict accepts only answers matching the schema in the prompt. A
// non-compliant answer must name at least one violation and explain it.
func decodeVerdict(answer string) (*models.Verdict, error) {
	var p verdictPayload
	if err := reasoning.DecodeJSON(answer, &p); err != nil {
		return nil, err
	}
	if p.Compliant == nil {
		return nil, fmt.Errorf("%w: compliant is required", reasoning.ErrMalformed)
	}

	violations := make([]string, 0, len(p.Violations))
	for _, v := range p.Violations {
		if v = strings.TrimSpace(v); v != "" {
			violations = append(violations, v)
		}
	}
	explanation := strings.TrimSpace(p.Explanation)

	if *p.Compliant {
		if explanation == "" {
			explanation = ExplanationCompliant
		}
		return &models.Verdict{Compliant: true, Violations: []string{}, Explanation: explanation}, nil
	}
	if len(violations) == 0 {
		return nil, fmt.Errorf("%w: violations are required when not compliant", reasoning.ErrMalformed)
	}
	if explanation == "" {
		return nil, fmt.Errorf("%w: explanation is required when not compliant", reasoning.ErrMalformed)
	}
	return &models.Verdict{Compliant: false, Violations: violations, Explanation: explanation}, nil
}
