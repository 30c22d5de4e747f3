package handler

import (
	"time"

	"bankguard/internal/compliance/models"
)

type ValidationResponse struct {
	Compliant   bool     `json:"compliant"`
	Violations  []string `json:"violations"`
	Explanation string   `json:"explanation"`
}

func FromVerdict(v *models.Verdict) *ValidationResponse {
	violations := v.Violations
	if violations == nil {
		violations = []string{}
	}
	return &ValidationResponse{
		Compliant:   v.Compliant,
		Violations:  violations,
		Explanation: v.Explanation,
	}
}

type RuleResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	RuleDefinition string    `json:"ruleDefinition"`
	Active         bool      `json:"active"`
	Priority       int       `json:"priority"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func FromRule(r *models.Rule) *RuleResponse {
	return &RuleResponse{
		ID:             r.ID.String(),
		Name:           r.Name,
		Description:    r.Description,
		Category:       string(r.Category),
		RuleDefinition: r.Definition,
		Active:         r.Active,
		Priority:       r.Priority,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func FromRules(rules []*models.Rule) []*RuleResponse {
	out := make([]*RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, FromRule(r))
	}
	return out
}
