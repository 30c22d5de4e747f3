package handler

import (
	"strings"

	"bankguard/internal/compliance/models"
	dErrors "bankguard/pkg/domain-errors"
)

// ValidateRequest is the body of POST /validate.
type ValidateRequest struct {
	UserInput string `json:"userInput"`
}

func (r *ValidateRequest) Normalize() {
	r.UserInput = strings.TrimSpace(r.UserInput)
}

func (r *ValidateRequest) Validate() error {
	if r.UserInput == "" {
		return dErrors.New(dErrors.CodeValidation, "userInput is required")
	}
	return nil
}

// RuleRequest is the body of rule create and update. Active defaults to true.
type RuleRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	RuleDefinition string `json:"ruleDefinition"`
	Active         *bool  `json:"active"`
	Priority       int    `json:"priority"`
}

func (r *RuleRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
	r.RuleDefinition = strings.TrimSpace(r.RuleDefinition)
}

func (r *RuleRequest) Validate() error {
	if r.Name == "" || r.Category == "" || r.RuleDefinition == "" {
		return dErrors.New(dErrors.CodeValidation, "name, category and ruleDefinition are required")
	}
	return nil
}

func (r *RuleRequest) Spec() models.RuleSpec {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return models.RuleSpec{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Definition:  r.RuleDefinition,
		Active:      active,
		Priority:    r.Priority,
	}
}
