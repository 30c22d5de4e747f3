package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "bankguard/pkg/domain-errors"
)

// Category is the regulatory family a rule belongs to.
type Category string

const (
	CategoryKYC         Category = "KYC"
	CategoryAML         Category = "AML"
	CategoryGDPR        Category = "GDPR"
	CategoryLGPD        Category = "LGPD"
	CategoryPCIDSS      Category = "PCI_DSS"
	CategoryFairLending Category = "FAIR_LENDING"
	CategoryOther       Category = "OTHER"
)

var validCategories = map[Category]bool{
	CategoryKYC:         true,
	CategoryAML:         true,
	CategoryGDPR:        true,
	CategoryLGPD:        true,
	CategoryPCIDSS:      true,
	CategoryFairLending: true,
	CategoryOther:       true,
}

// ParseCategory accepts any case and surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !validCategories[c] {
		return "", dErrors.New(dErrors.CodeValidation, "unknown compliance category: "+s)
	}
	return c, nil
}

// Rule is a free-text policy the compliance gate asks the model to enforce.
// Higher Priority rules are listed first.
type Rule struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Definition  string    `json:"definition"`
	Active      bool      `json:"active"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RuleSpec carries the mutable fields of a rule.
type RuleSpec struct {
	Name        string
	Description string
	Category    string
	Definition  string
	Active      bool
	Priority    int
}

func NewRule(id uuid.UUID, spec RuleSpec, now time.Time) (*Rule, error) {
	r := &Rule{ID: id, CreatedAt: now}
	if err := r.Apply(spec, now); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply validates spec and replaces the mutable fields.
func (r *Rule) Apply(spec RuleSpec, now time.Time) error {
	name := strings.TrimSpace(spec.Name)
	definition := strings.TrimSpace(spec.Definition)
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "rule name is required")
	}
	if definition == "" {
		return dErrors.New(dErrors.CodeValidation, "rule definition is required")
	}
	if len(definition) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "rule definition must be at most 2000 characters")
	}
	category, err := ParseCategory(spec.Category)
	if err != nil {
		return err
	}
	r.Name = name
	r.Description = strings.TrimSpace(spec.Description)
	r.Category = category
	r.Definition = definition
	r.Active = spec.Active
	r.Priority = spec.Priority
	r.UpdatedAt = now
	return nil
}

// Verdict is the outcome of validating one input.
type Verdict struct {
	Compliant   bool     `json:"compliant"`
	Violations  []string `json:"violations"`
	Explanation string   `json:"explanation"`
	// Degraded is set when the verdict was produced without the model.
	Degraded bool `json:"-"`
}
