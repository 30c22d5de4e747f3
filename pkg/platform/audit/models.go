package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit records by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers records with regulatory significance such as
	// policy violations and rule changes.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authorization decisions and role changes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine pipeline and data-management outcomes.
	CategoryOperations EventCategory = "operations"
)

// Action labels the branch or operation a record summarizes.
type Action string

const (
	// Query pipeline outcomes. Exactly one is written per invocation.
	ActionAIQueryPermissionDenied    Action = "AI_QUERY_PERMISSION_DENIED"
	ActionAIQueryComplianceViolation Action = "AI_QUERY_COMPLIANCE_VIOLATION"
	ActionAIQuerySuccess             Action = "AI_QUERY_SUCCESS"
	ActionAIQueryError               Action = "AI_QUERY_ERROR"

	// Access control
	ActionPermissionCheck Action = "PERMISSION_CHECK"
	ActionRoleCreated     Action = "CREATE_ROLE"
	ActionRoleUpdated     Action = "UPDATE_ROLE"
	ActionRoleDeleted     Action = "DELETE_ROLE"

	// Compliance management
	ActionRuleCreated Action = "COMPLIANCE_RULE_CREATED"
	ActionRuleUpdated Action = "COMPLIANCE_RULE_UPDATED"
	ActionRuleDeleted Action = "COMPLIANCE_RULE_DELETED"

	// Decisions
	ActionFraudScored     Action = "FRAUD_SCORED"
	ActionAdviceGenerated Action = "ADVICE_GENERATED"

	// Memory management
	ActionProfileCreated    Action = "PROFILE_CREATED"
	ActionProfileUpdated    Action = "PROFILE_UPDATED"
	ActionProfileDeleted    Action = "PROFILE_DELETED"
	ActionRetentionExtended Action = "RETENTION_EXTENDED"
)

var actionCategories = map[Action]EventCategory{
	ActionAIQueryPermissionDenied:    CategorySecurity,
	ActionAIQueryComplianceViolation: CategoryCompliance,
	ActionAIQuerySuccess:             CategoryOperations,
	ActionAIQueryError:               CategoryOperations,
	ActionPermissionCheck:            CategorySecurity,
	ActionRoleCreated:                CategorySecurity,
	ActionRoleUpdated:                CategorySecurity,
	ActionRoleDeleted:                CategorySecurity,
	ActionRuleCreated:                CategoryCompliance,
	ActionRuleUpdated:                CategoryCompliance,
	ActionRuleDeleted:                CategoryCompliance,
	ActionFraudScored:                CategoryOperations,
	ActionAdviceGenerated:            CategoryOperations,
	ActionProfileCreated:             CategoryCompliance,
	ActionProfileUpdated:             CategoryCompliance,
	ActionProfileDeleted:             CategoryCompliance,
	ActionRetentionExtended:          CategoryCompliance,
}

// Category returns the category for an action; unknown actions are operational.
func (a Action) Category() EventCategory {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Record is immutable once handed to a publisher.
type Record struct {
	ID            uuid.UUID
	Actor         string
	Action        Action
	ResourceType  string
	ResourceID    string
	Request       string
	Response      string
	SourceAddress string
	UserAgent     string
	Success       bool
	// ErrorMessage is empty when the operation succeeded.
	ErrorMessage string
	TraceID      string
	RequestID    string
	Timestamp    time.Time
}

// Category derives the record category from its action.
func (r Record) Category() EventCategory {
	return r.Action.Category()
}

// Query selects records; zero fields do not filter. Results are ordered by
// timestamp descending.
type Query struct {
	Actor         string
	ResourceType  string
	ResourceID    string
	SourceAddress string
	From          time.Time
	To            time.Time
	// FailuresOnly restricts results to records with Success=false.
	FailuresOnly bool
	Limit        int
}

// Matches reports whether r satisfies q. Time bounds are inclusive.
func (q Query) Matches(r Record) bool {
	if q.Actor != "" && r.Actor != q.Actor {
		return false
	}
	if q.ResourceType != "" && r.ResourceType != q.ResourceType {
		return false
	}
	if q.ResourceID != "" && r.ResourceID != q.ResourceID {
		return false
	}
	if q.SourceAddress != "" && r.SourceAddress != q.SourceAddress {
		return false
	}
	if !q.From.IsZero() && r.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.Timestamp.After(q.To) {
		return false
	}
	if q.FailuresOnly && r.Success {
		return false
	}
	return true
}

// Store persists records durably.
type Store interface {
	Append(ctx context.Context, record Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sink receives a copy of each record after it is stored. Sink failures are
// logged and never retried by the publisher.
type Sink interface {
	Publish(ctx context.Context, record Record) error
}
