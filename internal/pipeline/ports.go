package pipeline

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks PermissionGate,ComplianceGate,Sessions,Decider,Profiles

import (
	"context"

	"github.com/google/uuid"

	compliancemodels "bankguard/internal/compliance/models"
	decisionmodels "bankguard/internal/decision/models"
	profilemodels "bankguard/internal/profile/models"
	sessionmodels "bankguard/internal/session/models"
)

// PermissionGate fails closed: unknown roles and store errors deny.
type PermissionGate interface {
	Check(ctx context.Context, userID, role, permission string) bool
}

type ComplianceGate interface {
	Validate(ctx context.Context, text string) (*compliancemodels.Verdict, error)
}

type Sessions interface {
	Resolve(ctx context.Context, rawID, userID, sessionType string) (*sessionmodels.Session, bool, error)
	SetValues(ctx context.Context, id uuid.UUID, values map[string]any) error
}

// Decider is the free-text form of the decision engine.
type Decider interface {
	Generate(ctx context.Context, req decisionmodels.Request, fallback string) (*decisionmodels.Text, error)
}

type Profiles interface {
	GetByCustomerID(ctx context.Context, customerID string) (*profilemodels.Profile, error)
}
