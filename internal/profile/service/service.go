// Package service manages customer profiles. Every write regenerates the
// profile's embedding through the memory service.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	memorymodels "bankguard/internal/memory/models"
	memoryservice "bankguard/internal/memory/service"
	"bankguard/internal/profile/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/audit"
)

const ResourceTypeProfile = "CUSTOMER_PROFILE"

// Similarity defaults for FindSimilar.
const (
	DefaultSimilarThreshold = 0.7
	DefaultSimilarLimit     = 10
)

// Memory is the subset of the memory service profiles need.
type Memory interface {
	Store(ctx context.Context, doc memorymodels.Document) (*memorymodels.Record, error)
	Get(ctx context.Context, kind memorymodels.Kind, key string) (*memorymodels.Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*memorymodels.Record, error)
	SimilaritySearch(ctx context.Context, q memoryservice.Query) ([]memorymodels.Match, error)
	ExtendRetention(ctx context.Context, kind memorymodels.Kind, key string, years int) (*memorymodels.Record, error)
	Delete(ctx context.Context, kind memorymodels.Kind, key string) error
}

// Similar is a neighbouring profile and its embedding distance.
type Similar struct {
	Profile  *models.Profile
	Distance float64
}

type Service struct {
	memory  Memory
	logger  *slog.Logger
	auditor audit.Recorder
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Recorder) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func New(memory Memory, opts ...Option) *Service {
	s := &Service{
		memory:  memory,
		logger:  slog.Default(),
		auditor: audit.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, spec models.Spec) (*models.Profile, error) {
	customerID := strings.TrimSpace(spec.CustomerID)
	if customerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "customerId is required")
	}
	if _, err := s.memory.Get(ctx, memorymodels.KindProfile, customerID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "profile already exists for customer")
	} else if !dErrors.Is(err, dErrors.CodeNotFound) {
		return nil, err
	}

	profile := &models.Profile{CustomerID: customerID}
	if err := profile.Apply(spec); err != nil {
		return nil, err
	}
	stored, err := s.save(ctx, profile)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionProfileCreated, stored)
	s.logger.InfoContext(ctx, "profile created",
		"profile_id", stored.ID,
		"customer_id", customerID,
	)
	return stored, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	rec, err := s.memory.GetByID(ctx, id)
	if err != nil {
		return nil, profileErr(err)
	}
	return models.FromRecord(rec)
}

func (s *Service) GetByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	rec, err := s.memory.Get(ctx, memorymodels.KindProfile, customerID)
	if err != nil {
		return nil, profileErr(err)
	}
	return models.FromRecord(rec)
}

// Update replaces the editable fields of the profile with id. The customer id
// never changes.
func (s *Service) Update(ctx context.Context, id uuid.UUID, spec models.Spec) (*models.Profile, error) {
	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := profile.Apply(spec); err != nil {
		return nil, err
	}
	return s.update(ctx, profile)
}

func (s *Service) UpdatePreferences(ctx context.Context, customerID string, preferences json.RawMessage) (*models.Profile, error) {
	return s.updateSection(ctx, customerID, func(p *models.Profile) error {
		var err error
		p.Preferences, err = models.CanonicalObject("preferences", preferences)
		return err
	})
}

func (s *Service) UpdateBehavioralData(ctx context.Context, customerID string, data json.RawMessage) (*models.Profile, error) {
	return s.updateSection(ctx, customerID, func(p *models.Profile) error {
		var err error
		p.BehavioralData, err = models.CanonicalObject("behavioralData", data)
		return err
	})
}

func (s *Service) updateSection(ctx context.Context, customerID string, apply func(*models.Profile) error) (*models.Profile, error) {
	profile, err := s.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := apply(profile); err != nil {
		return nil, err
	}
	return s.update(ctx, profile)
}

func (s *Service) update(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	stored, err := s.save(ctx, profile)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionProfileUpdated, stored)
	s.logger.InfoContext(ctx, "profile updated",
		"profile_id", stored.ID,
		"customer_id", stored.CustomerID,
	)
	return stored, nil
}

// FindSimilar returns profiles nearest to the customer's own, excluding it.
func (s *Service) FindSimilar(ctx context.Context, customerID string, threshold float64, limit int) ([]Similar, error) {
	profile, err := s.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	matches, err := s.memory.SimilaritySearch(ctx, memoryservice.Query{
		Kind:      memorymodels.KindProfile,
		RecordID:  profile.ID,
		Threshold: threshold,
		TopK:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Similar, 0, len(matches))
	for _, m := range matches {
		p, err := models.FromRecord(m.Record)
		if err != nil {
			return nil, err
		}
		out = append(out, Similar{Profile: p, Distance: m.Distance})
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	profile, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.memory.Delete(ctx, memorymodels.KindProfile, profile.CustomerID); err != nil {
		return profileErr(err)
	}
	rec := audit.NewRecord(ctx, audit.ActionProfileDeleted)
	rec.ResourceType = ResourceTypeProfile
	rec.ResourceID = profile.CustomerID
	s.auditor.Record(ctx, rec.Succeeded())
	s.logger.InfoContext(ctx, "profile deleted", "profile_id", id)
	return nil
}

func (s *Service) ExtendRetention(ctx context.Context, customerID string, years int) (*models.Profile, error) {
	rec, err := s.memory.ExtendRetention(ctx, memorymodels.KindProfile, customerID, years)
	if err != nil {
		return nil, profileErr(err)
	}
	profile, err := models.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionRetentionExtended, profile)
	return profile, nil
}

func (s *Service) save(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	rec, err := s.memory.Store(ctx, profile)
	if err != nil {
		return nil, err
	}
	return models.FromRecord(rec)
}

// record audits a profile change. Contact details stay out of the trail.
func (s *Service) record(ctx context.Context, action audit.Action, profile *models.Profile) {
	rec := audit.NewRecord(ctx, action)
	rec.ResourceType = ResourceTypeProfile
	rec.ResourceID = profile.CustomerID
	summary, _ := json.Marshal(struct {
		ProfileID      uuid.UUID `json:"profileId"`
		RetentionUntil time.Time `json:"retentionUntil"`
	}{profile.ID, profile.RetentionUntil})
	rec.Response = string(summary)
	s.auditor.Record(ctx, rec.Succeeded())
}

func profileErr(err error) error {
	if dErrors.Is(err, dErrors.CodeNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	return err
}
