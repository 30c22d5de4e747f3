// Package service generates personalized financial advice grounded in the
// knowledge base, the customer's stored profile and similar customers.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	decisionmodels "bankguard/internal/decision/models"
	"bankguard/internal/knowledge"
	memorymodels "bankguard/internal/memory/models"
	profilemodels "bankguard/internal/profile/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/audit"
)

const (
	ResourceTypeCustomer = "CUSTOMER"
	DefaultKnowledgeTopK = 5
)

const adviceInstructions = `You are an AI financial advisor for a bank. Provide personalized financial advice to the customer.
Consider the customer's goals and timeline, risk tolerance, current financial situation, market conditions, and tax or regulatory implications.
Advice must be ethical, compliant with financial regulations and in the customer's best interest.
Answer in a conversational but professional tone with:
1. A brief summary of your understanding of the customer's situation
2. Specific recommendations with clear reasoning
3. Next steps the customer should consider`

// Generator is the free-text form of the decision engine.
type Generator interface {
	Generate(ctx context.Context, req decisionmodels.Request, fallback string) (*decisionmodels.Text, error)
}

type Profiles interface {
	GetByCustomerID(ctx context.Context, customerID string) (*profilemodels.Profile, error)
}

type Knowledge interface {
	Search(ctx context.Context, text string, topK int) ([]knowledge.Match, error)
}

type Advice struct {
	Text     string
	Degraded bool
}

type Service struct {
	generator Generator
	profiles  Profiles
	knowledge Knowledge
	topK      int
	logger    *slog.Logger
	auditor   audit.Recorder
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

func WithKnowledgeTopK(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topK = n
		}
	}
}

func New(generator Generator, profiles Profiles, knowledge Knowledge, opts ...Option) *Service {
	s := &Service{
		generator: generator,
		profiles:  profiles,
		knowledge: knowledge,
		topK:      DefaultKnowledgeTopK,
		logger:    slog.Default(),
		auditor:   audit.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fallback is the answer given whenever advice cannot be generated.
func Fallback(query string) string {
	return "I apologize, but I'm unable to provide personalized financial advice at the moment. " +
		"Please consider scheduling an appointment with one of our financial advisors for " +
		"assistance with your query: \"" + query + "\"."
}

// Advise answers query for customerID. details are caller-supplied profile
// attributes; they override the stored profile's sections key by key. The
// stored profile, when present, is also the subject for the similar-customer
// lookup. Advice never fails once the input is valid: any upstream failure
// yields the fallback.
func (s *Service) Advise(ctx context.Context, customerID, query string, details map[string]any) (*Advice, error) {
	customerID = strings.TrimSpace(customerID)
	query = strings.TrimSpace(query)
	if customerID == "" || query == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "customerId and query are required")
	}

	stored := s.storedProfile(ctx, customerID)
	profileJSON, err := profileContext(customerID, stored, details)
	if err != nil {
		return nil, err
	}
	combined := query + "\n\nCustomer Profile: " + profileJSON

	req := decisionmodels.Request{
		Instructions: adviceInstructions,
		Query:        combined,
		Background:   s.knowledgeContext(ctx, combined),
	}
	if stored != nil {
		req.Subject = stored
		req.Retrievals = []decisionmodels.Retrieval{{
			Label: "Customers with similar profiles",
			Kind:  memorymodels.KindProfile,
		}}
	}

	advice := &Advice{}
	text, err := s.generator.Generate(ctx, req, Fallback(query))
	if err != nil {
		s.logger.ErrorContext(ctx, "advice generation failed", "customer_id", customerID, "error", err)
		advice.Text, advice.Degraded = Fallback(query), true
	} else {
		advice.Text, advice.Degraded = text.Text, text.Degraded
	}

	rec := audit.NewRecord(ctx, audit.ActionAdviceGenerated)
	rec.ResourceType = ResourceTypeCustomer
	rec.ResourceID = customerID
	rec.Request = query
	summary, _ := json.Marshal(struct {
		Degraded      bool `json:"degraded"`
		StoredProfile bool `json:"storedProfile"`
	}{advice.Degraded, stored != nil})
	rec.Response = string(summary)
	s.auditor.Record(ctx, rec.Succeeded())
	return advice, nil
}

func (s *Service) storedProfile(ctx context.Context, customerID string) *profilemodels.Profile {
	if s.profiles == nil {
		return nil
	}
	profile, err := s.profiles.GetByCustomerID(ctx, customerID)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			s.logger.WarnContext(ctx, "profile lookup failed, advising without it",
				"customer_id", customerID,
				"error", err,
			)
		}
		return nil
	}
	return profile
}

// knowledgeContext is best effort: advice without articles is still useful.
func (s *Service) knowledgeContext(ctx context.Context, text string) []string {
	if s.knowledge == nil {
		return nil
	}
	matches, err := s.knowledge.Search(ctx, text, s.topK)
	if err != nil {
		s.logger.WarnContext(ctx, "knowledge search failed", "error", err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("Relevant financial knowledge from the bank:")
	for _, m := range matches {
		b.WriteString("\n- ")
		b.WriteString(m.Article.Text())
	}
	return []string{b.String()}
}

// profileContext merges the stored sections with details into one JSON
// object. Contact details are never included.
func profileContext(customerID string, stored *profilemodels.Profile, details map[string]any) (string, error) {
	merged := map[string]any{}
	if stored != nil {
		for name, raw := range map[string]json.RawMessage{
			"preferences":    stored.Preferences,
			"financialData":  stored.FinancialData,
			"behavioralData": stored.BehavioralData,
		} {
			if len(raw) > 0 {
				merged[name] = raw
			}
		}
	}
	for k, v := range details {
		merged[k] = v
	}
	merged["customerId"] = customerID

	out, err := json.Marshal(merged)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "customerProfile must be JSON serializable")
	}
	return string(out), nil
}
