// Package models defines scored card and account transactions.
package models

import (
	"regexp"
	"strings"
	"time"

	memorymodels "bankguard/internal/memory/models"
	dErrors "bankguard/pkg/domain-errors"
)

type Type string

const (
	TypeDebit    Type = "DEBIT"
	TypeCredit   Type = "CREDIT"
	TypeTransfer Type = "TRANSFER"
)

func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(raw))); t {
	case TypeDebit, TypeCredit, TypeTransfer:
		return t, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "type must be DEBIT, CREDIT or TRANSFER")
}

// amountPattern matches a positive decimal with at most four fraction digits,
// the precision of the amount column.
var amountPattern = regexp.MustCompile(`^(0|[1-9][0-9]{0,14})(\.[0-9]{1,4})?$`)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Transaction is persisted once, after scoring. FraudScore is nil only
// before scoring.
type Transaction struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"accountId"`
	CustomerID       string    `json:"customerId"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Type             Type      `json:"type"`
	MerchantName     string    `json:"merchantName,omitempty"`
	MerchantCategory string    `json:"merchantCategory,omitempty"`
	Description      string    `json:"description,omitempty"`
	Location         string    `json:"location,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	DeviceID         string    `json:"deviceId,omitempty"`
	FlaggedForReview bool      `json:"flaggedForReview"`
	FraudScore       *float64  `json:"fraudScore,omitempty"`
	FraudReason      string    `json:"fraudReason,omitempty"`
	Degraded         bool      `json:"degraded,omitempty"`
}

// Validate checks the caller-supplied fields.
// CanonicalAmount drops trailing fraction zeros from a validated amount, so
// "42.50" and the stored NUMERIC read back as the same string.
func CanonicalAmount(amount string) string {
	whole, frac, ok := strings.Cut(amount, ".")
	if !ok {
		return amount
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func (t *Transaction) Validate() error {
	if t.AccountID == "" || t.CustomerID == "" {
		return dErrors.New(dErrors.CodeValidation, "accountId and customerId are required")
	}
	if !amountPattern.MatchString(t.Amount) || strings.Trim(t.Amount, "0.") == "" {
		return dErrors.New(dErrors.CodeValidation, "amount must be a positive decimal with at most 4 fraction digits")
	}
	if !currencyPattern.MatchString(t.Currency) {
		return dErrors.New(dErrors.CodeValidation, "currency must be a 3-letter ISO code")
	}
	if _, err := ParseType(string(t.Type)); err != nil {
		return err
	}
	return nil
}

func (t *Transaction) Kind() memorymodels.Kind { return memorymodels.KindTransaction }
func (t *Transaction) NaturalKey() string      { return t.ID }
func (t *Transaction) Owner() string           { return t.CustomerID }

// Fields is the embedded view of a transaction. Identifiers and scoring
// output are excluded so history is compared on behaviour alone.
func (t *Transaction) Fields() []memorymodels.Field {
	hour := ""
	if !t.Timestamp.IsZero() {
		hour = t.Timestamp.UTC().Format("15") + "h UTC"
	}
	return []memorymodels.Field{
		{Name: "Customer", Value: t.CustomerID},
		{Name: "Amount", Value: t.Amount + " " + t.Currency},
		{Name: "Type", Value: string(t.Type)},
		{Name: "Merchant", Value: t.MerchantName},
		{Name: "Merchant Category", Value: t.MerchantCategory},
		{Name: "Description", Value: t.Description},
		{Name: "Location", Value: t.Location},
		{Name: "Time", Value: hour},
		{Name: "Device", Value: t.DeviceID},
		{Name: "IP Address", Value: t.IPAddress},
	}
}

func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.FraudScore != nil {
		score := *t.FraudScore
		c.FraudScore = &score
	}
	return &c
}
