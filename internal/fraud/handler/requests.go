package handler

import (
	"strings"
	"time"

	"bankguard/internal/fraud/models"
	dErrors "bankguard/pkg/domain-errors"
)

// TransactionRequest is the body of POST /process. Scoring fields are not
// accepted from callers.
type TransactionRequest struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"accountId"`
	CustomerID       string    `json:"customerId"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Type             string    `json:"type"`
	MerchantName     string    `json:"merchantName"`
	MerchantCategory string    `json:"merchantCategory"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	Timestamp        time.Time `json:"timestamp"`
	IPAddress        string    `json:"ipAddress"`
	DeviceID         string    `json:"deviceId"`
}

func (r *TransactionRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.AccountID = strings.TrimSpace(r.AccountID)
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.Amount = strings.TrimSpace(r.Amount)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.Type = strings.ToUpper(strings.TrimSpace(r.Type))
	r.MerchantName = strings.TrimSpace(r.MerchantName)
	r.MerchantCategory = strings.TrimSpace(r.MerchantCategory)
	r.Location = strings.TrimSpace(r.Location)
}

func (r *TransactionRequest) Validate() error {
	if r.AccountID == "" || r.CustomerID == "" {
		return dErrors.New(dErrors.CodeValidation, "accountId and customerId are required")
	}
	if r.Amount == "" || r.Currency == "" || r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "amount, currency and type are required")
	}
	return nil
}

func (r *TransactionRequest) Transaction() *models.Transaction {
	return &models.Transaction{
		ID:               r.ID,
		AccountID:        r.AccountID,
		CustomerID:       r.CustomerID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Type:             models.Type(r.Type),
		MerchantName:     r.MerchantName,
		MerchantCategory: r.MerchantCategory,
		Description:      r.Description,
		Location:         r.Location,
		Timestamp:        r.Timestamp,
		IPAddress:        r.IPAddress,
		DeviceID:         r.DeviceID,
	}
}
