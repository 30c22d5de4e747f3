package handler

import (
	"time"

	audit "bankguard/pkg/platform/audit"
)

// RecordResponse is the JSON shape of one audit record.
type RecordResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Action       string    `json:"action"`
	Category     string    `json:"category"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Request      string    `json:"request,omitempty"`
	Response     string    `json:"response,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage *string   `json:"errorMessage"`
	TraceID      string    `json:"traceId"`
	Timestamp    time.Time `json:"timestamp"`
}

// FromRecords converts records, returning an empty slice rather than nil.
func FromRecords(records []audit.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		resp := RecordResponse{
			ID:           r.ID.String(),
			UserID:       r.Actor,
			Action:       string(r.Action),
			Category:     string(r.Category()),
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			Request:      r.Request,
			Response:     r.Response,
			IPAddress:    r.SourceAddress,
			UserAgent:    r.UserAgent,
			Success:      r.Success,
			TraceID:      r.TraceID,
			Timestamp:    r.Timestamp,
		}
		if r.ErrorMessage != "" {
			msg := r.ErrorMessage
			resp.ErrorMessage = &msg
		}
		out = append(out, resp)
	}
	return out
}
