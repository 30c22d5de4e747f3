package testutil

import (
	"context"
	"sync"

	audit "bankguard/pkg/platform/audit"
)

// RecordingAuditor captures audit records synchronously for assertions.
type RecordingAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *RecordingAuditor) Record(_ context.Context, rec audit.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

// Records returns a copy of everything recorded so far.
func (a *RecordingAuditor) Records() []audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Record(nil), a.records...)
}

// Actions returns the action of each record in order.
func (a *RecordingAuditor) Actions() []audit.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Action, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r.Action)
	}
	return out
}
