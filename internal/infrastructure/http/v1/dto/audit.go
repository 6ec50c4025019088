package dto

import (
	"encoding/json"
	"time"

	"invclose/internal/infrastructure/storage/postgres"
)

// AuditEntryResponse is one audit trail row.
type AuditEntryResponse struct {
	ID               string          `json:"id"`
	Action           string          `json:"action"`
	EntityID         string          `json:"entityId"`
	FacilityTypeCode string          `json:"facilityTypeCode"`
	ActorID          string          `json:"actorId"`
	Changes          json.RawMessage `json:"changes,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// AuditHistoryResponse is the audit trail for one closing key, newest first.
type AuditHistoryResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	Total   int                  `json:"total"`
}

// FromAuditEntries converts audit entries to the response DTO.
func FromAuditEntries(entries []postgres.AuditEntry) AuditHistoryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:               e.ID.String(),
			Action:           e.Action,
			EntityID:         e.EntityID.String(),
			FacilityTypeCode: e.FacilityTypeCode,
			ActorID:          e.ActorID,
			Changes:          e.Changes,
			CreatedAt:        e.CreatedAt,
		})
	}
	return AuditHistoryResponse{Entries: out, Total: len(out)}
}
