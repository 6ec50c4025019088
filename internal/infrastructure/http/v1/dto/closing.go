package dto

import (
	"time"

	"invclose/internal/core/period"
	"invclose/internal/domain/closing"
)

// --- Requests ---

// CloseDailyRequest fans out a daily closing over one entity.
type CloseDailyRequest struct {
	EntityID string `json:"entityId" binding:"required,uuid"`
	Date     string `json:"date" binding:"required"`
}

// CloseMonthlyRequest closes one month for one key.
type CloseMonthlyRequest struct {
	EntityID         string `json:"entityId" binding:"required,uuid"`
	FacilityTypeCode string `json:"facilityTypeCode" binding:"required"`
	Year             int    `json:"year" binding:"required,min=1970,max=9999"`
	Month            int    `json:"month" binding:"required,min=1,max=12"`
}

// RecalculateRequest starts a forward cascade from a date.
type RecalculateRequest struct {
	EntityID         string `json:"entityId" binding:"required,uuid"`
	FacilityTypeCode string `json:"facilityTypeCode" binding:"required"`
	Date             string `json:"date" binding:"required"`
}

// --- Responses ---

// RecordResponse is one closing snapshot.
type RecordResponse struct {
	ID               string     `json:"id"`
	EntityID         string     `json:"entityId"`
	FacilityTypeCode string     `json:"facilityTypeCode"`
	Granularity      string     `json:"granularity"`
	Period           string     `json:"period"`
	PreviousQuantity int64      `json:"previousQuantity"`
	InboundQuantity  int64      `json:"inboundQuantity"`
	OutboundQuantity int64      `json:"outboundQuantity"`
	ClosingQuantity  int64      `json:"closingQuantity"`
	IsClosed         bool       `json:"isClosed"`
	ClosedAt         *time.Time `json:"closedAt,omitempty"`
	ClosedBy         string     `json:"closedBy,omitempty"`
	Version          int        `json:"version"`
}

// FromRecord creates RecordResponse from closing.Record.
func FromRecord(r *closing.Record) RecordResponse {
	return RecordResponse{
		ID:               r.ID.String(),
		EntityID:         r.EntityID.String(),
		FacilityTypeCode: r.FacilityTypeCode,
		Granularity:      string(r.Granularity),
		Period:           r.Period().String(),
		PreviousQuantity: r.PreviousQuantity,
		InboundQuantity:  r.InboundQuantity,
		OutboundQuantity: r.OutboundQuantity,
		ClosingQuantity:  r.ClosingQuantity,
		IsClosed:         r.IsClosed,
		ClosedAt:         r.ClosedAt,
		ClosedBy:         r.ClosedBy,
		Version:          r.Version,
	}
}

// RecordListResponse wraps status views.
type RecordListResponse struct {
	Items []RecordResponse `json:"items"`
}

// FromRecords creates RecordListResponse from a record slice.
func FromRecords(recs []closing.Record) RecordListResponse {
	items := make([]RecordResponse, len(recs))
	for i := range recs {
		items[i] = FromRecord(&recs[i])
	}
	return RecordListResponse{Items: items}
}

// CloseResultResponse is the outcome of a single-key closing.
type CloseResultResponse struct {
	Record        RecordResponse `json:"record"`
	AlreadyClosed bool           `json:"alreadyClosed"`
}

// FromCloseResult creates CloseResultResponse from closing.CloseResult.
func FromCloseResult(res *closing.CloseResult) CloseResultResponse {
	return CloseResultResponse{
		Record:        FromRecord(res.Record),
		AlreadyClosed: res.AlreadyClosed,
	}
}

// FanOutOutcomeResponse is one key's result inside an entity-wide closing.
type FanOutOutcomeResponse struct {
	FacilityTypeCode string          `json:"facilityTypeCode"`
	Status           string          `json:"status"`
	Record           *RecordResponse `json:"record,omitempty"`
	ErrorCode        string          `json:"errorCode,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
}

// FanOutReportResponse is the per-key outcome of an entity-wide daily close.
type FanOutReportResponse struct {
	EntityID           string                  `json:"entityId"`
	Date               string                  `json:"date"`
	Outcomes           []FanOutOutcomeResponse `json:"outcomes"`
	ClosedCount        int                     `json:"closedCount"`
	AlreadyClosedCount int                     `json:"alreadyClosedCount"`
	FailedCount        int                     `json:"failedCount"`
}

// FromFanOutReport creates FanOutReportResponse from closing.FanOutReport.
func FromFanOutReport(r *closing.FanOutReport) FanOutReportResponse {
	outcomes := make([]FanOutOutcomeResponse, len(r.Outcomes))
	for i, o := range r.Outcomes {
		outcomes[i] = FanOutOutcomeResponse{
			FacilityTypeCode: o.FacilityTypeCode,
			Status:           string(o.Status),
			ErrorCode:        o.ErrorCode,
			ErrorMessage:     o.ErrorMessage,
		}
		if o.Record != nil {
			rec := FromRecord(o.Record)
			outcomes[i].Record = &rec
		}
	}
	return FanOutReportResponse{
		EntityID:           r.EntityID.String(),
		Date:               period.FormatDate(r.Date),
		Outcomes:           outcomes,
		ClosedCount:        r.ClosedCount,
		AlreadyClosedCount: r.AlreadyClosed,
		FailedCount:        r.FailedCount,
	}
}

// RecalcEntryResponse documents one recomputed period.
type RecalcEntryResponse struct {
	Period             string `json:"period"`
	OldClosingQuantity int64  `json:"oldClosingQuantity"`
	NewClosingQuantity int64  `json:"newClosingQuantity"`
	VersionBefore      int    `json:"versionBefore"`
	VersionAfter       int    `json:"versionAfter"`
	Changed            bool   `json:"changed"`
}

// RecalcReportResponse lists every period touched by a recalculation sweep.
type RecalcReportResponse struct {
	EntityID         string                `json:"entityId"`
	FacilityTypeCode string                `json:"facilityTypeCode"`
	FromDate         string                `json:"fromDate"`
	Days             []RecalcEntryResponse `json:"days"`
	Months           []RecalcEntryResponse `json:"months"`
	ChangedCount     int                   `json:"changedCount"`
	Aborted          bool                  `json:"aborted"`
	AbortedPeriod    string                `json:"abortedPeriod,omitempty"`
}

// FromRecalcReport creates RecalcReportResponse from closing.RecalcReport.
func FromRecalcReport(r *closing.RecalcReport) RecalcReportResponse {
	return RecalcReportResponse{
		EntityID:         r.EntityID.String(),
		FacilityTypeCode: r.FacilityTypeCode,
		FromDate:         period.FormatDate(r.FromDate),
		Days:             fromRecalcEntries(r.Days),
		Months:           fromRecalcEntries(r.Months),
		ChangedCount:     r.ChangedCount,
		Aborted:          r.Aborted,
		AbortedPeriod:    r.AbortedPeriod,
	}
}

func fromRecalcEntries(entries []closing.RecalcEntry) []RecalcEntryResponse {
	out := make([]RecalcEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = RecalcEntryResponse{
			Period:             e.Period,
			OldClosingQuantity: e.OldClosingQuantity,
			NewClosingQuantity: e.NewClosingQuantity,
			VersionBefore:      e.VersionBefore,
			VersionAfter:       e.VersionAfter,
			Changed:            e.Changed,
		}
	}
	return out
}

// CurrentPositionResponse is the live position projection.
type CurrentPositionResponse struct {
	EntityID          string  `json:"entityId"`
	FacilityTypeCode  string  `json:"facilityTypeCode"`
	BaseQuantity      int64   `json:"baseQuantity"`
	RecentInbound     int64   `json:"recentInbound"`
	RecentOutbound    int64   `json:"recentOutbound"`
	CurrentQuantity   int64   `json:"currentQuantity"`
	LatestClosingDate *string `json:"latestClosingDate,omitempty"`
}

// FromCurrentPosition creates CurrentPositionResponse from closing.CurrentPosition.
func FromCurrentPosition(p *closing.CurrentPosition) CurrentPositionResponse {
	resp := CurrentPositionResponse{
		EntityID:         p.EntityID.String(),
		FacilityTypeCode: p.FacilityTypeCode,
		BaseQuantity:     p.BaseQuantity,
		RecentInbound:    p.RecentInbound,
		RecentOutbound:   p.RecentOutbound,
		CurrentQuantity:  p.CurrentQuantity,
	}
	if p.LatestClosingDate != nil {
		d := period.FormatDate(*p.LatestClosingDate)
		resp.LatestClosingDate = &d
	}
	return resp
}

// MonthClosedResponse answers the month-closed predicate.
type MonthClosedResponse struct {
	Period string `json:"period"`
	Closed bool   `json:"closed"`
}
