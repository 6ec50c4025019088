package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"invclose/internal/core/apperror"
	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/domain/closing"
	"invclose/internal/infrastructure/http/v1/dto"
)

// ClosingHandler handles HTTP requests for the closing engine.
type ClosingHandler struct {
	*BaseHandler
	daily   *closing.DailyProcessor
	monthly *closing.MonthlyProcessor
	recalc  *closing.Coordinator
	query   *closing.QueryService
	guard   *closing.Guard
}

// NewClosingHandler creates a new closing handler.
func NewClosingHandler(
	base *BaseHandler,
	daily *closing.DailyProcessor,
	monthly *closing.MonthlyProcessor,
	recalc *closing.Coordinator,
	query *closing.QueryService,
	guard *closing.Guard,
) *ClosingHandler {
	return &ClosingHandler{
		BaseHandler: base,
		daily:       daily,
		monthly:     monthly,
		recalc:      recalc,
		query:       query,
		guard:       guard,
	}
}

// CloseDaily handles POST /closing/daily
// Fans out the daily closing over every facility type of the entity.
func (h *ClosingHandler) CloseDaily(c *gin.Context) {
	var req dto.CloseDailyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entityID, ok := h.parseEntityID(c, req.EntityID)
	if !ok {
		return
	}
	date, ok := h.parseDate(c, req.Date)
	if !ok {
		return
	}

	report, err := h.daily.CloseDayForEntity(c.Request.Context(), entityID, date)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromFanOutReport(report))
}

// CloseMonthly handles POST /closing/monthly
func (h *ClosingHandler) CloseMonthly(c *gin.Context) {
	var req dto.CloseMonthlyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entityID, ok := h.parseEntityID(c, req.EntityID)
	if !ok {
		return
	}
	key := closing.Key{EntityID: entityID, FacilityTypeCode: req.FacilityTypeCode}

	res, err := h.monthly.CloseMonth(c.Request.Context(), key, req.Year, time.Month(req.Month))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCloseResult(res))
}

// Recalculate handles POST /closing/daily/recalculate
// On an aborted cascade both the error and the partial report are returned:
// the report goes under the error details so callers see how far the sweep got.
func (h *ClosingHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entityID, ok := h.parseEntityID(c, req.EntityID)
	if !ok {
		return
	}
	date, ok := h.parseDate(c, req.Date)
	if !ok {
		return
	}
	key := closing.Key{EntityID: entityID, FacilityTypeCode: req.FacilityTypeCode}

	report, err := h.recalc.Recalculate(c.Request.Context(), key, date)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && report != nil {
			h.Error(c, appErr.WithDetail("report", dto.FromRecalcReport(report)))
			return
		}
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecalcReport(report))
}

// GetDaily handles GET /closing/daily
func (h *ClosingHandler) GetDaily(c *gin.Context) {
	key, ok := h.parseKeyQuery(c)
	if !ok {
		return
	}
	date, ok := h.parseDate(c, c.Query("date"))
	if !ok {
		return
	}

	rec, err := h.query.GetDailyRecord(c.Request.Context(), key, date)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecord(rec))
}

// GetMonthly handles GET /closing/monthly
func (h *ClosingHandler) GetMonthly(c *gin.Context) {
	key, ok := h.parseKeyQuery(c)
	if !ok {
		return
	}
	year, month, ok := h.parseYearMonth(c)
	if !ok {
		return
	}

	rec, err := h.query.GetMonthlyRecord(c.Request.Context(), key, year, month)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecord(rec))
}

// DailyStatusByMonth handles GET /closing/daily-status-by-month
func (h *ClosingHandler) DailyStatusByMonth(c *gin.Context) {
	entityID, ok := h.parseEntityID(c, c.Query("entityId"))
	if !ok {
		return
	}
	year, month, ok := h.parseYearMonth(c)
	if !ok {
		return
	}

	recs, err := h.query.DailyStatusByMonth(c.Request.Context(), entityID, year, month)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecords(recs))
}

// MonthlyStatusByYear handles GET /closing/monthly-status-by-year
func (h *ClosingHandler) MonthlyStatusByYear(c *gin.Context) {
	entityID, ok := h.parseEntityID(c, c.Query("entityId"))
	if !ok {
		return
	}
	year := h.ParseIntQuery(c, "year", 0)
	if year == 0 {
		h.Error(c, apperror.NewValidation("year is required"))
		return
	}

	recs, err := h.query.MonthlyStatusByYear(c.Request.Context(), entityID, year)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecords(recs))
}

// CurrentPosition handles GET /closing/current-position
func (h *ClosingHandler) CurrentPosition(c *gin.Context) {
	key, ok := h.parseKeyQuery(c)
	if !ok {
		return
	}

	pos, err := h.query.Position(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCurrentPosition(pos))
}

// MonthClosed handles GET /closing/month-closed
// Answers whether a ledger transaction dated on the given date would be
// rejected because its month is finalized.
func (h *ClosingHandler) MonthClosed(c *gin.Context) {
	key, ok := h.parseKeyQuery(c)
	if !ok {
		return
	}
	date, ok := h.parseDate(c, c.Query("date"))
	if !ok {
		return
	}

	err := h.guard.CanRegister(c.Request.Context(), key, date)
	if err != nil && !apperror.IsCode(err, apperror.CodeMonthClosed) {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.MonthClosedResponse{
		Period: period.MonthOf(date).String(),
		Closed: err != nil,
	})
}

// --- Parsing helpers ---

func (h *ClosingHandler) parseEntityID(c *gin.Context, raw string) (id.ID, bool) {
	if raw == "" {
		h.Error(c, apperror.NewValidation("entityId is required"))
		return id.Nil(), false
	}
	entityID, err := id.Parse(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entityId format"))
		return id.Nil(), false
	}
	return entityID, true
}

func (h *ClosingHandler) parseDate(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		h.Error(c, apperror.NewValidation("date is required"))
		return time.Time{}, false
	}
	date, err := period.ParseDate(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid date format, expected YYYY-MM-DD"))
		return time.Time{}, false
	}
	return date, true
}

func (h *ClosingHandler) parseKeyQuery(c *gin.Context) (closing.Key, bool) {
	entityID, ok := h.parseEntityID(c, c.Query("entityId"))
	if !ok {
		return closing.Key{}, false
	}
	code := c.Query("facilityTypeCode")
	if code == "" {
		h.Error(c, apperror.NewValidation("facilityTypeCode is required"))
		return closing.Key{}, false
	}
	return closing.Key{EntityID: entityID, FacilityTypeCode: code}, true
}

func (h *ClosingHandler) parseYearMonth(c *gin.Context) (int, time.Month, bool) {
	year := h.ParseIntQuery(c, "year", 0)
	month := h.ParseIntQuery(c, "month", 0)
	if !period.ValidMonth(year, month) {
		h.Error(c, apperror.NewValidation("valid year and month are required"))
		return 0, 0, false
	}
	return year, time.Month(month), true
}
