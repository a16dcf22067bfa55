package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulink/edulink-api/internal/service"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
	"github.com/edulink/edulink-api/pkg/response"
)

// AttendanceHandler exposes attendance marking, summaries and reports.
type AttendanceHandler struct {
	service *service.AttendanceService
	exports *service.ExportService
	metrics *service.MetricsService
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc *service.AttendanceService, exports *service.ExportService, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, exports: exports, metrics: metrics}
}

// BulkMark godoc
// @Summary Bulk mark attendance
// @Description Mark attendance for multiple students of one subject on one day
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkMarkRequest true "Bulk mark payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk mark payload"))
		return
	}

	result, err := h.service.BulkMark(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordBulkMark(result.Succeeded, len(result.Failures))

	response.JSON(c, http.StatusOK, result, nil)
}

// SubjectSummary godoc
// @Summary Attendance summary for one subject
// @Description Attendance statistics for the calling student in one subject
// @Tags Attendance
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/subjects/{id}/summary [get]
func (h *AttendanceHandler) SubjectSummary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.service.StudentSubjectSummary(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}

// AllSubjectsSummary godoc
// @Summary Attendance summary across subjects
// @Description Attendance statistics for every subject the calling student attends
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/summary [get]
func (h *AttendanceHandler) AllSubjectsSummary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summaries, err := h.service.StudentAllSubjectsSummary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summaries, nil)
}

// ComprehensiveReport godoc
// @Summary Comprehensive attendance report
// @Description Per-student statistics and day status for the full subject roster
// @Tags Attendance
// @Produce json
// @Param id path string true "Subject ID"
// @Param date query string true "Report date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/subjects/{id}/report [get]
func (h *AttendanceHandler) ComprehensiveReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.service.ComprehensiveReport(c.Request.Context(), c.Param("id"), c.Query("date"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rows, nil)
}

// ExportReport godoc
// @Summary Export comprehensive report
// @Description Download the comprehensive report as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param id path string true "Subject ID"
// @Param date query string true "Report date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /attendance/subjects/{id}/report/export [get]
func (h *AttendanceHandler) ExportReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	file, err := h.exports.ComprehensiveReportFile(c.Request.Context(), c.Param("id"), c.Query("date"), c.Query("format"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// AtRisk godoc
// @Summary At-risk students
// @Description Roster members below the attendance threshold
// @Tags Attendance
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/subjects/{id}/at-risk [get]
func (h *AttendanceHandler) AtRisk(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	students, err := h.service.AtRiskStudents(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, students, nil)
}
