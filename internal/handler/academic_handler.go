package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/service"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
	"github.com/noah-isme/tc-academic-api/pkg/response"
)

type missedSessionFinder interface {
	Find(ctx context.Context, studentID string, query dto.MissedSessionQuery) (*service.MissedSessionCursor, error)
}

type makeupRanker interface {
	Options(ctx context.Context, sessionID, studentID string) (*dto.MakeupOptions, error)
}

type transferAdvisor interface {
	Eligibility(ctx context.Context, studentID, classID string) (*dto.TransferEligibility, error)
	Options(ctx context.Context, studentID, currentClassID string) (*dto.TransferOptions, error)
}

// AcademicHandler serves the read-only academic lookups behind request forms.
type AcademicHandler struct {
	missed    missedSessionFinder
	makeups   makeupRanker
	transfers transferAdvisor
}

// NewAcademicHandler constructs the handler.
func NewAcademicHandler(missed missedSessionFinder, makeups makeupRanker, transfers transferAdvisor) *AcademicHandler {
	return &AcademicHandler{missed: missed, makeups: makeups, transfers: transfers}
}

// MissedSessions godoc
// @Summary List sessions the student missed within the lookback window
// @Tags Academic
// @Produce json
// @Param id path string true "Student ID"
// @Param lookbackWeeks query int false "Override the policy lookback"
// @Param excludeRequested query bool false "Hide sessions with an active makeup request"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/missed-sessions [get]
func (h *AcademicHandler) MissedSessions(c *gin.Context) {
	query := dto.MissedSessionQuery{}
	if raw := c.Query("lookbackWeeks"); raw != "" {
		weeks, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "lookbackWeeks must be an integer"))
			return
		}
		query.LookbackWeeks = &weeks
	}
	if raw := c.Query("excludeRequested"); raw != "" {
		exclude, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "excludeRequested must be a boolean"))
			return
		}
		query.ExcludeRequested = exclude
	}

	cursor, err := h.missed.Find(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := cursor.Collect()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// MakeupOptions godoc
// @Summary Rank replacement sessions for a missed session
// @Tags Academic
// @Produce json
// @Param id path string true "Missed session ID"
// @Param studentId query string false "Student (required for staff)"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/makeup-options [get]
func (h *AcademicHandler) MakeupOptions(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	studentID, err := studentScope(claims, c.Query("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	options, err := h.makeups.Options(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options)
}

// TransferEligibility godoc
// @Summary Transfer quota per active enrollment
// @Tags Academic
// @Produce json
// @Param id path string true "Student ID"
// @Param classId query string false "Restrict to one class"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transfer-eligibility [get]
func (h *AcademicHandler) TransferEligibility(c *gin.Context) {
	result, err := h.transfers.Eligibility(c.Request.Context(), c.Param("id"), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// TransferOptions godoc
// @Summary Compare every open class the student could transfer into
// @Tags Academic
// @Produce json
// @Param id path string true "Student ID"
// @Param currentClassId query string true "Current class"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transfer-options [get]
func (h *AcademicHandler) TransferOptions(c *gin.Context) {
	result, err := h.transfers.Options(c.Request.Context(), c.Param("id"), c.Query("currentClassId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
