package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/internal/models"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
	"github.com/noah-isme/tc-academic-api/pkg/response"
)

type studentRequestService interface {
	Submit(ctx context.Context, studentID string, req dto.CreateStudentRequest) (*models.StudentRequest, error)
	SubmitOnBehalf(ctx context.Context, staffID string, req dto.OnBehalfRequest) (*models.StudentRequest, error)
	Approve(ctx context.Context, id, deciderID string, req dto.DecideRequest) (*models.StudentRequest, error)
	Reject(ctx context.Context, id, deciderID, note string) (*models.StudentRequest, error)
	Cancel(ctx context.Context, id, studentID string) (*models.StudentRequest, error)
	Get(ctx context.Context, id string) (*models.StudentRequest, error)
	List(ctx context.Context, query dto.StudentRequestQuery) ([]models.StudentRequest, error)
}

// StudentRequestHandler exposes the student request workflow.
type StudentRequestHandler struct {
	service studentRequestService
}

// NewStudentRequestHandler constructs the handler.
func NewStudentRequestHandler(service studentRequestService) *StudentRequestHandler {
	return &StudentRequestHandler{service: service}
}

// Submit godoc
// @Summary Submit an absence, makeup or transfer request
// @Tags StudentRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateStudentRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /student-requests [post]
func (h *StudentRequestHandler) Submit(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role != models.RoleStudent {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only students submit their own requests"))
		return
	}
	var req dto.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	created, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// SubmitOnBehalf godoc
// @Summary Record a request on behalf of a student; it is approved immediately
// @Tags StudentRequests
// @Accept json
// @Produce json
// @Param payload body dto.OnBehalfRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /student-requests/on-behalf [post]
func (h *StudentRequestHandler) SubmitOnBehalf(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.OnBehalfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	created, err := h.service.SubmitOnBehalf(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List student requests
// @Tags StudentRequests
// @Produce json
// @Param status query []string false "Statuses" collectionFormat(multi)
// @Param type query string false "Request type"
// @Param studentId query string false "Student (staff only)"
// @Param classId query string false "Current class"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /student-requests [get]
func (h *StudentRequestHandler) List(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.StudentRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	if !claims.Role.IsStaff() {
		if query.StudentID, err = studentScope(claims, query.StudentID); err != nil {
			response.Error(c, err)
			return
		}
	}
	items, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Get godoc
// @Summary Get a student request
// @Tags StudentRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id} [get]
func (h *StudentRequestHandler) Get(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !claims.Role.IsStaff() && item.StudentID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "request not found"))
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// Approve godoc
// @Summary Approve a pending request and apply its side effects
// @Tags StudentRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecideRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id}/approve [post]
func (h *StudentRequestHandler) Approve(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DecideRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// Reject godoc
// @Summary Reject a pending request
// @Tags StudentRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecideRequest true "Decision with note"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id}/reject [post]
func (h *StudentRequestHandler) Reject(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DecideRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// Cancel godoc
// @Summary Withdraw one's own pending request
// @Tags StudentRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id}/cancel [post]
func (h *StudentRequestHandler) Cancel(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// bindOptionalJSON binds a JSON body when one was sent.
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload")
	}
	return nil
}
