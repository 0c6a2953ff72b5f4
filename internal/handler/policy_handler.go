package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/pkg/response"
)

type policyService interface {
	Snapshot(ctx context.Context) (models.Policies, error)
	Get(ctx context.Context, key string) (string, error)
	Refresh(ctx context.Context) (models.Policies, error)
}

// PolicyHandler exposes the effective policy values.
type PolicyHandler struct {
	service policyService
}

// NewPolicyHandler constructs the handler.
func NewPolicyHandler(service policyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// List godoc
// @Summary Effective policy values
// @Tags Policies
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /policies [get]
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.service.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies)
}

// Get godoc
// @Summary Raw value of one policy key
// @Tags Policies
// @Produce json
// @Param key path string true "Policy key"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /policies/{key} [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	key := c.Param("key")
	value, err := h.service.Get(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"key": key, "value": value})
}

// Refresh godoc
// @Summary Drop cached policy values and reload them
// @Tags Policies
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /policies/refresh [post]
func (h *PolicyHandler) Refresh(c *gin.Context) {
	policies, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies)
}
