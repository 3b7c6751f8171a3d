package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"saheli/internal/middleware"
	"saheli/internal/modules/booking"
	"saheli/internal/pkg/response"
	"saheli/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts /services. protected must already run JWT auth.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	services := public.Group("/services")
	{
		services.GET("/:id", h.GetService)
		services.GET("", h.ListByProvider) // ?providerId=
	}
	protected.POST("/services", middleware.ProviderOnly(), h.CreateService)
}

// GetService handles GET /services/:id
func (h *Handler) GetService(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid service ID")
		return
	}

	view, err := h.service.GetService(c.Request.Context(), id)
	if err != nil {
		booking.RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *Handler) ListByProvider(c *gin.Context) {
	providerID, err := strconv.ParseInt(c.Query("providerId"), 10, 64)
	if err != nil || providerID <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "providerId query parameter is required")
		return
	}
	list, err := h.service.ListByProvider(c.Request.Context(), providerID)
	if err != nil {
		booking.RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"services": list})
}

// CreateService handles POST /services (provider only)
func (h *Handler) CreateService(c *gin.Context) {
	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(&req); len(errs) > 0 {
		response.ValidationError(c, "Invalid request", errs)
		return
	}

	svc, err := h.service.CreateService(c.Request.Context(), c.GetInt64(middleware.CtxUserID), req)
	if err != nil {
		booking.RenderError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"service": svc})
}
