package payment

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"saheli/internal/gateway/razorpay"
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

// RegisterRoutes mounts payment endpoints under the /booking groups.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/webhook/razorpay", h.Webhook)

	protected.POST("/payment/verify", middleware.CustomerOnly(), h.VerifyAdvance)
	protected.POST("/:id/remaining/order", middleware.CustomerOnly(), h.CreateRemainingOrder)
	protected.POST("/payment/remaining/verify", middleware.CustomerOnly(), h.VerifyRemaining)
}

func bindVerify(c *gin.Context) (VerifyRequest, bool) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return req, false
	}
	if errs := validator.Validate(&req); len(errs) > 0 {
		response.ValidationError(c, "Invalid request", errs)
		return req, false
	}
	return req, true
}

func (h *Handler) VerifyAdvance(c *gin.Context) {
	req, ok := bindVerify(c)
	if !ok {
		return
	}
	res, err := h.service.VerifyAdvance(c.Request.Context(), c.GetInt64(middleware.CtxUserID), req)
	if err != nil {
		booking.RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) VerifyRemaining(c *gin.Context) {
	req, ok := bindVerify(c)
	if !ok {
		return
	}
	res, err := h.service.VerifyRemaining(c.Request.Context(), c.GetInt64(middleware.CtxUserID), req)
	if err != nil {
		booking.RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) CreateRemainingOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID")
		return
	}
	res, err := h.service.CreateRemainingOrder(c.Request.Context(), c.GetInt64(middleware.CtxUserID), id)
	if err != nil {
		booking.RenderError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// Webhook reads the raw body; the signature covers those exact bytes.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Empty webhook body")
		return
	}
	if err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader(razorpay.SignatureHeader)); err != nil {
		booking.RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
