package booking

import (
	"net/http"
	"strconv"

	"saheli/internal/middleware"
	"saheli/internal/pkg/response"
	"saheli/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the booking endpoints. public and protected are both
// rooted at /booking; protected already runs JWT auth. createLimit throttles
// booking creation and may be nil.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup, createLimit gin.HandlerFunc) {
	public.GET("/availability/:serviceId", h.GetAvailability)

	create := []gin.HandlerFunc{middleware.CustomerOnly()}
	if createLimit != nil {
		create = append(create, createLimit)
	}
	protected.POST("", append(create, h.CreateBooking)...)

	protected.GET("/mine", middleware.CustomerOnly(), h.ListMine)
	protected.GET("/provider", middleware.ProviderOnly(), h.ListProvider)
	protected.GET("/:id", h.GetBooking)

	protected.POST("/:id/cancel", middleware.CustomerOnly(), h.Cancel)
	protected.POST("/:id/provider-cancel", middleware.ProviderOnly(), h.ProviderCancel)
	protected.POST("/:id/start", middleware.ProviderOnly(), h.Start)
	protected.POST("/:id/complete", middleware.ProviderOnly(), h.Complete)
	protected.POST("/:id/payment/refund", middleware.ProviderOnly(), h.ManualRefund)
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID")
		return 0, false
	}
	return id, true
}

// bindJSON decodes and validates the body. An empty body is allowed when
// optional is set.
func bindJSON(c *gin.Context, dst interface{}, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return validate(c, dst)
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return false
	}
	return validate(c, dst)
}

func validate(c *gin.Context, dst interface{}) bool {
	if errs := validator.Validate(dst); len(errs) > 0 {
		response.ValidationError(c, "Invalid request", errs)
		return false
	}
	return true
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if !bindJSON(c, &req, false) {
		return
	}

	res, err := h.service.CreateBooking(c.Request.Context(), c.GetInt64(middleware.CtxUserID), req)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

func (h *Handler) GetAvailability(c *gin.Context) {
	serviceID, err := strconv.ParseInt(c.Param("serviceId"), 10, 64)
	if err != nil || serviceID <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid service ID")
		return
	}
	date := c.Query("date")
	if date == "" {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "date query parameter is required")
		return
	}

	out, err := h.service.GetAvailability(c.Request.Context(), serviceID, date)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), c.GetInt64(middleware.CtxUserID), id)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return limit, offset
}

func (h *Handler) ListMine(c *gin.Context) {
	limit, offset := pageParams(c)
	list, err := h.service.ListForCustomer(c.Request.Context(), c.GetInt64(middleware.CtxUserID), c.Query("status"), limit, offset)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": list})
}

func (h *Handler) ListProvider(c *gin.Context) {
	limit, offset := pageParams(c)
	list, err := h.service.ListForProvider(c.Request.Context(), c.GetInt64(middleware.CtxUserID), c.Query("status"), limit, offset)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": list})
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if !bindJSON(c, &req, true) {
		return
	}

	res, err := h.service.Cancel(c.Request.Context(), c.GetInt64(middleware.CtxUserID), id, req.Reason)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) ProviderCancel(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if !bindJSON(c, &req, true) {
		return
	}

	res, err := h.service.ProviderCancel(c.Request.Context(), c.GetInt64(middleware.CtxUserID), id, req.Reason)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) Start(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.service.Start(c.Request.Context(), c.GetInt64(middleware.CtxUserID), id)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.service.Complete(c.Request.Context(), c.GetInt64(middleware.CtxUserID), id)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) ManualRefund(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req RefundRequest
	if !bindJSON(c, &req, false) {
		return
	}

	res, err := h.service.ManualRefund(c.Request.Context(), c.GetInt64(middleware.CtxUserID), id, req.Amount, req.Reason)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
