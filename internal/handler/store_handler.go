package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/internal/service"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
	"github.com/edupoint/rewards-api/pkg/response"
)

// StoreHandler exposes product catalog and order endpoints.
type StoreHandler struct {
	store *service.StoreService
}

// NewStoreHandler constructs StoreHandler.
func NewStoreHandler(store *service.StoreService) *StoreHandler {
	return &StoreHandler{store: store}
}

// ListProducts godoc
// @Summary List store products
// @Tags Store
// @Produce json
// @Param active query bool false "Filter by active state"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /store/products [get]
func (h *StoreHandler) ListProducts(c *gin.Context) {
	var filter models.ProductFilter
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	products, pagination, err := h.store.ListProducts(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, pagination)
}

// CreateProduct godoc
// @Summary Create store product
// @Tags Store
// @Accept json
// @Produce json
// @Param payload body service.UpsertProductRequest true "Product payload"
// @Success 201 {object} response.Envelope
// @Router /store/products [post]
func (h *StoreHandler) CreateProduct(c *gin.Context) {
	var req service.UpsertProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.store.CreateProduct(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, product, nil)
}

// UpdateProduct godoc
// @Summary Update store product
// @Tags Store
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body service.UpsertProductRequest true "Product payload"
// @Success 200 {object} response.Envelope
// @Router /store/products/{id} [put]
func (h *StoreHandler) UpdateProduct(c *gin.Context) {
	var req service.UpsertProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.store.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

type restockRequest struct {
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

// Restock godoc
// @Summary Restock a product
// @Tags Store
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body restockRequest true "Restock payload"
// @Success 200 {object} response.Envelope
// @Router /store/products/{id}/restock [post]
func (h *StoreHandler) Restock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	movement, err := h.store.Restock(c.Request.Context(), c.Param("id"), req.Quantity, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, movement, nil)
}

// Movements godoc
// @Summary List inventory movements for a product
// @Tags Store
// @Produce json
// @Param id path string true "Product ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /store/products/{id}/movements [get]
func (h *StoreHandler) Movements(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	movements, err := h.store.ListMovements(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, movements, nil)
}

// CreateOrder godoc
// @Summary Create a store order and debit atoms
// @Tags Store
// @Accept json
// @Produce json
// @Param payload body service.CreateOrderRequest true "Order payload"
// @Success 201 {object} response.Envelope
// @Router /store/orders [post]
func (h *StoreHandler) CreateOrder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.StudentID = orderStudentID(claims, req.StudentID)
	order, err := h.store.CreateOrder(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, order, nil)
}

// orderStudentID pins a student's purchase to their own account; staff may
// order on behalf of any student.
func orderStudentID(claims *models.JWTClaims, requested string) string {
	if claims.Role == models.RoleStudent {
		return claims.UserID
	}
	return requested
}

// GetOrder godoc
// @Summary Get order detail
// @Tags Store
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Router /store/orders/{id} [get]
func (h *StoreHandler) GetOrder(c *gin.Context) {
	order, err := h.store.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// ListOrders godoc
// @Summary List orders
// @Tags Store
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by order status"
// @Param paymentStatus query string false "Filter by payment status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /store/orders [get]
func (h *StoreHandler) ListOrders(c *gin.Context) {
	filter := models.OrderFilter{StudentID: c.Query("studentId")}
	if raw := c.Query("status"); raw != "" {
		status := models.OrderStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	if raw := c.Query("paymentStatus"); raw != "" {
		status := models.PaymentStatus(strings.ToUpper(raw))
		filter.PaymentStatus = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	orders, pagination, err := h.store.ListOrders(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, pagination)
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus godoc
// @Summary Update order fulfilment status
// @Tags Store
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body orderStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /store/orders/{id}/status [patch]
func (h *StoreHandler) UpdateOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	order, err := h.store.UpdateOrderStatus(c.Request.Context(), c.Param("id"), models.OrderStatus(strings.ToUpper(req.Status)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// UpdatePaymentStatus godoc
// @Summary Update order payment status
// @Tags Store
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body orderStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /store/orders/{id}/payment-status [patch]
func (h *StoreHandler) UpdatePaymentStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	order, err := h.store.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), models.PaymentStatus(strings.ToUpper(req.Status)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}
