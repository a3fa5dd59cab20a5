package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/internal/service"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
	"github.com/edupoint/rewards-api/pkg/response"
)

// LedgerHandler exposes balance and transaction endpoints.
type LedgerHandler struct {
	ledger     *service.LedgerService
	statements *service.StatementService
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(ledger *service.LedgerService, statements *service.StatementService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, statements: statements}
}

// Balances godoc
// @Summary Get a student's balances and level
// @Tags Ledger
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/balances [get]
func (h *LedgerHandler) Balances(c *gin.Context) {
	balances, err := h.ledger.Balances(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balances, nil)
}

// Summary godoc
// @Summary Get a student's balances plus recent activity
// @Tags Ledger
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/summary [get]
func (h *LedgerHandler) Summary(c *gin.Context) {
	summary, err := h.ledger.Summary(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Transactions godoc
// @Summary List a student's ledger transactions
// @Tags Ledger
// @Produce json
// @Param studentId path string true "Student ID"
// @Param currency query string false "Filter by currency (XP or ATOMS)"
// @Param referenceType query string false "Filter by reference type"
// @Param dateFrom query string false "Start date (RFC3339)"
// @Param dateTo query string false "End date (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/transactions [get]
func (h *LedgerHandler) Transactions(c *gin.Context) {
	filter := models.TransactionFilter{StudentID: c.Param("studentId")}
	if raw := c.Query("currency"); raw != "" {
		currency := models.Currency(raw)
		if !currency.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown currency"))
			return
		}
		filter.Currency = &currency
	}
	if raw := c.Query("referenceType"); raw != "" {
		ref := models.ReferenceType(raw)
		filter.ReferenceType = &ref
	}
	if raw := c.Query("dateFrom"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dateFrom must be RFC3339"))
			return
		}
		filter.DateFrom = &ts
	}
	if raw := c.Query("dateTo"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dateTo must be RFC3339"))
			return
		}
		filter.DateTo = &ts
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	txns, pagination, err := h.ledger.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txns, pagination)
}

// Adjust godoc
// @Summary Apply a manual ledger adjustment
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body service.ManualAdjustmentRequest true "Adjustment payload"
// @Success 201 {object} response.Envelope
// @Router /ledger/adjustments [post]
func (h *LedgerHandler) Adjust(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.ManualAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	txn, err := h.ledger.ApplyAdjustment(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, txn, nil)
}

// Reconcile godoc
// @Summary Replay one account and report drift
// @Tags Ledger
// @Produce json
// @Param studentId path string true "Student ID"
// @Param currency query string true "Currency (XP or ATOMS)"
// @Success 200 {object} response.Envelope
// @Router /ledger/reconcile/{studentId} [post]
func (h *LedgerHandler) Reconcile(c *gin.Context) {
	currency := models.Currency(c.Query("currency"))
	if !currency.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown currency"))
		return
	}
	drift, err := h.ledger.Reconcile(c.Request.Context(), c.Param("studentId"), currency)
	if err != nil {
		response.Error(c, err)
		return
	}
	if drift == nil {
		response.JSON(c, http.StatusOK, gin.H{"status": "consistent"}, nil)
		return
	}
	response.JSON(c, http.StatusOK, drift, nil)
}

// Statement godoc
// @Summary Download a student's account statement
// @Tags Ledger
// @Produce text/csv
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param currency query string true "Currency (XP or ATOMS)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /students/{studentId}/statement [get]
func (h *LedgerHandler) Statement(c *gin.Context) {
	currency := models.Currency(c.Query("currency"))
	format := service.StatementFormat(c.DefaultQuery("format", "csv"))
	statement, err := h.statements.Render(c.Request.Context(), c.Param("studentId"), currency, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+statement.FileName)
	c.Data(http.StatusOK, statement.ContentType, statement.Body)
}
