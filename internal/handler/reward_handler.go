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

// RewardHandler exposes reward rule and application endpoints.
type RewardHandler struct {
	rewards *service.RewardService
	rules   *service.RewardRuleService
}

// NewRewardHandler constructs RewardHandler.
func NewRewardHandler(rewards *service.RewardService, rules *service.RewardRuleService) *RewardHandler {
	return &RewardHandler{rewards: rewards, rules: rules}
}

// Apply godoc
// @Summary Apply a reward rule to one or more students
// @Tags Rewards
// @Accept json
// @Produce json
// @Param payload body service.ApplyRuleRequest true "Application payload"
// @Success 200 {object} response.Envelope
// @Router /rewards/apply [post]
func (h *RewardHandler) Apply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.ApplyRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.rewards.ApplyRule(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.SuccessCount < len(result.Results) {
		status = http.StatusMultiStatus
	}
	response.JSON(c, status, result, nil)
}

// Applications godoc
// @Summary List applied rewards
// @Tags Rewards
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param ruleId query string false "Filter by rule"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rewards/applications [get]
func (h *RewardHandler) Applications(c *gin.Context) {
	filter := models.AppliedRewardFilter{
		StudentID: c.Query("studentId"),
		RuleID:    c.Query("ruleId"),
		AppliedBy: c.Query("appliedBy"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AppliedRewardStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	applications, pagination, err := h.rewards.ListApplications(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, pagination)
}

// ListRules godoc
// @Summary List reward rules
// @Tags Rewards
// @Produce json
// @Param source query string false "Filter by source (ATTITUDE or XP_RULE)"
// @Param kind query string false "Filter by kind (POSITIVE or NEGATIVE)"
// @Param active query bool false "Filter by active state"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rewards/rules [get]
func (h *RewardHandler) ListRules(c *gin.Context) {
	var filter models.RewardRuleFilter
	if raw := c.Query("source"); raw != "" {
		source := models.RuleSource(strings.ToUpper(raw))
		filter.Source = &source
	}
	if raw := c.Query("kind"); raw != "" {
		kind := models.RuleKind(strings.ToUpper(raw))
		filter.Kind = &kind
	}
	if raw := c.Query("rewardType"); raw != "" {
		rewardType := models.RewardType(strings.ToUpper(raw))
		filter.RewardType = &rewardType
	}
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

	rules, pagination, err := h.rules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, pagination)
}

// GetRule godoc
// @Summary Get reward rule detail
// @Tags Rewards
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} response.Envelope
// @Router /rewards/rules/{id} [get]
func (h *RewardHandler) GetRule(c *gin.Context) {
	rule, err := h.rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// CreateRule godoc
// @Summary Create reward rule
// @Tags Rewards
// @Accept json
// @Produce json
// @Param payload body service.UpsertRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /rewards/rules [post]
func (h *RewardHandler) CreateRule(c *gin.Context) {
	var req service.UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, rule, nil)
}

// UpdateRule godoc
// @Summary Update reward rule
// @Tags Rewards
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body service.UpsertRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Router /rewards/rules/{id} [put]
func (h *RewardHandler) UpdateRule(c *gin.Context) {
	var req service.UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// DeactivateRule godoc
// @Summary Deactivate reward rule
// @Tags Rewards
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} response.Envelope
// @Router /rewards/rules/{id} [delete]
func (h *RewardHandler) DeactivateRule(c *gin.Context) {
	if err := h.rules.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "deactivated"}, nil)
}
