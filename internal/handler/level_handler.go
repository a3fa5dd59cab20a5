package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edupoint/rewards-api/internal/service"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
	"github.com/edupoint/rewards-api/pkg/response"
)

// LevelHandler exposes XP level table endpoints.
type LevelHandler struct {
	levels *service.LevelService
}

// NewLevelHandler constructs LevelHandler.
func NewLevelHandler(levels *service.LevelService) *LevelHandler {
	return &LevelHandler{levels: levels}
}

// List godoc
// @Summary List XP levels
// @Tags Levels
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /levels [get]
func (h *LevelHandler) List(c *gin.Context) {
	levels, err := h.levels.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// Resolve godoc
// @Summary Resolve the level for an XP total
// @Tags Levels
// @Produce json
// @Param xp query int true "XP total"
// @Success 200 {object} response.Envelope
// @Router /levels/resolve [get]
func (h *LevelHandler) Resolve(c *gin.Context) {
	xp, err := strconv.ParseInt(c.Query("xp"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "xp must be an integer"))
		return
	}
	level, err := h.levels.Resolve(c.Request.Context(), xp)
	if err != nil {
		response.Error(c, err)
		return
	}
	if level == nil {
		response.JSON(c, http.StatusOK, gin.H{"level": nil}, nil)
		return
	}
	response.JSON(c, http.StatusOK, level, nil)
}

// Replace godoc
// @Summary Replace the XP level table
// @Tags Levels
// @Accept json
// @Produce json
// @Param payload body service.ReplaceLevelsRequest true "Level table payload"
// @Success 200 {object} response.Envelope
// @Router /levels [put]
func (h *LevelHandler) Replace(c *gin.Context) {
	var req service.ReplaceLevelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	levels, err := h.levels.Replace(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}
