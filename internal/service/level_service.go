package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type levelRepository interface {
	List(ctx context.Context) ([]models.XPLevel, error)
	FindByID(ctx context.Context, id string) (*models.XPLevel, error)
	Replace(ctx context.Context, levels []models.XPLevel) error
}

// ResolveLevel maps an XP total onto the level table. It is a pure function:
// no I/O, deterministic for identical inputs. When ranges overlap (a
// misconfigured table) the highest-MinXP match wins rather than erroring.
// Returns nil when the total is below every level's MinXP.
func ResolveLevel(xpTotal int64, levels []models.XPLevel) *models.XPLevel {
	var best *models.XPLevel
	for i := range levels {
		if !levels[i].Contains(xpTotal) {
			continue
		}
		if best == nil || levels[i].MinXP > best.MinXP {
			best = &levels[i]
		}
	}
	return best
}

// LevelService manages the XP level table and caches it briefly so batch
// reward application does not re-read the table per student.
type LevelService struct {
	repo      levelRepository
	validator *validator.Validate
	logger    *zap.Logger

	cacheTTL time.Duration

	mu       sync.RWMutex
	cached   []models.XPLevel
	cachedAt time.Time
}

// NewLevelService constructs the service.
func NewLevelService(repo levelRepository, validate *validator.Validate, logger *zap.Logger) *LevelService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LevelService{repo: repo, validator: validate, logger: logger, cacheTTL: 30 * time.Second}
}

// LevelEntry is one row of a submitted level table.
type LevelEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	MinXP int64  `json:"min_xp" validate:"gte=0"`
	MaxXP *int64 `json:"max_xp"`
}

// ReplaceLevelsRequest submits a full level table.
type ReplaceLevelsRequest struct {
	Levels []LevelEntry `json:"levels" validate:"required,min=1,dive"`
}

// List returns the level table ordered by MinXP.
func (s *LevelService) List(ctx context.Context) ([]models.XPLevel, error) {
	levels, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list levels")
	}
	return levels, nil
}

// Table returns the level table, serving a recent copy when available.
// Reads and refreshes race-free under concurrent resolves.
func (s *LevelService) Table(ctx context.Context) ([]models.XPLevel, error) {
	s.mu.RLock()
	if s.cached != nil && time.Since(s.cachedAt) < s.cacheTTL {
		levels := s.cached
		s.mu.RUnlock()
		return levels, nil
	}
	s.mu.RUnlock()

	levels, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cached = levels
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return levels, nil
}

// Resolve maps the XP total onto the current table.
func (s *LevelService) Resolve(ctx context.Context, xpTotal int64) (*models.XPLevel, error) {
	levels, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	return ResolveLevel(xpTotal, levels), nil
}

// Replace validates and swaps the level table. Ranges must be contiguous and
// non-overlapping; only the top tier may be open-ended.
func (s *LevelService) Replace(ctx context.Context, req ReplaceLevelsRequest) ([]models.XPLevel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid level table payload")
	}

	levels := make([]models.XPLevel, len(req.Levels))
	for i, entry := range req.Levels {
		levels[i] = models.XPLevel{ID: entry.ID, Name: entry.Name, MinXP: entry.MinXP, MaxXP: entry.MaxXP}
	}
	if err := validateLevelTable(levels); err != nil {
		return nil, err
	}

	if err := s.repo.Replace(ctx, levels); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace level table")
	}
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	s.logger.Info("level table replaced", zap.Int("levels", len(levels)))
	return levels, nil
}

func validateLevelTable(levels []models.XPLevel) error {
	sort.Slice(levels, func(i, j int) bool { return levels[i].MinXP < levels[j].MinXP })
	for i := range levels {
		level := levels[i]
		if level.MaxXP != nil && *level.MaxXP <= level.MinXP {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("level %q: max_xp must exceed min_xp", level.Name))
		}
		if level.MaxXP == nil && i != len(levels)-1 {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("level %q: only the top tier may be open-ended", level.Name))
		}
		if i > 0 {
			prev := levels[i-1]
			if prev.MaxXP == nil || *prev.MaxXP != level.MinXP {
				return appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("levels %q and %q are not contiguous", prev.Name, level.Name))
			}
		}
	}
	return nil
}
