package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type mockLevelRepo struct {
	mu       sync.Mutex
	levels   []models.XPLevel
	replaced int
}

func (m *mockLevelRepo) List(ctx context.Context) ([]models.XPLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels, nil
}

func (m *mockLevelRepo) FindByID(ctx context.Context, id string) (*models.XPLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.levels {
		if m.levels[i].ID == id {
			return &m.levels[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLevelRepo) Replace(ctx context.Context, levels []models.XPLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = levels
	m.replaced++
	return nil
}

func TestResolveLevel(t *testing.T) {
	levels := testLevels()

	cases := []struct {
		name string
		xp   int64
		want string
	}{
		{"bottom of first tier", 0, "lvl-bronze"},
		{"inside first tier", 99, "lvl-bronze"},
		{"boundary goes to next tier", 100, "lvl-silver"},
		{"inside open-ended top tier", 5000, "lvl-gold"},
		{"top tier lower bound", 300, "lvl-gold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveLevel(tc.xp, levels)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.ID)
		})
	}
}

func TestResolveLevelBelowLowestTier(t *testing.T) {
	max := int64(200)
	levels := []models.XPLevel{{ID: "lvl-1", Name: "First", MinXP: 100, MaxXP: &max}}
	assert.Nil(t, ResolveLevel(50, levels))
}

func TestResolveLevelOverlapPicksHighestTier(t *testing.T) {
	aMax := int64(200)
	bMax := int64(300)
	levels := []models.XPLevel{
		{ID: "lvl-a", Name: "A", MinXP: 0, MaxXP: &aMax},
		{ID: "lvl-b", Name: "B", MinXP: 100, MaxXP: &bMax},
	}
	got := ResolveLevel(150, levels)
	require.NotNil(t, got)
	assert.Equal(t, "lvl-b", got.ID)
}

func TestResolveLevelDeterministic(t *testing.T) {
	levels := testLevels()
	first := ResolveLevel(250, levels)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveLevel(250, levels))
	}
}

func TestReplaceLevelsValidTable(t *testing.T) {
	repo := &mockLevelRepo{}
	svc := NewLevelService(repo, nil, nil)

	hundred := int64(100)
	levels, err := svc.Replace(context.Background(), ReplaceLevelsRequest{Levels: []LevelEntry{
		{Name: "Starter", MinXP: 0, MaxXP: &hundred},
		{Name: "Veteran", MinXP: 100},
	}})
	require.NoError(t, err)
	assert.Len(t, levels, 2)
	assert.Equal(t, 1, repo.replaced)
}

func TestReplaceLevelsRejectsGaps(t *testing.T) {
	svc := NewLevelService(&mockLevelRepo{}, nil, nil)

	hundred := int64(100)
	_, err := svc.Replace(context.Background(), ReplaceLevelsRequest{Levels: []LevelEntry{
		{Name: "Starter", MinXP: 0, MaxXP: &hundred},
		{Name: "Veteran", MinXP: 150},
	}})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestReplaceLevelsRejectsMidTableOpenEnd(t *testing.T) {
	svc := NewLevelService(&mockLevelRepo{}, nil, nil)

	twoHundred := int64(200)
	_, err := svc.Replace(context.Background(), ReplaceLevelsRequest{Levels: []LevelEntry{
		{Name: "Starter", MinXP: 0},
		{Name: "Veteran", MinXP: 100, MaxXP: &twoHundred},
	}})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestReplaceLevelsRejectsInvertedRange(t *testing.T) {
	svc := NewLevelService(&mockLevelRepo{}, nil, nil)

	fifty := int64(50)
	_, err := svc.Replace(context.Background(), ReplaceLevelsRequest{Levels: []LevelEntry{
		{Name: "Broken", MinXP: 100, MaxXP: &fifty},
	}})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResolveConcurrentWithReplace(t *testing.T) {
	hundred := int64(100)
	repo := &mockLevelRepo{levels: []models.XPLevel{{ID: "lvl-1", Name: "First", MinXP: 0, MaxXP: &hundred}}}
	svc := NewLevelService(repo, nil, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				level, err := svc.Resolve(context.Background(), 50)
				assert.NoError(t, err)
				assert.NotNil(t, level)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			_, err := svc.Replace(context.Background(), ReplaceLevelsRequest{Levels: []LevelEntry{
				{ID: "lvl-1", Name: "First", MinXP: 0},
			}})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
}

func TestReplaceInvalidatesResolveCache(t *testing.T) {
	hundred := int64(100)
	repo := &mockLevelRepo{levels: []models.XPLevel{{ID: "old", Name: "Old", MinXP: 0, MaxXP: &hundred}}}
	svc := NewLevelService(repo, nil, nil)

	level, err := svc.Resolve(context.Background(), 50)
	require.NoError(t, err)
	require.NotNil(t, level)
	assert.Equal(t, "old", level.ID)

	_, err = svc.Replace(context.Background(), ReplaceLevelsRequest{Levels: []LevelEntry{
		{ID: "new", Name: "New", MinXP: 0},
	}})
	require.NoError(t, err)

	level, err = svc.Resolve(context.Background(), 50)
	require.NoError(t, err)
	require.NotNil(t, level)
	assert.Equal(t, "new", level.ID)
}
