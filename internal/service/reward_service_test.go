package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/internal/repository"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type mockRuleReader struct {
	rules map[string]models.RewardRule
}

func (m *mockRuleReader) FindByID(ctx context.Context, id string) (*models.RewardRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rule, nil
}

type mockAppliedRepo struct {
	byKey   map[string]*models.AppliedReward
	byID    map[string]*models.AppliedReward
	created int
}

func (m *mockAppliedRepo) Create(ctx context.Context, reward *models.AppliedReward) error {
	if m.byKey == nil {
		m.byKey = make(map[string]*models.AppliedReward)
		m.byID = make(map[string]*models.AppliedReward)
	}
	if _, exists := m.byKey[reward.IdempotencyKey]; exists {
		return appErrors.Clone(appErrors.ErrConflict, "duplicate idempotency key")
	}
	if reward.ID == "" {
		reward.ID = uuid.NewString()
	}
	stored := *reward
	m.byKey[reward.IdempotencyKey] = &stored
	m.byID[reward.ID] = &stored
	m.created++
	return nil
}

func (m *mockAppliedRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.AppliedReward, error) {
	reward, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	copied := *reward
	return &copied, nil
}

func (m *mockAppliedRepo) UpdateStatus(ctx context.Context, id string, status models.AppliedRewardStatus, failureCode *string) error {
	reward, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	reward.Status = status
	reward.FailureCode = failureCode
	return nil
}

func (m *mockAppliedRepo) List(ctx context.Context, filter models.AppliedRewardFilter) ([]models.AppliedReward, int, error) {
	var out []models.AppliedReward
	for _, reward := range m.byID {
		if filter.StudentID != "" && filter.StudentID != reward.StudentID {
			continue
		}
		out = append(out, *reward)
	}
	return out, len(out), nil
}

type mockRewardLedger struct {
	balances map[string]int64
	levels   map[string]*string
	appends  []repository.AppendTransactionParams
}

func balanceKey(studentID string, currency models.Currency) string {
	return studentID + "|" + string(currency)
}

func (m *mockRewardLedger) AppendTransaction(ctx context.Context, params repository.AppendTransactionParams) (*models.LedgerTransaction, error) {
	if m.balances == nil {
		m.balances = make(map[string]int64)
	}
	key := balanceKey(params.StudentID, params.Currency)
	next := m.balances[key] + params.Amount
	if next < 0 {
		if !params.ClampToBalance {
			return nil, appErrors.Clone(appErrors.ErrInsufficientBalance, "balance is insufficient")
		}
		params.Amount = -m.balances[key]
		next = 0
		if params.Amount == 0 {
			return nil, nil
		}
	}
	m.balances[key] = next
	m.appends = append(m.appends, params)
	return &models.LedgerTransaction{
		ID:        uuid.NewString(),
		StudentID: params.StudentID,
		Currency:  params.Currency,
		Amount:    params.Amount,
	}, nil
}

func (m *mockRewardLedger) GetBalance(ctx context.Context, studentID string, currency models.Currency) (int64, error) {
	return m.balances[balanceKey(studentID, currency)], nil
}

func (m *mockRewardLedger) SetLevel(ctx context.Context, studentID string, levelID *string) error {
	if m.levels == nil {
		m.levels = make(map[string]*string)
	}
	m.levels[studentID] = levelID
	return nil
}

type mockLevelResolver struct {
	table []models.XPLevel
}

func (m *mockLevelResolver) Resolve(ctx context.Context, xpTotal int64) (*models.XPLevel, error) {
	return ResolveLevel(xpTotal, m.table), nil
}

type mockGuard struct {
	claims   map[string]bool
	released []string
}

func (m *mockGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.claims == nil {
		m.claims = make(map[string]bool)
	}
	if m.claims[key] {
		return false, nil
	}
	m.claims[key] = true
	return true, nil
}

func (m *mockGuard) Release(ctx context.Context, key string) error {
	delete(m.claims, key)
	m.released = append(m.released, key)
	return nil
}

func testLevels() []models.XPLevel {
	bronzeMax := int64(100)
	silverMax := int64(300)
	return []models.XPLevel{
		{ID: "lvl-bronze", Name: "Bronze", MinXP: 0, MaxXP: &bronzeMax},
		{ID: "lvl-silver", Name: "Silver", MinXP: 100, MaxXP: &silverMax},
		{ID: "lvl-gold", Name: "Gold", MinXP: 300},
	}
}

func newTestRewardService(rules *mockRuleReader, applied *mockAppliedRepo, ledger *mockRewardLedger, guard *mockGuard) *RewardService {
	return NewRewardService(rules, applied, ledger, &mockLevelResolver{table: testLevels()}, guard, nil, nil, nil, RewardConfig{})
}

func TestApplyRuleCreditsBothCurrenciesAndLevels(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-1": {ID: "rule-1", Name: "Helped a classmate", Source: models.RuleSourceAttitude, Kind: models.RuleKindPositive, RewardType: models.RewardTypeBoth, XPValue: 120, AtomsValue: 30, Active: true},
	}}
	applied := &mockAppliedRepo{}
	ledger := &mockRewardLedger{}
	guard := &mockGuard{}
	svc := newTestRewardService(rules, applied, ledger, guard)

	result, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: "rule-1", StudentIDs: []string{"s1"}}, "teacher-1")
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	outcome := result.Results[0]
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, models.AppliedStatusComplete, outcome.Status)
	assert.NotEmpty(t, outcome.XPTransactionID)
	assert.NotEmpty(t, outcome.AtomsTransactionID)
	require.NotNil(t, outcome.LevelID)
	assert.Equal(t, "lvl-silver", *outcome.LevelID)

	assert.Equal(t, int64(120), ledger.balances[balanceKey("s1", models.CurrencyXP)])
	assert.Equal(t, int64(30), ledger.balances[balanceKey("s1", models.CurrencyAtoms)])
	require.NotNil(t, ledger.levels["s1"])
	assert.Equal(t, "lvl-silver", *ledger.levels["s1"])
}

func TestApplyRuleDemeritClampsXPAtZero(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-neg": {ID: "rule-neg", Name: "Late to class", Source: models.RuleSourceAttitude, Kind: models.RuleKindNegative, RewardType: models.RewardTypeXP, XPValue: 50, Active: true},
	}}
	applied := &mockAppliedRepo{}
	ledger := &mockRewardLedger{balances: map[string]int64{balanceKey("s1", models.CurrencyXP): 20}}
	guard := &mockGuard{}
	svc := newTestRewardService(rules, applied, ledger, guard)

	result, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: "rule-neg", StudentIDs: []string{"s1"}}, "teacher-1")
	require.NoError(t, err)
	outcome := result.Results[0]

	assert.Equal(t, models.AppliedStatusComplete, outcome.Status)
	assert.Equal(t, int64(0), ledger.balances[balanceKey("s1", models.CurrencyXP)])
	require.Len(t, ledger.appends, 1)
	assert.Equal(t, int64(-20), ledger.appends[0].Amount)
	assert.True(t, ledger.appends[0].ClampToBalance)
}

func TestApplyRuleDemeritAtZeroWritesNothing(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-neg": {ID: "rule-neg", Name: "Late to class", Source: models.RuleSourceAttitude, Kind: models.RuleKindNegative, RewardType: models.RewardTypeXP, XPValue: 50, Active: true},
	}}
	applied := &mockAppliedRepo{}
	ledger := &mockRewardLedger{}
	guard := &mockGuard{}
	svc := newTestRewardService(rules, applied, ledger, guard)

	result, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: "rule-neg", StudentIDs: []string{"s1"}}, "teacher-1")
	require.NoError(t, err)
	outcome := result.Results[0]

	assert.Equal(t, models.AppliedStatusComplete, outcome.Status)
	assert.Empty(t, outcome.XPTransactionID)
	assert.Empty(t, ledger.appends)
}

func TestApplyRuleBatchPartialFailure(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-fine": {ID: "rule-fine", Name: "Store fine", Source: models.RuleSourceAttitude, Kind: models.RuleKindNegative, RewardType: models.RewardTypeAtoms, AtomsValue: 40, Active: true},
	}}
	applied := &mockAppliedRepo{}
	ledger := &mockRewardLedger{balances: map[string]int64{
		balanceKey("rich", models.CurrencyAtoms): 100,
		balanceKey("poor", models.CurrencyAtoms): 10,
	}}
	guard := &mockGuard{}
	svc := newTestRewardService(rules, applied, ledger, guard)

	result, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: "rule-fine", StudentIDs: []string{"rich", "poor"}}, "teacher-1")
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, models.AppliedStatusComplete, result.Results[0].Status)
	assert.Equal(t, models.AppliedStatusFailed, result.Results[1].Status)
	assert.Equal(t, appErrors.ErrInsufficientBalance.Code, result.Results[1].ErrorCode)

	// the failed student keeps their balance and the claim is released for retry
	assert.Equal(t, int64(10), ledger.balances[balanceKey("poor", models.CurrencyAtoms)])
	assert.Len(t, guard.released, 1)

	failedRow := applied.byID[result.Results[1].AppliedRewardID]
	require.NotNil(t, failedRow)
	assert.Equal(t, models.AppliedStatusFailed, failedRow.Status)
	require.NotNil(t, failedRow.FailureCode)
	assert.Equal(t, appErrors.ErrInsufficientBalance.Code, *failedRow.FailureCode)
}

func TestApplyRuleDuplicateClientKey(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-1": {ID: "rule-1", Name: "Helped a classmate", Source: models.RuleSourceAttitude, Kind: models.RuleKindPositive, RewardType: models.RewardTypeXP, XPValue: 10, Active: true},
	}}
	applied := &mockAppliedRepo{}
	ledger := &mockRewardLedger{}
	guard := &mockGuard{}
	svc := newTestRewardService(rules, applied, ledger, guard)

	req := ApplyRuleRequest{RuleID: "rule-1", StudentIDs: []string{"s1"}, IdempotencyKey: "batch-42"}
	first, err := svc.ApplyRule(context.Background(), req, "teacher-1")
	require.NoError(t, err)
	second, err := svc.ApplyRule(context.Background(), req, "teacher-1")
	require.NoError(t, err)

	assert.Equal(t, 1, first.SuccessCount)
	assert.Equal(t, 0, second.SuccessCount)
	assert.True(t, second.Results[0].Duplicate)
	assert.Equal(t, first.Results[0].AppliedRewardID, second.Results[0].AppliedRewardID)

	// credited exactly once
	assert.Equal(t, int64(10), ledger.balances[balanceKey("s1", models.CurrencyXP)])
	assert.Equal(t, 1, applied.created)
}

func TestApplyRuleDuplicateSurvivesGuardLoss(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-1": {ID: "rule-1", Name: "Helped a classmate", Source: models.RuleSourceAttitude, Kind: models.RuleKindPositive, RewardType: models.RewardTypeXP, XPValue: 10, Active: true},
	}}
	applied := &mockAppliedRepo{}
	ledger := &mockRewardLedger{}
	guard := &mockGuard{}
	svc := newTestRewardService(rules, applied, ledger, guard)

	req := ApplyRuleRequest{RuleID: "rule-1", StudentIDs: []string{"s1"}, IdempotencyKey: "batch-42"}
	_, err := svc.ApplyRule(context.Background(), req, "teacher-1")
	require.NoError(t, err)

	// simulate redis losing the claim: the unique constraint still catches it
	guard.claims = nil
	second, err := svc.ApplyRule(context.Background(), req, "teacher-1")
	require.NoError(t, err)

	assert.True(t, second.Results[0].Duplicate)
	assert.Equal(t, int64(10), ledger.balances[balanceKey("s1", models.CurrencyXP)])
}

func TestApplyRuleFailedKeyReplaysFailure(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-fine": {ID: "rule-fine", Name: "Store fine", Source: models.RuleSourceAttitude, Kind: models.RuleKindNegative, RewardType: models.RewardTypeAtoms, AtomsValue: 40, Active: true},
	}}
	applied := &mockAppliedRepo{}
	ledger := &mockRewardLedger{balances: map[string]int64{balanceKey("s1", models.CurrencyAtoms): 10}}
	guard := &mockGuard{}
	svc := newTestRewardService(rules, applied, ledger, guard)

	req := ApplyRuleRequest{RuleID: "rule-fine", StudentIDs: []string{"s1"}, IdempotencyKey: "fine-7"}
	first, err := svc.ApplyRule(context.Background(), req, "teacher-1")
	require.NoError(t, err)
	require.Equal(t, models.AppliedStatusFailed, first.Results[0].Status)

	// the failed row keeps its key, so a same-key retry replays the failure
	second, err := svc.ApplyRule(context.Background(), req, "teacher-1")
	require.NoError(t, err)
	assert.True(t, second.Results[0].Duplicate)
	assert.Equal(t, models.AppliedStatusFailed, second.Results[0].Status)
	assert.Equal(t, appErrors.ErrInsufficientBalance.Code, second.Results[0].ErrorCode)
	assert.Equal(t, int64(10), ledger.balances[balanceKey("s1", models.CurrencyAtoms)])

	// a corrected retry under a fresh key applies
	ledger.balances[balanceKey("s1", models.CurrencyAtoms)] = 60
	third, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{
		RuleID: "rule-fine", StudentIDs: []string{"s1"}, IdempotencyKey: "fine-8",
	}, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 1, third.SuccessCount)
	assert.Equal(t, int64(20), ledger.balances[balanceKey("s1", models.CurrencyAtoms)])
}

func TestApplyRuleUnknownRule(t *testing.T) {
	svc := newTestRewardService(&mockRuleReader{}, &mockAppliedRepo{}, &mockRewardLedger{}, &mockGuard{})

	_, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: "missing", StudentIDs: []string{"s1"}}, "teacher-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrRuleNotFound))
}

func TestApplyRuleInactiveRule(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-1": {ID: "rule-1", Name: "Retired", Source: models.RuleSourceAttitude, Kind: models.RuleKindPositive, RewardType: models.RewardTypeXP, XPValue: 10, Active: false},
	}}
	svc := newTestRewardService(rules, &mockAppliedRepo{}, &mockRewardLedger{}, &mockGuard{})

	_, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: "rule-1", StudentIDs: []string{"s1"}}, "teacher-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrRuleNotFound))
}

func TestApplyRuleBatchSizeLimit(t *testing.T) {
	rules := &mockRuleReader{rules: map[string]models.RewardRule{
		"rule-1": {ID: "rule-1", Name: "x", Source: models.RuleSourceAttitude, Kind: models.RuleKindPositive, RewardType: models.RewardTypeXP, XPValue: 10, Active: true},
	}}
	svc := NewRewardService(rules, &mockAppliedRepo{}, &mockRewardLedger{}, &mockLevelResolver{}, &mockGuard{}, nil, nil, nil, RewardConfig{MaxBatchSize: 2})

	_, err := svc.ApplyRule(context.Background(), ApplyRuleRequest{RuleID: "rule-1", StudentIDs: []string{"a", "b", "c"}}, "teacher-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestIdempotencyKeyDerivation(t *testing.T) {
	svc := newTestRewardService(&mockRuleReader{}, &mockAppliedRepo{}, &mockRewardLedger{}, &mockGuard{})
	fixed := time.Date(2026, 3, 10, 9, 0, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	// client keys are scoped per student
	k1 := svc.idempotencyKeyFor("rule-1", "s1", "t1", "batch-42")
	k2 := svc.idempotencyKeyFor("rule-1", "s2", "t1", "batch-42")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k1, svc.idempotencyKeyFor("rule-1", "s1", "t1", "batch-42"))

	// derived keys collapse within the window and differ across it
	auto1 := svc.idempotencyKeyFor("rule-1", "s1", "t1", "")
	svc.now = func() time.Time { return fixed.Add(10 * time.Second) }
	auto2 := svc.idempotencyKeyFor("rule-1", "s1", "t1", "")
	svc.now = func() time.Time { return fixed.Add(2 * svc.config.IdempotencyWindow) }
	auto3 := svc.idempotencyKeyFor("rule-1", "s1", "t1", "")
	assert.Equal(t, auto1, auto2)
	assert.NotEqual(t, auto1, auto3)
}
