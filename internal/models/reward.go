package models

import "time"

// RuleKind marks an attitude as merit or demerit. XP rules are always positive.
type RuleKind string

const (
	RuleKindPositive RuleKind = "POSITIVE"
	RuleKindNegative RuleKind = "NEGATIVE"
)

// RewardType selects which ledgers a rule touches.
type RewardType string

const (
	RewardTypeXP    RewardType = "XP"
	RewardTypeAtoms RewardType = "ATOMS"
	RewardTypeBoth  RewardType = "BOTH"
)

// IncludesXP reports whether applying the rule writes to the XP ledger.
func (t RewardType) IncludesXP() bool {
	return t == RewardTypeXP || t == RewardTypeBoth
}

// IncludesAtoms reports whether applying the rule writes to the Atoms ledger.
func (t RewardType) IncludesAtoms() bool {
	return t == RewardTypeAtoms || t == RewardTypeBoth
}

// RuleSource distinguishes the two catalog flavours a rule can come from.
// XP rules are always positive and grant XP only; attitudes can be merit or
// demerit and may touch either ledger.
type RuleSource string

const (
	RuleSourceAttitude RuleSource = "ATTITUDE"
	RuleSourceXPRule   RuleSource = "XP_RULE"
)

// ReferenceType returns the ledger reference type for a rule application.
func (s RuleSource) ReferenceType() ReferenceType {
	if s == RuleSourceXPRule {
		return ReferenceXPRule
	}
	return ReferenceAttitude
}

// RewardRule is the unified catalog entry for attitudes and XP rules. The
// values are snapshotted into ledger transactions at apply time, so edits here
// never rewrite history.
type RewardRule struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Source     RuleSource `db:"source" json:"source"`
	Kind       RuleKind   `db:"kind" json:"kind"`
	RewardType RewardType `db:"reward_type" json:"reward_type"`
	XPValue    int64      `db:"xp_value" json:"xp_value"`
	AtomsValue int64      `db:"atoms_value" json:"atoms_value"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// RewardRuleFilter narrows catalog listings.
type RewardRuleFilter struct {
	Source     *RuleSource
	Kind       *RuleKind
	RewardType *RewardType
	Active     *bool
	Search     string
	Page       int
	PageSize   int
}

// AppliedRewardStatus tracks one rule application through its lifecycle.
// Terminal states never re-enter; a retry means a new AppliedReward row.
type AppliedRewardStatus string

const (
	AppliedStatusPending  AppliedRewardStatus = "PENDING"
	AppliedStatusComplete AppliedRewardStatus = "COMPLETE"
	AppliedStatusFailed   AppliedRewardStatus = "FAILED"
)

// AppliedReward records one rule being applied to one student. One row may
// fan out into up to two ledger transactions when the rule rewards both
// currencies. The idempotency key dedupes retried submissions.
type AppliedReward struct {
	ID             string              `db:"id" json:"id"`
	StudentID      string              `db:"student_id" json:"student_id"`
	RuleID         string              `db:"rule_id" json:"rule_id"`
	AppliedBy      string              `db:"applied_by" json:"applied_by"`
	Notes          string              `db:"notes" json:"notes"`
	IdempotencyKey string              `db:"idempotency_key" json:"-"`
	Status         AppliedRewardStatus `db:"status" json:"status"`
	FailureCode    *string             `db:"failure_code" json:"failure_code,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

// AppliedRewardFilter narrows application history listings.
type AppliedRewardFilter struct {
	StudentID string
	RuleID    string
	AppliedBy string
	Status    *AppliedRewardStatus
	Page      int
	PageSize  int
}
