package models

import "time"

// Audit actions recorded in the trail. Session events come from the auth
// service, the rest from the audit middleware on mutating admin routes.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"

	AuditActionAdjustment   = "LEDGER_ADJUSTMENT"
	AuditActionRuleChange   = "RULE_CHANGE"
	AuditActionLevelReplace = "LEVEL_REPLACE"
	AuditActionRestock      = "RESTOCK"
)

// AuditLog is a row in the audit_logs table. UserID is nil for events
// that fire before authentication resolves an actor.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
