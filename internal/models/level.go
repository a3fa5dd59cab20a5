package models

import "time"

// XPLevel is one named tier in the level table. MaxXP is nil for the
// open-ended top tier. Ranges are half-open: [MinXP, MaxXP).
type XPLevel struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	MinXP     int64     `db:"min_xp" json:"min_xp"`
	MaxXP     *int64    `db:"max_xp" json:"max_xp,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Contains reports whether xp falls inside the level's range.
func (l XPLevel) Contains(xp int64) bool {
	if xp < l.MinXP {
		return false
	}
	return l.MaxXP == nil || xp < *l.MaxXP
}
