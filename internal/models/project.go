package models

import (
	"time"
)

// Project groups one-off bulk items so that later extensions reuse the same account,
// platforms and constraints
type Project struct {
	ID          string      `gorm:"primaryKey" json:"id"`
	AccountID   string      `gorm:"index;not null" json:"account_id"`
	Platforms   StringSlice `gorm:"type:json" json:"platforms"`
	Constraints Constraints `gorm:"serializer:json" json:"constraints"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// PlatformList returns the project platforms as typed values
func (p *Project) PlatformList() []Platform {
	out := make([]Platform, 0, len(p.Platforms))
	for _, s := range p.Platforms {
		out = append(out, Platform(s))
	}
	return out
}
