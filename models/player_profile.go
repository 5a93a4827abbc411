// models/player_profile.go
package models

import "time"

// PlayerProfile mirrors a PlayerProfile ledger account plus the
// off-ledger identity used by activity verifiers.
// Table name: player_profiles
type PlayerProfile struct {
	Address          string    `gorm:"primaryKey;type:varchar(64)" json:"address"`
	Name             string    `gorm:"not null" json:"name"`
	ExternalIdentity string    `gorm:"type:varchar(128);index" json:"external_identity,omitempty"` // e.g. GitHub username
	PactsWon         uint64    `gorm:"not null;default:0" json:"pacts_won"`
	PactsLost        uint64    `gorm:"not null;default:0" json:"pacts_lost"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`

	Participations []Participant `gorm:"foreignKey:PlayerAddress;references:Address" json:"-"`
}

func (PlayerProfile) TableName() string { return "player_profiles" }
