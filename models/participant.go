// models/participant.go
package models

import "time"

// Participant is one (pact, player) membership.
// Table name: participants
type Participant struct {
	PactAddress   string     `gorm:"primaryKey;type:varchar(64)" json:"pact_address"`
	PlayerAddress string     `gorm:"primaryKey;type:varchar(64);index" json:"player_address"`
	HasStaked     bool       `gorm:"not null;default:false" json:"has_staked"`
	IsEliminated  bool       `gorm:"not null;default:false" json:"is_eliminated"`
	EliminatedAt  *time.Time `json:"eliminated_at,omitempty"`
}

func (Participant) TableName() string { return "participants" }

// Merge folds a newer observation into p. Both flags only ever turn on,
// and the first recorded elimination time is kept.
func (p *Participant) Merge(next Participant) {
	if next.HasStaked {
		p.HasStaked = true
	}
	if next.IsEliminated && !p.IsEliminated {
		p.IsEliminated = true
		p.EliminatedAt = next.EliminatedAt
	}
}
