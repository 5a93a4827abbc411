// models/pact.go
package models

import "time"

// PactStatus mirrors the on-ledger PactStatus enum.
type PactStatus string

const (
	PactStatusInitialized PactStatus = "initialized"
	PactStatusActive      PactStatus = "active"
	PactStatusCompleted   PactStatus = "completed"
	PactStatusCancelled   PactStatus = "cancelled"
)

// Rank orders statuses along the only allowed direction of travel.
// Completed and Cancelled share the terminal rank.
func (s PactStatus) Rank() int {
	switch s {
	case PactStatusInitialized:
		return 0
	case PactStatusActive:
		return 1
	case PactStatusCompleted, PactStatusCancelled:
		return 2
	}
	return -1
}

func (s PactStatus) Terminal() bool {
	return s.Rank() == 2
}

// Advance returns the status a pact should hold after observing next.
// Backward or sideways moves out of a terminal state are ignored.
func (s PactStatus) Advance(next PactStatus) PactStatus {
	if next.Rank() > s.Rank() {
		return next
	}
	return s
}

// Pact is the local mirror of a ChallengePact ledger account.
// Table name: pacts
type Pact struct {
	Address            string     `gorm:"primaryKey;type:varchar(64)" json:"address"`
	JoinCode           string     `gorm:"type:varchar(24);not null;uniqueIndex" json:"join_code"`
	Slug               string     `gorm:"type:varchar(128);index" json:"slug"`
	Name               string     `gorm:"not null" json:"name"`
	Description        string     `json:"description"`
	Creator            string     `gorm:"type:varchar(64);not null;index" json:"creator"`
	Status             PactStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	StakeAmount        uint64     `gorm:"not null;default:0" json:"stake_amount"`
	PrizePool          uint64     `gorm:"not null;default:0" json:"prize_pool"`
	GoalType           GoalType   `gorm:"type:varchar(48);not null;index" json:"goal_type"`
	GoalValue          uint64     `gorm:"not null" json:"goal_value"`
	VerificationType   string     `gorm:"type:varchar(32)" json:"verification_type"`
	ComparisonOperator string     `gorm:"type:varchar(32)" json:"comparison_operator"`
	PactVault          string     `gorm:"type:varchar(64)" json:"pact_vault"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`

	Participants []Participant `gorm:"foreignKey:PactAddress;references:Address" json:"participants"`
}

func (Pact) TableName() string { return "pacts" }
