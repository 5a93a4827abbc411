// store/projection.go
package store

import (
	"context"
	"strings"
	"time"

	"pact-oracle/models"

	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Point updates applied after a relayed transaction is confirmed. Each one is
// written so replaying it is a no-op: flags and statuses are only set when
// they are not already set, and counters only move on that transition.

// NormalizeIdentity trims and NFC-normalizes an off-ledger identity.
func NormalizeIdentity(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// UpsertProfile records a profile initialization. identity is only written
// when non-empty so a replay without metadata keeps the attached one.
func (s *Store) UpsertProfile(ctx context.Context, address, name, identity string) error {
	profile := models.PlayerProfile{
		Address:          address,
		Name:             name,
		ExternalIdentity: NormalizeIdentity(identity),
	}
	updates := []string{"name"}
	if profile.ExternalIdentity != "" {
		updates = append(updates, "external_identity")
	}
	return s.db(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&profile).Error
}

// CreatePact inserts a freshly initialized pact with its creator as the
// first participant. An already mirrored pact is left alone.
func (s *Store) CreatePact(ctx context.Context, pact models.Pact) (*models.Pact, error) {
	if existing, err := s.GetPact(ctx, pact.Address); err == nil {
		return existing, s.AddParticipant(ctx, pact.Address, pact.Creator)
	} else if err != ErrNotFound {
		return nil, err
	}

	code, err := s.uniqueJoinCode(ctx, pact.Name, nil)
	if err != nil {
		return nil, err
	}
	pact.JoinCode = code
	pact.Status = models.PactStatusInitialized
	pact.PrizePool = 0
	pact.Participants = nil
	if pact.CreatedAt.IsZero() {
		pact.CreatedAt = time.Now().UTC()
	}
	if err := s.ensureProfiles(ctx, []string{pact.Creator}); err != nil {
		return nil, err
	}
	if err := s.db(ctx).Omit(clause.Associations).Create(&pact).Error; err != nil {
		return nil, err
	}
	if err := s.AddParticipant(ctx, pact.Address, pact.Creator); err != nil {
		return nil, err
	}
	return &pact, nil
}

// AddParticipant inserts the (pact, player) row if it does not exist.
func (s *Store) AddParticipant(ctx context.Context, pact, player string) error {
	if err := s.ensureProfiles(ctx, []string{player}); err != nil {
		return err
	}
	row := models.Participant{PactAddress: pact, PlayerAddress: player}
	return s.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// MarkStaked flips has_staked and grows the prize pool by amount, once.
// It reports whether the transition happened.
func (s *Store) MarkStaked(ctx context.Context, pact, player string, amount uint64) (bool, error) {
	if err := s.AddParticipant(ctx, pact, player); err != nil {
		return false, err
	}
	res := s.db(ctx).Model(&models.Participant{}).
		Where("pact_address = ? AND player_address = ? AND has_staked = ?", pact, player, false).
		Update("has_staked", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := s.db(ctx).Model(&models.Pact{}).
		Where("address = ?", pact).
		Update("prize_pool", gorm.Expr("prize_pool + ?", amount)).Error
	return err == nil, err
}

// ActivatePact moves an Initialized pact to Active.
func (s *Store) ActivatePact(ctx context.Context, pact string) (bool, error) {
	res := s.db(ctx).Model(&models.Pact{}).
		Where("address = ? AND status = ?", pact, models.PactStatusInitialized).
		Update("status", models.PactStatusActive)
	return res.RowsAffected > 0, res.Error
}

// CompletePact closes a pact and settles win/loss counters: the winner gains
// a win if it is a participant, every other participant gains a loss.
// Counters only move on the transition into Completed.
func (s *Store) CompletePact(ctx context.Context, pact, winner string) (bool, error) {
	res := s.db(ctx).Model(&models.Pact{}).
		Where("address = ? AND status IN ?", pact, []models.PactStatus{models.PactStatusInitialized, models.PactStatusActive}).
		Update("status", models.PactStatusCompleted)
	if res.Error != nil || res.RowsAffected == 0 {
		return false, res.Error
	}

	members := s.db(ctx).Model(&models.Participant{}).Select("player_address").Where("pact_address = ?", pact)
	err := s.db(ctx).Model(&models.PlayerProfile{}).
		Where("address = ? AND address IN (?)", winner, members).
		Update("pacts_won", gorm.Expr("pacts_won + 1")).Error
	if err != nil {
		return false, err
	}
	err = s.db(ctx).Model(&models.PlayerProfile{}).
		Where("address <> ? AND address IN (?)", winner, members).
		Update("pacts_lost", gorm.Expr("pacts_lost + 1")).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// EliminateParticipant sets is_eliminated once, keeping the first timestamp.
func (s *Store) EliminateParticipant(ctx context.Context, pact, player string, at time.Time) (bool, error) {
	if err := s.AddParticipant(ctx, pact, player); err != nil {
		return false, err
	}
	at = at.UTC()
	res := s.db(ctx).Model(&models.Participant{}).
		Where("pact_address = ? AND player_address = ? AND is_eliminated = ?", pact, player, false).
		Updates(map[string]interface{}{"is_eliminated": true, "eliminated_at": &at})
	return res.RowsAffected > 0, res.Error
}
