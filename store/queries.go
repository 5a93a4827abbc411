// store/queries.go
package store

import (
	"context"

	"pact-oracle/models"
	"pact-oracle/utils"

	"gorm.io/gorm"
)

func withParticipants(db *gorm.DB) *gorm.DB {
	return db.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("player_address")
	})
}

func (s *Store) GetPact(ctx context.Context, address string) (*models.Pact, error) {
	var pact models.Pact
	if err := withParticipants(s.db(ctx)).Where("address = ?", address).First(&pact).Error; err != nil {
		return nil, notFound(err)
	}
	return &pact, nil
}

func (s *Store) GetPactByCode(ctx context.Context, code string) (*models.Pact, error) {
	var pact models.Pact
	err := withParticipants(s.db(ctx)).
		Where("join_code = ?", utils.NormalizeJoinCode(code)).
		First(&pact).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &pact, nil
}

// ListPacts returns every mirrored pact, newest first.
func (s *Store) ListPacts(ctx context.Context) ([]models.Pact, error) {
	var pacts []models.Pact
	if err := withParticipants(s.db(ctx)).Order("created_at DESC, address").Find(&pacts).Error; err != nil {
		return nil, err
	}
	return pacts, nil
}

// ListPactsForPlayer returns the pacts player participates in.
func (s *Store) ListPactsForPlayer(ctx context.Context, player string) ([]models.Pact, error) {
	var pacts []models.Pact
	sub := s.db(ctx).Model(&models.Participant{}).Select("pact_address").Where("player_address = ?", player)
	err := withParticipants(s.db(ctx)).
		Where("address IN (?)", sub).
		Order("created_at DESC, address").
		Find(&pacts).Error
	if err != nil {
		return nil, err
	}
	return pacts, nil
}

// ActivePacts returns Active pacts with their participant lists.
func (s *Store) ActivePacts(ctx context.Context) ([]models.Pact, error) {
	var pacts []models.Pact
	err := withParticipants(s.db(ctx)).
		Where("status = ?", models.PactStatusActive).
		Order("address").
		Find(&pacts).Error
	if err != nil {
		return nil, err
	}
	return pacts, nil
}

func (s *Store) GetProfile(ctx context.Context, address string) (*models.PlayerProfile, error) {
	var profile models.PlayerProfile
	if err := s.db(ctx).Where("address = ?", address).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

// ProfilesByAddress loads the given profiles keyed by address. Missing
// addresses are simply absent from the map.
func (s *Store) ProfilesByAddress(ctx context.Context, addresses []string) (map[string]models.PlayerProfile, error) {
	out := make(map[string]models.PlayerProfile, len(addresses))
	for _, chunk := range chunks(addresses, inChunk) {
		var profiles []models.PlayerProfile
		if err := s.db(ctx).Where("address IN ?", chunk).Find(&profiles).Error; err != nil {
			return nil, err
		}
		for _, p := range profiles {
			out[p.Address] = p
		}
	}
	return out, nil
}

// DeleteProfile removes a profile and its participant rows. Administrative
// only: the ledger still holds the account and the next refresh restores it.
func (s *Store) DeleteProfile(ctx context.Context, address string) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.DB.Where("player_address = ?", address).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		res := tx.DB.Where("address = ?", address).Delete(&models.PlayerProfile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
