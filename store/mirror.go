// store/mirror.go
package store

import (
	"context"
	"fmt"

	"pact-oracle/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatch = 200

// Monotone merge expressions evaluated inside ON CONFLICT DO UPDATE, so a
// stale ledger read racing a relay point update can never move a pact
// backwards, clear a flag or shrink a counter.
const statusRankExpr = "CASE %s WHEN 'initialized' THEN 0 WHEN 'active' THEN 1 WHEN 'completed' THEN 2 WHEN 'cancelled' THEN 2 ELSE -1 END"

var (
	pactStatusMerge = clause.Assignment{
		Column: clause.Column{Name: "status"},
		Value: gorm.Expr(fmt.Sprintf("CASE WHEN %s > %s THEN excluded.status ELSE pacts.status END",
			fmt.Sprintf(statusRankExpr, "excluded.status"),
			fmt.Sprintf(statusRankExpr, "pacts.status"))),
	}
	// The pool only grows until the ledger reports the pact settled, so a
	// read taken before a relayed stake cannot drop that stake again.
	prizePoolMerge = clause.Assignment{
		Column: clause.Column{Name: "prize_pool"},
		Value: gorm.Expr(fmt.Sprintf("CASE WHEN %s = 2 OR excluded.prize_pool > pacts.prize_pool THEN excluded.prize_pool ELSE pacts.prize_pool END",
			fmt.Sprintf(statusRankExpr, "excluded.status"))),
	}
	pactsWonMerge = clause.Assignment{
		Column: clause.Column{Name: "pacts_won"},
		Value:  gorm.Expr("CASE WHEN excluded.pacts_won > player_profiles.pacts_won THEN excluded.pacts_won ELSE player_profiles.pacts_won END"),
	}
	pactsLostMerge = clause.Assignment{
		Column: clause.Column{Name: "pacts_lost"},
		Value:  gorm.Expr("CASE WHEN excluded.pacts_lost > player_profiles.pacts_lost THEN excluded.pacts_lost ELSE player_profiles.pacts_lost END"),
	}
	hasStakedMerge = clause.Assignment{
		Column: clause.Column{Name: "has_staked"},
		Value:  gorm.Expr("participants.has_staked OR excluded.has_staked"),
	}
	isEliminatedMerge = clause.Assignment{
		Column: clause.Column{Name: "is_eliminated"},
		Value:  gorm.Expr("participants.is_eliminated OR excluded.is_eliminated"),
	}
	eliminatedAtMerge = clause.Assignment{
		Column: clause.Column{Name: "eliminated_at"},
		Value:  gorm.Expr("CASE WHEN participants.is_eliminated THEN participants.eliminated_at ELSE excluded.eliminated_at END"),
	}
)

// MergePacts upserts ledger pacts. Ledger fields overwrite local ones except
// status, which only advances, the prize pool, which only grows before
// settlement, and the join code, which is local and kept.
func (s *Store) MergePacts(ctx context.Context, pacts []models.Pact) (int, error) {
	if len(pacts) == 0 {
		return 0, nil
	}

	addresses := make([]string, len(pacts))
	for i, p := range pacts {
		addresses[i] = p.Address
	}
	codes, err := s.joinCodes(ctx, addresses)
	if err != nil {
		return 0, err
	}

	taken := make(map[string]bool, len(pacts))
	for i := range pacts {
		p := &pacts[i]
		p.Participants = nil
		if code, ok := codes[p.Address]; ok {
			p.JoinCode = code
		} else {
			if p.JoinCode, err = s.uniqueJoinCode(ctx, p.Name, taken); err != nil {
				return 0, err
			}
		}
		taken[p.JoinCode] = true
	}

	updates := clause.AssignmentColumns([]string{
		"slug", "name", "description", "creator", "stake_amount",
		"goal_type", "goal_value", "verification_type", "comparison_operator",
		"pact_vault", "created_at",
	})
	updates = append(updates, pactStatusMerge, prizePoolMerge)

	err = s.db(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: updates,
	}).CreateInBatches(&pacts, upsertBatch).Error
	if err != nil {
		return 0, fmt.Errorf("upsert %d pact(s): %w", len(pacts), err)
	}
	return len(pacts), nil
}

// MergeProfiles upserts ledger profiles. The external identity is off-ledger
// and never touched here; win/loss counters never decrease.
func (s *Store) MergeProfiles(ctx context.Context, profiles []models.PlayerProfile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}
	for i := range profiles {
		profiles[i].Participations = nil
	}

	updates := clause.AssignmentColumns([]string{"name"})
	updates = append(updates, pactsWonMerge, pactsLostMerge)

	err := s.db(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: updates,
	}).CreateInBatches(&profiles, upsertBatch).Error
	if err != nil {
		return 0, fmt.Errorf("upsert %d profile(s): %w", len(profiles), err)
	}
	return len(profiles), nil
}

// MergeParticipants upserts goal records as participant rows. Rows whose pact
// is not mirrored are skipped; players without a profile get a stub so the
// foreign key holds until the profile scan catches up.
func (s *Store) MergeParticipants(ctx context.Context, rows []models.Participant) (written, skipped int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	pactSet := make(map[string]bool)
	playerSet := make(map[string]bool)
	for _, r := range rows {
		pactSet[r.PactAddress] = true
		playerSet[r.PlayerAddress] = true
	}
	knownPacts, err := s.existing(ctx, &models.Pact{}, keys(pactSet))
	if err != nil {
		return 0, 0, err
	}
	if err := s.ensureProfiles(ctx, keys(playerSet)); err != nil {
		return 0, 0, err
	}

	keep := rows[:0:0]
	for _, r := range rows {
		if !knownPacts[r.PactAddress] {
			skipped++
			continue
		}
		keep = append(keep, r)
	}
	if len(keep) == 0 {
		return 0, skipped, nil
	}

	err = s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pact_address"}, {Name: "player_address"}},
		DoUpdates: clause.Set{hasStakedMerge, isEliminatedMerge, eliminatedAtMerge},
	}).CreateInBatches(&keep, upsertBatch).Error
	if err != nil {
		return 0, 0, fmt.Errorf("upsert %d participant(s): %w", len(keep), err)
	}
	return len(keep), skipped, nil
}

func (s *Store) joinCodes(ctx context.Context, addresses []string) (map[string]string, error) {
	out := make(map[string]string, len(addresses))
	for _, chunk := range chunks(addresses, inChunk) {
		var rows []struct {
			Address  string
			JoinCode string
		}
		if err := s.db(ctx).Model(&models.Pact{}).Select("address, join_code").Where("address IN ?", chunk).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.Address] = r.JoinCode
		}
	}
	return out, nil
}

func (s *Store) uniqueJoinCode(ctx context.Context, name string, taken map[string]bool) (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		code := s.NewJoinCode(name)
		if taken[code] {
			continue
		}
		var n int64
		if err := s.db(ctx).Model(&models.Pact{}).Where("join_code = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique join code for %q", name)
}

// existing reports which primary keys of model's table are present.
func (s *Store) existing(ctx context.Context, model interface{}, addresses []string) (map[string]bool, error) {
	out := make(map[string]bool, len(addresses))
	for _, chunk := range chunks(addresses, inChunk) {
		var found []string
		if err := s.db(ctx).Model(model).Where("address IN ?", chunk).Pluck("address", &found).Error; err != nil {
			return nil, err
		}
		for _, a := range found {
			out[a] = true
		}
	}
	return out, nil
}

func (s *Store) ensureProfiles(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	stubs := make([]models.PlayerProfile, len(addresses))
	for i, a := range addresses {
		stubs[i] = models.PlayerProfile{Address: a}
	}
	return s.db(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&stubs, upsertBatch).Error
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
