// workers/indexer.go
package workers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pact-oracle/ledger"
	"pact-oracle/metrics"
	"pact-oracle/models"
	"pact-oracle/program"
	"pact-oracle/store"
	"pact-oracle/utils"

	"github.com/rs/zerolog"
)

// Archiver stores a JSON document under name and returns its key.
type Archiver interface {
	PutJSON(ctx context.Context, name string, v interface{}) (string, error)
}

// Report summarises one reconcile pass.
type Report struct {
	StartedAt    time.Time             `json:"started_at"`
	Duration     time.Duration         `json:"duration"`
	Kinds        []program.AccountKind `json:"kinds"`
	Pacts        int                   `json:"pacts"`
	Profiles     int                   `json:"profiles"`
	Participants int                   `json:"participants"`
	Skipped      int                   `json:"skipped"`
	ArchiveKey   string                `json:"archive_key,omitempty"`
}

type snapshot struct {
	Report       Report                 `json:"report"`
	Pacts        []models.Pact          `json:"pacts,omitempty"`
	Profiles     []models.PlayerProfile `json:"profiles,omitempty"`
	Participants []models.Participant   `json:"participants,omitempty"`
}

// Indexer mirrors program accounts into the store with full-refresh passes.
type Indexer struct {
	ledger       ledger.Client
	store        *store.Store
	archive      Archiver
	fetchTimeout time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

func NewIndexer(client ledger.Client, st *store.Store, fetchTimeout time.Duration, log zerolog.Logger) *Indexer {
	return &Indexer{
		ledger:       client,
		store:        st,
		fetchTimeout: fetchTimeout,
		log:          log,
		now:          time.Now,
	}
}

// WithArchive uploads a snapshot after every successful pass.
func (ix *Indexer) WithArchive(a Archiver) *Indexer {
	ix.archive = a
	return ix
}

// Reconcile runs a full pass over every account kind.
func (ix *Indexer) Reconcile(ctx context.Context) (Report, error) {
	return ix.ReconcileKinds(ctx, program.Kinds...)
}

// ReconcileKinds fetches the requested kinds, then writes them in
// dependency order inside one store transaction. Any fetch or write error
// leaves the mirror as it was. Errors are returned, not retried.
func (ix *Indexer) ReconcileKinds(ctx context.Context, kinds ...program.AccountKind) (Report, error) {
	report := Report{StartedAt: ix.now().UTC(), Kinds: ordered(kinds)}
	snap, err := ix.fetch(ctx, report.Kinds)
	if err == nil {
		err = ix.store.Transaction(ctx, func(tx *store.Store) error {
			return ix.write(ctx, tx, snap, &report)
		})
	}
	report.Duration = ix.now().Sub(report.StartedAt)
	metrics.ReconcileDuration.Observe(report.Duration.Seconds())

	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		ix.log.Error().Err(err).Msg("❌ Reconcile failed, mirror left unchanged")
		return report, err
	}
	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	for _, k := range report.Kinds {
		metrics.MirroredRows.WithLabelValues(string(k)).Set(float64(report.count(k)))
	}

	if ix.archive != nil {
		snap.Report = report
		name := report.StartedAt.Format(time.RFC3339) + ".json"
		if key, err := ix.archive.PutJSON(ctx, name, snap); err != nil {
			metrics.SnapshotUploads.WithLabelValues("error").Inc()
			ix.log.Warn().Err(err).Msg("snapshot upload failed")
		} else {
			metrics.SnapshotUploads.WithLabelValues("ok").Inc()
			report.ArchiveKey = key
		}
	}

	ix.log.Info().
		Int("pacts", report.Pacts).
		Int("profiles", report.Profiles).
		Int("participants", report.Participants).
		Int("skipped", report.Skipped).
		Dur("took", report.Duration).
		Msg("✅ Reconcile complete")
	return report, nil
}

func (r Report) count(k program.AccountKind) int {
	switch k {
	case program.KindPact:
		return r.Pacts
	case program.KindProfile:
		return r.Profiles
	}
	return r.Participants
}

// ordered dedups kinds and puts them in reconcile order.
func ordered(kinds []program.AccountKind) []program.AccountKind {
	want := make(map[program.AccountKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	out := make([]program.AccountKind, 0, len(want))
	for _, k := range program.Kinds {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

func (ix *Indexer) fetch(ctx context.Context, kinds []program.AccountKind) (*snapshot, error) {
	if ix.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.fetchTimeout)
		defer cancel()
	}

	snap := &snapshot{}
	var pactAccounts []program.PactAccount
	var goalAccounts []program.PlayerGoalAccount
	for _, k := range kinds {
		switch k {
		case program.KindPact:
			accounts, err := ix.ledger.FetchPacts(ctx)
			if err != nil {
				return nil, err
			}
			pactAccounts = accounts
			for _, a := range accounts {
				snap.Pacts = append(snap.Pacts, pactModel(a))
			}
		case program.KindProfile:
			accounts, err := ix.ledger.FetchProfiles(ctx)
			if err != nil {
				return nil, err
			}
			for _, a := range accounts {
				snap.Profiles = append(snap.Profiles, profileModel(a))
			}
		case program.KindPlayerGoal:
			accounts, err := ix.ledger.FetchPlayerGoals(ctx)
			if err != nil {
				return nil, err
			}
			goalAccounts = accounts
		}
	}
	snap.Participants = participantRows(pactAccounts, goalAccounts)
	return snap, nil
}

func (ix *Indexer) write(ctx context.Context, tx *store.Store, snap *snapshot, report *Report) error {
	var err error
	if report.Pacts, err = tx.MergePacts(ctx, snap.Pacts); err != nil {
		return fmt.Errorf("write pacts: %w", err)
	}
	if report.Profiles, err = tx.MergeProfiles(ctx, snap.Profiles); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	if report.Participants, report.Skipped, err = tx.MergeParticipants(ctx, snap.Participants); err != nil {
		return fmt.Errorf("write participants: %w", err)
	}
	if report.Skipped > 0 {
		ix.log.Warn().Int("skipped", report.Skipped).Msg("goal records reference unmirrored pacts")
	}
	return nil
}

func pactModel(a program.PactAccount) models.Pact {
	return models.Pact{
		Address:            a.Address.String(),
		Slug:               utils.PactSlug(a.Name),
		Name:               a.Name,
		Description:        a.Description,
		Creator:            a.Creator.String(),
		Status:             a.Status,
		StakeAmount:        a.Stake,
		PrizePool:          a.PrizePool,
		GoalType:           a.GoalType,
		GoalValue:          a.GoalValue,
		VerificationType:   a.VerificationType,
		ComparisonOperator: a.ComparisonOperator,
		PactVault:          a.PactVault.String(),
		CreatedAt:          time.Unix(a.CreatedAt, 0).UTC(),
	}
}

// profileModel keys the profile by its owning player, which is what
// participant rows reference.
func profileModel(a program.ProfileAccount) models.PlayerProfile {
	return models.PlayerProfile{
		Address:   a.Owner.String(),
		Name:      a.Name,
		PactsWon:  a.PactsWon,
		PactsLost: a.PactsLost,
	}
}

// participantRows folds goal records over the membership lists of the
// fetched pacts. Goal records carry the flags; a member without a goal
// record yet still gets a row.
func participantRows(pacts []program.PactAccount, goals []program.PlayerGoalAccount) []models.Participant {
	type key struct{ pact, player string }
	rows := make(map[key]*models.Participant)
	add := func(p models.Participant) {
		k := key{p.PactAddress, p.PlayerAddress}
		if cur, ok := rows[k]; ok {
			cur.Merge(p)
			return
		}
		rows[k] = &p
	}

	for _, pact := range pacts {
		for _, player := range pact.Participants {
			add(models.Participant{PactAddress: pact.Address.String(), PlayerAddress: player.String()})
		}
	}
	for _, g := range goals {
		row := models.Participant{
			PactAddress:   g.Pact.String(),
			PlayerAddress: g.Player.String(),
			HasStaked:     g.HasStaked,
			IsEliminated:  g.IsEliminated,
		}
		if g.IsEliminated && g.EliminatedAt != nil {
			at := time.Unix(*g.EliminatedAt, 0).UTC()
			row.EliminatedAt = &at
		}
		add(row)
	}

	out := make([]models.Participant, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PactAddress != out[j].PactAddress {
			return out[i].PactAddress < out[j].PactAddress
		}
		return out[i].PlayerAddress < out[j].PlayerAddress
	})
	return out
}
