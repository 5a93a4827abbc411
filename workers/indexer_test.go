package workers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pact-oracle/database"
	"pact-oracle/ledger/ledgertest"
	"pact-oracle/models"
	"pact-oracle/program"
	"pact-oracle/store"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store.New(db)
}

type fixture struct {
	pact, alice, bob, carol solana.PublicKey
}

func newFixture() fixture {
	return fixture{
		pact:  solana.NewWallet().PublicKey(),
		alice: solana.NewWallet().PublicKey(),
		bob:   solana.NewWallet().PublicKey(),
		carol: solana.NewWallet().PublicKey(),
	}
}

func (f fixture) seed(l *ledgertest.Ledger) {
	eliminatedAt := int64(1_700_000_500)
	l.SetPacts(program.PactAccount{
		Address:      f.pact,
		Name:         "Morning Run",
		Description:  "ship daily",
		Creator:      f.alice,
		CreatedAt:    1_700_000_000,
		Participants: []solana.PublicKey{f.alice, f.bob, f.carol},
		Status:       models.PactStatusActive,
		GoalType:     models.GoalDailyGithubContribution,
		GoalValue:    1,
		Stake:        1000,
		PrizePool:    2000,
		PactVault:    solana.NewWallet().PublicKey(),
	})
	l.SetProfiles(
		program.ProfileAccount{Address: solana.NewWallet().PublicKey(), Owner: f.alice, Name: "alice", PactsWon: 1},
		program.ProfileAccount{Address: solana.NewWallet().PublicKey(), Owner: f.bob, Name: "bob"},
	)
	l.SetPlayerGoals(
		program.PlayerGoalAccount{Player: f.alice, Pact: f.pact, HasStaked: true},
		program.PlayerGoalAccount{Player: f.bob, Pact: f.pact, HasStaked: true, IsEliminated: true, EliminatedAt: &eliminatedAt},
		// goal record whose pact is not on the ledger scan
		program.PlayerGoalAccount{Player: f.bob, Pact: solana.NewWallet().PublicKey()},
	)
}

func TestReconcileMirrorsLedger(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	l := ledgertest.New()
	f := newFixture()
	f.seed(l)

	ix := NewIndexer(l, st, time.Second, zerolog.Nop())
	report, err := ix.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pacts)
	assert.Equal(t, 2, report.Profiles)
	assert.Equal(t, 3, report.Participants)
	assert.Equal(t, 1, report.Skipped)

	pact, err := st.GetPact(ctx, f.pact.String())
	require.NoError(t, err)
	assert.Equal(t, models.PactStatusActive, pact.Status)
	assert.Equal(t, uint64(2000), pact.PrizePool)
	assert.Equal(t, "morning-run", pact.Slug)
	assert.NotEmpty(t, pact.JoinCode)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), pact.CreatedAt.UTC())
	require.Len(t, pact.Participants, 3)

	byPlayer := map[string]models.Participant{}
	for _, p := range pact.Participants {
		byPlayer[p.PlayerAddress] = p
	}
	assert.True(t, byPlayer[f.alice.String()].HasStaked)
	assert.True(t, byPlayer[f.bob.String()].IsEliminated)
	require.NotNil(t, byPlayer[f.bob.String()].EliminatedAt)
	assert.Equal(t, int64(1_700_000_500), byPlayer[f.bob.String()].EliminatedAt.Unix())
	assert.False(t, byPlayer[f.carol.String()].HasStaked)

	// carol has no profile account yet, so she got a stub
	carol, err := st.GetProfile(ctx, f.carol.String())
	require.NoError(t, err)
	assert.Empty(t, carol.Name)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	l := ledgertest.New()
	f := newFixture()
	f.seed(l)
	ix := NewIndexer(l, st, time.Second, zerolog.Nop())

	_, err := ix.Reconcile(ctx)
	require.NoError(t, err)
	first, err := st.ListPacts(ctx)
	require.NoError(t, err)
	firstProfiles, err := st.ProfilesByAddress(ctx, []string{f.alice.String(), f.bob.String(), f.carol.String()})
	require.NoError(t, err)

	_, err = ix.Reconcile(ctx)
	require.NoError(t, err)
	second, err := st.ListPacts(ctx)
	require.NoError(t, err)
	secondProfiles, err := st.ProfilesByAddress(ctx, []string{f.alice.String(), f.bob.String(), f.carol.String()})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstProfiles, secondProfiles)
}

func TestReconcileFetchErrorLeavesMirrorIntact(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	l := ledgertest.New()
	f := newFixture()
	f.seed(l)
	ix := NewIndexer(l, st, time.Second, zerolog.Nop())

	_, err := ix.Reconcile(ctx)
	require.NoError(t, err)

	// the ledger moves on, but the last scan fails
	l.SetPacts(program.PactAccount{
		Address:   f.pact,
		Name:      "Renamed",
		Creator:   f.alice,
		Status:    models.PactStatusCompleted,
		GoalType:  models.GoalDailyGithubContribution,
		PactVault: solana.NewWallet().PublicKey(),
	})
	l.FailFetch(program.KindPlayerGoal, errors.New("connection refused"))

	_, err = ix.Reconcile(ctx)
	require.Error(t, err)

	pact, err := st.GetPact(ctx, f.pact.String())
	require.NoError(t, err)
	assert.Equal(t, "Morning Run", pact.Name)
	assert.Equal(t, models.PactStatusActive, pact.Status)
}

func TestReconcileKindsFetchesOnlyRequested(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	l := ledgertest.New()
	f := newFixture()
	f.seed(l)
	ix := NewIndexer(l, st, time.Second, zerolog.Nop())

	report, err := ix.ReconcileKinds(ctx, program.KindProfile, program.KindProfile)
	require.NoError(t, err)
	assert.Equal(t, []program.AccountKind{program.KindProfile}, report.Kinds)
	assert.Equal(t, 2, report.Profiles)
	assert.Equal(t, 0, l.Fetches(program.KindPact))
	assert.Equal(t, 0, l.Fetches(program.KindPlayerGoal))

	_, err = st.GetPact(ctx, f.pact.String())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type fakeArchive struct {
	names []string
	err   error
}

func (a *fakeArchive) PutJSON(ctx context.Context, name string, v interface{}) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.names = append(a.names, name)
	return "snapshots/" + name, nil
}

func TestReconcileArchivesSnapshot(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	l := ledgertest.New()
	newFixture().seed(l)

	archive := &fakeArchive{}
	ix := NewIndexer(l, st, time.Second, zerolog.Nop()).WithArchive(archive)
	ix.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	report, err := ix.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02T03:04:05Z.json"}, archive.names)
	assert.Equal(t, "snapshots/2024-01-02T03:04:05Z.json", report.ArchiveKey)

	archive.err = errors.New("bucket gone")
	report, err = ix.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.ArchiveKey)
}
