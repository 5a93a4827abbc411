package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pact-oracle/config"
	"pact-oracle/database"
	"pact-oracle/ledger/ledgertest"
	"pact-oracle/models"
	"pact-oracle/program"
	"pact-oracle/store"
	"pact-oracle/verifiers"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t       *testing.T
	store   *store.Store
	ledger  *ledgertest.Ledger
	prog    *program.Program
	sponsor solana.PrivateKey
	relay   *RelayService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	prog, err := program.Parse(program.DefaultProgramID)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		store:   store.New(db),
		ledger:  ledgertest.New(),
		prog:    prog,
		sponsor: solana.NewWallet().PrivateKey,
	}
	h.relay = NewRelayService(h.ledger, h.store, prog, h.sponsor, config.RelayConfig{
		IdempotencyTTL:  time.Minute,
		IdempotencySize: 64,
	}, zerolog.Nop())
	h.relay.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func (h *harness) oracle(registry *verifiers.Registry, policy string) *OracleService {
	o := NewOracleService(h.store, h.relay, registry, policy, zerolog.Nop())
	o.now = func() time.Time { return time.Date(2024, 3, 2, 0, 5, 0, 0, time.UTC) }
	return o
}

// tx builds a sponsor-paid transaction signed by the given client keys.
func (h *harness) tx(payer solana.PublicKey, signers []solana.PrivateKey, ixs ...solana.Instruction) []byte {
	h.t.Helper()
	tx, err := program.NewTransaction(payer, solana.Hash{1}, ixs...)
	require.NoError(h.t, err)
	for len(tx.Signatures) < int(tx.Message.Header.NumRequiredSignatures) {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	for _, k := range signers {
		_, err := program.Sign(tx, k)
		require.NoError(h.t, err)
	}
	raw, err := tx.MarshalBinary()
	require.NoError(h.t, err)
	return raw
}

func (h *harness) build(ix program.Instruction) solana.Instruction {
	h.t.Helper()
	b, err := h.prog.Build(ix)
	require.NoError(h.t, err)
	return b
}

// clientTx is the common case: one whitelisted call paid by the sponsor.
func (h *harness) clientTx(signer solana.PrivateKey, ix program.Instruction) []byte {
	return h.tx(h.sponsor.PublicKey(), []solana.PrivateKey{signer}, h.build(ix))
}

func (h *harness) profileIx(player solana.PublicKey, name string) program.InitializePlayerProfile {
	h.t.Helper()
	profile, err := h.prog.ProfileAddress(player)
	require.NoError(h.t, err)
	return program.InitializePlayerProfile{
		PlayerProfile: profile,
		AppVault:      h.sponsor.PublicKey(),
		Player:        player,
		Name:          name,
	}
}

func (h *harness) createPactIx(creator solana.PublicKey, name string, stake uint64) program.InitializeChallengePact {
	h.t.Helper()
	pact, err := h.prog.PactAddress(name, creator)
	require.NoError(h.t, err)
	goal, err := h.prog.PlayerGoalAddress(creator, pact)
	require.NoError(h.t, err)
	vault, err := h.prog.PactVaultAddress(pact)
	require.NoError(h.t, err)
	profile, err := h.prog.ProfileAddress(creator)
	require.NoError(h.t, err)
	return program.InitializeChallengePact{
		ChallengePact:      pact,
		PlayerGoal:         goal,
		PactVault:          vault,
		AppVault:           h.sponsor.PublicKey(),
		PlayerProfile:      profile,
		Player:             creator,
		Name:               name,
		Description:        "one commit a day",
		GoalType:           models.GoalDailyGithubContribution,
		GoalValue:          1,
		VerificationType:   models.VerificationGitHubAPI,
		ComparisonOperator: models.ComparisonGreaterThanOrEqual,
		Stake:              stake,
	}
}

func (h *harness) joinIx(pact, player solana.PublicKey) program.JoinChallengePact {
	h.t.Helper()
	goal, err := h.prog.PlayerGoalAddress(player, pact)
	require.NoError(h.t, err)
	profile, err := h.prog.ProfileAddress(player)
	require.NoError(h.t, err)
	return program.JoinChallengePact{
		ChallengePact: pact,
		PlayerGoal:    goal,
		AppVault:      h.sponsor.PublicKey(),
		PlayerProfile: profile,
		Player:        player,
	}
}

func (h *harness) stakeIx(pact, player solana.PublicKey, amount uint64) program.StakeAmountForChallengePact {
	h.t.Helper()
	goal, err := h.prog.PlayerGoalAddress(player, pact)
	require.NoError(h.t, err)
	vault, err := h.prog.PactVaultAddress(pact)
	require.NoError(h.t, err)
	return program.StakeAmountForChallengePact{
		ChallengePact: pact,
		PlayerGoal:    goal,
		PactVault:     vault,
		AppVault:      h.sponsor.PublicKey(),
		Player:        player,
		Amount:        amount,
	}
}

func (h *harness) startIx(pact, creator solana.PublicKey) program.StartChallengePact {
	return program.StartChallengePact{
		ChallengePact: pact,
		AppVault:      h.sponsor.PublicKey(),
		Player:        creator,
	}
}

// player is a client wallet with a mirrored profile.
type player struct {
	key      solana.PrivateKey
	identity string
}

func (p player) pub() solana.PublicKey { return p.key.PublicKey() }
func (p player) addr() string          { return p.key.PublicKey().String() }

func newPlayer(identity string) player {
	return player{key: solana.NewWallet().PrivateKey, identity: identity}
}

// activePact mirrors an Active pact with the given members directly in the
// store and returns its address.
func (h *harness) activePact(name string, creator player, members ...player) solana.PublicKey {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.t.Cleanup(cancel)
	ix := h.createPactIx(creator.pub(), name, 1000)
	for _, p := range append([]player{creator}, members...) {
		require.NoError(h.t, h.store.UpsertProfile(ctx, p.addr(), p.identity, p.identity))
	}
	_, err := h.store.CreatePact(ctx, models.Pact{
		Address:            ix.ChallengePact.String(),
		Name:               name,
		Creator:            creator.addr(),
		StakeAmount:        1000,
		GoalType:           models.GoalDailyGithubContribution,
		GoalValue:          1,
		VerificationType:   models.VerificationGitHubAPI,
		ComparisonOperator: models.ComparisonGreaterThanOrEqual,
		PactVault:          ix.PactVault.String(),
	})
	require.NoError(h.t, err)
	for _, p := range members {
		require.NoError(h.t, h.store.AddParticipant(ctx, ix.ChallengePact.String(), p.addr()))
	}
	ok, err := h.store.ActivatePact(ctx, ix.ChallengePact.String())
	require.NoError(h.t, err)
	require.True(h.t, ok)
	return ix.ChallengePact
}

// byIdentity answers from a fixed identity -> outcome table.
func byIdentity(outcomes map[string]verifiers.Outcome) *verifiers.Registry {
	r := verifiers.NewRegistry()
	r.Register(models.GoalDailyGithubContribution, verifiers.VerifierFunc(
		func(_ context.Context, identity string, _ uint64, _ time.Time) (verifiers.Outcome, error) {
			if o, ok := outcomes[identity]; ok {
				return o, nil
			}
			return verifiers.Unavailable, errors.New("no answer")
		}))
	return r
}

func instructionsOf[T program.Instruction](ixs []program.Instruction) []T {
	var out []T
	for _, ix := range ixs {
		if v, ok := ix.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
