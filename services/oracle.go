// services/oracle.go
package services

import (
	"context"
	"time"

	"pact-oracle/config"
	"pact-oracle/metrics"
	"pact-oracle/models"
	"pact-oracle/program"
	"pact-oracle/store"
	"pact-oracle/verifiers"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// VerificationReport counts what one verification run did.
type VerificationReport struct {
	Pacts       int `json:"pacts"`
	Checked     int `json:"checked"`
	Met         int `json:"met"`
	NotMet      int `json:"not_met"`
	Unavailable int `json:"unavailable"`
	Eliminated  int `json:"eliminated"`
	Failed      int `json:"failed"`
}

// SettlementReport counts what one settlement run did.
type SettlementReport struct {
	Pacts   int `json:"pacts"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
}

// OracleService runs the verification and settlement duties against the
// mirror. Ledger changes go through the relay like any other transaction.
type OracleService struct {
	store     *store.Store
	relay     *RelayService
	verifiers *verifiers.Registry
	policy    string
	log       zerolog.Logger
	now       func() time.Time
}

func NewOracleService(st *store.Store, relay *RelayService, registry *verifiers.Registry, policy string, log zerolog.Logger) *OracleService {
	if policy == "" {
		policy = config.UnavailableSkip
	}
	return &OracleService{
		store:     st,
		relay:     relay,
		verifiers: registry,
		policy:    policy,
		log:       log,
		now:       time.Now,
	}
}

// RunVerification checks every non-eliminated participant of every Active
// pact whose goal type has a verifier, and eliminates those that missed.
// Only a failure to read the store fails the run.
func (o *OracleService) RunVerification(ctx context.Context) (VerificationReport, error) {
	var report VerificationReport
	pacts, err := o.store.ActivePacts(ctx)
	if err != nil {
		return report, errors.Wrap(err, "load active pacts")
	}

	var players []string
	for _, p := range pacts {
		for _, part := range p.Participants {
			players = append(players, part.PlayerAddress)
		}
	}
	profiles, err := o.store.ProfilesByAddress(ctx, players)
	if err != nil {
		return report, errors.Wrap(err, "load profiles")
	}

	asOf := o.now().UTC()
	for _, pact := range pacts {
		verifier, ok := o.verifiers.Lookup(pact.GoalType)
		if !ok {
			continue
		}
		report.Pacts++

		for _, part := range pact.Participants {
			if part.IsEliminated {
				continue
			}
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Checked++
			log := o.log.With().Str("pact", pact.Address).Str("player", part.PlayerAddress).Logger()

			identity := profiles[part.PlayerAddress].ExternalIdentity
			if identity == "" {
				// Nothing to check against, so no policy may eliminate them.
				report.Unavailable++
				metrics.VerificationOutcomes.WithLabelValues(string(pact.GoalType), verifiers.Unavailable.String()).Inc()
				log.Warn().Msg("profile has no external identity, skipping participant")
				continue
			}

			outcome, verr := verifier.GoalMet(ctx, identity, pact.GoalValue, asOf)
			metrics.VerificationOutcomes.WithLabelValues(string(pact.GoalType), outcome.String()).Inc()
			switch outcome {
			case verifiers.Met:
				report.Met++
				continue
			case verifiers.NotMet:
				report.NotMet++
			case verifiers.Unavailable:
				report.Unavailable++
				if o.policy != config.UnavailableEliminate {
					log.Warn().Err(verr).Msg("verification unavailable, leaving participant untouched")
					continue
				}
				log.Warn().Err(verr).Msg("verification unavailable, eliminating by policy")
			}

			sig, err := o.eliminate(ctx, pact, part.PlayerAddress, asOf)
			if err != nil {
				report.Failed++
				metrics.Eliminations.WithLabelValues("error").Inc()
				log.Error().Err(err).Msg("❌ Elimination failed")
				continue
			}
			report.Eliminated++
			metrics.Eliminations.WithLabelValues("ok").Inc()
			log.Info().Str("signature", sig.String()).Msg("🚫 Participant eliminated")
		}
	}
	return report, nil
}

func (o *OracleService) eliminate(ctx context.Context, pact models.Pact, player string, at time.Time) (solana.Signature, error) {
	pactKey, err := solana.PublicKeyFromBase58(pact.Address)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "pact address")
	}
	playerKey, err := solana.PublicKeyFromBase58(player)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "player address")
	}
	goal, err := o.relay.program.PlayerGoalAddress(playerKey, pactKey)
	if err != nil {
		return solana.Signature{}, err
	}
	eliminatedAt := at.Unix()
	return o.relay.SubmitInstructions(ctx, program.UpdatePlayerGoal{
		PlayerGoal:    goal,
		ChallengePact: pactKey,
		AppVault:      o.relay.Sponsor(),
		Player:        playerKey,
		IsEliminated:  true,
		EliminatedAt:  &eliminatedAt,
	})
}

// RunSettlement ends every Active pact with at most one participant left.
// With nobody left the sponsor is named winner, since the program needs a
// winner account.
func (o *OracleService) RunSettlement(ctx context.Context) (SettlementReport, error) {
	var report SettlementReport
	pacts, err := o.store.ActivePacts(ctx)
	if err != nil {
		return report, errors.Wrap(err, "load active pacts")
	}

	for _, pact := range pacts {
		if pact.Status.Terminal() {
			continue
		}
		report.Pacts++

		var survivors []string
		for _, part := range pact.Participants {
			if !part.IsEliminated {
				survivors = append(survivors, part.PlayerAddress)
			}
		}
		if len(survivors) > 1 {
			continue
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		winner := o.relay.Sponsor().String()
		if len(survivors) == 1 {
			winner = survivors[0]
		}
		log := o.log.With().Str("pact", pact.Address).Str("winner", winner).Logger()

		sig, err := o.settle(ctx, pact, winner)
		if err != nil {
			report.Failed++
			metrics.Settlements.WithLabelValues("error").Inc()
			log.Error().Err(err).Msg("❌ Settlement failed")
			continue
		}
		report.Settled++
		metrics.Settlements.WithLabelValues("ok").Inc()
		log.Info().Str("signature", sig.String()).Int("survivors", len(survivors)).Msg("🏆 Pact settled")
	}
	return report, nil
}

func (o *OracleService) settle(ctx context.Context, pact models.Pact, winner string) (solana.Signature, error) {
	pactKey, err := solana.PublicKeyFromBase58(pact.Address)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "pact address")
	}
	winnerKey, err := solana.PublicKeyFromBase58(winner)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "winner address")
	}
	vault, err := o.relay.program.PactVaultAddress(pactKey)
	if err != nil {
		return solana.Signature{}, err
	}
	return o.relay.SubmitInstructions(ctx, program.EndChallengePact{
		ChallengePact: pactKey,
		PactVault:     vault,
		Winner:        winnerKey,
		AppVault:      o.relay.Sponsor(),
	})
}
