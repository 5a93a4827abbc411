// services/relay.go
package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"pact-oracle/config"
	"pact-oracle/ledger"
	"pact-oracle/metrics"
	"pact-oracle/models"
	"pact-oracle/program"
	"pact-oracle/store"
	"pact-oracle/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Origin labels who built a relayed transaction.
type Origin string

const (
	OriginClient Origin = "client"
	OriginOracle Origin = "oracle"
)

// Metadata travels next to a client transaction and carries what the
// instruction itself cannot, such as the verifier identity for a new profile.
type Metadata struct {
	ExternalIdentity string `json:"external_identity"`
}

// RelayService validates, co-signs, submits and confirms transactions paid
// for by the sponsor, then projects their effect into the store.
type RelayService struct {
	ledger            ledger.Client
	store             *store.Store
	program           *program.Program
	sponsor           solana.PrivateKey
	allowClientOracle bool

	inflight      singleflight.Group
	completed     *expirable.LRU[string, solana.Signature]
	submitTimeout time.Duration

	log zerolog.Logger
	now func() time.Time
}

func NewRelayService(client ledger.Client, st *store.Store, prog *program.Program, sponsor solana.PrivateKey, cfg config.RelayConfig, log zerolog.Logger) *RelayService {
	size := cfg.IdempotencySize
	if size <= 0 {
		size = 1024
	}
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 90 * time.Second
	}
	return &RelayService{
		ledger:            client,
		store:             st,
		program:           prog,
		sponsor:           sponsor,
		allowClientOracle: cfg.AllowClientOracleMethods,
		completed:         expirable.NewLRU[string, solana.Signature](size, nil, cfg.IdempotencyTTL),
		submitTimeout:     submitTimeout,
		log:               log,
		now:               time.Now,
	}
}

// Sponsor is the fee payer and app vault authority.
func (r *RelayService) Sponsor() solana.PublicKey {
	return r.sponsor.PublicKey()
}

// Relay accepts a partially signed transaction from an untrusted client.
func (r *RelayService) Relay(ctx context.Context, raw []byte, meta Metadata) (solana.Signature, error) {
	tx, err := program.DecodeTransaction(raw)
	if err != nil {
		return r.rejected(OriginClient, reject(ErrInvalidTransaction, "%v", err))
	}
	return r.relay(ctx, tx, meta, OriginClient)
}

// Submit relays a transaction built by the service itself.
func (r *RelayService) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return r.relay(ctx, tx, Metadata{}, OriginOracle)
}

// SubmitInstructions wraps ixs in a sponsor-paid transaction and submits it.
func (r *RelayService) SubmitInstructions(ctx context.Context, ixs ...program.Instruction) (solana.Signature, error) {
	built := make([]solana.Instruction, 0, len(ixs))
	for _, ix := range ixs {
		b, err := r.program.Build(ix)
		if err != nil {
			return solana.Signature{}, err
		}
		built = append(built, b)
	}
	hash, err := r.ledger.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, reject(ErrSubmissionFailed, "%v", err)
	}
	tx, err := program.NewTransaction(r.Sponsor(), hash, built...)
	if err != nil {
		return solana.Signature{}, err
	}
	return r.Submit(ctx, tx)
}

func (r *RelayService) relay(ctx context.Context, tx *solana.Transaction, meta Metadata, origin Origin) (solana.Signature, error) {
	ixs, err := r.validate(tx, origin)
	if err != nil {
		return r.rejected(origin, err)
	}

	// ed25519 is deterministic, so a retried identical transaction yields
	// the same co-signature and therefore the same idempotency key.
	cosig, err := program.Sign(tx, r.sponsor)
	if err != nil {
		return r.rejected(origin, reject(ErrInvalidTransaction, "%v", err))
	}
	key := cosig.String()
	if sig, ok := r.completed.Get(key); ok {
		metrics.RelayRequests.WithLabelValues("duplicate", string(origin)).Inc()
		return sig, nil
	}

	// Every duplicate waits on this one submission, so it must outlive
	// whichever caller happened to start it.
	ch := r.inflight.DoChan(key, func() (interface{}, error) {
		if sig, ok := r.completed.Get(key); ok {
			return sig, nil
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.submitTimeout)
		defer cancel()
		return r.submit(sctx, key, tx, ixs, meta, origin)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		metrics.RelayRequests.WithLabelValues("failed", string(origin)).Inc()
		return solana.Signature{}, errors.Wrap(ctx.Err(), "waiting for submission")
	}
	if res.Err != nil {
		metrics.RelayRequests.WithLabelValues("failed", string(origin)).Inc()
		return solana.Signature{}, res.Err
	}
	result := "ok"
	if res.Shared {
		result = "duplicate"
	}
	metrics.RelayRequests.WithLabelValues(result, string(origin)).Inc()
	return res.Val.(solana.Signature), nil
}

// validate runs the gatekeeper stages in order. Nothing is signed or sent
// unless every stage passes.
func (r *RelayService) validate(tx *solana.Transaction, origin Origin) ([]program.Instruction, error) {
	sponsor := r.Sponsor()

	payer, err := program.FeePayer(tx)
	if err != nil {
		return nil, reject(ErrInvalidTransaction, "%v", err)
	}
	if !payer.Equals(sponsor) {
		return nil, reject(ErrUnauthorizedFeePayer, "fee payer %s", payer)
	}
	if len(tx.Message.Instructions) == 0 {
		return nil, reject(ErrInvalidTransaction, "no instructions")
	}

	for i, ci := range tx.Message.Instructions {
		id, err := program.ProgramOf(tx, ci)
		if err != nil {
			return nil, reject(ErrInvalidTransaction, "instruction %d: %v", i, err)
		}
		if !id.Equals(r.program.ID) {
			return nil, reject(ErrDisallowedProgram, "instruction %d targets %s", i, id)
		}
	}

	methods := make([]program.Method, len(tx.Message.Instructions))
	for i, ci := range tx.Message.Instructions {
		m, ok := program.LookupMethod(ci.Data)
		if !ok {
			return nil, reject(ErrDisallowedInstruction, "instruction %d: unknown discriminator", i)
		}
		if origin == OriginClient && m.OracleOnly() && !r.allowClientOracle {
			return nil, reject(ErrDisallowedInstruction, "instruction %d: %s is reserved for the oracle", i, m)
		}
		methods[i] = m
	}

	out := make([]program.Instruction, 0, len(methods))
	for i, ci := range tx.Message.Instructions {
		accounts, err := program.AccountsOf(tx, ci)
		if err != nil {
			return nil, reject(ErrInvalidTransaction, "instruction %d: %v", i, err)
		}
		ix, err := program.Decode(accounts, ci.Data)
		if err != nil {
			return nil, reject(ErrInvalidTransaction, "instruction %d: %v", i, err)
		}
		if origin == OriginClient {
			for pos, key := range accounts {
				if key.Equals(sponsor) && pos != methods[i].AppVaultIndex() {
					return nil, reject(ErrDisallowedInstruction, "instruction %d: sponsor used as account %d", i, pos)
				}
			}
		}
		out = append(out, ix)
	}
	return out, nil
}

func (r *RelayService) submit(ctx context.Context, key string, tx *solana.Transaction, ixs []program.Instruction, meta Metadata, origin Origin) (solana.Signature, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, reject(ErrInvalidTransaction, "%v", err)
	}

	start := time.Now()
	sig, err := r.ledger.Submit(ctx, raw)
	if err != nil {
		r.log.Error().Err(err).Str("origin", string(origin)).Msg("❌ Submission failed")
		return solana.Signature{}, reject(ErrSubmissionFailed, "%v", err)
	}
	if err := r.ledger.Confirm(ctx, sig); err != nil {
		r.log.Error().Err(err).Str("signature", sig.String()).Msg("❌ Confirmation failed")
		return solana.Signature{}, reject(ErrConfirmationFailed, "%v", err)
	}
	metrics.RelayConfirmDuration.Observe(time.Since(start).Seconds())

	if err := r.project(ctx, ixs, meta); err != nil {
		metrics.ProjectionFailures.Inc()
		r.log.Error().Err(err).Str("signature", sig.String()).Msg("⚠️ Confirmed but local projection failed; next refresh will heal")
	}
	// Recorded after projection so a cache hit never reads an older mirror.
	r.completed.Add(key, sig)
	r.log.Info().Str("signature", sig.String()).Str("origin", string(origin)).Int("instructions", len(ixs)).Msg("✅ Transaction confirmed")
	return sig, nil
}

// project applies the effect of confirmed instructions to the mirror in one
// store transaction. Instructions against pacts the mirror has not seen yet
// are left for the indexer.
func (r *RelayService) project(ctx context.Context, ixs []program.Instruction, meta Metadata) error {
	now := r.now().UTC()
	return r.store.Transaction(ctx, func(tx *store.Store) error {
		for _, ix := range ixs {
			if err := r.projectOne(ctx, tx, ix, meta, now); err != nil {
				return errors.Wrapf(err, "project %s", ix.Method())
			}
		}
		return nil
	})
}

func (r *RelayService) projectOne(ctx context.Context, tx *store.Store, ix program.Instruction, meta Metadata, now time.Time) error {
	switch ix := ix.(type) {
	case program.InitializePlayerProfile:
		return tx.UpsertProfile(ctx, ix.Player.String(), ix.Name, meta.ExternalIdentity)

	case program.InitializeChallengePact:
		_, err := tx.CreatePact(ctx, models.Pact{
			Address:            ix.ChallengePact.String(),
			Slug:               utils.PactSlug(ix.Name),
			Name:               ix.Name,
			Description:        ix.Description,
			Creator:            ix.Player.String(),
			StakeAmount:        ix.Stake,
			GoalType:           ix.GoalType,
			GoalValue:          ix.GoalValue,
			VerificationType:   ix.VerificationType,
			ComparisonOperator: ix.ComparisonOperator,
			PactVault:          ix.PactVault.String(),
			CreatedAt:          now,
		})
		return err

	case program.JoinChallengePact:
		if ok, err := r.mirrored(ctx, tx, ix.ChallengePact); !ok {
			return err
		}
		return tx.AddParticipant(ctx, ix.ChallengePact.String(), ix.Player.String())

	case program.StakeAmountForChallengePact:
		if ok, err := r.mirrored(ctx, tx, ix.ChallengePact); !ok {
			return err
		}
		_, err := tx.MarkStaked(ctx, ix.ChallengePact.String(), ix.Player.String(), ix.Amount)
		return err

	case program.StartChallengePact:
		_, err := tx.ActivatePact(ctx, ix.ChallengePact.String())
		return err

	case program.EndChallengePact:
		_, err := tx.CompletePact(ctx, ix.ChallengePact.String(), ix.Winner.String())
		return err

	case program.UpdatePlayerGoal:
		if !ix.IsEliminated {
			return nil
		}
		if ok, err := r.mirrored(ctx, tx, ix.ChallengePact); !ok {
			return err
		}
		at := now
		if ix.EliminatedAt != nil {
			at = time.Unix(*ix.EliminatedAt, 0)
		}
		_, err := tx.EliminateParticipant(ctx, ix.ChallengePact.String(), ix.Player.String(), at)
		return err
	}
	return fmt.Errorf("no projection for %T", ix)
}

func (r *RelayService) mirrored(ctx context.Context, tx *store.Store, pact solana.PublicKey) (bool, error) {
	_, err := tx.GetPact(ctx, pact.String())
	if errors.Is(err, store.ErrNotFound) {
		r.log.Debug().Str("pact", pact.String()).Msg("pact not mirrored yet, skipping projection")
		return false, nil
	}
	return err == nil, err
}

func (r *RelayService) rejected(origin Origin, err error) (solana.Signature, error) {
	metrics.RelayRequests.WithLabelValues("rejected", string(origin)).Inc()
	r.log.Warn().Err(err).Str("origin", string(origin)).Msg("🚫 Transaction rejected")
	return solana.Signature{}, err
}

// reject tags a rejection with its kind so errors.Is and StatusCode work.
func reject(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{kind}, args...)...)
}

type relayRequest struct {
	Transaction string   `json:"transaction"`
	Metadata    Metadata `json:"metadata"`
}

// RelayTransaction is POST /api/relay-transaction.
func (r *RelayService) RelayTransaction(c *fiber.Ctx) error {
	var req relayRequest
	if err := c.BodyParser(&req); err != nil || req.Transaction == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "transaction is required"})
	}
	raw, err := base64.StdEncoding.DecodeString(req.Transaction)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "transaction must be base64"})
	}

	sig, err := r.Relay(c.UserContext(), raw, req.Metadata)
	if err != nil {
		return c.Status(StatusCode(err)).JSON(fiber.Map{"error": PublicMessage(err)})
	}
	return c.JSON(fiber.Map{"signature": sig.String()})
}
