// ledger/client.go
package ledger

import (
	"bytes"
	"context"
	"sort"
	"time"

	"pact-oracle/config"
	"pact-oracle/program"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrTransactionFailed = errors.New("transaction failed on ledger")
	ErrConfirmTimeout    = errors.New("timed out waiting for confirmation")
)

// Client is what the indexer, relay and oracle need from the ledger.
type Client interface {
	FetchPacts(ctx context.Context) ([]program.PactAccount, error)
	FetchProfiles(ctx context.Context) ([]program.ProfileAccount, error)
	FetchPlayerGoals(ctx context.Context) ([]program.PlayerGoalAccount, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// Submit broadcasts a fully signed transaction once. It is never retried.
	Submit(ctx context.Context, raw []byte) (solana.Signature, error)
	// Confirm blocks until sig reaches the configured commitment, fails on
	// ledger, or the confirm timeout elapses.
	Confirm(ctx context.Context, sig solana.Signature) error
}

// RPCClient talks JSON-RPC to a Solana cluster.
type RPCClient struct {
	rpc          *rpc.Client
	program      *program.Program
	commitment   rpc.CommitmentType
	timeout      time.Duration
	pollInterval time.Duration
	retry        Strategy
	log          zerolog.Logger
}

func NewRPCClient(cfg config.LedgerConfig, retryCfg config.RetryConfig, prog *program.Program, log zerolog.Logger) *RPCClient {
	commitment := rpc.CommitmentConfirmed
	if cfg.Commitment == string(rpc.CommitmentFinalized) {
		commitment = rpc.CommitmentFinalized
	}
	poll := cfg.ConfirmPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &RPCClient{
		rpc:          rpc.New(cfg.RPCURL),
		program:      prog,
		commitment:   commitment,
		timeout:      cfg.ConfirmTimeout,
		pollInterval: poll,
		retry:        NewStrategy(retryCfg, log),
		log:          log,
	}
}

func (c *RPCClient) FetchPacts(ctx context.Context) ([]program.PactAccount, error) {
	return fetchAll(ctx, c, program.KindPact, program.DecodePactAccount)
}

func (c *RPCClient) FetchProfiles(ctx context.Context) ([]program.ProfileAccount, error) {
	return fetchAll(ctx, c, program.KindProfile, program.DecodeProfileAccount)
}

func (c *RPCClient) FetchPlayerGoals(ctx context.Context) ([]program.PlayerGoalAccount, error) {
	return fetchAll(ctx, c, program.KindPlayerGoal, program.DecodePlayerGoalAccount)
}

// fetchAll lists every program account of kind, filtered server-side by
// discriminator, and decodes them in address order. One undecodable account
// fails the whole fetch.
func fetchAll[T any](ctx context.Context, c *RPCClient, kind program.AccountKind, decode func(solana.PublicKey, []byte) (T, error)) ([]T, error) {
	disc := kind.Discriminator()
	opts := &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{{
			Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(disc[:])},
		}},
	}

	var accounts rpc.GetProgramAccountsResult
	err := c.retry.Execute(ctx, func() error {
		var err error
		accounts, err = c.rpc.GetProgramAccountsWithOpts(ctx, c.program.ID, opts)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", kind)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Pubkey[:], accounts[j].Pubkey[:]) < 0
	})
	out := make([]T, 0, len(accounts))
	for _, acc := range accounts {
		if acc == nil || acc.Account == nil || acc.Account.Data == nil {
			continue
		}
		v, err := decode(acc.Pubkey, acc.Account.Data.GetBinary())
		if err != nil {
			return nil, errors.Wrapf(err, "fetch %s", kind)
		}
		out = append(out, v)
	}
	c.log.Debug().Str("kind", string(kind)).Int("count", len(out)).Msg("fetched program accounts")
	return out, nil
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.retry.Execute(ctx, func() error {
		res, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		if res == nil || res.Value == nil {
			return errors.New("empty blockhash response")
		}
		hash = res.Value.Blockhash
		return nil
	})
	return hash, errors.Wrap(err, "latest blockhash")
}

func (c *RPCClient) Submit(ctx context.Context, raw []byte) (solana.Signature, error) {
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "send transaction")
	}
	return sig, nil
}

func (c *RPCClient) Confirm(ctx context.Context, sig solana.Signature) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		done, err := c.checkStatus(ctx, sig)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Wrapf(ErrConfirmTimeout, "%s", sig)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkStatus reports whether sig has reached the client's commitment.
// Transient status lookup failures are treated as "not yet".
func (c *RPCClient) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		c.log.Debug().Err(err).Str("signature", sig.String()).Msg("signature status lookup failed")
		return false, nil
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return false, nil
	}
	status := res.Value[0]
	if status.Err != nil {
		return false, errors.Wrapf(ErrTransactionFailed, "%s: %v", sig, status.Err)
	}
	return reached(status.ConfirmationStatus, c.commitment), nil
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	}
	return false
}
