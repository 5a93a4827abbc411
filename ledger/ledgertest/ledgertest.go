// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"sync"

	"pact-oracle/program"

	"github.com/gagliardetto/solana-go"
)

// Ledger serves fixed account snapshots and records every submission.
// The zero value is ready to use.
type Ledger struct {
	mu sync.Mutex

	pacts    []program.PactAccount
	profiles []program.ProfileAccount
	goals    []program.PlayerGoalAccount

	fetchErr   map[program.AccountKind]error
	submitErr  error
	confirmErr error
	onConfirm  func(ctx context.Context) error
	fetches    map[program.AccountKind]int

	submitted []*solana.Transaction
	confirmed []solana.Signature
}

func New() *Ledger { return &Ledger{} }

func (l *Ledger) SetPacts(p ...program.PactAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pacts = p
}

func (l *Ledger) SetProfiles(p ...program.ProfileAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profiles = p
}

func (l *Ledger) SetPlayerGoals(g ...program.PlayerGoalAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.goals = g
}

// FailFetch makes fetches of kind return err; nil clears it.
func (l *Ledger) FailFetch(kind program.AccountKind, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetchErr == nil {
		l.fetchErr = map[program.AccountKind]error{}
	}
	l.fetchErr[kind] = err
}

func (l *Ledger) FailSubmit(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitErr = err
}

func (l *Ledger) FailConfirm(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmErr = err
}

// OnConfirm runs fn at the start of every Confirm, outside the lock. A
// non-nil result fails the confirmation.
func (l *Ledger) OnConfirm(fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onConfirm = fn
}

// Submitted returns the decoded transactions accepted by Submit, in order.
func (l *Ledger) Submitted() []*solana.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*solana.Transaction(nil), l.submitted...)
}

// SubmittedInstructions decodes every submitted instruction in order.
func (l *Ledger) SubmittedInstructions() []program.Instruction {
	var out []program.Instruction
	for _, tx := range l.Submitted() {
		ixs, err := program.DecodeInstructions(tx)
		if err != nil {
			continue
		}
		out = append(out, ixs...)
	}
	return out
}

func (l *Ledger) Confirmed() []solana.Signature {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]solana.Signature(nil), l.confirmed...)
}

// Fetches reports how many times kind was fetched.
func (l *Ledger) Fetches(kind program.AccountKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches[kind]
}

func (l *Ledger) fetch(kind program.AccountKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetches == nil {
		l.fetches = map[program.AccountKind]int{}
	}
	l.fetches[kind]++
	return l.fetchErr[kind]
}

func (l *Ledger) FetchPacts(ctx context.Context) ([]program.PactAccount, error) {
	if err := l.fetch(program.KindPact); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]program.PactAccount(nil), l.pacts...), nil
}

func (l *Ledger) FetchProfiles(ctx context.Context) ([]program.ProfileAccount, error) {
	if err := l.fetch(program.KindProfile); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]program.ProfileAccount(nil), l.profiles...), nil
}

func (l *Ledger) FetchPlayerGoals(ctx context.Context) ([]program.PlayerGoalAccount, error) {
	if err := l.fetch(program.KindPlayerGoal); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]program.PlayerGoalAccount(nil), l.goals...), nil
}

// LatestBlockhash returns a fixed non-zero hash.
func (l *Ledger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.Hash{7}, nil
}

func (l *Ledger) Submit(ctx context.Context, raw []byte) (solana.Signature, error) {
	tx, err := program.DecodeTransaction(raw)
	if err != nil {
		return solana.Signature{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.submitErr != nil {
		return solana.Signature{}, l.submitErr
	}
	l.submitted = append(l.submitted, tx)
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, nil
	}
	return tx.Signatures[0], nil
}

func (l *Ledger) Confirm(ctx context.Context, sig solana.Signature) error {
	l.mu.Lock()
	hook := l.onConfirm
	l.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.confirmErr != nil {
		return l.confirmErr
	}
	l.confirmed = append(l.confirmed, sig)
	return nil
}
