// program/instruction.go
package program

import (
	"pact-oracle/models"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var (
	ErrUnknownDiscriminator = errors.New("unknown instruction discriminator")
	ErrMissingAccounts      = errors.New("instruction references too few accounts")
	ErrMalformedArgs        = errors.New("malformed instruction arguments")
)

// Instruction is the closed set of whitelisted program calls. Only the
// variants below implement it.
type Instruction interface {
	Method() Method
	metas() solana.AccountMetaSlice
	encodeArgs(w *borshWriter) error
}

type InitializePlayerProfile struct {
	PlayerProfile solana.PublicKey
	AppVault      solana.PublicKey
	Player        solana.PublicKey
	Name          string
}

type InitializeChallengePact struct {
	ChallengePact      solana.PublicKey
	PlayerGoal         solana.PublicKey
	PactVault          solana.PublicKey
	AppVault           solana.PublicKey
	PlayerProfile      solana.PublicKey
	Player             solana.PublicKey
	Name               string
	Description        string
	GoalType           models.GoalType
	GoalValue          uint64
	VerificationType   string
	ComparisonOperator string
	Stake              uint64
}

type JoinChallengePact struct {
	ChallengePact solana.PublicKey
	PlayerGoal    solana.PublicKey
	AppVault      solana.PublicKey
	PlayerProfile solana.PublicKey
	Player        solana.PublicKey
}

type StakeAmountForChallengePact struct {
	ChallengePact solana.PublicKey
	PlayerGoal    solana.PublicKey
	PactVault     solana.PublicKey
	AppVault      solana.PublicKey
	Player        solana.PublicKey
	Amount        uint64
}

type StartChallengePact struct {
	ChallengePact solana.PublicKey
	AppVault      solana.PublicKey
	Player        solana.PublicKey
}

type EndChallengePact struct {
	ChallengePact solana.PublicKey
	PactVault     solana.PublicKey
	Winner        solana.PublicKey
	AppVault      solana.PublicKey
}

type UpdatePlayerGoal struct {
	PlayerGoal    solana.PublicKey
	ChallengePact solana.PublicKey
	AppVault      solana.PublicKey
	Player        solana.PublicKey
	IsEliminated  bool
	EliminatedAt  *int64 // unix seconds
}

func (InitializePlayerProfile) Method() Method     { return MethodInitializePlayerProfile }
func (InitializeChallengePact) Method() Method     { return MethodInitializeChallengePact }
func (JoinChallengePact) Method() Method           { return MethodJoinChallengePact }
func (StakeAmountForChallengePact) Method() Method { return MethodStakeAmountForChallengePact }
func (StartChallengePact) Method() Method          { return MethodStartChallengePact }
func (EndChallengePact) Method() Method            { return MethodEndChallengePact }
func (UpdatePlayerGoal) Method() Method            { return MethodUpdatePlayerGoal }

func meta(key solana.PublicKey, writable, signer bool) *solana.AccountMeta {
	return solana.NewAccountMeta(key, writable, signer)
}

func system() *solana.AccountMeta {
	return meta(solana.SystemProgramID, false, false)
}

func (ix InitializePlayerProfile) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		meta(ix.PlayerProfile, true, false),
		meta(ix.AppVault, true, true),
		meta(ix.Player, false, true),
		system(),
	}
}

func (ix InitializeChallengePact) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		meta(ix.ChallengePact, true, false),
		meta(ix.PlayerGoal, true, false),
		meta(ix.PactVault, true, false),
		meta(ix.AppVault, true, true),
		meta(ix.PlayerProfile, true, false),
		meta(ix.Player, false, true),
		system(),
	}
}

func (ix JoinChallengePact) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		meta(ix.ChallengePact, true, false),
		meta(ix.PlayerGoal, true, false),
		meta(ix.AppVault, true, true),
		meta(ix.PlayerProfile, true, false),
		meta(ix.Player, false, true),
		system(),
	}
}

func (ix StakeAmountForChallengePact) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		meta(ix.ChallengePact, true, false),
		meta(ix.PlayerGoal, true, false),
		meta(ix.PactVault, true, false),
		meta(ix.AppVault, false, true),
		meta(ix.Player, true, true),
		system(),
	}
}

func (ix StartChallengePact) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		meta(ix.ChallengePact, true, false),
		meta(ix.AppVault, true, true),
		meta(ix.Player, false, true),
		system(),
	}
}

func (ix EndChallengePact) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		meta(ix.ChallengePact, true, false),
		meta(ix.PactVault, true, false),
		meta(ix.Winner, true, false),
		meta(ix.AppVault, true, true),
		system(),
	}
}

func (ix UpdatePlayerGoal) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		meta(ix.PlayerGoal, true, false),
		meta(ix.ChallengePact, true, false),
		meta(ix.AppVault, true, true),
		meta(ix.Player, false, false),
		system(),
	}
}

func (ix InitializePlayerProfile) encodeArgs(w *borshWriter) error {
	w.str(ix.Name)
	return nil
}

func (ix InitializeChallengePact) encodeArgs(w *borshWriter) error {
	goal, err := index("GoalType", goalTypes, ix.GoalType)
	if err != nil {
		return err
	}
	verification, err := index("VerificationType", verificationTypes, ix.VerificationType)
	if err != nil {
		return err
	}
	comparison, err := index("ComparisonOperator", comparisonOperators, ix.ComparisonOperator)
	if err != nil {
		return err
	}
	w.str(ix.Name)
	w.str(ix.Description)
	w.u8(goal)
	w.u64(ix.GoalValue)
	w.u8(verification)
	w.u8(comparison)
	w.u64(ix.Stake)
	return nil
}

func (JoinChallengePact) encodeArgs(*borshWriter) error { return nil }

func (ix StakeAmountForChallengePact) encodeArgs(w *borshWriter) error {
	w.u64(ix.Amount)
	return nil
}

func (StartChallengePact) encodeArgs(*borshWriter) error { return nil }

func (EndChallengePact) encodeArgs(*borshWriter) error { return nil }

func (ix UpdatePlayerGoal) encodeArgs(w *borshWriter) error {
	w.boolean(ix.IsEliminated)
	w.optionI64(ix.EliminatedAt)
	return nil
}

// Encode produces discriminator + Borsh arguments.
func Encode(ix Instruction) ([]byte, error) {
	w := newWriter()
	disc := ix.Method().Discriminator()
	w.raw(disc[:])
	if err := ix.encodeArgs(w); err != nil {
		return nil, errors.Wrapf(err, "encode %s", ix.Method())
	}
	return w.bytes()
}

// Build turns a variant into a ledger instruction addressed to p.
func (p *Program) Build(ix Instruction) (solana.Instruction, error) {
	data, err := Encode(ix)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, ix.metas(), data), nil
}

// Decode maps raw instruction data plus its resolved account list onto the
// matching variant. Anything outside the whitelist fails closed.
func Decode(accounts []solana.PublicKey, data []byte) (Instruction, error) {
	m, ok := LookupMethod(data)
	if !ok {
		return nil, ErrUnknownDiscriminator
	}
	if len(accounts) < m.AccountCount() {
		return nil, errors.Wrapf(ErrMissingAccounts, "%s wants %d, got %d", m, m.AccountCount(), len(accounts))
	}

	r := newReader(data[8:])
	var ix Instruction
	switch m {
	case MethodInitializePlayerProfile:
		ix = InitializePlayerProfile{
			PlayerProfile: accounts[0],
			AppVault:      accounts[1],
			Player:        accounts[2],
			Name:          r.str(),
		}
	case MethodInitializeChallengePact:
		out := InitializeChallengePact{
			ChallengePact: accounts[0],
			PlayerGoal:    accounts[1],
			PactVault:     accounts[2],
			AppVault:      accounts[3],
			PlayerProfile: accounts[4],
			Player:        accounts[5],
		}
		out.Name = r.str()
		out.Description = r.str()
		goal := r.u8()
		out.GoalValue = r.u64()
		verification := r.u8()
		comparison := r.u8()
		out.Stake = r.u64()
		if r.err == nil {
			var err error
			if out.GoalType, err = variant("GoalType", goalTypes, goal); err != nil {
				r.fail(err)
			} else if out.VerificationType, err = variant("VerificationType", verificationTypes, verification); err != nil {
				r.fail(err)
			} else if out.ComparisonOperator, err = variant("ComparisonOperator", comparisonOperators, comparison); err != nil {
				r.fail(err)
			}
		}
		ix = out
	case MethodJoinChallengePact:
		ix = JoinChallengePact{
			ChallengePact: accounts[0],
			PlayerGoal:    accounts[1],
			AppVault:      accounts[2],
			PlayerProfile: accounts[3],
			Player:        accounts[4],
		}
	case MethodStakeAmountForChallengePact:
		ix = StakeAmountForChallengePact{
			ChallengePact: accounts[0],
			PlayerGoal:    accounts[1],
			PactVault:     accounts[2],
			AppVault:      accounts[3],
			Player:        accounts[4],
			Amount:        r.u64(),
		}
	case MethodStartChallengePact:
		ix = StartChallengePact{
			ChallengePact: accounts[0],
			AppVault:      accounts[1],
			Player:        accounts[2],
		}
	case MethodEndChallengePact:
		ix = EndChallengePact{
			ChallengePact: accounts[0],
			PactVault:     accounts[1],
			Winner:        accounts[2],
			AppVault:      accounts[3],
		}
	case MethodUpdatePlayerGoal:
		out := UpdatePlayerGoal{
			PlayerGoal:    accounts[0],
			ChallengePact: accounts[1],
			AppVault:      accounts[2],
			Player:        accounts[3],
		}
		out.IsEliminated = r.boolean()
		out.EliminatedAt = r.optionI64()
		ix = out
	}
	if r.err != nil {
		return nil, errors.Wrapf(ErrMalformedArgs, "%s: %v", m, r.err)
	}
	return ix, nil
}
