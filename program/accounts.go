// program/accounts.go
package program

import (
	"bytes"

	"pact-oracle/models"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// AccountKind is one of the program-owned account collections.
type AccountKind string

const (
	KindPact       AccountKind = "pacts"
	KindProfile    AccountKind = "profiles"
	KindPlayerGoal AccountKind = "participants"
)

// Kinds is the reconcile order: pacts have no dependencies, goal records
// reference both pacts and profiles.
var Kinds = []AccountKind{KindPact, KindProfile, KindPlayerGoal}

var accountNames = map[AccountKind]string{
	KindPact:       "ChallengePact",
	KindProfile:    "PlayerProfile",
	KindPlayerGoal: "PlayerGoalForChallengePact",
}

// ParseKind accepts the collection name used in config and on the CLI.
func ParseKind(s string) (AccountKind, error) {
	k := AccountKind(s)
	if _, ok := accountNames[k]; !ok {
		return "", errors.Errorf("unknown account kind %q", s)
	}
	return k, nil
}

// Discriminator is the 8-byte prefix of every account of this kind.
func (k AccountKind) Discriminator() [8]byte {
	return sighash("account", accountNames[k])
}

var ErrAccountDiscriminator = errors.New("account discriminator mismatch")

// PactAccount is a decoded ChallengePact.
type PactAccount struct {
	Address            solana.PublicKey
	Name               string
	Description        string
	Creator            solana.PublicKey
	CreatedAt          int64
	Participants       []solana.PublicKey
	Status             models.PactStatus
	GoalType           models.GoalType
	GoalValue          uint64
	VerificationType   string
	ComparisonOperator string
	Stake              uint64
	PrizePool          uint64
	PactVault          solana.PublicKey
	PactVaultBump      uint8
}

// ProfileAccount is a decoded PlayerProfile.
type ProfileAccount struct {
	Address     solana.PublicKey
	Owner       solana.PublicKey
	Name        string
	ActivePacts []solana.PublicKey
	PactsWon    uint64
	PactsLost   uint64
}

// PlayerGoalAccount is a decoded PlayerGoalForChallengePact.
type PlayerGoalAccount struct {
	Address      solana.PublicKey
	Player       solana.PublicKey
	Pact         solana.PublicKey
	HasStaked    bool
	IsEliminated bool
	EliminatedAt *int64
}

func accountBody(kind AccountKind, data []byte) (*borshReader, error) {
	disc := kind.Discriminator()
	if len(data) < 8 || !bytes.Equal(data[:8], disc[:]) {
		return nil, errors.Wrapf(ErrAccountDiscriminator, "%s", accountNames[kind])
	}
	return newReader(data[8:]), nil
}

func DecodePactAccount(addr solana.PublicKey, data []byte) (PactAccount, error) {
	r, err := accountBody(KindPact, data)
	if err != nil {
		return PactAccount{}, err
	}
	a := PactAccount{Address: addr}
	a.Name = r.str()
	a.Description = r.str()
	a.Creator = r.pubkey()
	a.CreatedAt = r.i64()
	a.Participants = r.pubkeys()
	status := r.u8()
	goal := r.u8()
	a.GoalValue = r.u64()
	verification := r.u8()
	comparison := r.u8()
	a.Stake = r.u64()
	a.PrizePool = r.u64()
	a.PactVault = r.pubkey()
	a.PactVaultBump = r.u8()
	if r.err != nil {
		return PactAccount{}, errors.Wrapf(r.err, "decode pact %s", addr)
	}

	if a.Status, err = variant("PactStatus", pactStatuses, status); err != nil {
		return PactAccount{}, err
	}
	if a.GoalType, err = variant("GoalType", goalTypes, goal); err != nil {
		return PactAccount{}, err
	}
	if a.VerificationType, err = variant("VerificationType", verificationTypes, verification); err != nil {
		return PactAccount{}, err
	}
	if a.ComparisonOperator, err = variant("ComparisonOperator", comparisonOperators, comparison); err != nil {
		return PactAccount{}, err
	}
	return a, nil
}

func DecodeProfileAccount(addr solana.PublicKey, data []byte) (ProfileAccount, error) {
	r, err := accountBody(KindProfile, data)
	if err != nil {
		return ProfileAccount{}, err
	}
	a := ProfileAccount{Address: addr}
	a.Owner = r.pubkey()
	a.Name = r.str()
	a.ActivePacts = r.pubkeys()
	a.PactsWon = r.u64()
	a.PactsLost = r.u64()
	if r.err != nil {
		return ProfileAccount{}, errors.Wrapf(r.err, "decode profile %s", addr)
	}
	return a, nil
}

func DecodePlayerGoalAccount(addr solana.PublicKey, data []byte) (PlayerGoalAccount, error) {
	r, err := accountBody(KindPlayerGoal, data)
	if err != nil {
		return PlayerGoalAccount{}, err
	}
	a := PlayerGoalAccount{Address: addr}
	a.Player = r.pubkey()
	a.Pact = r.pubkey()
	a.HasStaked = r.boolean()
	a.IsEliminated = r.boolean()
	a.EliminatedAt = r.optionI64()
	if r.err != nil {
		return PlayerGoalAccount{}, errors.Wrapf(r.err, "decode player goal %s", addr)
	}
	return a, nil
}
