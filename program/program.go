// program/program.go
package program

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the deployed pact program.
const DefaultProgramID = "HBSRo9sKjWmqTteMRPjVF2xcqratjhF5Hu5GozqctNA4"

// Method is a whitelisted program instruction, named as in the program IDL.
type Method string

const (
	MethodInitializePlayerProfile     Method = "initializePlayerProfile"
	MethodInitializeChallengePact     Method = "initializeChallengePact"
	MethodJoinChallengePact           Method = "joinChallengePact"
	MethodStakeAmountForChallengePact Method = "stakeAmountForChallengePact"
	MethodStartChallengePact          Method = "startChallengePact"
	MethodEndChallengePact            Method = "endChallengePact"
	MethodUpdatePlayerGoal            Method = "updatePlayerGoal"
)

type methodInfo struct {
	ident      string // snake_case handler name inside the program
	accounts   int
	appVault   int // position of the sponsor authority in the account list
	oracleOnly bool
}

var methodTable = map[Method]methodInfo{
	MethodInitializePlayerProfile:     {ident: "initialize_player_profile", accounts: 4, appVault: 1},
	MethodInitializeChallengePact:     {ident: "initialize_challenge_pact", accounts: 7, appVault: 3},
	MethodJoinChallengePact:           {ident: "join_challenge_pact", accounts: 6, appVault: 2},
	MethodStakeAmountForChallengePact: {ident: "stake_amount_for_challenge_pact", accounts: 6, appVault: 3},
	MethodStartChallengePact:          {ident: "start_challenge_pact", accounts: 4, appVault: 1},
	MethodEndChallengePact:            {ident: "end_challenge_pact", accounts: 5, appVault: 3, oracleOnly: true},
	MethodUpdatePlayerGoal:            {ident: "update_player_goal", accounts: 5, appVault: 2, oracleOnly: true},
}

// Methods lists the whitelist in IDL order.
var Methods = []Method{
	MethodInitializePlayerProfile,
	MethodInitializeChallengePact,
	MethodJoinChallengePact,
	MethodStakeAmountForChallengePact,
	MethodStartChallengePact,
	MethodEndChallengePact,
	MethodUpdatePlayerGoal,
}

var byDiscriminator = func() map[[8]byte]Method {
	out := make(map[[8]byte]Method, len(methodTable))
	for m := range methodTable {
		out[m.Discriminator()] = m
	}
	return out
}()

func sighash(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// Discriminator is the 8-byte instruction prefix the program dispatches on.
func (m Method) Discriminator() [8]byte {
	return sighash("global", methodTable[m].ident)
}

// AccountCount is the number of accounts the instruction expects.
func (m Method) AccountCount() int { return methodTable[m].accounts }

// AppVaultIndex is where the sponsor signs as authority.
func (m Method) AppVaultIndex() int { return methodTable[m].appVault }

// OracleOnly reports methods that move funds or eliminate players on the
// sponsor's authority alone.
func (m Method) OracleOnly() bool { return methodTable[m].oracleOnly }

// LookupMethod resolves the leading discriminator of instruction data.
func LookupMethod(data []byte) (Method, bool) {
	if len(data) < 8 {
		return "", false
	}
	var d [8]byte
	copy(d[:], data[:8])
	m, ok := byDiscriminator[d]
	return m, ok
}

// Program binds the ABI to one deployed program address.
type Program struct {
	ID solana.PublicKey
}

func New(id solana.PublicKey) *Program {
	return &Program{ID: id}
}

// Parse builds a Program from a base58 address.
func Parse(id string) (*Program, error) {
	pk, err := solana.PublicKeyFromBase58(id)
	if err != nil {
		return nil, err
	}
	return New(pk), nil
}
