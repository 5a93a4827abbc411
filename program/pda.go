// program/pda.go
package program

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Seed prefixes used by the program for its derived accounts.
const (
	SeedChallengePact     = "challenge_pact"
	SeedPactVault         = "pact_vault"
	SeedPlayerProfile     = "player_profile"
	SeedPlayerPactProfile = "player_pact_profile"
)

// DeriveAddress finds the off-curve address for seeds under the program.
func (p *Program) DeriveAddress(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, p.ID)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "derive address")
	}
	return addr, nil
}

func (p *Program) PactAddress(name string, creator solana.PublicKey) (solana.PublicKey, error) {
	return p.DeriveAddress([]byte(SeedChallengePact), []byte(name), creator.Bytes())
}

func (p *Program) PactVaultAddress(pact solana.PublicKey) (solana.PublicKey, error) {
	return p.DeriveAddress([]byte(SeedPactVault), pact.Bytes())
}

func (p *Program) ProfileAddress(player solana.PublicKey) (solana.PublicKey, error) {
	return p.DeriveAddress([]byte(SeedPlayerProfile), player.Bytes())
}

func (p *Program) PlayerGoalAddress(player, pact solana.PublicKey) (solana.PublicKey, error) {
	return p.DeriveAddress([]byte(SeedPlayerPactProfile), player.Bytes(), pact.Bytes())
}
