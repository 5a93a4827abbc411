// program/transaction.go
package program

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var (
	ErrNoAccounts      = errors.New("transaction has no account keys")
	ErrLookupTables    = errors.New("address lookup tables are not supported")
	ErrAccountIndex    = errors.New("account index out of range")
	ErrNotARequiredKey = errors.New("key is not a required signer of the transaction")
)

// DecodeTransaction parses a wire-format transaction.
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty transaction")
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decode transaction")
	}
	if len(tx.Message.AccountKeys) == 0 {
		return nil, ErrNoAccounts
	}
	if len(tx.Message.AddressTableLookups) > 0 {
		return nil, ErrLookupTables
	}
	return tx, nil
}

// FeePayer is the first account key of the message.
func FeePayer(tx *solana.Transaction) (solana.PublicKey, error) {
	if len(tx.Message.AccountKeys) == 0 {
		return solana.PublicKey{}, ErrNoAccounts
	}
	return tx.Message.AccountKeys[0], nil
}

// ProgramOf resolves the program an instruction invokes.
func ProgramOf(tx *solana.Transaction, ci solana.CompiledInstruction) (solana.PublicKey, error) {
	idx := int(ci.ProgramIDIndex)
	if idx >= len(tx.Message.AccountKeys) {
		return solana.PublicKey{}, ErrAccountIndex
	}
	return tx.Message.AccountKeys[idx], nil
}

// AccountsOf resolves the account list of a compiled instruction.
func AccountsOf(tx *solana.Transaction, ci solana.CompiledInstruction) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, 0, len(ci.Accounts))
	for _, idx := range ci.Accounts {
		if int(idx) >= len(tx.Message.AccountKeys) {
			return nil, ErrAccountIndex
		}
		out = append(out, tx.Message.AccountKeys[idx])
	}
	return out, nil
}

// DecodeInstructions decodes every instruction of tx against the whitelist.
func DecodeInstructions(tx *solana.Transaction) ([]Instruction, error) {
	out := make([]Instruction, 0, len(tx.Message.Instructions))
	for i, ci := range tx.Message.Instructions {
		accounts, err := AccountsOf(tx, ci)
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %d", i)
		}
		ix, err := Decode(accounts, ci.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %d", i)
		}
		out = append(out, ix)
	}
	return out, nil
}

// Sign adds key's signature in its signer slot, leaving the others intact.
// ed25519 is deterministic, so signing the same message twice yields the
// same signature.
func Sign(tx *solana.Transaction, key solana.PrivateKey) (solana.Signature, error) {
	pub := key.PublicKey()
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return solana.Signature{}, ErrAccountIndex
	}
	slot := -1
	for i := 0; i < required; i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return solana.Signature{}, ErrNotARequiredKey
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "marshal message")
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "sign message")
	}
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[slot] = sig
	return sig, nil
}

// NewTransaction assembles instructions paid for by payer.
func NewTransaction(payer solana.PublicKey, blockhash solana.Hash, ixs ...solana.Instruction) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, errors.Wrap(err, "build transaction")
	}
	return tx, nil
}
