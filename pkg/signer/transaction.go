package signer

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"agent-swap/pkg/types"
)

// DecodeTransaction parses a wire-format transaction and pads its signature
// list to the number of required signers.
func DecodeTransaction(payload []byte) (*solana.Transaction, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty transaction payload", types.ErrInvalidRequest)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed transaction: %v", types.ErrInvalidRequest, err)
	}
	padSignatures(tx)
	return tx, nil
}

// EncodeTransaction serializes tx back into wire format
func EncodeTransaction(tx *solana.Transaction) ([]byte, error) {
	padSignatures(tx)
	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return out, nil
}

func padSignatures(tx *solana.Transaction) {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for len(tx.Signatures) < n {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	if len(tx.Signatures) > n {
		tx.Signatures = tx.Signatures[:n]
	}
}

// RequiredSigners lists the accounts that must sign tx, in slot order
func RequiredSigners(tx *solana.Transaction) []solana.PublicKey {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n > len(tx.Message.AccountKeys) {
		n = len(tx.Message.AccountKeys)
	}
	out := make([]solana.PublicKey, n)
	copy(out, tx.Message.AccountKeys[:n])
	return out
}

// MissingSigners returns the required signers whose slot is still zero
func MissingSigners(tx *solana.Transaction) []solana.PublicKey {
	var missing []solana.PublicKey
	for i, key := range RequiredSigners(tx) {
		if i >= len(tx.Signatures) || tx.Signatures[i] == (solana.Signature{}) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Complete reports an ErrIncompleteSignature naming every unsigned slot
func Complete(tx *solana.Transaction) error {
	missing := MissingSigners(tx)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %d of %d signatures (%v)",
		types.ErrIncompleteSignature, len(missing), tx.Message.Header.NumRequiredSignatures, missing)
}

// signatureFor returns the signature in key's slot
func signatureFor(tx *solana.Transaction, key solana.PublicKey) (solana.Signature, bool) {
	idx, err := signerIndex(tx, key)
	if err != nil || idx >= len(tx.Signatures) {
		return solana.Signature{}, false
	}
	sig := tx.Signatures[idx]
	return sig, sig != (solana.Signature{})
}

func signerIndex(tx *solana.Transaction, key solana.PublicKey) (int, error) {
	for i, k := range RequiredSigners(tx) {
		if k.Equals(key) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s is not a required signer of this transaction", types.ErrIncompleteSignature, key)
}

func placeSignature(tx *solana.Transaction, key solana.PublicKey, sig solana.Signature) error {
	idx, err := signerIndex(tx, key)
	if err != nil {
		return err
	}
	padSignatures(tx)
	tx.Signatures[idx] = sig
	return nil
}
