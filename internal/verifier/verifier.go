// Package verifier implements the proof-of-key-ownership check that gates
// registration and rotation.
//
// The signed message is keccak256(account ‖ nullifier) — nothing else — so a
// signature cannot be replayed against an unrelated message shape. The digest
// is wrapped in the standard Ethereum personal-message prefix before recovery,
// matching what wallets produce for personal_sign prompts.
//
// The package is pure and stateless: no side effects, deterministic, safe to
// call at any time.
package verifier

import (
	"github.com/ethereum/go-ethereum/crypto"

	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
)

// SignatureLength is the exact expected signature size: two 32-byte numeric
// components (r, s) and a 1-byte recovery indicator (v).
const SignatureLength = crypto.SignatureLength

const personalPrefix = "\x19Ethereum Signed Message:\n32"

// Typed rejections. Both fail closed: a caller learns only that the signature
// was malformed or did not match, never why recovery failed.
var (
	ErrMalformedSignature = dErrors.New(dErrors.CodeInvalidInput, "signature must be 65 bytes")
	ErrBadSignature       = dErrors.New(dErrors.CodeUnauthorized, "signature does not match account")
)

// Digest returns the domain-separated message hash over exactly the account
// and the nullifier.
func Digest(account id.Account, nullifier id.Nullifier) []byte {
	return crypto.Keccak256(account.Bytes(), nullifier.Bytes())
}

// PersonalHash wraps a 32-byte digest in the personal-message prefix. This is
// the hash wallets actually sign.
func PersonalHash(digest []byte) []byte {
	return crypto.Keccak256([]byte(personalPrefix), digest)
}

// Verify checks that sig was produced by account's key over (account,
// nullifier). It returns nil on success, ErrMalformedSignature when sig is not
// exactly 65 bytes, and ErrBadSignature for every other failure.
func Verify(account id.Account, nullifier id.Nullifier, sig []byte) error {
	if len(sig) != SignatureLength {
		return ErrMalformedSignature
	}

	// Normalize the recovery indicator: wallets emit 27/28, secp256k1
	// recovery wants 0/1.
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return ErrBadSignature
	}

	pub, err := crypto.SigToPub(PersonalHash(Digest(account, nullifier)), normalized)
	if err != nil {
		return ErrBadSignature
	}
	if id.Account(crypto.PubkeyToAddress(*pub)) != account {
		return ErrBadSignature
	}
	return nil
}
