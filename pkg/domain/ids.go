// Package domain defines the identifier types shared across the registry.
//
// Account and Nullifier are distinct types so the compiler rejects mixing the
// two halves of the bijection. Construct them via the Parse functions at trust
// boundaries; direct casting bypasses validation.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "nymreg/pkg/domain-errors"
)

// Account identifies an externally-controlled keypair. It is never created or
// destroyed by this system; it pre-exists as the address derived from the
// holder's public key.
type Account common.Address

// Nullifier is the opaque 32-byte session token a client binds to its account.
// The zero value is the "absent" sentinel and can never belong to a registered
// account.
type Nullifier [32]byte

// ParseAccount constructs an Account from a 0x-prefixed hex string.
//
// Errors: returns CodeInvalidInput for anything that is not exactly a 20-byte
// hex address.
func ParseAccount(s string) (Account, error) {
	if s == "" {
		return Account{}, dErrors.New(dErrors.CodeInvalidInput, "account cannot be empty")
	}
	if !common.IsHexAddress(s) {
		return Account{}, dErrors.New(dErrors.CodeInvalidInput, "account must be a 20-byte hex address")
	}
	return Account(common.HexToAddress(s)), nil
}

// ParseNullifier constructs a Nullifier from a 0x-prefixed hex string.
//
// Errors: returns CodeInvalidInput when the value is not exactly 32 bytes of
// hex, or is the reserved zero sentinel.
func ParseNullifier(s string) (Nullifier, error) {
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != 64 {
		return Nullifier{}, dErrors.New(dErrors.CodeInvalidInput, "nullifier must be 32 bytes of hex")
	}
	buf, err := hex.DecodeString(raw)
	if err != nil {
		return Nullifier{}, dErrors.New(dErrors.CodeInvalidInput, "nullifier must be 32 bytes of hex")
	}
	var n Nullifier
	copy(n[:], buf)
	if n.IsZero() {
		return Nullifier{}, dErrors.New(dErrors.CodeInvalidInput, "zero nullifier is reserved")
	}
	return n, nil
}

func (a Account) IsZero() bool {
	return a == Account{}
}

// Hex returns the checksummed 0x-prefixed representation.
func (a Account) Hex() string {
	return common.Address(a).Hex()
}

func (a Account) Bytes() []byte {
	return common.Address(a).Bytes()
}

func (a Account) String() string {
	return a.Hex()
}

func (n Nullifier) IsZero() bool {
	return n == Nullifier{}
}

func (n Nullifier) Hex() string {
	return "0x" + hex.EncodeToString(n[:])
}

func (n Nullifier) Bytes() []byte {
	return n[:]
}

func (n Nullifier) String() string {
	return n.Hex()
}

// MarshalText renders the account as checksummed hex for JSON payloads.
func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText accepts any 20-byte hex address, including the zero account.
// Trust boundaries should still use ParseAccount.
func (a *Account) UnmarshalText(text []byte) error {
	s := string(text)
	if !common.IsHexAddress(s) {
		return dErrors.New(dErrors.CodeInvalidInput, "account must be a 20-byte hex address")
	}
	*a = Account(common.HexToAddress(s))
	return nil
}

func (n Nullifier) MarshalText() ([]byte, error) {
	return []byte(n.Hex()), nil
}

// UnmarshalText accepts any 32-byte hex value, including the zero sentinel, so
// stored events round-trip. Trust boundaries should still use ParseNullifier.
func (n *Nullifier) UnmarshalText(text []byte) error {
	raw := strings.TrimPrefix(string(text), "0x")
	if len(raw) != 64 {
		return dErrors.New(dErrors.CodeInvalidInput, "nullifier must be 32 bytes of hex")
	}
	buf, err := hex.DecodeString(raw)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "nullifier must be 32 bytes of hex")
	}
	copy(n[:], buf)
	return nil
}
