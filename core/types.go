// Package core implements the staged-ledger: the account-tree application
// engine, two-pass transaction execution, and parallel scan state that
// together let a block producer apply a block's diff and advance the
// ledger's cryptographic commitments without re-running a prover.
package core

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte digest used throughout the staged ledger: merkle roots,
// state-body hashes, sok digests, and the staged-ledger hash itself.
type Hash [32]byte

// Hex renders h as a lowercase hex string.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool { return h == Hash{} }

// PublicKey is a compressed secp256k1 point (33 bytes): the identity of an
// account. Accounts are looked up by (PublicKey, TokenId) pair, never by a
// derived 20-byte address — there is no address-hashing step in this model.
type PublicKey [33]byte

func (pk PublicKey) String() string { return hex.EncodeToString(pk[:]) }

// TokenID identifies the token/currency an account's balance is denominated
// in. The default token (id 1) is the native currency.
type TokenID uint64

// DefaultTokenID is the native-currency token.
const DefaultTokenID TokenID = 1

// AccountId is the compound key under which accounts live in a ledger.
type AccountId struct {
	PublicKey PublicKey
	TokenId   TokenID
}

func (id AccountId) String() string {
	return fmt.Sprintf("%s/%d", id.PublicKey.String(), id.TokenId)
}

// Slot is a 32-bit global-slot counter (consensus time unit external to this
// package — supplied by the caller on every apply/create call, never read
// from a wall clock).
type Slot uint32

// Succ returns the successor slot.
func (s Slot) Succ() Slot { return s + 1 }

// Pred returns the predecessor slot, or s itself at zero.
func (s Slot) Pred() Slot {
	if s == 0 {
		return 0
	}
	return s - 1
}

// Length is a 32-bit block-length / height counter.
type Length uint32

// Succ returns the successor length.
func (l Length) Succ() Length { return l + 1 }

// Nonce is a 32-bit per-account sequence counter.
type Nonce uint32

// Succ returns the successor nonce.
func (n Nonce) Succ() Nonce { return n + 1 }

// Pred returns the predecessor nonce, or n itself at zero.
func (n Nonce) Pred() Nonce {
	if n == 0 {
		return 0
	}
	return n - 1
}
