package scenario

// keys.go — deterministic key material for scenario fixtures, grounded on
// the teacher's core/transaction.go choice of decred/dcrd/dcrec/secp256k1
// for signing. Scenario keys are derived from a string seed rather
// than randomness so a scenario run is reproducible across invocations.

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/synnergy-chain/stagedledger/core"
)

// KeyPair is a scenario actor's signing key and its compressed public key
// in the form core.SignedCommand expects.
type KeyPair struct {
	priv *secp256k1.PrivateKey
	Pub  core.PublicKey
}

// DeterministicKey derives a KeyPair from seed, hashing it into a scalar so
// repeated calls with the same seed always produce the same key.
func DeterministicKey(seed string) KeyPair {
	sum := sha256.Sum256([]byte("stagedledger-scenario-key:" + seed))
	priv := secp256k1.PrivKeyFromBytes(sum[:])
	var pub core.PublicKey
	copy(pub[:], priv.PubKey().SerializeCompressed())
	return KeyPair{priv: priv, Pub: pub}
}

// Sign produces a core.Signature over digest using kp's private key. It
// goes through SignCompact rather than Sign so the raw (r, s) scalars can
// be lifted out by fixed byte offset instead of through a DER decode.
func (kp KeyPair) Sign(digest core.Hash) core.Signature {
	compact := ecdsa.SignCompact(kp.priv, digest[:], true)
	var out core.Signature
	copy(out.R[:], compact[1:33])
	copy(out.S[:], compact[33:65])
	return out
}

// SignPayment builds and signs a payment SignedCommand from kp to receiver.
func SignPayment(kp KeyPair, receiver core.PublicKey, fee core.Fee, amount core.Amount, nonce core.Nonce) *core.SignedCommand {
	cmd := &core.SignedCommand{
		Common: core.CommonFields{
			FeePayer: kp.Pub,
			Fee:      fee,
			FeeToken: core.DefaultTokenID,
			Nonce:    nonce,
		},
		Kind: core.Payment,
		Payment: &core.PaymentPayload{
			Receiver: receiver,
			Amount:   amount,
			TokenId:  core.DefaultTokenID,
		},
	}
	cmd.Signature = kp.Sign(cmd.Hash())
	return cmd
}
