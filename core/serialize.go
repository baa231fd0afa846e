package core

// serialize.go — canonical binary encoding, spec.md §6: every wire type
// round-trips through a single version-byte-prefixed RLP envelope so
// hashing and network transport agree on one representation. Grounded on
// the teacher's go.mod already requiring go-ethereum; this is its first use
// in the rewritten tree, replacing a bespoke byte-writer the teacher never
// had a use for until now.

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// WireVersion is prepended to every encoded payload so a future format
// change can be detected before decoding, rather than failing deep inside
// rlp.DecodeBytes.
const WireVersion byte = 1

// rlpPublicKey/rlpHash mirror PublicKey/Hash as plain byte slices: rlp
// cannot encode fixed-size arrays of arbitrary length directly, so the
// wire structs below carry []byte and convert back on decode.
type rlpCommon struct {
	FeePayer   []byte
	Fee        uint64
	FeeToken   uint64
	Nonce      uint32
	ValidUntil uint32
	MemoTag    byte
	MemoData   []byte
}

type rlpPayment struct {
	Receiver []byte
	Amount   uint64
	TokenId  uint64
}

type rlpDelegation struct {
	NewDelegate []byte
}

type rlpSignedCommand struct {
	Common     rlpCommon
	Kind       uint8
	Payment    *rlpPayment
	Delegation *rlpDelegation
	SigR       []byte
	SigS       []byte
}

func toRlpCommon(c CommonFields) rlpCommon {
	return rlpCommon{
		FeePayer:   c.FeePayer[:],
		Fee:        uint64(c.Fee),
		FeeToken:   uint64(c.FeeToken),
		Nonce:      uint32(c.Nonce),
		ValidUntil: uint32(c.ValidUntil),
		MemoTag:    c.Memo.Tag,
		MemoData:   c.Memo.Data[:],
	}
}

func fromRlpCommon(r rlpCommon) (CommonFields, error) {
	var c CommonFields
	if len(r.FeePayer) != len(c.FeePayer) {
		return c, fmt.Errorf("decode common fields: bad fee payer length %d", len(r.FeePayer))
	}
	copy(c.FeePayer[:], r.FeePayer)
	c.Fee = Fee(r.Fee)
	c.FeeToken = TokenID(r.FeeToken)
	c.Nonce = Nonce(r.Nonce)
	c.ValidUntil = Slot(r.ValidUntil)
	c.Memo.Tag = r.MemoTag
	copy(c.Memo.Data[:], r.MemoData)
	return c, nil
}

// EncodeSignedCommand produces the canonical version-prefixed RLP encoding
// of cmd.
func EncodeSignedCommand(cmd *SignedCommand) ([]byte, error) {
	w := rlpSignedCommand{
		Common: toRlpCommon(cmd.Common),
		Kind:   uint8(cmd.Kind),
		SigR:   cmd.Signature.R[:],
		SigS:   cmd.Signature.S[:],
	}
	if cmd.Payment != nil {
		w.Payment = &rlpPayment{Receiver: cmd.Payment.Receiver[:], Amount: uint64(cmd.Payment.Amount), TokenId: uint64(cmd.Payment.TokenId)}
	}
	if cmd.Delegation != nil {
		w.Delegation = &rlpDelegation{NewDelegate: cmd.Delegation.NewDelegate[:]}
	}
	body, err := rlp.EncodeToBytes(w)
	if err != nil {
		return nil, fmt.Errorf("encode signed command: %w", err)
	}
	return append([]byte{WireVersion}, body...), nil
}

// DecodeSignedCommand reverses EncodeSignedCommand.
func DecodeSignedCommand(data []byte) (*SignedCommand, error) {
	if len(data) == 0 || data[0] != WireVersion {
		return nil, fmt.Errorf("decode signed command: unsupported wire version")
	}
	var w rlpSignedCommand
	if err := rlp.DecodeBytes(data[1:], &w); err != nil {
		return nil, fmt.Errorf("decode signed command: %w", err)
	}
	common, err := fromRlpCommon(w.Common)
	if err != nil {
		return nil, err
	}
	cmd := &SignedCommand{Common: common, Kind: CommandKind(w.Kind)}
	if len(w.SigR) != len(cmd.Signature.R) || len(w.SigS) != len(cmd.Signature.S) {
		return nil, fmt.Errorf("decode signed command: bad signature length")
	}
	copy(cmd.Signature.R[:], w.SigR)
	copy(cmd.Signature.S[:], w.SigS)
	if w.Payment != nil {
		if len(w.Payment.Receiver) != len(PublicKey{}) {
			return nil, fmt.Errorf("decode signed command: bad receiver length")
		}
		p := &PaymentPayload{Amount: Amount(w.Payment.Amount), TokenId: TokenID(w.Payment.TokenId)}
		copy(p.Receiver[:], w.Payment.Receiver)
		cmd.Payment = p
	}
	if w.Delegation != nil {
		if len(w.Delegation.NewDelegate) != len(PublicKey{}) {
			return nil, fmt.Errorf("decode signed command: bad delegate length")
		}
		d := &DelegationPayload{}
		copy(d.NewDelegate[:], w.Delegation.NewDelegate)
		cmd.Delegation = d
	}
	return cmd, nil
}
