package core

// execution_test.go — exercises the ReceiptChainHash bookkeeping
// updateReceiptChainHash performs as part of applySecondPassSignedCommand
// (spec.md §3: ReceiptChainHash = H(previous, commandHash)).

import (
	"crypto/sha256"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

func testSigningKey(seed string) *secp256k1.PrivateKey {
	sum := sha256.Sum256([]byte("execution-test-key:" + seed))
	return secp256k1.PrivKeyFromBytes(sum[:])
}

func signedPayment(priv *secp256k1.PrivateKey, fee Fee, nonce Nonce, amount Amount, receiver PublicKey) *SignedCommand {
	var pub PublicKey
	copy(pub[:], priv.PubKey().SerializeCompressed())
	cmd := &SignedCommand{
		Common: CommonFields{FeePayer: pub, Fee: fee, FeeToken: DefaultTokenID, Nonce: nonce},
		Kind:   Payment,
		Payment: &PaymentPayload{
			Receiver: receiver,
			Amount:   amount,
			TokenId:  DefaultTokenID,
		},
	}
	digest := cmd.Hash()
	compact := ecdsa.SignCompact(priv, digest[:], true)
	copy(cmd.Signature.R[:], compact[1:33])
	copy(cmd.Signature.S[:], compact[33:65])
	return cmd
}

func applyPayment(t *testing.T, l Ledger, cc ConstraintConstants, cmd *SignedCommand, slot Slot) *TransactionApplied {
	t.Helper()
	pa, err := ApplyFirstPass(l, cc, Transaction{Kind: KindSignedCommand, SignedCommand: cmd}, slot)
	if err != nil {
		t.Fatalf("apply first pass: %v", err)
	}
	ta, err := ApplySecondPass(l, cc, pa)
	if err != nil {
		t.Fatalf("apply second pass: %v", err)
	}
	if !ta.Status.Applied() {
		t.Fatalf("expected payment to apply, got status %+v", ta.Status)
	}
	return ta
}

func TestReceiptChainHashUpdatesPerSignedCommand(t *testing.T) {
	cc := DefaultConstraintConstants()
	root := NewPersistentLedger(10)
	ledger := root.MakeChild()

	priv := testSigningKey("receipt-chain-hash-seq")
	var payerPub PublicKey
	copy(payerPub[:], priv.PubKey().SerializeCompressed())
	payerId := AccountId{PublicKey: payerPub, TokenId: DefaultTokenID}

	loc, acc, _, err := ledger.GetOrCreateAccount(payerId)
	if err != nil {
		t.Fatalf("get or create fee payer: %v", err)
	}
	acc.Balance = Balance(1_000_000_000_000)
	ledger.SetAccount(loc, acc)

	afterCreate, _ := ledger.GetAccount(loc)
	if !afterCreate.ReceiptChainHash.IsZero() {
		t.Fatalf("expected a freshly created account to start with a zero receipt chain hash")
	}

	var receiver PublicKey
	copy(receiver[:], testSigningKey("receipt-chain-hash-seq-receiver").PubKey().SerializeCompressed())
	// Amount must clear AccountCreationFee since this payment creates the
	// receiver account.
	cmd1 := signedPayment(priv, Fee(1), Nonce(0), Amount(cc.AccountCreationFee)*2, receiver)
	applyPayment(t, ledger, cc, cmd1, 0)

	afterFirst, _ := ledger.GetAccount(loc)
	if afterFirst.ReceiptChainHash.IsZero() {
		t.Fatalf("expected receipt chain hash to change after the first signed command")
	}
	wantFirst := combineHash(Hash{}, cmd1.Hash())
	if afterFirst.ReceiptChainHash != wantFirst {
		t.Fatalf("receipt chain hash after first command: got %s, want %s",
			afterFirst.ReceiptChainHash.Hex(), wantFirst.Hex())
	}

	cmd2 := signedPayment(priv, Fee(1), Nonce(1), Amount(50), receiver) // receiver already exists; no creation fee deducted
	applyPayment(t, ledger, cc, cmd2, 0)

	afterSecond, _ := ledger.GetAccount(loc)
	if afterSecond.ReceiptChainHash == afterFirst.ReceiptChainHash {
		t.Fatalf("expected receipt chain hash to advance after a second signed command")
	}
	wantSecond := combineHash(wantFirst, cmd2.Hash())
	if afterSecond.ReceiptChainHash != wantSecond {
		t.Fatalf("receipt chain hash after second command: got %s, want %s",
			afterSecond.ReceiptChainHash.Hex(), wantSecond.Hex())
	}
}

func TestReceiptChainHashUnaffectedByOtherAccounts(t *testing.T) {
	cc := DefaultConstraintConstants()
	root := NewPersistentLedger(10)
	ledger := root.MakeChild()

	priv := testSigningKey("receipt-chain-hash-other")
	var payerPub PublicKey
	copy(payerPub[:], priv.PubKey().SerializeCompressed())
	payerId := AccountId{PublicKey: payerPub, TokenId: DefaultTokenID}

	loc, acc, _, err := ledger.GetOrCreateAccount(payerId)
	if err != nil {
		t.Fatalf("get or create fee payer: %v", err)
	}
	acc.Balance = Balance(1_000_000_000_000)
	ledger.SetAccount(loc, acc)

	var receiver PublicKey
	copy(receiver[:], testSigningKey("receipt-chain-hash-other-receiver").PubKey().SerializeCompressed())
	cmd := signedPayment(priv, Fee(1), Nonce(0), Amount(cc.AccountCreationFee)*2, receiver)
	applyPayment(t, ledger, cc, cmd, 0)

	recvLoc, ok := ledger.LocationOfAccount(AccountId{PublicKey: receiver, TokenId: DefaultTokenID})
	if !ok {
		t.Fatalf("expected the payment to create a receiver account")
	}
	recvAcc, _ := ledger.GetAccount(recvLoc)
	if !recvAcc.ReceiptChainHash.IsZero() {
		t.Fatalf("a payment receiver's own receipt chain hash must not move; only the signer's does")
	}
}
