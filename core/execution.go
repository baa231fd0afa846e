package core

// execution.go — the two-pass transaction application pipeline of
// spec.md §4.2. Pass one validates what can be checked without touching
// zkApp-authorized effects (signatures, nonces, validity window, fee
// debit); pass two applies the effects themselves and is the only place
// balances controlled by account updates actually move. A transaction that
// fails still consumes its fee, matching the teacher's core/coin.go
// "reservation" pattern (debit first, then attempt the transfer, refund
// never happens on failure) generalized to the richer failure taxonomy of
// spec.md §7.

import "fmt"

// PartiallyApplied is the result of ApplyFirstPass: enough state to resume
// with ApplySecondPass without re-deriving fee-payer bookkeeping, plus a
// pre-image snapshot so a caller can roll the ledger back if second pass
// needs to abort partway through a batch.
type PartiallyApplied struct {
	Transaction     Transaction
	FeePayerLoc     Location
	PreImages       map[Location]Account
	PredictedStatus TransactionStatus
}

// TransactionApplied is the externally visible record of one applied
// transaction: the input, the final status, and the fee excess it
// contributed (zero-valued when the transaction failed before any
// chargeable effect).
type TransactionApplied struct {
	Transaction Transaction
	Status      TransactionStatus
	FeeExcess   FeeExcess
}

func snapshotAccount(l Ledger, images map[Location]Account, loc Location) {
	if _, ok := images[loc]; ok {
		return
	}
	if a, ok := l.GetAccount(loc); ok {
		images[loc] = a.Clone()
	}
}

// ApplyFirstPass validates and charges fees for txn against l at slot,
// creating the fee-payer account if it does not yet exist (receiver
// accounts are created by ApplySecondPass). It never
// returns an error for predictable transaction-level failures (insufficient
// receiver balance, failed precondition) — those are folded into the
// returned PredictedStatus so packer.go and execution callers can keep
// going. It does return an error when the transaction cannot be charged at
// all (bad signature, unparseable key, fee payer cannot cover the fee).
func ApplyFirstPass(l Ledger, cc ConstraintConstants, txn Transaction, slot Slot) (*PartiallyApplied, error) {
	images := make(map[Location]Account)

	for _, pk := range txn.PublicKeys() {
		if _, err := ParsePublicKey(pk); err != nil {
			return nil, err
		}
	}

	pa := &PartiallyApplied{Transaction: txn, PreImages: images, PredictedStatus: TransactionStatus{}}

	switch txn.Kind {
	case KindSignedCommand:
		return applyFirstPassSignedCommand(l, txn.SignedCommand, slot, pa)
	case KindZkAppCommand:
		return applyFirstPassZkApp(l, txn.ZkAppCommand, slot, pa)
	case KindFeeTransfer, KindCoinbase:
		// No fee payer: nothing chargeable in the first pass.
		return pa, nil
	default:
		return nil, Unexpected("apply first pass: unknown transaction kind %d", txn.Kind)
	}
}

func applyFirstPassSignedCommand(l Ledger, cmd *SignedCommand, slot Slot, pa *PartiallyApplied) (*PartiallyApplied, error) {
	if err := cmd.VerifySignature(); err != nil {
		return nil, err
	}
	if cmd.Common.ValidUntil != 0 && slot > cmd.Common.ValidUntil {
		pa.PredictedStatus = FailedStatus(FailurePredicateFailed)
	}
	feePayerId := AccountId{PublicKey: cmd.Common.FeePayer, TokenId: cmd.Common.FeeToken}
	loc, acc, _, err := l.GetOrCreateAccount(feePayerId)
	if err != nil {
		return nil, err
	}
	pa.FeePayerLoc = loc
	snapshotAccount(l, pa.PreImages, loc)

	if acc.Nonce != cmd.Common.Nonce {
		pa.PredictedStatus = FailedStatus(FailureInvalidNonce)
	}
	if err := acc.CheckedDebit(Amount(cmd.Common.Fee), slot); err != nil {
		return nil, fmt.Errorf("apply first pass: fee payer cannot cover fee: %w", err)
	}
	acc.Nonce = acc.Nonce.Succ()
	l.SetAccount(loc, acc)
	return pa, nil
}

func applyFirstPassZkApp(l Ledger, cmd *ZkAppCommand, slot Slot, pa *PartiallyApplied) (*PartiallyApplied, error) {
	if ok, err := verifyZkAppFeePayerSignature(cmd); !ok {
		return nil, err
	}
	feePayerId := AccountId{PublicKey: cmd.FeePayer.FeePayer, TokenId: cmd.FeePayer.FeeToken}
	loc, acc, _, err := l.GetOrCreateAccount(feePayerId)
	if err != nil {
		return nil, err
	}
	pa.FeePayerLoc = loc
	snapshotAccount(l, pa.PreImages, loc)

	if acc.Nonce != cmd.FeePayer.Nonce {
		pa.PredictedStatus = FailedStatus(FailureInvalidNonce)
	}
	if err := acc.CheckedDebit(Amount(cmd.FeePayer.Fee), slot); err != nil {
		return nil, fmt.Errorf("apply first pass: fee payer cannot cover fee: %w", err)
	}
	acc.Nonce = acc.Nonce.Succ()
	l.SetAccount(loc, acc)
	return pa, nil
}

// verifyZkAppFeePayerSignature checks the fee payer's signature over a
// digest of the command's fixed (non-update) fields. Full per-update
// authorization (proof vs signature per account update) is the verifier
// service's concern (verifier.go); this only guards the fee-charging step.
func verifyZkAppFeePayerSignature(cmd *ZkAppCommand) (bool, error) {
	pub, err := ParsePublicKey(cmd.FeePayer.FeePayer)
	if err != nil {
		return false, err
	}
	digest := zkAppFeePayerDigest(cmd)
	if !cmd.FeePayerSignature.toEcdsa().Verify(digest[:], pub) {
		return false, fmt.Errorf("apply first pass: zkapp fee payer signature verification failed")
	}
	return true, nil
}

func zkAppFeePayerDigest(cmd *ZkAppCommand) Hash {
	h := newCanonicalHasher()
	h.writeHash(hashBytes(cmd.FeePayer.FeePayer[:]))
	var buf [8]byte
	putUint64(buf[:], uint64(cmd.FeePayer.Fee))
	h.writeHash(hashBytes(buf[:]))
	putUint64(buf[:], uint64(cmd.FeePayer.Nonce))
	h.writeHash(hashBytes(buf[:]))
	return h.sum()
}

// ApplySecondPass applies the effect of a first-pass-validated transaction:
// payment/delegation payloads, zkApp account updates, fee-transfer credits,
// or coinbase credits. It always returns a TransactionApplied, folding any
// effect-level failure into its Status rather than an error — the only
// errors returned here come from locating or creating an account
// (GetOrCreateAccount, e.g. a full ledger) or from an unknown transaction
// kind. A command the first pass already predicted to fail keeps the fee
// it was charged: its record carries that fee as excess, and a signed
// command's receipt chain still advances.
func ApplySecondPass(l Ledger, cc ConstraintConstants, pa *PartiallyApplied) (*TransactionApplied, error) {
	if !pa.PredictedStatus.Applied() {
		ta := &TransactionApplied{Transaction: pa.Transaction, Status: pa.PredictedStatus}
		switch pa.Transaction.Kind {
		case KindSignedCommand:
			updateReceiptChainHash(l, pa.FeePayerLoc, pa.Transaction.SignedCommand.Hash())
			ta.FeeExcess = pa.Transaction.SignedCommand.FeeExcess()
		case KindZkAppCommand:
			ta.FeeExcess = pa.Transaction.ZkAppCommand.FeeExcess()
		}
		return ta, nil
	}
	switch pa.Transaction.Kind {
	case KindSignedCommand:
		return applySecondPassSignedCommand(l, cc, pa)
	case KindZkAppCommand:
		return applySecondPassZkApp(l, pa)
	case KindFeeTransfer:
		return applySecondPassFeeTransfer(l, pa)
	case KindCoinbase:
		return applySecondPassCoinbase(l, pa)
	default:
		return nil, Unexpected("apply second pass: unknown transaction kind %d", pa.Transaction.Kind)
	}
}

// applyPaymentPayload moves p.Amount from the fee payer's account under the
// payment's token (p.TokenId) to the receiver, deducting
// ConstraintConstants.AccountCreationFee from what the receiver is credited
// when the receiver account is created by this payment.
func applyPaymentPayload(l Ledger, cc ConstraintConstants, cmd *SignedCommand, pa *PartiallyApplied) (TransactionStatus, error) {
	p := cmd.Payment
	recvId := AccountId{PublicKey: p.Receiver, TokenId: p.TokenId}
	rloc, racc, created, err := l.GetOrCreateAccount(recvId)
	if err != nil {
		return TransactionStatus{}, err
	}
	snapshotAccount(l, pa.PreImages, rloc)

	amount := p.Amount
	if created {
		reduced, ok := CheckedSub(Balance(amount), Balance(cc.AccountCreationFee))
		if !ok {
			return FailedStatus(FailureAmountInsufficientToCreateAccount), nil
		}
		amount = Amount(reduced)
	}

	fpLoc := pa.FeePayerLoc
	fpAcc, _ := l.GetAccount(fpLoc)
	if fpAcc.Id() == recvId {
		// Self-payment: debit then credit the same account.
		if err := fpAcc.CheckedDebit(amount, 0); err != nil {
			return FailedStatus(FailureSourceInsufficientBalance), nil
		}
		if err := fpAcc.CheckedCredit(amount); err != nil {
			return FailedStatus(FailureOverflow), nil
		}
		l.SetAccount(fpLoc, fpAcc)
		return AppliedStatus(), nil
	}

	senderId := AccountId{PublicKey: cmd.Common.FeePayer, TokenId: p.TokenId}
	sLoc, sAcc, _, err := l.GetOrCreateAccount(senderId)
	if err != nil {
		return TransactionStatus{}, err
	}
	snapshotAccount(l, pa.PreImages, sLoc)
	if err := sAcc.CheckedDebit(p.Amount, 0); err != nil {
		return FailedStatus(FailureSourceInsufficientBalance), nil
	}
	if err := racc.CheckedCredit(amount); err != nil {
		return FailedStatus(FailureOverflow), nil
	}
	l.SetAccount(sLoc, sAcc)
	l.SetAccount(rloc, racc)
	return AppliedStatus(), nil
}

func applySecondPassSignedCommand(l Ledger, cc ConstraintConstants, pa *PartiallyApplied) (*TransactionApplied, error) {
	cmd := pa.Transaction.SignedCommand
	status := AppliedStatus()

	switch cmd.Kind {
	case Payment:
		var err error
		status, err = applyPaymentPayload(l, cc, cmd, pa)
		if err != nil {
			return nil, err
		}
	case StakeDelegation:
		fpLoc := pa.FeePayerLoc
		fpAcc, _ := l.GetAccount(fpLoc)
		d := cmd.Delegation.NewDelegate
		fpAcc.Delegate = &d
		l.SetAccount(fpLoc, fpAcc)
	}

	updateReceiptChainHash(l, pa.FeePayerLoc, cmd.Hash())
	return &TransactionApplied{Transaction: pa.Transaction, Status: status, FeeExcess: cmd.FeeExcess()}, nil
}

func applySecondPassZkApp(l Ledger, pa *PartiallyApplied) (*TransactionApplied, error) {
	cmd := pa.Transaction.ZkAppCommand
	status := AppliedStatus()

	flat := make([]AccountUpdate, 0)
	for _, top := range cmd.Updates {
		flat = append(flat, top.Flatten()...)
	}

	for _, u := range flat {
		id := AccountId{PublicKey: u.PublicKey, TokenId: u.TokenId}
		loc, acc, _, err := l.GetOrCreateAccount(id)
		if err != nil {
			return nil, err
		}
		snapshotAccount(l, pa.PreImages, loc)

		if !checkPrecondition(acc, u.Preconditions) {
			status = FailedStatus(FailurePredicateFailed)
			break
		}
		if u.BalanceChange.Sign == Neg {
			if err := acc.CheckedDebit(u.BalanceChange.Magnitude, 0); err != nil {
				status = FailedStatus(FailureSourceInsufficientBalance)
				break
			}
		} else {
			if err := acc.CheckedCredit(u.BalanceChange.Magnitude); err != nil {
				status = FailedStatus(FailureOverflow)
				break
			}
		}
		if u.IncrementNonce {
			acc.Nonce = acc.Nonce.Succ()
		}
		if u.DelegateUpdate != nil {
			acc.Delegate = u.DelegateUpdate
		}
		if u.PermissionsUpdate != nil {
			acc.Permissions = *u.PermissionsUpdate
		}
		if acc.Zkapp == nil {
			acc.Zkapp = &ZkAppAccount{}
		}
		for i, f := range u.AppStateUpdate {
			if f != nil {
				acc.Zkapp.AppState[i] = *f
			}
		}
		if u.VerificationKeyUpdate != nil {
			acc.Zkapp.VerificationKey = u.VerificationKeyUpdate
		}
		l.SetAccount(loc, acc)
	}

	return &TransactionApplied{Transaction: pa.Transaction, Status: status, FeeExcess: cmd.FeeExcess()}, nil
}

func checkPrecondition(acc Account, pre AccountPrecondition) bool {
	if pre.Balance != nil && *pre.Balance != acc.Balance {
		return false
	}
	if pre.Nonce != nil && *pre.Nonce != acc.Nonce {
		return false
	}
	if pre.Delegate != nil {
		if acc.Delegate == nil || *acc.Delegate != *pre.Delegate {
			return false
		}
	}
	if pre.ProvedState != nil {
		if acc.Zkapp == nil || acc.Zkapp.ProvedState != *pre.ProvedState {
			return false
		}
	}
	for i, f := range pre.State {
		if f == nil {
			continue
		}
		if acc.Zkapp == nil || acc.Zkapp.AppState[i] != *f {
			return false
		}
	}
	return true
}

func applySecondPassFeeTransfer(l Ledger, pa *PartiallyApplied) (*TransactionApplied, error) {
	ft := pa.Transaction.FeeTransfer
	id1 := AccountId{PublicKey: ft.Receiver1, TokenId: ft.FeeToken1}
	loc1, acc1, _, err := l.GetOrCreateAccount(id1)
	if err != nil {
		return nil, err
	}
	snapshotAccount(l, pa.PreImages, loc1)
	if err := acc1.CheckedCredit(Amount(ft.Fee1)); err != nil {
		return &TransactionApplied{Transaction: pa.Transaction, Status: FailedStatus(FailureOverflow)}, nil
	}
	l.SetAccount(loc1, acc1)

	if ft.Receiver2 != nil {
		id2 := AccountId{PublicKey: *ft.Receiver2, TokenId: ft.FeeToken2}
		loc2, acc2, _, err := l.GetOrCreateAccount(id2)
		if err != nil {
			return nil, err
		}
		snapshotAccount(l, pa.PreImages, loc2)
		if err := acc2.CheckedCredit(Amount(ft.Fee2)); err != nil {
			return &TransactionApplied{Transaction: pa.Transaction, Status: FailedStatus(FailureOverflow)}, nil
		}
		l.SetAccount(loc2, acc2)
	}
	return &TransactionApplied{Transaction: pa.Transaction, Status: AppliedStatus(), FeeExcess: ft.FeeExcess()}, nil
}

func applySecondPassCoinbase(l Ledger, pa *PartiallyApplied) (*TransactionApplied, error) {
	cb := pa.Transaction.Coinbase
	recvId := AccountId{PublicKey: cb.Receiver, TokenId: DefaultTokenID}
	loc, acc, _, err := l.GetOrCreateAccount(recvId)
	if err != nil {
		return nil, err
	}
	snapshotAccount(l, pa.PreImages, loc)

	award := cb.Amount
	if cb.FeeTransfer != nil {
		reduced, ok := CheckedSub(Balance(award), Balance(cb.FeeTransfer.Fee))
		if !ok {
			return &TransactionApplied{Transaction: pa.Transaction, Status: FailedStatus(FailureOverflow)}, nil
		}
		award = Amount(reduced)
	}
	if err := acc.CheckedCredit(award); err != nil {
		return &TransactionApplied{Transaction: pa.Transaction, Status: FailedStatus(FailureOverflow)}, nil
	}
	l.SetAccount(loc, acc)

	if cb.FeeTransfer != nil {
		ftId := AccountId{PublicKey: cb.FeeTransfer.Receiver, TokenId: DefaultTokenID}
		ftLoc, ftAcc, _, err := l.GetOrCreateAccount(ftId)
		if err != nil {
			return nil, err
		}
		snapshotAccount(l, pa.PreImages, ftLoc)
		if err := ftAcc.CheckedCredit(Amount(cb.FeeTransfer.Fee)); err == nil {
			l.SetAccount(ftLoc, ftAcc)
		}
	}
	return &TransactionApplied{Transaction: pa.Transaction, Status: AppliedStatus(), FeeExcess: cb.FeeExcess()}, nil
}

// updateReceiptChainHash folds commandHash into the signer's receipt chain,
// spec.md §3 ADD: ReceiptChainHash = H(previous, commandHash).
func updateReceiptChainHash(l Ledger, loc Location, commandHash Hash) {
	acc, ok := l.GetAccount(loc)
	if !ok {
		return
	}
	acc.ReceiptChainHash = combineHash(acc.ReceiptChainHash, commandHash)
	l.SetAccount(loc, acc)
}
