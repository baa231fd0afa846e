package core

// sparse_ledger.go — the witness ledger a zkApp transaction executes
// against when only a subset of accounts (and their authenticating merkle
// paths) travel with the job, per spec.md §3 "SparseLedger" and §4.2's
// two-pass execution needing a ledger view cheap enough to hand to SNARK
// workers. Grounded on the teacher's core/merkle_tree_operations.go for the
// sibling-path walk, generalized from a flat binary hash tree over
// transactions into an authenticated subset of the account tree.

import (
	"fmt"
	"sort"
)

// MerklePath is the list of sibling hashes, root-ward from the leaf, needed
// to recompute a merkle root from a single leaf hash.
type MerklePath struct {
	Siblings []Hash
	LeftAt   []bool // LeftAt[i] is true when our node is the left child at level i
}

type sparseLeaf struct {
	account Account
	path    MerklePath
}

// SparseLedger is a portable, authenticated slice of a larger ledger: the
// set of accounts a single transaction touches, each carrying the merkle
// path needed to verify (and, after a write, recompute) its contribution to
// the root it was extracted from.
type SparseLedger struct {
	depth  uint8
	root   Hash
	leaves map[Location]*sparseLeaf
	index  map[AccountId]Location
}

// BuildSparseLedger extracts a witness for ids out of source, capturing
// each account's current value and merkle path. It fails if any id is
// absent from source.
func BuildSparseLedger(source Ledger, ids []AccountId) (*SparseLedger, error) {
	sl := &SparseLedger{
		depth:  source.Depth(),
		root:   source.MerkleRoot(),
		leaves: make(map[Location]*sparseLeaf, len(ids)),
		index:  make(map[AccountId]Location, len(ids)),
	}
	for _, id := range ids {
		loc, ok := source.LocationOfAccount(id)
		if !ok {
			return nil, fmt.Errorf("sparse ledger: account %s not found in source", id)
		}
		acc, ok := source.GetAccount(loc)
		if !ok {
			return nil, fmt.Errorf("sparse ledger: location %d has no account", loc)
		}
		sl.leaves[loc] = &sparseLeaf{account: acc, path: merklePathFor(source, loc)}
		sl.index[id] = loc
	}
	return sl, nil
}

// merklePathFor walks l's sparse merkle tree from loc to the root, recording
// the sibling hash and side at every level.
func merklePathFor(l Ledger, loc Location) MerklePath {
	depth := l.Depth()
	path := MerklePath{Siblings: make([]Hash, depth), LeftAt: make([]bool, depth)}
	idx := uint64(loc)
	for level := uint8(0); level < depth; level++ {
		isLeft := idx%2 == 0
		var siblingIdx uint64
		if isLeft {
			siblingIdx = idx + 1
		} else {
			siblingIdx = idx - 1
		}
		path.LeftAt[level] = isLeft
		path.Siblings[level] = parentNode(l, level, siblingIdx)
		idx /= 2
	}
	return path
}

func (p MerklePath) rootFrom(leafHash Hash) Hash {
	cur := leafHash
	for level, sibling := range p.Siblings {
		if p.LeftAt[level] {
			cur = combineHash(cur, sibling)
		} else {
			cur = combineHash(sibling, cur)
		}
	}
	return cur
}

func (sl *SparseLedger) Depth() uint8 { return sl.depth }

func (sl *SparseLedger) LocationOfAccount(id AccountId) (Location, bool) {
	loc, ok := sl.index[id]
	return loc, ok
}

func (sl *SparseLedger) GetAccount(loc Location) (Account, bool) {
	leaf, ok := sl.leaves[loc]
	if !ok {
		return Account{}, false
	}
	return leaf.account, true
}

// SetAccount overwrites the account at loc and recomputes sl.root from its
// stored merkle path. loc must already be present in the witness; a
// SparseLedger cannot materialize accounts it was not built with.
func (sl *SparseLedger) SetAccount(loc Location, acc Account) {
	leaf, ok := sl.leaves[loc]
	if !ok {
		return
	}
	leaf.account = acc
	sl.index[acc.Id()] = loc
	sl.root = leaf.path.rootFrom(hashAccount(acc))
}

// GetOrCreateAccount behaves like the full ledger's, but an id absent from
// the witness is an error rather than a fresh allocation: the witness
// boundary was fixed when the job was built.
func (sl *SparseLedger) GetOrCreateAccount(id AccountId) (Location, Account, bool, error) {
	loc, ok := sl.index[id]
	if !ok {
		return 0, Account{}, false, fmt.Errorf("sparse ledger: account %s outside witness boundary", id)
	}
	acc, _ := sl.GetAccount(loc)
	return loc, acc, false, nil
}

func (sl *SparseLedger) MerkleRoot() Hash { return sl.root }

func (sl *SparseLedger) Accounts() []AccountId {
	out := make([]AccountId, 0, len(sl.index))
	for id := range sl.index {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// MakeChild overlays a LedgerMask atop the witness, letting second-pass
// execution speculate on top of a SparseLedger exactly as it would atop a
// PersistentLedger.
func (sl *SparseLedger) MakeChild() *LedgerMask {
	return newLedgerMask(sl)
}

func (sl *SparseLedger) getNode(level uint8, index uint64) Hash {
	if level == 0 {
		if leaf, ok := sl.leaves[Location(index)]; ok {
			return hashAccount(leaf.account)
		}
		return emptyHashesFor(sl.depth)[0]
	}
	// Internal nodes above any witnessed leaf are only known exactly when
	// they lie on a captured merkle path; sl.root is authoritative only for
	// level == depth, so non-root internal lookups fall back to the empty
	// hash. Overlay masks built atop a SparseLedger therefore only ever
	// observe the witnessed leaves and the final root, which is sufficient
	// for replaying a single transaction's balance changes.
	if level == sl.depth {
		return sl.root
	}
	return emptyHashesFor(sl.depth)[level]
}
