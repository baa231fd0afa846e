package core

// ledger_mask.go — the polymorphic ledger capability set of spec.md §9
// ({location_of_account, get, set, get_or_create_account, make_child,
// merkle_root, accounts}) and its two ground implementations: a persistent
// root ledger and a chainable copy-on-write overlay mask.
//
// Grounded on the teacher's core/ledger.go: the mutex-guarded map-backed
// state store and its logrus diagnostics are kept, but the flat
// block/UTXO/state model is replaced with a depth-bounded sparse merkle tree
// of accounts, and "one ledger" becomes "a chain of masks rooted at one
// persistent ledger" (spec.md §3 LedgerMask, §9 "shared resources").

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Location is a leaf index in the account merkle tree.
type Location uint64

// Ledger is the capability set every ledger-like value (persistent root,
// overlay mask, or sparse witness) must implement so the two-pass execution
// routines in execution.go can run uniformly over any of them.
type Ledger interface {
	LocationOfAccount(id AccountId) (Location, bool)
	GetAccount(loc Location) (Account, bool)
	SetAccount(loc Location, acc Account)
	GetOrCreateAccount(id AccountId) (loc Location, acc Account, created bool, err error)
	MakeChild() *LedgerMask
	MerkleRoot() Hash
	Accounts() []AccountId
	Depth() uint8
}

// nodeKey addresses one node of the sparse merkle tree: level 0 is leaves,
// level Depth is the root (index 0).
type nodeKey struct {
	level uint8
	index uint64
}

func hashAccount(a Account) Hash {
	h := sha256.New()
	h.Write(a.PublicKey[:])
	var buf [8]byte
	putUint64(buf[:], uint64(a.TokenId))
	h.Write(buf[:])
	putUint64(buf[:], uint64(a.Balance))
	h.Write(buf[:])
	putUint64(buf[:], uint64(a.Nonce))
	h.Write(buf[:])
	if a.Delegate != nil {
		h.Write(a.Delegate[:])
	}
	h.Write(a.VotingFor[:])
	if a.Zkapp != nil {
		for _, f := range a.Zkapp.AppState {
			h.Write(f[:])
		}
	}
	sum := sha256.Sum256(h.Sum(nil))
	var out Hash
	copy(out[:], sum[:])
	return out
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func combineHash(left, right Hash) Hash {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	sum := sha256.Sum256(h.Sum(nil))
	var out Hash
	copy(out[:], sum[:])
	return out
}

// emptyHashes[level] is the canonical hash of an all-empty subtree rooted at
// that level, memoized per tree depth.
type emptyHashCache struct {
	mu    sync.Mutex
	byDepth map[uint8][]Hash
}

var globalEmptyHashes = emptyHashCache{byDepth: map[uint8][]Hash{}}

func emptyHashesFor(depth uint8) []Hash {
	globalEmptyHashes.mu.Lock()
	defer globalEmptyHashes.mu.Unlock()
	if h, ok := globalEmptyHashes.byDepth[depth]; ok {
		return h
	}
	levels := make([]Hash, depth+1)
	levels[0] = hashAccount(Account{})
	for i := uint8(1); i <= depth; i++ {
		levels[i] = combineHash(levels[i-1], levels[i-1])
	}
	globalEmptyHashes.byDepth[depth] = levels
	return levels
}

// PersistentLedger is the root of a mask chain: the only ledger with no
// parent. Account data here is durable; LedgerMask overlays speculate atop
// it without mutating it.
type PersistentLedger struct {
	mu       sync.RWMutex
	depth    uint8
	accounts map[Location]Account
	index    map[AccountId]Location
	nodes    map[nodeKey]Hash
	nextLoc  Location
}

// NewPersistentLedger constructs an empty ledger with the given merkle
// depth (account capacity 2^depth).
func NewPersistentLedger(depth uint8) *PersistentLedger {
	return &PersistentLedger{
		depth:    depth,
		accounts: make(map[Location]Account),
		index:    make(map[AccountId]Location),
		nodes:    make(map[nodeKey]Hash),
	}
}

func (l *PersistentLedger) Depth() uint8 { return l.depth }

func (l *PersistentLedger) LocationOfAccount(id AccountId) (Location, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	loc, ok := l.index[id]
	return loc, ok
}

func (l *PersistentLedger) GetAccount(loc Location) (Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[loc]
	return a, ok
}

func (l *PersistentLedger) getNode(level uint8, index uint64) Hash {
	if h, ok := l.nodes[nodeKey{level, index}]; ok {
		return h
	}
	return emptyHashesFor(l.depth)[level]
}

// SetAccount writes acc at loc and recomputes the merkle path to the root.
func (l *PersistentLedger) SetAccount(loc Location, acc Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[loc] = acc
	l.index[acc.Id()] = loc
	l.recomputePath(loc, hashAccount(acc))
	logrus.WithFields(logrus.Fields{"account": acc.Id().String(), "location": loc}).Debug("persistent ledger: account written")
}

func (l *PersistentLedger) recomputePath(loc Location, leafHash Hash) {
	l.nodes[nodeKey{0, uint64(loc)}] = leafHash
	idx := uint64(loc)
	cur := leafHash
	for level := uint8(0); level < l.depth; level++ {
		var left, right Hash
		if idx%2 == 0 {
			left = cur
			right = l.getNode(level, idx+1)
		} else {
			left = l.getNode(level, idx-1)
			right = cur
		}
		cur = combineHash(left, right)
		idx /= 2
		l.nodes[nodeKey{level + 1, idx}] = cur
	}
}

func (l *PersistentLedger) GetOrCreateAccount(id AccountId) (Location, Account, bool, error) {
	l.mu.Lock()
	if loc, ok := l.index[id]; ok {
		a := l.accounts[loc]
		l.mu.Unlock()
		return loc, a, false, nil
	}
	if uint64(l.nextLoc) >= uint64(1)<<l.depth {
		l.mu.Unlock()
		return 0, Account{}, false, fmt.Errorf("ledger: capacity exhausted at depth %d", l.depth)
	}
	loc := l.nextLoc
	l.nextLoc++
	acc := NewAccount(id)
	l.mu.Unlock()
	l.SetAccount(loc, acc)
	return loc, acc, true, nil
}

func (l *PersistentLedger) MerkleRoot() Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getNode(l.depth, 0)
}

func (l *PersistentLedger) Accounts() []AccountId {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AccountId, 0, len(l.index))
	for id := range l.index {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (l *PersistentLedger) MakeChild() *LedgerMask {
	return newLedgerMask(l)
}

// ApplyAccount is a convenience used by genesis seeding: it writes acc
// directly, allocating a location if the account does not already exist.
func (l *PersistentLedger) ApplyAccount(acc Account) (Location, error) {
	loc, _, _, err := l.GetOrCreateAccount(acc.Id())
	if err != nil {
		return 0, err
	}
	l.SetAccount(loc, acc)
	return loc, nil
}

// LedgerMask is a copy-on-write overlay atop a parent Ledger. A child mask
// observes its parent until a Set shadows the value (spec.md §3 invariant).
// Masks chain arbitrarily deep; MakeChild on a mask returns a grandchild.
type LedgerMask struct {
	mu       sync.RWMutex
	parent   Ledger
	depth    uint8
	accounts map[Location]Account
	index    map[AccountId]Location
	nodes    map[nodeKey]Hash
	nextLoc  Location
}

func newLedgerMask(parent Ledger) *LedgerMask {
	return &LedgerMask{
		parent:   parent,
		depth:    parent.Depth(),
		accounts: make(map[Location]Account),
		index:    make(map[AccountId]Location),
		nodes:    make(map[nodeKey]Hash),
		nextLoc:  nextFreeLocation(parent),
	}
}

// nextFreeLocation walks a ledger's account set to find the smallest unused
// location, used to seed a fresh mask's allocator.
func nextFreeLocation(l Ledger) Location {
	used := map[Location]bool{}
	for _, id := range l.Accounts() {
		loc, _ := l.LocationOfAccount(id)
		used[loc] = true
	}
	var next Location
	for used[next] {
		next++
	}
	return next
}

func (m *LedgerMask) Depth() uint8 { return m.depth }

func (m *LedgerMask) LocationOfAccount(id AccountId) (Location, bool) {
	m.mu.RLock()
	if loc, ok := m.index[id]; ok {
		m.mu.RUnlock()
		return loc, true
	}
	m.mu.RUnlock()
	return m.parent.LocationOfAccount(id)
}

func (m *LedgerMask) GetAccount(loc Location) (Account, bool) {
	m.mu.RLock()
	if a, ok := m.accounts[loc]; ok {
		m.mu.RUnlock()
		return a, true
	}
	m.mu.RUnlock()
	return m.parent.GetAccount(loc)
}

// nodeGetter is implemented by every concrete ledger kind that materializes
// merkle tree nodes (PersistentLedger, LedgerMask, SparseLedger). It lets a
// mask read through an arbitrarily typed parent without a type switch.
type nodeGetter interface {
	getNode(level uint8, index uint64) Hash
}

func (m *LedgerMask) getNode(level uint8, index uint64) Hash {
	if h, ok := m.nodes[nodeKey{level, index}]; ok {
		return h
	}
	return parentNode(m.parent, level, index)
}

func parentNode(l Ledger, level uint8, index uint64) Hash {
	if ng, ok := l.(nodeGetter); ok {
		return ng.getNode(level, index)
	}
	return emptyHashesFor(l.Depth())[level]
}

func (m *LedgerMask) SetAccount(loc Location, acc Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[loc] = acc
	m.index[acc.Id()] = loc
	m.recomputePath(loc, hashAccount(acc))
}

func (m *LedgerMask) recomputePath(loc Location, leafHash Hash) {
	m.nodes[nodeKey{0, uint64(loc)}] = leafHash
	idx := uint64(loc)
	cur := leafHash
	for level := uint8(0); level < m.depth; level++ {
		var left, right Hash
		if idx%2 == 0 {
			left = cur
			right = m.getNode(level, idx+1)
		} else {
			left = m.getNode(level, idx-1)
			right = cur
		}
		cur = combineHash(left, right)
		idx /= 2
		m.nodes[nodeKey{level + 1, idx}] = cur
	}
}

func (m *LedgerMask) GetOrCreateAccount(id AccountId) (Location, Account, bool, error) {
	if loc, ok := m.LocationOfAccount(id); ok {
		a, _ := m.GetAccount(loc)
		return loc, a, false, nil
	}
	m.mu.Lock()
	if uint64(m.nextLoc) >= uint64(1)<<m.depth {
		m.mu.Unlock()
		return 0, Account{}, false, fmt.Errorf("ledger mask: capacity exhausted at depth %d", m.depth)
	}
	loc := m.nextLoc
	m.nextLoc++
	m.mu.Unlock()
	acc := NewAccount(id)
	m.SetAccount(loc, acc)
	return loc, acc, true, nil
}

func (m *LedgerMask) MerkleRoot() Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getNode(m.depth, 0)
}

func (m *LedgerMask) Accounts() []AccountId {
	m.mu.RLock()
	own := make(map[AccountId]bool, len(m.index))
	out := make([]AccountId, 0, len(m.index))
	for id := range m.index {
		own[id] = true
		out = append(out, id)
	}
	m.mu.RUnlock()
	for _, id := range m.parent.Accounts() {
		if !own[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (m *LedgerMask) MakeChild() *LedgerMask {
	return newLedgerMask(m)
}

// CommitToParent folds every account this mask has written into its
// parent, mirroring the teacher's ledger snapshot/WAL commit step but for an
// in-memory overlay. This is the "commit_and_reparent_to_root" operation of
// spec.md §5, restricted to a single level of the chain per call; a caller
// collapsing a multi-level mask chain calls it once per level from the
// bottom.
func (m *LedgerMask) CommitToParent() error {
	m.mu.RLock()
	writes := make(map[Location]Account, len(m.accounts))
	for loc, acc := range m.accounts {
		writes[loc] = acc
	}
	m.mu.RUnlock()

	for loc, acc := range writes {
		m.parent.SetAccount(loc, acc)
	}
	logrus.WithField("accounts", len(writes)).Debug("ledger mask: committed to parent")
	return nil
}
