package vctree

import (
	"errors"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"
)

// Store is the per-tree shared state every mutation passes through: the
// stack of open transaction-log entries, the set of notification-locked
// nodes and the sync lock used by lazy-loading collaborators.
//
// A Store is not safe for concurrent use. A tree and everything reachable
// from it must be touched from one logical thread at a time; the
// notification lock is a reentrancy guard, not a mutex.
type Store struct {
	opts Options

	// locks maps each node currently dispatching notifications to the frame
	// that locked it. Mutations aimed at a locked node are buffered there.
	locks map[*Node]*frame

	// open is the stack of transaction-log entries for mutations in progress.
	// Entries fold into their parent when they close.
	open []*ChangeSet
	last *ChangeSet

	serial     uint64
	reverted   *Reversion
	syncDepth  int
	flushDepth int

	observers []*commitObserver
}

// frame is one notification in progress: the nodes it locked and the
// mutations buffered against them.
type frame struct {
	nodes   []*Node
	pending *ChangeSet
}

type commitObserver struct {
	fn func(cs *ChangeSet)
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	return &Store{
		opts:  opts.withDefaults(),
		locks: make(map[*Node]*frame),
	}
}

// NewNode creates a detached node owned by s.
func (s *Store) NewNode(typ string) *Node {
	return &Node{typ: typ, store: s}
}

// Options returns the store configuration.
func (s *Store) Options() Options {
	return s.opts
}

// Locked reports whether n is currently dispatching notifications.
func (s *Store) Locked(n *Node) bool {
	_, ok := s.locks[n]
	return ok
}

// Generation identifies the innermost mutation in progress, or the most
// recent one when none is open. It changes with every mutation.
func (s *Store) Generation() uint64 {
	if len(s.open) > 0 {
		return s.open[len(s.open)-1].serial
	}
	return s.serial
}

// InTransaction reports whether a mutation is being applied or notified.
func (s *Store) InTransaction() bool {
	return len(s.open) > 0
}

// Last returns the change set of the most recently completed top-level
// mutation.
func (s *Store) Last() *ChangeSet {
	return s.last
}

// OnCommit registers fn to receive every completed top-level change set.
// The returned function unregisters it.
func (s *Store) OnCommit(fn func(cs *ChangeSet)) func() {
	o := &commitObserver{fn: fn}
	s.observers = append(s.observers, o)
	return func() {
		if i := slices.Index(s.observers, o); i >= 0 {
			s.observers = slices.Delete(s.observers, i, i+1)
		}
	}
}

// LockSync raises the sync lock. While it is held, access hooks are not
// called, so a collaborator can populate a node through the ordinary API.
func (s *Store) LockSync() {
	s.syncDepth++
}

// UnlockSync releases one level of the sync lock.
func (s *Store) UnlockSync() {
	if s.syncDepth > 0 {
		s.syncDepth--
	}
}

// SyncLocked reports whether the sync lock is held.
func (s *Store) SyncLocked() bool {
	return s.syncDepth > 0
}

// Record applies a memento that is not a node mutation (a variable
// assignment, for instance) as its own transaction entry, so it can be
// reverted like any other change. dispatch runs after the memento is applied
// and before the entry closes.
func (s *Store) Record(m Memento, dispatch func()) error {
	if err := s.writable(); err != nil {
		return err
	}
	s.commit(m, nil, dispatch)
	return nil
}

func (s *Store) writable() error {
	if s.reverted != nil {
		return ErrReverted
	}
	return nil
}

func (s *Store) begin() {
	s.serial++
	cs := NewChangeSet()
	cs.serial = s.serial
	s.open = append(s.open, cs)
}

func (s *Store) end() {
	cs := s.open[len(s.open)-1]
	s.open = s.open[:len(s.open)-1]
	if len(s.open) > 0 {
		parent := s.open[len(s.open)-1]
		parent.changes = append(parent.changes, cs.changes...)
		return
	}
	if cs.Len() == 0 {
		return
	}
	s.last = cs
	for _, o := range slices.Clone(s.observers) {
		o.fn(cs)
	}
}

// commit applies m, locks nodes, runs dispatch, unlocks and replays whatever
// listeners buffered in the meantime, all inside one log entry.
func (s *Store) commit(m Memento, nodes []*Node, dispatch func()) {
	s.begin()
	defer s.end()

	m.Restore()
	top := s.open[len(s.open)-1]
	top.Add(m)

	f := s.lock(nodes)
	s.notify(f, dispatch)
	s.flush(f)
}

func (s *Store) lock(nodes []*Node) *frame {
	f := &frame{pending: NewChangeSet()}
	for _, n := range nodes {
		if n == nil || slices.Contains(f.nodes, n) {
			continue
		}
		f.nodes = append(f.nodes, n)
		s.locks[n] = f
	}
	return f
}

func (s *Store) notify(f *frame, dispatch func()) {
	defer s.unlock(f)
	if dispatch != nil {
		dispatch()
	}
}

func (s *Store) unlock(f *frame) {
	for _, n := range f.nodes {
		delete(s.locks, n)
	}
}

// lockedBy returns the frame locking any of nodes.
func (s *Store) lockedBy(nodes ...*Node) *frame {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if f, ok := s.locks[n]; ok {
			return f
		}
	}
	return nil
}

// buffer queues m on f. Buffered mutations are validated when they replay,
// after the ones issued before them.
func (s *Store) buffer(f *frame, m Memento) {
	glog.V(2).Infof("[store]buffer %T while locked\n", m)
	f.pending.Add(m)
}

// flush replays buffered mutations in issue order. Each replay is an
// ordinary mutation with its own notification.
func (s *Store) flush(f *frame) {
	if f.pending.Len() == 0 {
		return
	}
	if s.flushDepth >= s.opts.MaxDeferredPasses {
		glog.Warningf("[store]dropping %d buffered mutations: deferred replay nested %d deep\n", f.pending.Len(), s.flushDepth)
		return
	}
	s.flushDepth++
	defer func() { s.flushDepth-- }()

	for i, m := range f.pending.changes {
		if err := m.Apply(); err != nil {
			glog.Warningf("[store]buffered mutation %d (%T) failed: %s\n", i, m, err)
		}
	}
}

func (s *Store) setAttr(n *Node, name string, value any) (any, error) {
	if value == nil {
		return nil, ErrNilValue
	}
	if err := s.writable(); err != nil {
		return nil, err
	}
	n.access(AccessAttr, name, true)
	old, _ := n.attr(name)

	m := &SetAttrChange{Node: n, Name: name, Value: value, Old: old}
	if f := s.lockedBy(n); f != nil {
		s.buffer(f, m)
		return old, nil
	}
	s.commit(m, []*Node{n}, func() {
		for _, l := range n.snapshotListeners() {
			l.AttributeSet(n, name, value, old)
		}
	})
	return old, nil
}

func (s *Store) removeAttr(n *Node, name string) (any, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	n.access(AccessAttr, name, true)
	old, ok := n.attr(name)

	if f := s.lockedBy(n); f != nil {
		s.buffer(f, &RemoveAttrChange{Node: n, Name: name, Old: old})
		return old, nil
	}
	if !ok {
		return nil, nil
	}
	m := &RemoveAttrChange{Node: n, Name: name, Old: old}
	s.commit(m, []*Node{n}, func() {
		for _, l := range n.snapshotListeners() {
			l.AttributeRemoved(n, name, old)
		}
	})
	return old, nil
}

func (s *Store) checkEdge(parent, child *Node) error {
	if child == nil {
		return ErrNotChild
	}
	if child == parent {
		return ErrSelfParent
	}
	if child.IsAncestorOf(parent) {
		return ErrCycle
	}
	return s.writable()
}

func (s *Store) addChild(parent, child *Node, index int) error {
	if child == nil {
		return ErrNotChild
	}
	if err := s.writable(); err != nil {
		return err
	}
	if f := s.lockedBy(parent, child, child.parent); f != nil {
		s.buffer(f, &AddChildChange{Parent: parent, Child: child, Index: index})
		return nil
	}
	if err := s.checkEdge(parent, child); err != nil {
		return err
	}
	if child.parent != nil {
		return s.moveChild(parent, child, index)
	}
	parent.access(AccessChildren, "", true)
	if index == -1 {
		index = len(parent.children)
	}
	if index < 0 || index > len(parent.children) {
		return ErrIndexOutOfRange
	}
	if child.store != s {
		child.adopt(s)
	}

	m := &AddChildChange{Parent: parent, Child: child, Index: index}
	s.commit(m, []*Node{parent, child}, func() {
		for _, l := range parent.snapshotListeners() {
			l.ChildAdded(parent, child, index)
		}
		notifyParent(child, parent, nil)
	})
	return nil
}

func (s *Store) removeChild(parent, child *Node) error {
	if child == nil {
		return ErrNotChild
	}
	if err := s.writable(); err != nil {
		return err
	}
	if f := s.lockedBy(parent, child); f != nil {
		s.buffer(f, &RemoveChildChange{Parent: parent, Child: child, Index: -1})
		return nil
	}
	parent.access(AccessChildren, "", true)
	index := parent.indexOf(child)
	if child.parent != parent || index < 0 {
		return ErrNotChild
	}

	m := &RemoveChildChange{Parent: parent, Child: child, Index: index}
	s.commit(m, []*Node{parent, child}, func() {
		for _, l := range parent.snapshotListeners() {
			l.ChildRemoved(parent, child, index)
		}
		notifyParent(child, nil, parent)
	})
	return nil
}

func (s *Store) moveChild(parent, child *Node, index int) error {
	if child == nil {
		return ErrNotChild
	}
	if err := s.writable(); err != nil {
		return err
	}
	if f := s.lockedBy(child.parent, parent, child); f != nil {
		s.buffer(f, &MoveChildChange{Child: child, From: child.parent, To: parent, OldIndex: -1, NewIndex: index})
		return nil
	}
	if err := s.checkEdge(parent, child); err != nil {
		return err
	}
	from := child.parent
	if from == nil {
		return s.addChild(parent, child, index)
	}
	from.access(AccessChildren, "", true)
	if from != parent {
		parent.access(AccessChildren, "", true)
	}

	oldIndex := from.indexOf(child)
	size := len(parent.children)
	if from == parent {
		size--
	}
	if index == -1 {
		index = size
	}
	if index < 0 || index > size {
		return ErrIndexOutOfRange
	}
	if from == parent && oldIndex == index {
		return nil
	}
	if child.store != s {
		child.adopt(s)
	}

	m := &MoveChildChange{Child: child, From: from, To: parent, OldIndex: oldIndex, NewIndex: index}
	s.commit(m, []*Node{from, parent, child}, func() {
		for _, l := range from.snapshotListeners() {
			l.ChildRemoved(from, child, oldIndex)
		}
		for _, l := range parent.snapshotListeners() {
			l.ChildAdded(parent, child, index)
		}
		if from != parent {
			notifyParent(child, parent, from)
		}
	})
	return nil
}

func notifyParent(n, parent, old *Node) {
	for _, l := range n.snapshotListeners() {
		if pl, ok := l.(ParentListener); ok {
			pl.ParentChanged(n, parent, old)
		}
	}
}

// Reversion is the guard returned by Store.Revert. Restore must be called
// exactly once, on the same call stack, before the store is mutated again.
type Reversion struct {
	store *Store
	cs    *ChangeSet
	done  bool
}

// Revert rolls the most recent transaction-log entry backward without
// notifying anyone: the innermost mutation in progress if there is one,
// otherwise the last completed top-level mutation. Only one reversion may
// be outstanding at a time.
func (s *Store) Revert() (*Reversion, error) {
	if s.reverted != nil {
		return nil, ErrAlreadyReverted
	}
	cs := s.last
	if len(s.open) > 0 {
		cs = s.open[len(s.open)-1]
	}
	if cs == nil || cs.Len() == 0 {
		return nil, ErrNothingToRevert
	}
	glog.V(2).Infof("[store]revert %d changes\n", cs.Len())
	cs.Revert()
	r := &Reversion{store: s, cs: cs}
	s.reverted = r
	return r, nil
}

// Restore rolls the reverted entry forward again.
func (r *Reversion) Restore() error {
	if r.done {
		return ErrNotReverted
	}
	r.cs.Restore()
	r.done = true
	r.store.reverted = nil
	glog.V(2).Infof("[store]restore %d changes\n", r.cs.Len())
	return nil
}

// Reverted reports whether a reversion is outstanding.
func (s *Store) Reverted() bool {
	return s.reverted != nil
}

// TimeTravel runs fn with the most recent mutation rolled back, restoring it
// afterwards even if fn fails or panics.
func (s *Store) TimeTravel(fn func() error) (err error) {
	r, err := s.Revert()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := r.Restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn()
}
