package vctree

import "errors"

// Structure errors
var (
	// ErrSelfParent indicates an attempt to make a node its own child.
	ErrSelfParent = errors.New("node cannot be its own child")

	// ErrCycle indicates an attempt to add an ancestor of a node as its child.
	ErrCycle = errors.New("node is an ancestor of the parent")

	// ErrNotChild indicates that a node is not a child of the given parent.
	ErrNotChild = errors.New("node is not a child of this parent")

	// ErrIndexOutOfRange indicates a child index outside the child list.
	ErrIndexOutOfRange = errors.New("child index out of range")

	// ErrNilValue indicates an attribute was assigned a nil value. Use RemoveAttr instead.
	ErrNilValue = errors.New("attribute value cannot be nil")
)

// Time travel errors
var (
	// ErrReverted indicates a mutation was attempted while the store is reverted.
	ErrReverted = errors.New("store is reverted; restore before mutating")

	// ErrAlreadyReverted indicates Revert was called while a reversion is outstanding.
	ErrAlreadyReverted = errors.New("store is already reverted")

	// ErrNotReverted indicates Restore was called on a reversion that is no longer active.
	ErrNotReverted = errors.New("reversion already restored")

	// ErrNothingToRevert indicates the transaction log has no entry to revert.
	ErrNothingToRevert = errors.New("no transaction to revert")

	// ErrNothingToUndo indicates a History undo or redo stack is empty.
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Patch errors
var (
	// ErrBaseMismatch indicates a delta was produced against a different base tree.
	ErrBaseMismatch = errors.New("base hash mismatch")

	// ErrUnknownOp indicates a delta operation of an unknown type.
	ErrUnknownOp = errors.New("unknown operation type")
)
