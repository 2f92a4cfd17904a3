package vctree

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Patch applies the changes in delta to the tree at root, in place, through
// the ordinary mutation operations: listeners and live queries observe every
// step. The tree must match the delta's base hash.
func Patch(root *Node, delta *Delta) error {
	currentHash, err := hashTree(root)
	if err != nil {
		return err
	}
	if currentHash != delta.BaseHash {
		return fmt.Errorf("%w: expected %s, got %s", ErrBaseMismatch, delta.BaseHash, currentHash)
	}

	for i, op := range delta.Operations {
		if err := applyOp(root, op); err != nil {
			return fmt.Errorf("failed to apply op %d (%s): %w", i, op.Type, err)
		}
	}
	return nil
}

func applyOp(root *Node, op Operation) error {
	switch op.Type {
	case OpUpdateText:
		node, err := GetNode(root, op.Path)
		if err != nil {
			return err
		}
		if !sameValue(node.Value(), op.OldValue) {
			return fmt.Errorf("UPDATE_TEXT old value mismatch: want '%v', got '%v'", op.OldValue, node.Value())
		}
		if op.NewValue == nil {
			_, err = node.RemoveAttr("")
			return err
		}
		_, err = node.SetValue(op.NewValue)
		return err

	case OpInsertText, OpDeleteText:
		node, err := GetNode(root, op.Path)
		if err != nil {
			return err
		}
		text := []rune(node.Text())
		if op.Position < 0 || op.Position > len(text) {
			return fmt.Errorf("%s offset %d out of range (len %d)", op.Type, op.Position, len(text))
		}
		var next string
		if op.Type == OpInsertText {
			ins, _ := op.NewValue.(string)
			next = string(text[:op.Position]) + ins + string(text[op.Position:])
		} else {
			del := []rune(FormatValue(op.OldValue))
			end := op.Position + len(del)
			if end > len(text) || string(text[op.Position:end]) != string(del) {
				return fmt.Errorf("DELETE_TEXT mismatch at %d: want '%s'", op.Position, string(del))
			}
			next = string(text[:op.Position]) + string(text[end:])
		}
		_, err = node.SetValue(next)
		return err

	case OpUpdateAttr:
		node, err := GetNode(root, op.Path)
		if err != nil {
			return err
		}
		if op.NewValue == nil {
			return fmt.Errorf("UPDATE_ATTR %s has no value", op.Key)
		}
		_, err = node.SetAttr(op.Key, op.NewValue)
		return err

	case OpDeleteAttr:
		node, err := GetNode(root, op.Path)
		if err != nil {
			return err
		}
		_, err = node.RemoveAttr(op.Key)
		return err

	case OpInsertNode:
		// Path is Parent
		parent, err := GetNode(root, op.Path)
		if err != nil {
			return err
		}
		newNode, err := DecodeNode(root.Store(), op.NodeData)
		if err != nil {
			return err
		}
		index := op.Position
		if index > parent.ChildCount() {
			index = -1
		}
		return parent.AddChild(newNode, index)

	case OpDeleteNode:
		// Path is the node itself
		node, err := GetNode(root, op.Path)
		if err != nil {
			return err
		}
		if node.Parent() == nil || node == root {
			return errors.New("cannot delete root node or orphan")
		}
		return node.Parent().RemoveChild(node)

	case OpMoveNode:
		node, err := GetNode(root, op.Path)
		if err != nil {
			return err
		}
		parent, err := GetNode(root, op.Parent)
		if err != nil {
			return err
		}
		return parent.MoveChild(node, op.Position)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownOp, op.Type)
	}
}

// Delta encodes the records of a committed change set as path-addressed
// operations against root. The set is rolled back on the raw structure and
// replayed one record at a time so every path is taken in the state the
// operation will be applied to; the tree ends where it started. No
// listeners run.
func (cs *ChangeSet) Delta(root *Node, author string) (*Delta, error) {
	cs.Revert()
	restored := 0
	defer func() {
		for _, m := range cs.changes[restored:] {
			m.Restore()
		}
	}()

	baseHash, err := hashTree(root)
	if err != nil {
		return nil, err
	}
	delta := &Delta{
		ID:        ulid.Make().String(),
		BaseHash:  baseHash,
		Timestamp: time.Now().Unix(),
		Author:    author,
	}

	for _, m := range cs.changes {
		op, err := encodeChange(root, m)
		if err != nil {
			return nil, err
		}
		delta.Operations = append(delta.Operations, op)
		m.Restore()
		restored++
	}
	return delta, nil
}

func encodeChange(root *Node, m Memento) (Operation, error) {
	switch c := m.(type) {
	case *SetAttrChange:
		path, err := GetPath(root, c.Node)
		if err != nil {
			return Operation{}, err
		}
		if c.Name == "" {
			return Operation{Type: OpUpdateText, Path: path, OldValue: c.Old, NewValue: c.Value}, nil
		}
		return Operation{Type: OpUpdateAttr, Path: path, Key: c.Name, OldValue: c.Old, NewValue: c.Value}, nil

	case *RemoveAttrChange:
		path, err := GetPath(root, c.Node)
		if err != nil {
			return Operation{}, err
		}
		if c.Name == "" {
			return Operation{Type: OpUpdateText, Path: path, OldValue: c.Old}, nil
		}
		return Operation{Type: OpDeleteAttr, Path: path, Key: c.Name, OldValue: c.Old}, nil

	case *AddChildChange:
		path, err := GetPath(root, c.Parent)
		if err != nil {
			return Operation{}, err
		}
		data, err := EncodeNode(c.Child)
		if err != nil {
			return Operation{}, err
		}
		return Operation{Type: OpInsertNode, Path: path, Position: c.Index, NodeData: data}, nil

	case *RemoveChildChange:
		path, err := GetPath(root, c.Child)
		if err != nil {
			return Operation{}, err
		}
		return Operation{Type: OpDeleteNode, Path: path}, nil

	case *MoveChildChange:
		path, err := GetPath(root, c.Child)
		if err != nil {
			return Operation{}, err
		}
		parent, err := GetPath(root, c.To)
		if err != nil {
			return Operation{}, err
		}
		return Operation{Type: OpMoveNode, Path: path, Parent: parent, Position: c.NewIndex}, nil

	default:
		return Operation{}, fmt.Errorf("%w: %T", ErrUnknownOp, m)
	}
}
