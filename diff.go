package vctree

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Diff calculates the operations needed to transform the tree at oldRoot
// into the tree at newRoot. Neither tree is modified.
func Diff(oldRoot, newRoot *Node, author string) (*Delta, error) {
	baseHash, err := hashTree(oldRoot)
	if err != nil {
		return nil, err
	}

	delta := &Delta{
		ID:        ulid.Make().String(),
		BaseHash:  baseHash,
		Timestamp: time.Now().Unix(),
		Author:    author,
	}

	// Paths in the operations refer to the tree as it stands when each
	// operation is applied. Child edits recurse before any sibling is
	// inserted or deleted, deletions run from the end and insertions from
	// the front, so earlier operations never shift later paths.
	ops, err := diffNodes(oldRoot, newRoot, NodePath{})
	if err != nil {
		return nil, err
	}
	delta.Operations = ops

	return delta, nil
}

// diffNodes compares two nodes of the same type at the same position.
func diffNodes(oldNode, newNode *Node, path NodePath) ([]Operation, error) {
	ops := diffAttributes(oldNode, newNode, path)

	childOps, err := diffChildren(oldNode, newNode, path)
	if err != nil {
		return nil, err
	}
	return append(ops, childOps...), nil
}

// diffAttributes walks the old attributes in order for updates and
// deletions, then the new ones for additions. String text values are
// diffed at character granularity.
func diffAttributes(oldNode, newNode *Node, path NodePath) []Operation {
	var ops []Operation

	for _, a := range oldNode.Attrs() {
		vNew, exists := newNode.Attr(a.Name)
		if !exists {
			ops = append(ops, Operation{
				Type:     OpDeleteAttr,
				Path:     path,
				Key:      a.Name,
				OldValue: a.Value,
			})
			continue
		}
		if sameValue(a.Value, vNew) {
			continue
		}
		if a.Name == "" {
			ops = append(ops, diffText(a.Value, vNew, path)...)
			continue
		}
		ops = append(ops, Operation{
			Type:     OpUpdateAttr,
			Path:     path,
			Key:      a.Name,
			OldValue: a.Value,
			NewValue: vNew,
		})
	}

	for _, a := range newNode.Attrs() {
		if _, exists := oldNode.Attr(a.Name); !exists {
			ops = append(ops, Operation{
				Type:     OpUpdateAttr,
				Path:     path,
				Key:      a.Name,
				NewValue: a.Value,
			})
		}
	}

	return ops
}

// diffText emits the smallest delete/insert pair that turns oldVal into
// newVal after trimming the common prefix and suffix. Non-string values
// are replaced whole.
func diffText(oldVal, newVal any, path NodePath) []Operation {
	oldStr, ok1 := oldVal.(string)
	newStr, ok2 := newVal.(string)
	if !ok1 || !ok2 {
		return []Operation{{
			Type:     OpUpdateText,
			Path:     path,
			OldValue: oldVal,
			NewValue: newVal,
		}}
	}

	o, n := []rune(oldStr), []rune(newStr)
	prefix := 0
	for prefix < len(o) && prefix < len(n) && o[prefix] == n[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(o)-prefix && suffix < len(n)-prefix && o[len(o)-1-suffix] == n[len(n)-1-suffix] {
		suffix++
	}

	var ops []Operation
	if removed := o[prefix : len(o)-suffix]; len(removed) > 0 {
		ops = append(ops, Operation{
			Type:     OpDeleteText,
			Path:     path,
			OldValue: string(removed),
			Position: prefix,
		})
	}
	if inserted := n[prefix : len(n)-suffix]; len(inserted) > 0 {
		ops = append(ops, Operation{
			Type:     OpInsertText,
			Path:     path,
			NewValue: string(inserted),
			Position: prefix,
		})
	}
	return ops
}

// diffChildren matches children by index. A child whose type changed is
// replaced in place; surplus old children are deleted from the end and
// surplus new ones appended.
// Note: This is NOT robust for reordering or inserting in the middle,
// as it will detect everything after as changed.
func diffChildren(oldNode, newNode *Node, parentPath NodePath) ([]Operation, error) {
	var ops []Operation

	oldChildren := oldNode.Children()
	newChildren := newNode.Children()

	commonLen := min(len(oldChildren), len(newChildren))

	for i := 0; i < commonLen; i++ {
		childPath := append(append(NodePath(nil), parentPath...), i)

		if oldChildren[i].Type() != newChildren[i].Type() {
			data, err := EncodeNode(newChildren[i])
			if err != nil {
				return nil, err
			}
			ops = append(ops,
				Operation{Type: OpDeleteNode, Path: childPath},
				Operation{Type: OpInsertNode, Path: parentPath, Position: i, NodeData: data},
			)
			continue
		}

		childOps, err := diffNodes(oldChildren[i], newChildren[i], childPath)
		if err != nil {
			return nil, err
		}
		ops = append(ops, childOps...)
	}

	for i := len(oldChildren) - 1; i >= commonLen; i-- {
		ops = append(ops, Operation{
			Type: OpDeleteNode,
			Path: append(append(NodePath(nil), parentPath...), i),
		})
	}

	for i := commonLen; i < len(newChildren); i++ {
		data, err := EncodeNode(newChildren[i])
		if err != nil {
			return nil, err
		}
		ops = append(ops, Operation{
			Type:     OpInsertNode,
			Path:     parentPath,
			Position: i,
			NodeData: data,
		})
	}

	return ops, nil
}

// sameValue compares attribute values without panicking on
// non-comparable payloads.
func sameValue(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
