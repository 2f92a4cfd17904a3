package vctree

// NodePath represents the traversal steps from the root to a target node.
// Example: [0, 1, 3] means root -> child[0] -> child[1] -> child[3]
type NodePath []int

type OpType string

const (
	OpInsertNode OpType = "INSERT_NODE" // Insert a new node
	OpDeleteNode OpType = "DELETE_NODE" // Remove a node
	OpMoveNode   OpType = "MOVE_NODE"   // Reparent or reorder a node
	OpUpdateAttr OpType = "UPDATE_ATTR" // Change/Add an attribute
	OpDeleteAttr OpType = "DELETE_ATTR" // Remove an attribute
	OpUpdateText OpType = "UPDATE_TEXT" // Replace full text value (Atomic)
	OpInsertText OpType = "INSERT_TEXT" // Insert text at position
	OpDeleteText OpType = "DELETE_TEXT" // Delete text at position
)

// Operation is a path-addressed, serializable change to a tree. Paths are
// resolved against the tree as it stands when the operation is applied, so
// the operations of a Delta must be applied in order.
type Operation struct {
	Type     OpType   `json:"type"`
	Path     NodePath `json:"path"`
	Key      string   `json:"key,omitempty"`       // For attributes (name of the attribute)
	OldValue any      `json:"old_value,omitempty"` // Previous value (for verification). For DeleteText: the removed text.
	NewValue any      `json:"new_value,omitempty"` // New value. For InsertText: text to insert.
	NodeData string   `json:"node_data,omitempty"` // For InsertNode: the JSON encoding of the subtree
	Parent   NodePath `json:"parent,omitempty"`    // For MoveNode: destination parent
	Position int      `json:"position,omitempty"`  // For InsertNode/MoveNode: child index. For InsertText/DeleteText: rune offset.
}

// Delta represents a set of changes applied to a base tree.
type Delta struct {
	ID         string      `json:"id"`
	BaseHash   string      `json:"base_hash"` // Hash of the original tree to ensure validity
	Operations []Operation `json:"operations"`
	Timestamp  int64       `json:"timestamp"`
	Author     string      `json:"author"`
}
