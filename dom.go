package vctree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Node types used for the non-element parts of an HTML document.
const (
	TypeDocument = "#document"
	TypeText     = "#text"
	TypeComment  = "#comment"
	TypeDoctype  = "#doctype"
)

// ParseHTML parses a string into a node tree owned by a fresh store.
func ParseHTML(content string) (*Node, error) {
	return ParseHTMLInto(NewStore(DefaultOptions()), content)
}

// ParseHTMLInto parses content and builds the tree in s through the ordinary
// construction API. Elements keep their tag as the node type; text, comments
// and doctypes become #text, #comment and #doctype nodes carrying their data
// as the text value.
func ParseHTMLInto(s *Store, content string) (*Node, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	return fromHTML(s, doc)
}

func fromHTML(s *Store, h *html.Node) (*Node, error) {
	var n *Node
	switch h.Type {
	case html.DocumentNode:
		n = s.NewNode(TypeDocument)
	case html.ElementNode:
		n = s.NewNode(h.Data)
		for _, a := range h.Attr {
			key := a.Key
			if a.Namespace != "" {
				key = a.Namespace + ":" + a.Key
			}
			if _, err := n.SetAttr(key, a.Val); err != nil {
				return nil, err
			}
		}
	case html.TextNode:
		n = s.NewNode(TypeText)
	case html.CommentNode:
		n = s.NewNode(TypeComment)
	case html.DoctypeNode:
		n = s.NewNode(TypeDoctype)
	default:
		return nil, fmt.Errorf("unsupported html node type %d", h.Type)
	}
	if h.Type != html.ElementNode && h.Type != html.DocumentNode {
		if _, err := n.SetValue(h.Data); err != nil {
			return nil, err
		}
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		child, err := fromHTML(s, c)
		if err != nil {
			return nil, err
		}
		if err := n.AppendChild(child); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// RenderNode converts a node tree back to an HTML string.
func RenderNode(n *Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, toHTML(n)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// toHTML walks the ordered traversal. An element's own text value, if any,
// is rendered as its first text child.
func toHTML(n *Node) *html.Node {
	h := &html.Node{}
	switch n.Type() {
	case TypeDocument:
		h.Type = html.DocumentNode
	case TypeText:
		h.Type = html.TextNode
		h.Data = n.Text()
	case TypeComment:
		h.Type = html.CommentNode
		h.Data = n.Text()
	case TypeDoctype:
		h.Type = html.DoctypeNode
		h.Data = n.Text()
	default:
		h.Type = html.ElementNode
		h.Data = n.Type()
		for _, a := range n.Attrs() {
			if a.Name == "" {
				h.AppendChild(&html.Node{Type: html.TextNode, Data: FormatValue(a.Value)})
				continue
			}
			h.Attr = append(h.Attr, html.Attribute{Key: a.Name, Val: FormatValue(a.Value)})
		}
	}
	for _, c := range n.Children() {
		h.AppendChild(toHTML(c))
	}
	return h
}

// FormatValue renders an attribute value as text.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

type nodeJSON struct {
	Type     string      `json:"type"`
	Attrs    []attrJSON  `json:"attrs,omitempty"`
	Children []*nodeJSON `json:"children,omitempty"`
}

type attrJSON struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func toJSON(n *Node) *nodeJSON {
	j := &nodeJSON{Type: n.Type()}
	for _, a := range n.Attrs() {
		j.Attrs = append(j.Attrs, attrJSON{Name: a.Name, Value: a.Value})
	}
	for _, c := range n.Children() {
		j.Children = append(j.Children, toJSON(c))
	}
	return j
}

// EncodeNode serializes a subtree (type, attributes in order, children in
// order) as JSON.
func EncodeNode(n *Node) (string, error) {
	b, err := json.Marshal(toJSON(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeNode rebuilds a detached subtree in s from EncodeNode output.
func DecodeNode(s *Store, data string) (*Node, error) {
	var j nodeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to decode node data: %w", err)
	}
	return fromJSON(s, &j)
}

func fromJSON(s *Store, j *nodeJSON) (*Node, error) {
	n := s.NewNode(j.Type)
	for _, a := range j.Attrs {
		if _, err := n.SetAttr(a.Name, a.Value); err != nil {
			return nil, err
		}
	}
	for _, cj := range j.Children {
		c, err := fromJSON(s, cj)
		if err != nil {
			return nil, err
		}
		if err := n.AppendChild(c); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// hashTree fingerprints a subtree by its JSON encoding.
func hashTree(n *Node) (string, error) {
	s, err := EncodeNode(n)
	if err != nil {
		return "", err
	}
	return hashString(s), nil
}

func hashString(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// GetNode traverses the tree using the provided path to find a specific node.
func GetNode(root *Node, path NodePath) (*Node, error) {
	current := root
	for i, index := range path {
		child := current.Child(index)
		if child == nil {
			return nil, fmt.Errorf("node not found at path %v (failed at index %d, step %d)", path, index, i)
		}
		current = child
	}
	return current, nil
}

// GetPath finds the path from root to the target node.
func GetPath(root, target *Node) (NodePath, error) {
	var path NodePath

	// We build the path backwards from target to root
	current := target
	for current != root {
		parent := current.parent
		if parent == nil {
			return nil, errors.New("target node is not a descendant of root")
		}

		index := parent.indexOf(current)
		if index == -1 {
			return nil, errors.New("integrity error: child not found in parent's list")
		}

		path = append(NodePath{index}, path...)
		current = parent
	}
	return path, nil
}

// DocumentOrder compares two nodes of the same tree by document order: -1
// if a comes first, 1 if b does, 0 if they are the same node or live in
// different trees.
func DocumentOrder(a, b *Node) int {
	if a == b {
		return 0
	}
	ra, rb := a.Root(), b.Root()
	if ra != rb {
		return 0
	}
	pa, _ := GetPath(ra, a)
	pb, _ := GetPath(rb, b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	// One is an ancestor of the other; the ancestor comes first.
	if len(pa) < len(pb) {
		return -1
	}
	return 1
}
