package vctree

import (
	"encoding/json"
	"testing"
)

func mustParse(t *testing.T, s string) *Node {
	t.Helper()
	doc, err := ParseHTML(s)
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}
	return doc
}

func printJSON(t *testing.T, v any) {
	t.Helper()
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Logf("marshal failed: %v", err)
		return
	}
	t.Log(string(b))
}

func TestDiffTextGranularity(t *testing.T) {
	tests := []struct {
		name      string
		oldHTML   string
		newHTML   string
		expectOps []OpType
	}{
		{
			name:      "Append Text",
			oldHTML:   "<p>Hello</p>",
			newHTML:   "<p>Hello World</p>",
			expectOps: []OpType{OpInsertText},
		},
		{
			name:      "Prepend Text",
			oldHTML:   "<p>World</p>",
			newHTML:   "<p>Hello World</p>",
			expectOps: []OpType{OpInsertText},
		},
		{
			name:      "Insert Middle",
			oldHTML:   "<p>Hello World</p>",
			newHTML:   "<p>Hello Go World</p>",
			expectOps: []OpType{OpInsertText},
		},
		{
			name:      "Delete End",
			oldHTML:   "<p>Hello World</p>",
			newHTML:   "<p>Hello</p>",
			expectOps: []OpType{OpDeleteText},
		},
		{
			name:      "Delete Middle",
			oldHTML:   "<p>Hello Go World</p>",
			newHTML:   "<p>Hello World</p>",
			expectOps: []OpType{OpDeleteText},
		},
		{
			name:      "Replace Middle/Part",
			oldHTML:   "<p>Hello Old World</p>",
			newHTML:   "<p>Hello New World</p>",
			expectOps: []OpType{OpDeleteText, OpInsertText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, err := Diff(mustParse(t, tt.oldHTML), mustParse(t, tt.newHTML), "test")
			if err != nil {
				t.Fatalf("Diff failed: %v", err)
			}

			if len(delta.Operations) != len(tt.expectOps) {
				t.Errorf("Ops count mismatch. Want %d, Got %d", len(tt.expectOps), len(delta.Operations))
				printJSON(t, delta.Operations)
				return
			}

			// Text edits come out delete first, then insert.
			for i, op := range delta.Operations {
				if op.Type != tt.expectOps[i] {
					t.Errorf("Op[%d] type mismatch. Want %s, Got %s", i, tt.expectOps[i], op.Type)
				}
			}
		})
	}
}

func TestDiffSimple(t *testing.T) {
	tests := []struct {
		name    string
		oldHTML string
		newHTML string
		wantOps []OpType
	}{
		{
			name:    "No changes",
			oldHTML: "<div><p>Hello</p></div>",
			newHTML: "<div><p>Hello</p></div>",
		},
		{
			name:    "Attribute change",
			oldHTML: `<div class="a"></div>`,
			newHTML: `<div class="b"></div>`,
			wantOps: []OpType{OpUpdateAttr},
		},
		{
			name:    "Attribute removed and added",
			oldHTML: `<div class="a"></div>`,
			newHTML: `<div id="b"></div>`,
			wantOps: []OpType{OpDeleteAttr, OpUpdateAttr},
		},
		{
			name:    "Type change",
			oldHTML: `<div><p>x</p></div>`,
			newHTML: `<div><span>x</span></div>`,
			wantOps: []OpType{OpDeleteNode, OpInsertNode},
		},
		{
			name:    "Surplus children",
			oldHTML: `<ul><li>A</li><li>B</li><li>C</li></ul>`,
			newHTML: `<ul><li>A</li></ul>`,
			wantOps: []OpType{OpDeleteNode, OpDeleteNode},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, err := Diff(mustParse(t, tt.oldHTML), mustParse(t, tt.newHTML), "tester")
			if err != nil {
				t.Fatalf("Diff error: %v", err)
			}
			if len(delta.Operations) != len(tt.wantOps) {
				t.Fatalf("Want %d ops, got %d", len(tt.wantOps), len(delta.Operations))
			}
			for i, op := range delta.Operations {
				if op.Type != tt.wantOps[i] {
					t.Errorf("Op[%d] type mismatch. Want %s, Got %s", i, tt.wantOps[i], op.Type)
				}
			}
			if delta.ID == "" || delta.Author != "tester" {
				t.Errorf("Delta header not filled: %+v", delta)
			}
		})
	}
}

func TestDiffLeavesTreesAlone(t *testing.T) {
	oldDoc := mustParse(t, `<p class="a">one</p>`)
	newDoc := mustParse(t, `<p class="b">two</p>`)
	before, _ := EncodeNode(oldDoc)

	if _, err := Diff(oldDoc, newDoc, "tester"); err != nil {
		t.Fatalf("Diff error: %v", err)
	}
	after, _ := EncodeNode(oldDoc)
	if before != after {
		t.Errorf("Diff modified the old tree")
	}
}
