package vctree

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestPatchRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		oldHTML string
		newHTML string
	}{
		{
			name:    "Text change",
			oldHTML: "<div><p>Hello</p></div>",
			newHTML: "<div><p>World</p></div>",
		},
		{
			name:    "Attribute change",
			oldHTML: `<div class="a"></div>`,
			newHTML: `<div class="b"></div>`,
		},
		{
			name:    "Insert node",
			oldHTML: `<ul><li>A</li></ul>`,
			newHTML: `<ul><li>A</li><li>B</li></ul>`,
		},
		{
			name:    "Delete node",
			oldHTML: `<ul><li>A</li><li>B</li></ul>`,
			newHTML: `<ul><li>A</li></ul>`,
		},
		{
			name:    "Replace node",
			oldHTML: `<div><p>x</p><i>y</i></div>`,
			newHTML: `<div><span>x</span><i>z</i></div>`,
		},
		{
			name:    "Complex structural change",
			oldHTML: `<div id="main"><h1>Title</h1><p>Text</p></div>`,
			newHTML: `<div id="main"><h1>New Title</h1><p>Text</p><p>Footer</p></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldDoc := mustParse(t, tt.oldHTML)
			newDoc := mustParse(t, tt.newHTML)
			delta, err := Diff(oldDoc, newDoc, "tester")
			if err != nil {
				t.Fatalf("Diff() error = %v", err)
			}

			if err := Patch(oldDoc, delta); err != nil {
				t.Fatalf("Patch() error = %v", err)
			}

			wantStr, _ := RenderNode(newDoc)
			gotStr, _ := RenderNode(oldDoc)
			if gotStr != wantStr {
				t.Errorf("RoundTrip failed.\nWant: %s\nGot:  %s", wantStr, gotStr)
				printJSON(t, delta.Operations)
			}
		})
	}
}

func TestPatchRejectsWrongBase(t *testing.T) {
	delta, err := Diff(mustParse(t, "<p>a</p>"), mustParse(t, "<p>b</p>"), "tester")
	assert.Equal(t, err, nil)

	err = Patch(mustParse(t, "<p>c</p>"), delta)
	assert.Equal(t, errors.Is(err, ErrBaseMismatch), true)
}

func TestPatchIsObservable(t *testing.T) {
	oldDoc := mustParse(t, `<ul><li>A</li></ul>`)
	delta, err := Diff(oldDoc, mustParse(t, `<ul><li>A</li><li>B</li></ul>`), "tester")
	assert.Equal(t, err, nil)

	ul, _ := GetNode(oldDoc, NodePath{0, 1, 0})
	var added []string
	ul.AddListener(&ListenerFuncs{
		OnChildAdded: func(_ *Node, child *Node, _ int) { added = append(added, child.Type()) },
	})
	assert.Equal(t, Patch(oldDoc, delta), nil)
	assert.Equal(t, added, []string{"li"})
}

// Deltas encoded from live change sets replay onto a copy of the tree.
func TestChangeSetDelta(t *testing.T) {
	s := NewStore(DefaultOptions())
	r := s.NewNode("r")
	a, b := s.NewNode("a"), s.NewNode("b")
	mustAppend(t, r, a)
	mustAppend(t, r, b)
	mustSet(t, a, "", "text")
	mustSet(t, b, "k", "1")

	c := s.NewNode("c")
	mustSet(t, c, "x", "y")
	replica := r.Clone(NewStore(DefaultOptions()))

	var deltas []*Delta
	s.OnCommit(func(cs *ChangeSet) {
		d, err := cs.Delta(r, "live")
		if err != nil {
			t.Errorf("Delta failed: %v", err)
			return
		}
		deltas = append(deltas, d)
	})

	mustAppend(t, b, c)
	mustSet(t, b, "k", "2")
	_, err := a.RemoveAttr("")
	assert.Equal(t, err, nil)
	assert.Equal(t, r.MoveChild(b, 0), nil)
	mustAppend(t, b, a)
	assert.Equal(t, r.RemoveChild(b), nil)
	mustSet(t, r, "", "later")

	for i, d := range deltas {
		if err := Patch(replica, d); err != nil {
			printJSON(t, d)
			t.Fatalf("Patch %d failed: %v", i, err)
		}
	}
	want, _ := EncodeNode(r)
	got, _ := EncodeNode(replica)
	assert.Equal(t, got, want)
}
