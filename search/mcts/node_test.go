// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mcts

import (
	"testing"

	"github.com/crucible-ai/crucible/candidate"
)

func TestAddChild(t *testing.T) {
	root := newRoot()
	child := root.addChild(candidate.New("step"), false)

	if child.Parent != root {
		t.Error("child parent is not the root")
	}
	if child.Depth != 1 {
		t.Errorf("child depth = %d, want 1", child.Depth)
	}
	if len(root.Children) != 1 || root.Children[0] != child {
		t.Error("child not attached to the root")
	}
	grandchild := child.addChild(candidate.New("next"), true)
	if grandchild.Depth != 2 || !grandchild.Terminal {
		t.Errorf("grandchild = %+v, want depth 2 terminal", grandchild)
	}
}

func TestBackpropagate(t *testing.T) {
	root := newRoot()
	child := root.addChild(candidate.New("a"), false)
	grandchild := child.addChild(candidate.New("b"), false)

	grandchild.backpropagate(0.8)
	grandchild.backpropagate(0.4)

	for _, tt := range []struct {
		name string
		node *Node
	}{
		{"grandchild", grandchild},
		{"child", child},
		{"root", root},
	} {
		if tt.node.Visits != 2 {
			t.Errorf("%s visits = %d, want 2", tt.name, tt.node.Visits)
		}
		if tt.node.Value != 1.2 {
			t.Errorf("%s value = %v, want 1.2", tt.name, tt.node.Value)
		}
	}
	if got := grandchild.Mean(); got != 0.6 {
		t.Errorf("mean = %v, want 0.6", got)
	}
}

func TestBackpropagateSkipsSiblings(t *testing.T) {
	root := newRoot()
	a := root.addChild(candidate.New("a"), false)
	b := root.addChild(candidate.New("b"), false)

	a.backpropagate(1.0)
	if b.Visits != 0 || b.Value != 0 {
		t.Errorf("sibling was touched: visits=%d value=%v", b.Visits, b.Value)
	}
	if root.Visits != 1 {
		t.Errorf("root visits = %d, want 1", root.Visits)
	}
}

func TestMeanUnvisited(t *testing.T) {
	n := newRoot()
	if n.Mean() != 0 {
		t.Errorf("unvisited mean = %v, want 0", n.Mean())
	}
}

func TestPath(t *testing.T) {
	root := newRoot()
	a := root.addChild(candidate.New("a"), false)
	b := a.addChild(candidate.New("b"), false)
	c := b.addChild(candidate.New("c"), false)

	path := c.path()
	if len(path) != 3 {
		t.Fatalf("path length = %d, want 3", len(path))
	}
	for i, want := range []string{"a", "b", "c"} {
		if path[i].Content != want {
			t.Errorf("path[%d] = %q, want %q", i, path[i].Content, want)
		}
	}

	if got := root.path(); len(got) != 0 {
		t.Errorf("root path = %v, want empty", got)
	}
}
