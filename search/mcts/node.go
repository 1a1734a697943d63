// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mcts

import "github.com/crucible-ai/crucible/candidate"

// Node is one node in the search tree. Children are owned by their parent;
// the Parent pointer is a non-owning back-reference used only for
// backpropagation and UCB1, never for ownership. Nodes are created on
// expansion and live until the whole tree is discarded.
//
// Thread Safety: Not safe for concurrent use. The tree is owned by the
// single Run call that created it.
type Node struct {
	// Parent is nil for the root.
	Parent *Node

	// Children in creation order. Creation order is the deterministic
	// tie-break for selection.
	Children []*Node

	// Visits counts how many simulations passed through this node.
	Visits int

	// Value is the cumulative simulation score.
	Value float64

	// Terminal marks a finished answer; terminal nodes are never expanded.
	Terminal bool

	// Candidate is the generated content at this node, nil for the root.
	Candidate *candidate.Candidate

	// Depth is 0 for the root.
	Depth int
}

func newRoot() *Node {
	return &Node{}
}

// addChild creates and attaches a new child.
func (n *Node) addChild(cand *candidate.Candidate, terminal bool) *Node {
	child := &Node{
		Parent:    n,
		Candidate: cand,
		Terminal:  terminal,
		Depth:     n.Depth + 1,
	}
	n.Children = append(n.Children, child)
	return child
}

// Mean is the average simulation score, 0 for an unvisited node.
func (n *Node) Mean() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.Value / float64(n.Visits)
}

// fullyExpanded reports whether the node has reached its child cap.
func (n *Node) fullyExpanded(maxChildren int) bool {
	return len(n.Children) >= maxChildren
}

// backpropagate adds the simulation score to this node and every ancestor
// up to and including the root.
func (n *Node) backpropagate(score float64) {
	for node := n; node != nil; node = node.Parent {
		node.Visits++
		node.Value += score
	}
}

// path returns the candidates from the root (exclusive) down to this node
// (inclusive), in order.
func (n *Node) path() []*candidate.Candidate {
	var depth int
	for node := n; node.Parent != nil; node = node.Parent {
		depth++
	}
	cands := make([]*candidate.Candidate, depth)
	for node := n; node.Parent != nil; node = node.Parent {
		depth--
		cands[depth] = node.Candidate
	}
	return cands
}
