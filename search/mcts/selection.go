// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mcts

import "math"

// ucb1 scores a child for selection. Unvisited children score +Inf so they
// are always explored before any visited sibling, regardless of the
// exploration constant.
func ucb1(n *Node, c float64) float64 {
	if n.Visits == 0 {
		return math.Inf(1)
	}
	exploit := n.Value / float64(n.Visits)
	explore := c * math.Sqrt(math.Log(float64(n.Parent.Visits))/float64(n.Visits))
	return exploit + explore
}

// selectChild picks the child with the highest UCB1 score. Ties keep the
// earliest-created child, so reruns walk the tree identically.
func selectChild(n *Node, c float64) *Node {
	best := n.Children[0]
	bestScore := ucb1(best, c)
	for _, child := range n.Children[1:] {
		if score := ucb1(child, c); score > bestScore {
			best = child
			bestScore = score
		}
	}
	return best
}

// selectLeaf descends from the root to the node the next simulation should
// work on: the first node that is not fully expanded, is terminal, or sits
// at the depth cap.
func selectLeaf(root *Node, c float64, maxChildren, maxDepth int) *Node {
	node := root
	for !node.Terminal && node.fullyExpanded(maxChildren) && node.Depth < maxDepth {
		node = selectChild(node, c)
	}
	return node
}
