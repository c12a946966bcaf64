// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

// MetaCloner is implemented by metadata values (see Node.Meta and Graph.Meta) that must be rebuilt when
// the graph is deep-copied, typically because they are keyed by node identity.
//
// remap translates a NodeId of the source graph into the NodeId of the corresponding node in the new graph.
type MetaCloner interface {
	CloneMeta(remap func(NodeId) NodeId) any
}

// InputRekeyer is implemented by node metadata values keyed by the node's producers.
//
// When a rewrite makes a consumer take a new producer in place of a previous one (see Graph.ReplaceInput and
// Graph.ReplaceAllUsesWith), RekeyInput is called on the consumer's metadata values to move the entries
// associated with from over to to. Values must be kept as is.
type InputRekeyer interface {
	RekeyInput(from, to NodeId)
}

// cloneMeta copies a metadata map, rebuilding values that implement MetaCloner.
func cloneMeta(meta map[string]any, remap func(NodeId) NodeId) map[string]any {
	cloned := make(map[string]any, len(meta))
	for key, value := range meta {
		if cloner, ok := value.(MetaCloner); ok {
			value = cloner.CloneMeta(remap)
		}
		cloned[key] = value
	}
	return cloned
}

// rekeyInput forwards a change of producer to the node's metadata values implementing InputRekeyer.
func (n *Node) rekeyInput(from, to NodeId) {
	for _, value := range n.meta {
		if rekeyer, ok := value.(InputRekeyer); ok {
			rekeyer.RekeyInput(from, to)
		}
	}
}
