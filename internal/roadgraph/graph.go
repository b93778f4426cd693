// Package roadgraph assembles road polylines into a grid-oriented graph that
// is walked with four cardinal moves.
//
// Every node has exactly four neighbor slots. Nodes are identified by their
// exact world position: two polylines only share a node when their points
// are bit-identical. The graph owns all nodes; links between nodes are plain
// references into that arena.
package roadgraph

import (
	"fmt"

	"golang.org/x/exp/slog"

	"roadgrid/internal/geo"
)

// Node is a graph vertex
type Node struct {
	// ID is the node's index in creation order
	ID        int
	Position  geo.Point3D
	Neighbors [NumDirections]*Node
}

// Neighbor returns the node in slot d, or nil if the slot is empty or d is not a slot
func (n *Node) Neighbor(d Direction) *Node {
	if !d.Valid() {
		return nil
	}
	return n.Neighbors[d]
}

func (n *Node) Top() *Node    { return n.Neighbors[Top] }
func (n *Node) Bottom() *Node { return n.Neighbors[Bottom] }
func (n *Node) Left() *Node   { return n.Neighbors[Left] }
func (n *Node) Right() *Node  { return n.Neighbors[Right] }

// Degree counts the occupied slots
func (n *Node) Degree() int {
	count := 0
	for _, nb := range n.Neighbors {
		if nb != nil {
			count++
		}
	}
	return count
}

func (n *Node) String() string {
	return fmt.Sprintf("node %d (%.3f, %.3f)", n.ID, n.Position.X, n.Position.Y)
}

// RoadGraph owns all nodes, keyed by exact position
type RoadGraph struct {
	nodes []*Node
	index map[geo.Point3D]*Node
}

// New creates an empty graph
func New() *RoadGraph {
	return &RoadGraph{
		index: make(map[geo.Point3D]*Node),
	}
}

// Build creates a graph from polylines, linking consecutive points in input
// order. It stops at the first invariant violation.
func Build(roads []geo.Polyline) (*RoadGraph, error) {
	g := New()
	for r, road := range roads {
		if err := g.addRoad(road); err != nil {
			return nil, fmt.Errorf("road %d: %w", r, err)
		}
	}
	slog.Debug("road graph built", "roads", len(roads), "nodes", g.Len())
	return g, nil
}

func (g *RoadGraph) addRoad(road geo.Polyline) error {
	for i := range road {
		node := g.GetNode(road[i])

		if i > 0 {
			if err := g.link(node, g.GetNode(road[i-1])); err != nil {
				return fmt.Errorf("vertex %d: %w", i, err)
			}
		}
		if i < len(road)-1 {
			if err := g.link(node, g.GetNode(road[i+1])); err != nil {
				return fmt.Errorf("vertex %d: %w", i, err)
			}
		}
	}
	return nil
}

// link puts other into the slot of node it lies in, and node into the
// opposite slot of other. An occupied slot is overwritten.
func (g *RoadGraph) link(node, other *Node) error {
	d, err := Classify(node.Position, other.Position)
	if err != nil {
		return err
	}
	rev, err := Reverse(d)
	if err != nil {
		return err
	}

	node.Neighbors[d] = other
	other.Neighbors[rev] = node
	return nil
}

// GetNode returns the node at pos, creating an isolated one on first use
func (g *RoadGraph) GetNode(pos geo.Point3D) *Node {
	if node, ok := g.index[pos]; ok {
		return node
	}

	node := &Node{ID: len(g.nodes), Position: pos}
	g.nodes = append(g.nodes, node)
	g.index[pos] = node
	return node
}

// Lookup returns the node at pos without creating one
func (g *RoadGraph) Lookup(pos geo.Point3D) (*Node, bool) {
	node, ok := g.index[pos]
	return node, ok
}

// Len returns the number of nodes
func (g *RoadGraph) Len() int {
	return len(g.nodes)
}

// Nodes returns all nodes in creation order
func (g *RoadGraph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Node returns the node with the given ID
func (g *RoadGraph) Node(id int) (*Node, bool) {
	if id < 0 || id >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// Stats summarizes slot occupancy
type Stats struct {
	Nodes    int            `json:"nodes"`
	Links    int            `json:"links"`
	Isolated int            `json:"isolated"`
	BySlot   map[string]int `json:"by_slot"`
}

// Stats counts nodes, occupied slots and isolated nodes
func (g *RoadGraph) Stats() Stats {
	s := Stats{
		Nodes:  len(g.nodes),
		BySlot: make(map[string]int, NumDirections),
	}
	for _, node := range g.nodes {
		degree := 0
		for d, nb := range node.Neighbors {
			if nb == nil {
				continue
			}
			degree++
			s.BySlot[Direction(d).String()]++
		}
		if degree == 0 {
			s.Isolated++
		}
		s.Links += degree
	}
	return s
}
