// Package navigator moves a marker over extracted roads, either along the
// four slots of a road graph or vertex by vertex in collection order.
package navigator

import (
	"errors"

	"roadgrid/internal/geo"
	"roadgrid/internal/roadgraph"
)

var (
	ErrNoRoads    = errors.New("no roads loaded")
	ErrNotInGraph = errors.New("position is not a graph node")
)

// Walker follows neighbor slots of a road graph
type Walker struct {
	graph   *roadgraph.RoadGraph
	current *roadgraph.Node
}

// NewWalker starts a walk at the node for start. The graph is only read,
// so walkers on a shared graph may run concurrently.
func NewWalker(g *roadgraph.RoadGraph, start geo.Point3D) (*Walker, error) {
	node, ok := g.Lookup(start)
	if !ok {
		return nil, ErrNotInGraph
	}
	return &Walker{graph: g, current: node}, nil
}

// NewWalkerAtFirst starts a walk at the first node of the graph
func NewWalkerAtFirst(g *roadgraph.RoadGraph) (*Walker, error) {
	first, ok := g.Node(0)
	if !ok {
		return nil, ErrNoRoads
	}
	return &Walker{graph: g, current: first}, nil
}

// Current returns the node the walker stands on
func (w *Walker) Current() *roadgraph.Node {
	return w.current
}

// Position returns the world position of the walker
func (w *Walker) Position() geo.Point3D {
	return w.current.Position
}

// Jump moves to the node at pos. It reports false and stays put if there is none.
func (w *Walker) Jump(pos geo.Point3D) bool {
	node, ok := w.graph.Lookup(pos)
	if !ok {
		return false
	}
	w.current = node
	return true
}

// Move steps into slot d. It reports false and stays put if the slot is empty.
func (w *Walker) Move(d roadgraph.Direction) bool {
	next := w.current.Neighbor(d)
	if next == nil {
		return false
	}
	w.current = next
	return true
}

// Cursor steps through the vertices of a road list in buffer order,
// crossing into the neighbouring road at either end of a road.
type Cursor struct {
	roads  []geo.Polyline
	road   int
	vertex int
}

// NewCursor places a cursor on the first vertex of the first road
func NewCursor(roads []geo.Polyline) (*Cursor, error) {
	if len(roads) == 0 {
		return nil, ErrNoRoads
	}
	return &Cursor{roads: roads}, nil
}

// Index returns the current road and vertex index
func (c *Cursor) Index() (road, vertex int) {
	return c.road, c.vertex
}

// Position returns the world position under the cursor. An empty road
// yields the zero point.
func (c *Cursor) Position() geo.Point3D {
	road := c.roads[c.road]
	if c.vertex < 0 || c.vertex >= len(road) {
		return geo.Point3D{}
	}
	return road[c.vertex]
}

// Forward moves to the next vertex, entering the next road after the last
// vertex. It clamps on the last vertex of the last road.
func (c *Cursor) Forward() {
	c.vertex++
	c.wrap()
}

// Backward moves to the previous vertex, entering the previous road before
// the first vertex. It clamps on the first vertex of the first road.
func (c *Cursor) Backward() {
	c.vertex--
	c.wrap()
}

func (c *Cursor) wrap() {
	if c.vertex < 0 {
		c.road--
		if c.road < 0 {
			c.road = 0
			c.vertex = 0
		} else {
			c.vertex = len(c.roads[c.road]) - 1
		}
	} else if c.vertex >= len(c.roads[c.road]) {
		c.road++
		if c.road >= len(c.roads) {
			c.road = len(c.roads) - 1
			c.vertex = len(c.roads[c.road]) - 1
		} else {
			c.vertex = 0
		}
	}
}
