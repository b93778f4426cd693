package roadgraph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadgrid/internal/geo"
)

func pt(x, y float64) geo.Point3D {
	return geo.Point3D{X: x, Y: y}
}

// assertSymmetric checks that every occupied slot has a matching back-link
func assertSymmetric(t *testing.T, g *RoadGraph) {
	t.Helper()
	for _, a := range g.Nodes() {
		for d, b := range a.Neighbors {
			if b == nil {
				continue
			}
			rev, err := Reverse(Direction(d))
			require.NoError(t, err)
			assert.Same(t, a, b.Neighbor(rev), "%v -%v-> %v has no back-link", a, Direction(d), b)
		}
	}
}

func TestClassify_CardinalVectors(t *testing.T) {
	origin := pt(0, 0)
	cases := []struct {
		to   geo.Point3D
		want Direction
	}{
		{pt(1, 0), Right},
		{pt(0, 1), Top},
		{pt(-1, 0), Left},
		{pt(0, -1), Bottom},
		{pt(10, 2), Right},
		{pt(-10, -2), Left},
		{pt(2, 10), Top},
		{pt(-2, -10), Bottom},
	}
	for _, c := range cases {
		got, err := Classify(origin, c.to)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "to %+v", c.to)
	}
}

func TestClassifyAngle_Boundaries(t *testing.T) {
	cases := []struct {
		angle float64
		want  Direction
	}{
		{math.Pi / 8, Left},
		{math.Pi / 4, Left},
		{math.Nextafter(math.Pi/4, 1), Bottom},
		{3 * math.Pi / 4, Bottom},
		{math.Nextafter(3*math.Pi/4, 4), Right},
		{5 * math.Pi / 4, Right},
		{math.Nextafter(5*math.Pi/4, 5), Top},
		{7 * math.Pi / 4, Top},
		{math.Nextafter(7*math.Pi/4, 7), Left},
		{2 * math.Pi, Left},
		{0, Left},
	}
	for _, c := range cases {
		got, err := classifyAngle(c.angle)
		require.NoError(t, err, "angle %v", c.angle)
		assert.Equal(t, c.want, got, "angle %v", c.angle)
	}
}

func TestClassifyAngle_OutOfRange(t *testing.T) {
	for _, angle := range []float64{-0.1, 2*math.Pi + 0.1, math.NaN(), math.Inf(1)} {
		_, err := classifyAngle(angle)
		assert.ErrorIs(t, err, ErrAngleOutOfRange, "angle %v", angle)
		assert.ErrorIs(t, err, ErrInvariant, "angle %v", angle)
	}
}

func TestClassify_NegativeZeroDY(t *testing.T) {
	got, err := Classify(pt(0, 0), pt(-1, math.Copysign(0, -1)))
	require.NoError(t, err)
	assert.Equal(t, Left, got)
}

func TestReverse(t *testing.T) {
	pairs := map[Direction]Direction{Top: Bottom, Bottom: Top, Left: Right, Right: Left}
	for d, want := range pairs {
		got, err := Reverse(d)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for _, bad := range []Direction{-1, 4, 17} {
		_, err := Reverse(bad)
		assert.ErrorIs(t, err, ErrInvalidDirection)
		assert.ErrorIs(t, err, ErrInvariant)
	}
}

func TestDirectionStringAndParse(t *testing.T) {
	assert.Equal(t, "top", Top.String())
	assert.Equal(t, "right", Right.String())
	assert.Equal(t, "Direction(9)", Direction(9).String())

	for in, want := range map[string]Direction{"up": Top, "top": Top, "down": Bottom, "left": Left, "right": Right} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDirection("north")
	assert.Error(t, err)
}

func TestGetNode_Identity(t *testing.T) {
	g := New()
	a := g.GetNode(pt(1.5, 2.5))
	b := g.GetNode(geo.Point3D{X: 1.5, Y: 2.5, Z: 0})
	c := g.GetNode(pt(1.5, math.Nextafter(2.5, 3)))

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 0, a.ID)
	assert.Equal(t, 1, c.ID)
}

func TestGetNode_SignedZeroIsOnePosition(t *testing.T) {
	g := New()
	a := g.GetNode(pt(0, 0))
	b := g.GetNode(pt(math.Copysign(0, -1), 0))
	assert.Same(t, a, b)
}

func TestBuild_EmptyInputStillCreatesNodesLazily(t *testing.T) {
	g, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())

	_, ok := g.Lookup(pt(3, 4))
	assert.False(t, ok)

	n := g.GetNode(pt(3, 4))
	assert.Equal(t, 0, n.Degree())
	assert.Same(t, n, g.GetNode(pt(3, 4)))

	found, ok := g.Lookup(pt(3, 4))
	require.True(t, ok)
	assert.Same(t, n, found)
}

func TestBuild_CollinearChain(t *testing.T) {
	road := geo.Polyline{pt(0, 0), pt(1, 0), pt(2, 0), pt(3, 0)}
	g, err := Build([]geo.Polyline{road})
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	nodes := g.Nodes()
	assert.Equal(t, 1, nodes[0].Degree())
	assert.Equal(t, 2, nodes[1].Degree())
	assert.Equal(t, 2, nodes[2].Degree())
	assert.Equal(t, 1, nodes[3].Degree())

	assert.Same(t, nodes[1], nodes[0].Right())
	assert.Nil(t, nodes[0].Left())
	for i := 1; i < 3; i++ {
		assert.Same(t, nodes[i-1], nodes[i].Left())
		assert.Same(t, nodes[i+1], nodes[i].Right())
		assert.Nil(t, nodes[i].Top())
		assert.Nil(t, nodes[i].Bottom())
	}
	assert.Same(t, nodes[2], nodes[3].Left())
	assertSymmetric(t, g)
}

func TestBuild_CrossingSharesNode(t *testing.T) {
	horizontal := geo.Polyline{pt(-1, 0), pt(0, 0), pt(1, 0)}
	vertical := geo.Polyline{pt(0, -1), pt(0, 0), pt(0, 1)}

	g, err := Build([]geo.Polyline{horizontal, vertical})
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len())

	center, ok := g.Lookup(pt(0, 0))
	require.True(t, ok)
	assert.Equal(t, 4, center.Degree())
	assert.Equal(t, pt(-1, 0), center.Left().Position)
	assert.Equal(t, pt(1, 0), center.Right().Position)
	assert.Equal(t, pt(0, 1), center.Top().Position)
	assert.Equal(t, pt(0, -1), center.Bottom().Position)
	assertSymmetric(t, g)

	stats := g.Stats()
	assert.Equal(t, 5, stats.Nodes)
	assert.Equal(t, 8, stats.Links)
	assert.Equal(t, 0, stats.Isolated)
	assert.Equal(t, 2, stats.BySlot["left"])
}

func TestBuild_LaterEdgeWinsSlot(t *testing.T) {
	first := geo.Polyline{pt(-1, 0), pt(0, 0)}
	second := geo.Polyline{pt(-2, 0.5), pt(0, 0)}

	g, err := Build([]geo.Polyline{first, second})
	require.NoError(t, err)

	center, _ := g.Lookup(pt(0, 0))
	a, _ := g.Lookup(pt(-1, 0))
	b, _ := g.Lookup(pt(-2, 0.5))

	assert.Same(t, b, center.Left())
	assert.Same(t, center, b.Right())
	// the displaced edge keeps its one-sided link
	assert.Same(t, center, a.Right())
	assert.Equal(t, 1, center.Degree())

	g2, err := Build([]geo.Polyline{second, first})
	require.NoError(t, err)
	center2, _ := g2.Lookup(pt(0, 0))
	assert.Equal(t, pt(-1, 0), center2.Left().Position)
}

func TestBuild_DegenerateRoads(t *testing.T) {
	g, err := Build([]geo.Polyline{{}, {pt(5, 5)}})
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
	n, _ := g.Node(0)
	assert.Equal(t, 0, n.Degree())
	assert.Equal(t, 1, g.Stats().Isolated)

	_, ok := g.Node(1)
	assert.False(t, ok)
}

func TestBuild_InvariantViolationAborts(t *testing.T) {
	road := geo.Polyline{pt(0, 0), pt(math.NaN(), 0)}
	g, err := Build([]geo.Polyline{{pt(0, 0), pt(1, 0)}, road})
	assert.Nil(t, g)
	require.ErrorIs(t, err, ErrAngleOutOfRange)
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Contains(t, err.Error(), "road 1")
}

func TestNeighbor_InvalidSlot(t *testing.T) {
	g, err := Build([]geo.Polyline{{pt(0, 0), pt(1, 0)}})
	require.NoError(t, err)
	n, _ := g.Lookup(pt(0, 0))
	assert.NotNil(t, n.Neighbor(Right))
	assert.Nil(t, n.Neighbor(Direction(4)))
	assert.Nil(t, n.Neighbor(Direction(-1)))
}

func TestBuild_Deterministic(t *testing.T) {
	roads := []geo.Polyline{
		{pt(0, 0), pt(3, 1), pt(4, 5), pt(-2, 7)},
		{pt(4, 5), pt(9, 5), pt(9, -3)},
		{pt(-2, 7), pt(0, 0)},
	}
	a, err := Build(roads)
	require.NoError(t, err)
	b, err := Build(roads)
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for i, na := range a.Nodes() {
		nb, _ := b.Node(i)
		assert.Equal(t, na.Position, nb.Position)
		for d := range na.Neighbors {
			if na.Neighbors[d] == nil {
				assert.Nil(t, nb.Neighbors[d])
				continue
			}
			assert.Equal(t, na.Neighbors[d].ID, nb.Neighbors[d].ID)
		}
	}
}
