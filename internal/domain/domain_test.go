package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfdwind/internal/geom"
	"cfdwind/internal/mesh"
)

const tol = 1e-9

func building(min, max geom.Point) []mesh.Mesh {
	return []mesh.Mesh{mesh.Box(min, max)}
}

func opts(wind float64) Options {
	o := DefaultOptions()
	o.WindDirection = wind
	o.WindSpeed = 10
	return o
}

// assertRectangularPrism checks both rings are coplanar rectangles stacked
// vertically with a positive height.
func assertRectangularPrism(t *testing.T, c [8]geom.Point) {
	t.Helper()
	for ring := 0; ring < 2; ring++ {
		z := c[ring*4].Z
		for i := 0; i < 4; i++ {
			assert.InDelta(t, z, c[ring*4+i].Z, tol, "ring %d not coplanar", ring)
		}
		for i := 0; i < 4; i++ {
			a, b, n := c[ring*4+i], c[ring*4+(i+1)%4], c[ring*4+(i+2)%4]
			e1, e2 := geom.VectorTo(a, b), geom.VectorTo(b, n)
			assert.Greater(t, e1.Length(), 0.0)
			assert.InDelta(t, 0, e1.Dot(e2), 1e-6, "corner %d is not square", i)
		}
	}
	for i := 0; i < 4; i++ {
		assert.InDelta(t, c[i].X, c[i+4].X, tol)
		assert.InDelta(t, c[i].Y, c[i+4].Y, tol)
		assert.Greater(t, c[i+4].Z, c[i].Z)
	}
	// counter-clockwise from above
	e1 := geom.VectorTo(c[0], c[1])
	e2 := geom.VectorTo(c[1], c[2])
	assert.Greater(t, e1.Cross(e2).Z, 0.0)
}

func TestBuildScalesAndClampsToGround(t *testing.T) {
	d, err := Build(building(geom.Pt(0, 0, 0), geom.Pt(10, 20, 30)), opts(0))
	require.NoError(t, err)

	assert.InDelta(t, 25, d.X, tol) // 5 * 5
	assert.InDelta(t, 50, d.Y, tol) // 5 * 10
	assert.InDelta(t, 0, d.Floor(), tol)
	assert.InDelta(t, 15+45, d.Ceiling(), tol) // centroid + 3 * 15
	assert.InDelta(t, 5, d.Center.X, tol)
	assert.InDelta(t, 10, d.Center.Y, tol)
	assert.InDelta(t, 30, d.Z, tol)

	assert.Equal(t, geom.Pt(-20, -40, 0), d.Corners[0])
	assert.Equal(t, geom.Pt(30, 60, 60), d.Corners[6])
	assertRectangularPrism(t, d.Corners)
	assertRectangularPrism(t, d.SubdomainCorners)
}

func TestBuildKeepsGeometryBelowGround(t *testing.T) {
	d, err := Build(building(geom.Pt(0, 0, -5), geom.Pt(10, 10, 5)), opts(0))
	require.NoError(t, err)
	assert.InDelta(t, -5, d.Floor(), tol)
	assert.Greater(t, d.Ceiling(), 5.0)
}

func TestBuildEmptyInput(t *testing.T) {
	_, err := Build(nil, opts(0))
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Build([]mesh.Mesh{{}}, opts(0))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestBuildDegeneratePointInput(t *testing.T) {
	single := mesh.MustNew([]geom.Point{geom.Pt(3, 3, 0), geom.Pt(3, 3, 0), geom.Pt(3, 3, 0)}, [][]int{{0, 1, 2}})
	d, err := Build([]mesh.Mesh{single}, opts(30))
	require.NoError(t, err)

	assert.Greater(t, d.X, 0.0)
	assert.Greater(t, d.Y, 0.0)
	assert.Greater(t, d.Z, 0.0)
	assert.InDelta(t, 0, d.Floor(), tol, "ground-level input stays on the ground")
	assertRectangularPrism(t, d.Corners)
	assertRectangularPrism(t, d.SubdomainCorners)
}

func TestBuildRejectsBadOptions(t *testing.T) {
	o := opts(0)
	o.ScaleX = 1
	_, err := Build(building(geom.Pt(0, 0, 0), geom.Pt(1, 1, 1)), o)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	o = opts(0)
	o.MinExtent = 0
	_, err = Build(building(geom.Pt(0, 0, 0), geom.Pt(1, 1, 1)), o)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestSubdomainContainedForAllDirections(t *testing.T) {
	inputs := [][2]geom.Point{
		{geom.Pt(0, 0, 0), geom.Pt(10, 10, 10)},
		{geom.Pt(-50, 3, 0), geom.Pt(-49.5, 80, 4)}, // thin slab
		{geom.Pt(100, 100, 2), geom.Pt(180, 110, 60)},
	}
	for _, in := range inputs {
		for wind := 0.0; wind < 360; wind += 7.5 {
			d, err := Build(building(in[0], in[1]), opts(wind))
			require.NoError(t, err)

			r := d.CircumscribedRadius()
			for i, p := range d.SubdomainCorners {
				dist := math.Hypot(p.X-d.Center.X, p.Y-d.Center.Y)
				assert.LessOrEqual(t, dist, r+tol, "wind %.1f corner %d outside frame", wind, i)
				assert.GreaterOrEqual(t, p.Z, d.Floor()-tol)
				assert.LessOrEqual(t, p.Z, d.Ceiling()+tol)
			}
			assertRectangularPrism(t, d.SubdomainCorners)
		}
	}
}

func TestSubdomainLongAxisFollowsWind(t *testing.T) {
	for _, wind := range []float64{0, 45, 90, 200} {
		d, err := Build(building(geom.Pt(0, 0, 0), geom.Pt(10, 10, 10)), opts(wind))
		require.NoError(t, err)

		// edge 1->2 is the long side in the local frame
		long := geom.VectorTo(d.SubdomainCorners[1], d.SubdomainCorners[2])
		short := geom.VectorTo(d.SubdomainCorners[0], d.SubdomainCorners[1])
		assert.Greater(t, long.Length(), short.Length())

		u, err := long.Normalize()
		require.NoError(t, err)
		assert.InDelta(t, 1, math.Abs(u.Dot(geom.Bearing(wind))), 1e-9, "wind %.0f", wind)
	}
}

func TestOriginAndTranslate(t *testing.T) {
	d, err := Build(building(geom.Pt(0, 0, 0), geom.Pt(10, 10, 10)), opts(0))
	require.NoError(t, err)
	assert.Equal(t, geom.Vec(5, 5, 0), d.Origin())

	moved := d.Translate(geom.Vec(100, -50, 3))
	assert.Equal(t, geom.Pt(d.Corners[2].X+100, d.Corners[2].Y-50, d.Corners[2].Z+3), moved.Corners[2])
	assert.InDelta(t, d.X, moved.X, tol)
}

func TestUpwindFace(t *testing.T) {
	tests := []struct {
		wind float64
		want Side
	}{
		{0, North},
		{90, East},
		{180, South},
		{270, West},
		{45, North}, // tie goes to the first side
		{100, East},
		{359, North},
	}
	for _, tt := range tests {
		d, err := Build(building(geom.Pt(0, 0, 0), geom.Pt(10, 10, 10)), opts(tt.wind))
		require.NoError(t, err)
		f, err := d.UpwindFace()
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Side, "wind %.0f", tt.wind)
		assert.InDelta(t, d.Center.Z, f.Midpoint.Z, tol)
	}
}

func TestInletSides(t *testing.T) {
	d, err := Build(building(geom.Pt(0, 0, 0), geom.Pt(10, 10, 10)), opts(45))
	require.NoError(t, err)
	assert.Equal(t, []Side{North, East}, d.InletSides())

	d, err = Build(building(geom.Pt(0, 0, 0), geom.Pt(10, 10, 10)), opts(180))
	require.NoError(t, err)
	assert.Equal(t, []Side{South}, d.InletSides())
}
