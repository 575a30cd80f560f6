package geom

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func TestVectorTo(t *testing.T) {
	v := VectorTo(Pt(1, 2, 3), Pt(4, 6, 3))
	assert.Equal(t, Vec(3, 4, 0), v)
	assert.InDelta(t, 5.0, v.Length(), tol)
}

func TestNormalize(t *testing.T) {
	u, err := Vec(0, 3, 4).Normalize()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, u.Length(), tol)
	assert.InDelta(t, 0.6, u.Y, tol)

	_, err = Vec(0, 0, 0).Normalize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateVector))

	var dve *DegenerateVectorError
	require.True(t, errors.As(err, &dve))
	assert.Equal(t, "normalize", dve.Op)
}

func TestRotateAboutZ(t *testing.T) {
	tests := []struct {
		name    string
		in      Vector
		degrees float64
		want    Vector
	}{
		{"quarter turn", UnitX, 90, UnitY},
		{"half turn", UnitX, 180, UnitX.Reverse()},
		{"negative quarter", UnitY, -90, UnitX},
		{"full turn", Vec(2, 1, 5), 360, Vec(2, 1, 5)},
		{"eighth", UnitX, 45, Vec(math.Sqrt2/2, math.Sqrt2/2, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Rotate(UnitZ, tt.degrees)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, tol)
			assert.InDelta(t, tt.want.Y, got.Y, tol)
			assert.InDelta(t, tt.want.Z, got.Z, tol)
		})
	}
}

func TestRotateArbitraryAxisMatchesZ(t *testing.T) {
	// An axis a hair off vertical goes through the general rotation and must
	// agree with the closed form.
	v := Vec(3, -2, 1)
	closed, err := v.Rotate(Vec(0, 0, 2), 33)
	require.NoError(t, err)
	general, err := v.Rotate(Vec(0, 1e-300, 1), 33)
	require.NoError(t, err)
	assert.InDelta(t, closed.X, general.X, 1e-9)
	assert.InDelta(t, closed.Y, general.Y, 1e-9)
	assert.InDelta(t, closed.Z, general.Z, 1e-9)

	_, err = v.Rotate(Vector{}, 10)
	assert.ErrorIs(t, err, ErrDegenerateVector)
}

func TestRotatePointAboutPivot(t *testing.T) {
	p, err := RotatePoint(Pt(2, 1, 7), UnitZ, 90, Pt(1, 1, 0))
	require.NoError(t, err)
	assert.True(t, ApproxEqual(p, Pt(1, 2, 7), tol), "got %+v", p)
}

func TestCross(t *testing.T) {
	assert.Equal(t, UnitZ, UnitX.Cross(UnitY))
	assert.Equal(t, UnitX, UnitY.Cross(UnitZ))
}

func TestBearing(t *testing.T) {
	n := Bearing(0)
	assert.InDelta(t, 0, n.X, tol)
	assert.InDelta(t, 1, n.Y, tol)
	e := Bearing(90)
	assert.InDelta(t, 1, e.X, tol)
	assert.InDelta(t, 0, e.Y, tol)
}

func TestNormalizeAzimuth(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeAzimuth(360))
	assert.Equal(t, 270.0, NormalizeAzimuth(-90))
	assert.Equal(t, 45.0, NormalizeAzimuth(765))
}

func TestTranslateRoundTrip(t *testing.T) {
	p := Pt(10.5, -3.25, 8)
	v := Vec(123.4, -56.7, 0.01)
	back := p.Translate(v).Translate(v.Reverse())
	assert.True(t, ApproxEqual(p, back, tol))
}

func TestCentroidAndMidpoint(t *testing.T) {
	c := Centroid([]Point{Pt(0, 0, 0), Pt(2, 0, 0), Pt(2, 2, 0), Pt(0, 2, 0)})
	assert.Equal(t, Pt(1, 1, 0), c)
	assert.Equal(t, Pt(1, 0, 0), Midpoint(Pt(0, 0, 0), Pt(2, 0, 0)))
	assert.Equal(t, Point{}, Centroid(nil))
}
