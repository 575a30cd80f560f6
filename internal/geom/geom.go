// Package geom holds the point and vector primitives used by every other stage of
// the wind pipeline: translation, scaling, normalization, cross products and
// axis-angle rotation about an arbitrary pivot.
//
// Points and vectors are plain values backed by gonum's r3.Vec. Nothing in this
// package keeps state; every operation returns a new value.
package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the length below which a vector is treated as zero.
const Epsilon = 1e-12

// ErrDegenerateVector is returned when an operation needs a direction but the
// vector has zero length.
var ErrDegenerateVector = errors.New("degenerate vector")

// DegenerateVectorError names the operation that hit a zero-length vector.
type DegenerateVectorError struct {
	Op string
}

func (e *DegenerateVectorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrDegenerateVector)
}

func (e *DegenerateVectorError) Unwrap() error { return ErrDegenerateVector }

// Point is a location in model space (metres).
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Vector is a displacement in model space.
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

var (
	// UnitX points East.
	UnitX = Vector{X: 1}
	// UnitY points North.
	UnitY = Vector{Y: 1}
	// UnitZ points up.
	UnitZ = Vector{Z: 1}
)

// Pt is shorthand for constructing a Point.
func Pt(x, y, z float64) Point { return Point{X: x, Y: y, Z: z} }

// Vec is shorthand for constructing a Vector.
func Vec(x, y, z float64) Vector { return Vector{X: x, Y: y, Z: z} }

// R3 converts p to a gonum vector.
func (p Point) R3() r3.Vec { return r3.Vec{X: p.X, Y: p.Y, Z: p.Z} }

// R3 converts v to a gonum vector.
func (v Vector) R3() r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// PointFromR3 converts a gonum vector to a Point.
func PointFromR3(v r3.Vec) Point { return Point{X: v.X, Y: v.Y, Z: v.Z} }

// VectorFromR3 converts a gonum vector to a Vector.
func VectorFromR3(v r3.Vec) Vector { return Vector{X: v.X, Y: v.Y, Z: v.Z} }

// VectorTo returns the vector from a to b (b - a).
func VectorTo(a, b Point) Vector {
	return VectorFromR3(r3.Sub(b.R3(), a.R3()))
}

// Translate moves p by v.
func (p Point) Translate(v Vector) Point {
	return PointFromR3(r3.Add(p.R3(), v.R3()))
}

// Vector returns the position vector of p (p - origin).
func (p Point) Vector() Vector { return Vector(p) }

// DistanceTo returns the Euclidean distance between p and q.
func (p Point) DistanceTo(q Point) float64 {
	return r3.Norm(r3.Sub(q.R3(), p.R3()))
}

// Add returns v + w.
func (v Vector) Add(w Vector) Vector {
	return VectorFromR3(r3.Add(v.R3(), w.R3()))
}

// Scale returns v multiplied by f.
func (v Vector) Scale(f float64) Vector {
	return VectorFromR3(r3.Scale(f, v.R3()))
}

// Reverse returns -v.
func (v Vector) Reverse() Vector { return v.Scale(-1) }

// Dot returns the dot product of v and w.
func (v Vector) Dot(w Vector) float64 { return r3.Dot(v.R3(), w.R3()) }

// Cross returns v × w.
func (v Vector) Cross(w Vector) Vector {
	return VectorFromR3(r3.Cross(v.R3(), w.R3()))
}

// Length returns the Euclidean norm of v.
func (v Vector) Length() float64 { return r3.Norm(v.R3()) }

// IsZero reports whether v is shorter than Epsilon.
func (v Vector) IsZero() bool { return v.Length() < Epsilon }

// Normalize returns the unit vector along v.
func (v Vector) Normalize() (Vector, error) {
	if v.IsZero() {
		return Vector{}, &DegenerateVectorError{Op: "normalize"}
	}
	return VectorFromR3(r3.Unit(v.R3())), nil
}

// Rotate turns v by degrees about axis. Positive angles are counter-clockwise
// when the axis points toward the viewer.
func (v Vector) Rotate(axis Vector, degrees float64) (Vector, error) {
	if isUnitZ(axis) {
		return rotateZ(v, degrees), nil
	}
	unit, err := axis.Normalize()
	if err != nil {
		return Vector{}, &DegenerateVectorError{Op: "rotate axis"}
	}
	rot := r3.NewRotation(degrees*math.Pi/180, unit.R3())
	return VectorFromR3(rot.Rotate(v.R3())), nil
}

// RotatePoint rotates p by degrees about the line through pivot along axis.
func RotatePoint(p Point, axis Vector, degrees float64, pivot Point) (Point, error) {
	rel, err := VectorTo(pivot, p).Rotate(axis, degrees)
	if err != nil {
		return Point{}, err
	}
	return pivot.Translate(rel), nil
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return a.Translate(VectorTo(a, b).Scale(0.5))
}

// Centroid averages a set of points. It returns the origin for an empty set.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sum r3.Vec
	for _, p := range pts {
		sum = r3.Add(sum, p.R3())
	}
	return PointFromR3(r3.Scale(1/float64(len(pts)), sum))
}

// Bearing returns the horizontal unit vector for a compass azimuth in degrees
// (0 = North = +Y, 90 = East = +X).
func Bearing(azimuth float64) Vector {
	rad := azimuth * math.Pi / 180
	return Vector{X: math.Sin(rad), Y: math.Cos(rad)}
}

// NormalizeAzimuth folds an angle into [0, 360).
func NormalizeAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func isUnitZ(axis Vector) bool {
	return axis.X == 0 && axis.Y == 0 && axis.Z > 0
}

// rotateZ is the closed form used for the vertical axis. Quarter turns are
// snapped so that ±90° and 180° come back exact.
func rotateZ(v Vector, degrees float64) Vector {
	sin, cos := sinCosDegrees(degrees)
	return Vector{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
		Z: v.Z,
	}
}

func sinCosDegrees(degrees float64) (float64, float64) {
	d := NormalizeAzimuth(degrees)
	switch d {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	rad := d * math.Pi / 180
	return math.Sincos(rad)
}

// ApproxEqual compares two points component-wise within tol.
func ApproxEqual(a, b Point, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}
