// Package domain derives the CFD simulation volume from the input building meshes.
//
// The outer domain is the input bounding box scaled per axis about its centroid
// and clamped to the ground. Inside it sits the subdomain: a smaller box whose
// long axis follows the wind bearing, used by the mesher as its refinement region.
//
// Corner order is fixed everywhere in this package and its consumers: the floor
// ring counter-clockwise seen from above, starting at the (-x,-y) corner, then the
// ceiling ring in the same order directly above it.
package domain

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"cfdwind/internal/geom"
	"cfdwind/internal/logging"
	"cfdwind/internal/mesh"
)

var (
	// ErrEmptyInput is returned when no input mesh carries a vertex.
	ErrEmptyInput = errors.New("no usable input geometry")

	// ErrInvalidOptions is returned for scale factors or extents that cannot
	// produce a valid domain.
	ErrInvalidOptions = errors.New("invalid domain options")
)

// Subdomain proportions relative to the half-diagonal of the input footprint.
const (
	subdomainHalfLength = 1.5
	subdomainHalfWidth  = 1.0
	subdomainDownstream = 0.5
	subdomainHeadroom   = 0.5
)

// Options control how the domain is sized.
type Options struct {
	WindDirection float64 // compass degrees the wind blows from
	WindSpeed     float64 // m/s
	ScaleX        float64
	ScaleY        float64
	ScaleZ        float64
	MinExtent     float64 // smallest allowed input extent per axis, metres
}

// DefaultOptions returns the standard 5x5x3 scaling with a 1 m extent floor.
func DefaultOptions() Options {
	return Options{
		ScaleX:    5,
		ScaleY:    5,
		ScaleZ:    3,
		MinExtent: 1,
	}
}

// Validate checks that the options can produce a non-degenerate domain that
// contains its subdomain.
func (o Options) Validate() error {
	if o.ScaleX < 2.5 || o.ScaleY < 2.5 {
		return fmt.Errorf("horizontal scale must be at least 2.5, got %g x %g: %w", o.ScaleX, o.ScaleY, ErrInvalidOptions)
	}
	if o.ScaleZ < 1 {
		return fmt.Errorf("vertical scale must be at least 1, got %g: %w", o.ScaleZ, ErrInvalidOptions)
	}
	if o.MinExtent <= 0 {
		return fmt.Errorf("minimum extent must be positive, got %g: %w", o.MinExtent, ErrInvalidOptions)
	}
	if o.WindSpeed < 0 || math.IsNaN(o.WindSpeed) {
		return fmt.Errorf("wind speed must be non-negative, got %g: %w", o.WindSpeed, ErrInvalidOptions)
	}
	return nil
}

// Domain is the simulation volume. It is built once per run and only read afterwards.
type Domain struct {
	Center           geom.Point
	X, Y, Z          float64 // half-extents of the outer box
	Corners          [8]geom.Point
	SubdomainCorners [8]geom.Point
	WindDirection    float64
	WindSpeed        float64

	// Bounds is the input bounding box after the minimum-extent floor.
	Bounds r3.Box
}

// Build computes the domain around meshes.
func Build(meshes []mesh.Mesh, opts Options) (Domain, error) {
	if err := opts.Validate(); err != nil {
		return Domain{}, err
	}
	raw, ok := mesh.Bounds(meshes...)
	if !ok {
		return Domain{}, ErrEmptyInput
	}
	timer := logging.StartTimer(logging.CategoryDomain, "Domain build")
	defer timer.Stop()

	in := floorExtent(raw, opts.MinExtent)
	c := center(in)
	h := halfSize(in)

	floor := c.Z - opts.ScaleZ*h.Z
	if raw.Min.Z >= 0 {
		floor = math.Max(floor, 0)
	} else {
		floor = in.Min.Z
	}
	ceiling := c.Z + opts.ScaleZ*h.Z

	d := Domain{
		Center:        geom.Pt(c.X, c.Y, (floor+ceiling)/2),
		X:             opts.ScaleX * h.X,
		Y:             opts.ScaleY * h.Y,
		Z:             (ceiling - floor) / 2,
		WindDirection: geom.NormalizeAzimuth(opts.WindDirection),
		WindSpeed:     opts.WindSpeed,
		Bounds:        in,
	}
	d.Corners = prism(d.Center, d.X, d.Y, floor, ceiling)

	sub, err := subdomain(in, d.WindDirection, floor, ceiling)
	if err != nil {
		return Domain{}, err
	}
	d.SubdomainCorners = sub

	logging.Domain("Domain built: center=(%.2f, %.2f, %.2f) half-extents=(%.2f, %.2f, %.2f) wind=%.1f°",
		d.Center.X, d.Center.Y, d.Center.Z, d.X, d.Y, d.Z, d.WindDirection)
	return d, nil
}

// Floor returns the z of the domain floor.
func (d Domain) Floor() float64 { return d.Corners[0].Z }

// Ceiling returns the z of the domain ceiling.
func (d Domain) Ceiling() float64 { return d.Corners[4].Z }

// Origin is the offset between model space and the solver frame: case geometry
// is written translated by Origin().Reverse() so the domain floor centre sits at
// the solver origin, and solver output is moved back by Origin().
func (d Domain) Origin() geom.Vector {
	return geom.Vec(d.Center.X, d.Center.Y, d.Floor())
}

// Translate returns the domain moved by v.
func (d Domain) Translate(v geom.Vector) Domain {
	out := d
	out.Center = d.Center.Translate(v)
	for i := range d.Corners {
		out.Corners[i] = d.Corners[i].Translate(v)
		out.SubdomainCorners[i] = d.SubdomainCorners[i].Translate(v)
	}
	out.Bounds = r3.Box{Min: r3.Add(d.Bounds.Min, v.R3()), Max: r3.Add(d.Bounds.Max, v.R3())}
	return out
}

// CircumscribedRadius is the horizontal radius of the cylinder through the
// outer box's vertical edges.
func (d Domain) CircumscribedRadius() float64 {
	return math.Hypot(d.X, d.Y)
}

// floorExtent grows any axis shorter than minExtent symmetrically about its
// middle. Input resting on or above the ground is never pushed below it.
func floorExtent(b r3.Box, minExtent float64) r3.Box {
	grow := func(lo, hi float64) (float64, float64) {
		if hi-lo >= minExtent {
			return lo, hi
		}
		mid := (lo + hi) / 2
		return mid - minExtent/2, mid + minExtent/2
	}
	out := b
	out.Min.X, out.Max.X = grow(b.Min.X, b.Max.X)
	out.Min.Y, out.Max.Y = grow(b.Min.Y, b.Max.Y)
	out.Min.Z, out.Max.Z = grow(b.Min.Z, b.Max.Z)
	if b.Min.Z >= 0 && out.Min.Z < 0 {
		out.Max.Z -= out.Min.Z
		out.Min.Z = 0
	}
	return out
}

func center(b r3.Box) r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

func halfSize(b r3.Box) r3.Vec {
	return r3.Scale(0.5, r3.Sub(b.Max, b.Min))
}

// prism lays out an axis-aligned box in the package corner order.
func prism(c geom.Point, hx, hy, floor, ceiling float64) [8]geom.Point {
	ring := [4][2]float64{{-hx, -hy}, {hx, -hy}, {hx, hy}, {-hx, hy}}
	var out [8]geom.Point
	for i, xy := range ring {
		out[i] = geom.Pt(c.X+xy[0], c.Y+xy[1], floor)
		out[i+4] = geom.Pt(c.X+xy[0], c.Y+xy[1], ceiling)
	}
	return out
}

// subdomain builds the refinement box in a frame whose +Y axis is the wind
// bearing, then turns it into model space.
func subdomain(in r3.Box, windDirection, floor, ceiling float64) ([8]geom.Point, error) {
	h := halfSize(in)
	r := math.Hypot(h.X, h.Y)
	c := center(in)

	downstream := geom.Bearing(windDirection).Reverse()
	pivot := geom.Pt(c.X, c.Y, floor).Translate(downstream.Scale(subdomainDownstream * r))

	top := math.Min(in.Max.Z+subdomainHeadroom*(in.Max.Z-in.Min.Z), ceiling)
	local := prism(pivot, subdomainHalfWidth*r, subdomainHalfLength*r, floor, top)

	var out [8]geom.Point
	for i, p := range local {
		rp, err := geom.RotatePoint(p, geom.UnitZ, -windDirection, pivot)
		if err != nil {
			return out, fmt.Errorf("rotate subdomain corner %d: %w", i, err)
		}
		out[i] = rp
	}
	return out, nil
}
