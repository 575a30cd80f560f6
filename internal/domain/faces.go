package domain

import (
	"cfdwind/internal/geom"
)

// Side names one of the four vertical faces of the outer box.
type Side int

const (
	North Side = iota
	East
	South
	West
)

// Sides lists the side faces in tie-break order.
var Sides = [4]Side{North, East, South, West}

func (s Side) String() string {
	switch s {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// floor-ring corner indices bounding each side face
var sideCorners = map[Side][2]int{
	South: {0, 1},
	East:  {1, 2},
	North: {2, 3},
	West:  {3, 0},
}

// Face is a vertical face of the outer box.
type Face struct {
	Side     Side
	Midpoint geom.Point
	Normal   geom.Vector // outward, unit length
}

// Face returns the side face s. Its midpoint is the centroid of its four corners.
func (d Domain) Face(s Side) (Face, error) {
	idx := sideCorners[s]
	mid := geom.Centroid([]geom.Point{
		d.Corners[idx[0]], d.Corners[idx[1]],
		d.Corners[idx[0]+4], d.Corners[idx[1]+4],
	})
	n, err := geom.VectorTo(d.Center, mid).Normalize()
	if err != nil {
		return Face{}, err
	}
	return Face{Side: s, Midpoint: mid, Normal: n}, nil
}

// UpwindFace returns the side face whose outward normal is closest to the wind
// bearing. Ties go to the first side in Sides order.
func (d Domain) UpwindFace() (Face, error) {
	bearing := geom.Bearing(d.WindDirection)
	var best Face
	bestDot := -2.0
	for _, s := range Sides {
		f, err := d.Face(s)
		if err != nil {
			return Face{}, err
		}
		if dot := f.Normal.Dot(bearing); dot > bestDot+1e-9 {
			best, bestDot = f, dot
		}
	}
	return best, nil
}

// InletSides returns the sides whose outward normal faces into the wind.
func (d Domain) InletSides() []Side {
	bearing := geom.Bearing(d.WindDirection)
	var out []Side
	for _, s := range Sides {
		f, err := d.Face(s)
		if err != nil {
			continue
		}
		if f.Normal.Dot(bearing) > 1e-9 {
			out = append(out, s)
		}
	}
	return out
}
