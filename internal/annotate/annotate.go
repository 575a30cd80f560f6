// Package annotate builds the reference geometry drawn next to a result: the
// outline of the simulation domain and an arrow showing the wind.
package annotate

import (
	"errors"
	"fmt"

	"cfdwind/internal/bundle"
	"cfdwind/internal/domain"
	"cfdwind/internal/geom"
	"cfdwind/internal/logging"
)

// ErrCornerCount is returned when a wireframe is requested for anything other
// than the eight corners of a box.
var ErrCornerCount = errors.New("box wireframe needs exactly 8 corners")

// Arrow proportions, in multiples of the arrow unit.
const (
	arrowUnit     = 5.0
	shaftStart    = 1.41
	shaftEnd      = 10.0
	labelDistance = 20.0
	chevronAngle  = 45.0
	labelHeight   = arrowUnit
)

// DomainWireframe returns the edges of a box given in the usual corner order:
// the closed floor ring, the closed ceiling ring, then the four verticals.
func DomainWireframe(corners []geom.Point) ([]bundle.Item, error) {
	if len(corners) != 8 {
		return nil, fmt.Errorf("got %d corners: %w", len(corners), ErrCornerCount)
	}
	items := make([]bundle.Item, 0, 6)
	items = append(items,
		bundle.Polyline("floor", corners[:4], true),
		bundle.Polyline("ceiling", corners[4:], true),
	)
	for i := 0; i < 4; i++ {
		items = append(items, bundle.Line(fmt.Sprintf("edge-%d", i), corners[i], corners[i+4]))
	}
	return items, nil
}

// WindArrow draws an arrow outside the upwind face pointing into the domain,
// labelled with the wind speed.
func WindArrow(d domain.Domain) (bundle.Item, error) {
	face, err := d.UpwindFace()
	if err != nil {
		return bundle.Item{}, fmt.Errorf("upwind face: %w", err)
	}
	m := face.Midpoint
	n, err := geom.VectorTo(d.Center, m).Normalize()
	if err != nil {
		return bundle.Item{}, fmt.Errorf("arrow direction: %w", err)
	}
	o := n.Scale(arrowUnit)
	tip := m.Translate(o)

	shaft := bundle.Line("shaft", m.Translate(o.Scale(shaftStart)), m.Translate(o.Scale(shaftEnd)))

	left, err := geom.RotatePoint(tip.Translate(o), geom.UnitZ, chevronAngle, tip)
	if err != nil {
		return bundle.Item{}, err
	}
	right, err := geom.RotatePoint(tip.Translate(o), geom.UnitZ, -chevronAngle, tip)
	if err != nil {
		return bundle.Item{}, err
	}
	head := bundle.Polyline("head", []geom.Point{left, tip, right}, false)

	plane := bundle.Plane{
		Origin: m.Translate(n.Scale(labelDistance)),
		Normal: geom.UnitZ,
		XDir:   n,
		YDir:   geom.UnitZ.Cross(n),
	}
	label := bundle.Label("speed", fmt.Sprintf("%.1f m/s", d.WindSpeed), plane, labelHeight)

	logging.AnnotateDebug("Wind arrow on %s face at (%.2f, %.2f, %.2f)", face.Side, tip.X, tip.Y, tip.Z)
	return bundle.Group("wind", shaft, head, label), nil
}
