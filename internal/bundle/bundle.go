// Package bundle defines the result geometry handed to the publish sink.
//
// Items are built by the constructor functions below and are not modified after
// construction; the accessors hand out copies.
package bundle

import (
	"encoding/json"
	"fmt"

	"cfdwind/internal/geom"
	"cfdwind/internal/mesh"
)

// Kind tags the geometry carried by an Item.
type Kind string

const (
	KindMesh     Kind = "mesh"
	KindLine     Kind = "line"
	KindPolyline Kind = "polyline"
	KindText     Kind = "text"
	KindGroup    Kind = "group"
)

// Plane is an oriented plane used to place text.
type Plane struct {
	Origin geom.Point  `json:"origin"`
	Normal geom.Vector `json:"normal"`
	XDir   geom.Vector `json:"xdir"`
	YDir   geom.Vector `json:"ydir"`
}

// Text is a label placed on a plane.
type Text struct {
	Value  string  `json:"value"`
	Plane  Plane   `json:"plane"`
	Height float64 `json:"height"`
}

// Item is one piece of output geometry.
type Item struct {
	Kind     Kind         `json:"kind"`
	Name     string       `json:"name,omitempty"`
	Points   []geom.Point `json:"points,omitempty"`
	Closed   bool         `json:"closed,omitempty"`
	Mesh     *mesh.Flat   `json:"mesh,omitempty"`
	Text     *Text        `json:"text,omitempty"`
	Children []Item       `json:"children,omitempty"`
}

// Line is a two-point segment.
func Line(name string, a, b geom.Point) Item {
	return Item{Kind: KindLine, Name: name, Points: []geom.Point{a, b}}
}

// Polyline is an open or closed chain of points. A closed polyline repeats
// its first point at the end.
func Polyline(name string, pts []geom.Point, closed bool) Item {
	out := append([]geom.Point(nil), pts...)
	if closed && len(pts) > 0 {
		out = append(out, pts[0])
	}
	return Item{Kind: KindPolyline, Name: name, Points: out, Closed: closed}
}

// Mesh wraps a surface mesh.
func Mesh(name string, m mesh.Mesh) Item {
	flat := mesh.Encode(m)
	return Item{Kind: KindMesh, Name: name, Mesh: &flat}
}

// Label places value on plane.
func Label(name, value string, plane Plane, height float64) Item {
	return Item{Kind: KindText, Name: name, Text: &Text{Value: value, Plane: plane, Height: height}}
}

// Group collects children under one item.
func Group(name string, children ...Item) Item {
	return Item{Kind: KindGroup, Name: name, Children: append([]Item(nil), children...)}
}

// Bundle is the ordered set of items published for one run.
type Bundle struct {
	RunID string `json:"run_id"`
	Items []Item `json:"items"`
}

// New assembles a bundle.
func New(runID string, items ...Item) Bundle {
	return Bundle{RunID: runID, Items: append([]Item(nil), items...)}
}

// Len returns the number of top-level items.
func (b Bundle) Len() int { return len(b.Items) }

// Find returns the first top-level item with the given name.
func (b Bundle) Find(name string) (Item, bool) {
	for _, it := range b.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// MarshalIndent renders the bundle as indented JSON.
func (b Bundle) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return data, nil
}
