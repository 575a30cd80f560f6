package input

import (
	"errors"
	"fmt"
	"math"

	"cfdwind/internal/geom"
	"cfdwind/internal/logging"
	"cfdwind/internal/mesh"
)

// ErrMissingID is returned when an accepted object has no id.
var ErrMissingID = errors.New("cannot operate on objects without their id's")

// Object type names understood by the selector.
const (
	TypeBrep = "Objects.Geometry.Brep"
	TypeBox  = "Objects.Geometry.Box"
	TypeMesh = "Objects.Geometry.Mesh"
)

// DefaultAcceptedTypes are the object types that become simulation geometry.
var DefaultAcceptedTypes = []string{TypeBrep, TypeBox, TypeMesh}

// Object is one accepted input object with the meshes it contributes.
type Object struct {
	ID     string
	Type   string
	Meshes []mesh.Mesh
}

// Info is the message recorded against an accepted object.
func (o Object) Info() string {
	return fmt.Sprintf("Object included into simulation domain with %s type.", o.Type)
}

// Selection is what the input stage hands to the pipeline. Accepted counts the
// accepted objects; an accepted object may contribute no mesh.
type Selection struct {
	Objects  []Object
	Meshes   []mesh.Mesh
	Accepted int
}

// Selector filters a tree down to accepted geometry.
type Selector struct {
	AcceptedTypes []string
}

// NewSelector returns a selector for types, or the defaults when types is empty.
func NewSelector(types []string) *Selector {
	if len(types) == 0 {
		types = DefaultAcceptedTypes
	}
	return &Selector{AcceptedTypes: append([]string(nil), types...)}
}

// Select flattens root and keeps every object of an accepted type.
func (s *Selector) Select(root *Base) (Selection, error) {
	accepted := make(map[string]bool, len(s.AcceptedTypes))
	for _, t := range s.AcceptedTypes {
		accepted[t] = true
	}

	var sel Selection
	for b := range Flatten(root) {
		if !accepted[b.SpeckleType] {
			continue
		}
		if b.ID == "" {
			return Selection{}, fmt.Errorf("%s object: %w", b.SpeckleType, ErrMissingID)
		}
		meshes, err := objectMeshes(b)
		if err != nil {
			return Selection{}, fmt.Errorf("object %s: %w", b.ID, err)
		}
		obj := Object{ID: b.ID, Type: b.SpeckleType, Meshes: meshes}
		sel.Objects = append(sel.Objects, obj)
		sel.Meshes = append(sel.Meshes, meshes...)
		sel.Accepted++
		logging.InputDebug("Accepted %s %s with %d meshes", obj.Type, obj.ID, len(meshes))
	}
	logging.Input("Selected %d objects, %d meshes", sel.Accepted, len(sel.Meshes))
	return sel, nil
}

// objectMeshes returns the display meshes of b, the mesh b itself is, or the
// box b describes.
func objectMeshes(b *Base) ([]mesh.Mesh, error) {
	if v, ok := b.Get("displayValue"); ok {
		var out []mesh.Mesh
		items, isList := v.([]any)
		if !isList {
			items = []any{v}
		}
		for i, item := range items {
			child, ok := asBase(item)
			if !ok {
				continue
			}
			m, err := decodeMesh(child)
			if err != nil {
				return nil, fmt.Errorf("display mesh %d: %w", i, err)
			}
			out = append(out, m)
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	switch b.SpeckleType {
	case TypeMesh:
		m, err := decodeMesh(b)
		if err != nil {
			return nil, err
		}
		return []mesh.Mesh{m}, nil
	case TypeBox:
		m, err := boxMesh(b)
		if err != nil {
			return nil, err
		}
		return []mesh.Mesh{m}, nil
	}
	return nil, nil
}

func decodeMesh(b *Base) (mesh.Mesh, error) {
	vertices, err := numbers(b.Members["vertices"])
	if err != nil {
		return mesh.Mesh{}, fmt.Errorf("vertices: %w", err)
	}
	faceNums, err := numbers(b.Members["faces"])
	if err != nil {
		return mesh.Mesh{}, fmt.Errorf("faces: %w", err)
	}
	colorNums, err := numbers(b.Members["colors"])
	if err != nil {
		return mesh.Mesh{}, fmt.Errorf("colors: %w", err)
	}

	flat := mesh.Flat{Vertices: vertices}
	flat.Units, _ = b.Members["units"].(string)
	for i, f := range faceNums {
		if f != math.Trunc(f) || math.Abs(f) > maxFaceValue {
			return mesh.Mesh{}, fmt.Errorf("faces: item %d is not an index: %v: %w", i, f, mesh.ErrBadEncoding)
		}
		flat.Faces = append(flat.Faces, int(f))
	}
	for _, c := range colorNums {
		flat.Colors = append(flat.Colors, int32(int64(c)))
	}
	return mesh.Decode(flat)
}

// maxFaceValue is the largest face entry that survives a float64 round trip.
const maxFaceValue = 1 << 53

// boxMesh expands a box from its size intervals.
func boxMesh(b *Base) (mesh.Mesh, error) {
	var lo, hi [3]float64
	for i, axis := range []string{"xSize", "ySize", "zSize"} {
		iv, ok := asBase(b.Members[axis])
		if !ok {
			return mesh.Mesh{}, fmt.Errorf("box %s missing", axis)
		}
		start, err := number(iv.Members["start"])
		if err != nil {
			return mesh.Mesh{}, fmt.Errorf("box %s start: %w", axis, err)
		}
		end, err := number(iv.Members["end"])
		if err != nil {
			return mesh.Mesh{}, fmt.Errorf("box %s end: %w", axis, err)
		}
		lo[i], hi[i] = math.Min(start, end), math.Max(start, end)
	}
	return mesh.Box(geom.Pt(lo[0], lo[1], lo[2]), geom.Pt(hi[0], hi[1], hi[2])), nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

// numbers reads a numeric list; a missing member is an empty list.
func numbers(v any) ([]float64, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("not a list")
	}
	out := make([]float64, len(list))
	for i, item := range list {
		n, err := number(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}
