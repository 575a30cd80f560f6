package result

import (
	"gonum.org/v1/gonum/floats"
)

// ramp stops from slow to fast: blue, cyan, green, yellow, red
var rampStops = [][3]float64{
	{0, 0, 255},
	{0, 255, 255},
	{0, 255, 0},
	{255, 255, 0},
	{255, 0, 0},
}

// Ramp maps each value to an opaque ARGB colour on a blue to red scale spanning
// the range of values. A constant field is all blue.
func Ramp(values []float64) []int32 {
	out := make([]int32, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := floats.Min(values), floats.Max(values)
	for i, v := range values {
		t := 0.0
		if hi > lo {
			t = (v - lo) / (hi - lo)
		}
		out[i] = rampColor(t)
	}
	return out
}

func rampColor(t float64) int32 {
	t = min(max(t, 0), 1)
	seg := t * float64(len(rampStops)-1)
	i := min(int(seg), len(rampStops)-2)
	f := seg - float64(i)
	a, b := rampStops[i], rampStops[i+1]
	r := uint32(a[0] + f*(b[0]-a[0]) + 0.5)
	g := uint32(a[1] + f*(b[1]-a[1]) + 0.5)
	bl := uint32(a[2] + f*(b[2]-a[2]) + 0.5)
	return int32(0xFF<<24 | r<<16 | g<<8 | bl)
}
