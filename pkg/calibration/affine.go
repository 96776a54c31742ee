// Package calibration maps raw gaze estimates onto screen positions.
package calibration

import (
	"math"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// Affine is the transform
//
//	x' = A*x + B*y + C
//	y' = D*x + E*y + F
type Affine struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	E float64 `json:"e"`
	F float64 `json:"f"`
}

// Identity returns the transform that leaves points unchanged.
func Identity() Affine {
	return Affine{A: 1, E: 1}
}

// Offset returns a pure translation.
func Offset(dx, dy float64) Affine {
	return Affine{A: 1, C: dx, E: 1, F: dy}
}

// Apply maps p through the transform.
func (t Affine) Apply(p tracking.Vec2) tracking.Vec2 {
	return tracking.Vec2{
		X: t.A*p.X + t.B*p.Y + t.C,
		Y: t.D*p.X + t.E*p.Y + t.F,
	}
}

// IsIdentity reports whether t is exactly the identity.
func (t Affine) IsIdentity() bool {
	return t == Identity()
}

// Valid reports whether t is finite and invertible.
func (t Affine) Valid() bool {
	for _, v := range [...]float64{t.A, t.B, t.C, t.D, t.E, t.F} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(t.A*t.E-t.B*t.D) > 1e-9
}
