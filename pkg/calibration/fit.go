package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// MinPoints is the smallest number of point pairs that determines an affine fit.
const MinPoints = 3

var (
	// ErrTooFewPoints is returned when fewer than MinPoints pairs are available.
	ErrTooFewPoints = errors.New("calibration: too few points")

	// ErrDegenerate is returned when the raw points are collinear or the
	// fit is not invertible.
	ErrDegenerate = errors.New("calibration: degenerate point set")
)

// Point pairs a raw gaze estimate with the screen target the user was
// looking at.
type Point struct {
	Raw    tracking.Vec2 `json:"raw"`
	Target tracking.Vec2 `json:"target"`
}

// Fit solves the least squares affine transform taking every Raw point to
// its Target. It returns the transform and its RMS residual.
func Fit(points []Point) (Affine, float64, error) {
	if len(points) < MinPoints {
		return Affine{}, 0, fmt.Errorf("%w: have %d, need %d", ErrTooFewPoints, len(points), MinPoints)
	}

	n := len(points)
	a := mat.NewDense(n, 3, nil)
	bx := mat.NewVecDense(n, nil)
	by := mat.NewVecDense(n, nil)
	for i, p := range points {
		a.SetRow(i, []float64{p.Raw.X, p.Raw.Y, 1})
		bx.SetVec(i, p.Target.X)
		by.SetVec(i, p.Target.Y)
	}

	var qr mat.QR
	qr.Factorize(a)
	var r mat.Dense
	qr.RTo(&r)
	if math.Abs(r.At(0, 0)*r.At(1, 1)*r.At(2, 2)) < 1e-12 {
		return Affine{}, 0, ErrDegenerate
	}

	var cx, cy mat.VecDense
	if err := qr.SolveVecTo(&cx, false, bx); err != nil {
		return Affine{}, 0, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	if err := qr.SolveVecTo(&cy, false, by); err != nil {
		return Affine{}, 0, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	t := Affine{
		A: cx.AtVec(0), B: cx.AtVec(1), C: cx.AtVec(2),
		D: cy.AtVec(0), E: cy.AtVec(1), F: cy.AtVec(2),
	}
	if !t.Valid() {
		return Affine{}, 0, ErrDegenerate
	}
	return t, Residual(t, points), nil
}

// Residual returns the RMS distance between transformed raw points and
// their targets.
func Residual(t Affine, points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		d := t.Apply(p.Raw).Dist(p.Target)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(points)))
}
