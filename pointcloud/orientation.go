package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Orientation is a fixed 3x3 rotation applied to points as row vectors (p' = p * R).
type Orientation struct {
	r *mat.Dense
}

// EulerXYZ builds the rotation for extrinsic X, then Y, then Z rotations given in degrees.
// The resulting matrix is Rz * Ry * Rx.
func EulerXYZ(x, y, z float64) Orientation {
	rx := axisRotation(0, x)
	ry := axisRotation(1, y)
	rz := axisRotation(2, z)

	var zy, r mat.Dense
	zy.Mul(rz, ry)
	r.Mul(&zy, rx)
	return Orientation{r: &r}
}

// Identity returns the rotation that leaves points unchanged.
func Identity() Orientation {
	return EulerXYZ(0, 0, 0)
}

// Matrix returns a copy of the rotation matrix.
func (o Orientation) Matrix() *mat.Dense {
	return mat.DenseCopyOf(o.r)
}

// Apply rotates p as a row vector: the result is p * R.
func (o Orientation) Apply(p r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(o.r.T(), mat.NewVecDense(3, []float64{p.X, p.Y, p.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

func axisRotation(axis int, degrees float64) *mat.Dense {
	rad := degrees * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	switch axis {
	case 0:
		return mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, c, -s,
			0, s, c,
		})
	case 1:
		return mat.NewDense(3, 3, []float64{
			c, 0, s,
			0, 1, 0,
			-s, 0, c,
		})
	default:
		return mat.NewDense(3, 3, []float64{
			c, -s, 0,
			s, c, 0,
			0, 0, 1,
		})
	}
}
