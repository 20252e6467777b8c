package pointcloud

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Cloud is an ordered set of 3D points.
type Cloud []r3.Vector

// Centroid returns the mean of all points.
func (c Cloud) Centroid() (r3.Vector, error) {
	if len(c) == 0 {
		return r3.Vector{}, errors.New("centroid of an empty cloud")
	}
	var sum r3.Vector
	for _, p := range c {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(c))), nil
}

// Array returns the cloud as an N x 3 array.
func (c Cloud) Array() [][3]float64 {
	out := make([][3]float64, len(c))
	for i, p := range c {
		out[i] = ToArray(p)
	}
	return out
}

// MarshalCBOR encodes the cloud as an N x 3 float array.
func (c Cloud) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(c.Array())
}

// MarshalJSON encodes the cloud as an N x 3 float array.
func (c Cloud) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Array())
}

// UnmarshalCBOR decodes an N x 3 float array.
func (c *Cloud) UnmarshalCBOR(data []byte) error {
	var rows [][3]float64
	if err := cbor.Unmarshal(data, &rows); err != nil {
		return err
	}
	*c = make(Cloud, len(rows))
	for i, r := range rows {
		(*c)[i] = FromArray(r)
	}
	return nil
}

// ToArray flattens a point into [x, y, z].
func ToArray(p r3.Vector) [3]float64 {
	return [3]float64{p.X, p.Y, p.Z}
}

// FromArray builds a point from [x, y, z].
func FromArray(a [3]float64) r3.Vector {
	return r3.Vector{X: a[0], Y: a[1], Z: a[2]}
}
