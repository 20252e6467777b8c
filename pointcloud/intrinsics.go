// Package pointcloud - Depth back-projection, centroids and frame orientation.
package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-perception/images"
)

// ErrNoIntrinsics is returned when the camera parameters are missing or unusable.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// Intrinsics holds the pinhole parameters of the depth camera.
type Intrinsics struct {
	Width  int     `json:"width_px"  koanf:"width"`
	Height int     `json:"height_px" koanf:"height"`
	Fx     float64 `json:"fx"        koanf:"fx"`
	Fy     float64 `json:"fy"        koanf:"fy"`
	Ppx    float64 `json:"ppx"       koanf:"ppx"`
	Ppy    float64 `json:"ppy"       koanf:"ppy"`
	// DepthScale converts raw depth units to output units (1 keeps sensor units).
	DepthScale float64 `json:"depth_scale" koanf:"depthscale"`
}

// CheckValid checks that the parameters describe a usable projection.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return ErrNoIntrinsics
	}
	if in.Width <= 0 || in.Height <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid size (%d, %d)", in.Width, in.Height)
	}
	if in.Fx <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length Fx = %v", in.Fx)
	}
	if in.Fy <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length Fy = %v", in.Fy)
	}
	if in.Ppx < 0 || in.Ppy < 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid principal point (%v, %v)", in.Ppx, in.Ppy)
	}
	if in.DepthScale <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid depth scale %v", in.DepthScale)
	}
	return nil
}

// PixelToPoint back-projects pixel (x, y) at depth z into camera space, applying DepthScale.
func (in *Intrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	z *= in.DepthScale
	return r3.Vector{
		X: (x - in.Ppx) / in.Fx * z,
		Y: (y - in.Ppy) / in.Fy * z,
		Z: z,
	}
}

// Project turns every measured pixel of depth into a 3D point, in row-major pixel order.
// Zero samples are skipped.
//
// Arguments:
//   - depth: The depth frame, which must match the intrinsics resolution.
//
// Returns:
//   - Cloud: The back-projected points.
//   - error: An error if the frame and the intrinsics disagree on size.
func (in *Intrinsics) Project(depth *images.DepthMap) (Cloud, error) {
	if depth == nil {
		return nil, errors.New("depth map is nil")
	}
	if depth.Width != in.Width || depth.Height != in.Height {
		return nil, errors.Errorf("depth dimension and intrinsics don't match Depth(%d,%d) != Intrinsics(%d,%d)",
			depth.Width, depth.Height, in.Width, in.Height)
	}
	cloud := make(Cloud, 0, depth.CountNonZero())
	for y := 0; y < depth.Height; y++ {
		row := depth.Data[y*depth.Width : (y+1)*depth.Width]
		for x, z := range row {
			if z == 0 {
				continue
			}
			cloud = append(cloud, in.PixelToPoint(float64(x), float64(y), float64(z)))
		}
	}
	return cloud, nil
}
