package pointcloud

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-perception/images"
)

func testIntrinsics() *Intrinsics {
	return &Intrinsics{Width: 4, Height: 3, Fx: 2, Fy: 4, Ppx: 2, Ppy: 1, DepthScale: 1}
}

func TestIntrinsicsCheckValid(t *testing.T) {
	assert.NoError(t, testIntrinsics().CheckValid())

	var missing *Intrinsics
	assert.ErrorIs(t, missing.CheckValid(), ErrNoIntrinsics)

	bad := testIntrinsics()
	bad.Fx = 0
	assert.ErrorIs(t, bad.CheckValid(), ErrNoIntrinsics)

	bad = testIntrinsics()
	bad.DepthScale = 0
	assert.Error(t, bad.CheckValid())
}

func TestProjectSkipsZeroDepth(t *testing.T) {
	in := testIntrinsics()
	d := images.NewDepthMap(4, 3)
	d.Set(2, 1, 100) // principal point
	d.Set(0, 2, 50)

	cloud, err := in.Project(d)
	require.NoError(t, err)
	require.Len(t, cloud, 2)

	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 100}, cloud[0])
	assert.InDelta(t, (0-2)/2.0*50, cloud[1].X, 1e-9)
	assert.InDelta(t, (2-1)/4.0*50, cloud[1].Y, 1e-9)
	assert.InDelta(t, 50, cloud[1].Z, 1e-9)
}

func TestProjectAppliesDepthScale(t *testing.T) {
	in := testIntrinsics()
	in.DepthScale = 0.001
	d := images.NewDepthMap(4, 3)
	d.Set(2, 1, 500)

	cloud, err := in.Project(d)
	require.NoError(t, err)
	require.Len(t, cloud, 1)
	assert.InDelta(t, 0.5, cloud[0].Z, 1e-12)
}

func TestProjectRejectsSizeMismatch(t *testing.T) {
	_, err := testIntrinsics().Project(images.NewDepthMap(5, 3))
	assert.Error(t, err)
}

func TestCentroid(t *testing.T) {
	_, err := Cloud{}.Centroid()
	assert.Error(t, err)

	c := Cloud{{X: 1, Y: 2, Z: 3}, {X: 3, Y: 4, Z: 5}}
	centroid, err := c.Centroid()
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{X: 2, Y: 3, Z: 4}, centroid)
}

func TestOrientationFlipAboutX(t *testing.T) {
	o := EulerXYZ(180, 0, 0)
	got := o.Apply(r3.Vector{X: 1, Y: 2, Z: 3})

	assert.InDelta(t, 1, got.X, 1e-9)
	assert.InDelta(t, -2, got.Y, 1e-9)
	assert.InDelta(t, -3, got.Z, 1e-9)
}

func TestOrientationIsRowVectorProduct(t *testing.T) {
	// A 90 degree turn about Z maps (1,0,0) to (0,-1,0) when applied as p * R.
	o := EulerXYZ(0, 0, 90)
	got := o.Apply(r3.Vector{X: 1})

	assert.InDelta(t, 0, got.X, 1e-9)
	assert.InDelta(t, -1, got.Y, 1e-9)
	assert.InDelta(t, 0, got.Z, 1e-9)

	id := Identity().Apply(r3.Vector{X: 4, Y: 5, Z: 6})
	assert.InDelta(t, 5, id.Y, 1e-12)
}

func TestCloudCBOR(t *testing.T) {
	c := Cloud{{X: 1, Y: 2, Z: 3}, {X: -1, Y: 0, Z: 0.5}}
	data, err := cbor.Marshal(c)
	require.NoError(t, err)

	var rows [][3]float64
	require.NoError(t, cbor.Unmarshal(data, &rows))
	assert.Equal(t, [][3]float64{{1, 2, 3}, {-1, 0, 0.5}}, rows)

	var back Cloud
	require.NoError(t, cbor.Unmarshal(data, &back))
	assert.Equal(t, c, back)
}
