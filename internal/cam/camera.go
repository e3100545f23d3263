// Package cam models the pinhole camera used to relate frame pixels
// to world coordinates, working within the ECEF frame of reference.
// Cameras are built from global attitude and position directly, or
// from the canonic per-frame camera description.
package cam

import (
	"fmt"

	"georeg/internal/canv"
	"georeg/internal/geo"
)

// Camera is a pinhole camera at an ECEF position with a global ECEF
// attitude and a lens.
type Camera struct {
	pose     geo.Mat3 // body to ECEF
	view     geo.Mat3 // ECEF to body
	lensPerm geo.Mat3 // body to camera axes
	nedPerm  geo.Mat3 // camera to body axes
	position geo.ECEF
	lens     Lens
}

// New creates a camera from a global ECEF attitude, an ECEF position
// and a lens.
func New(attitude geo.Mat3, position geo.ECEF, lens Lens) *Camera {
	permute := geo.RotZ(geo.Radians(-90)).Mul(geo.RotY(geo.Radians(-90)))
	return &Camera{
		pose:     attitude,
		view:     attitude.Transpose(),
		lensPerm: permute,
		nedPerm:  permute.Transpose(),
		position: position,
		lens:     lens,
	}
}

// FromCanonic creates a camera from a canonic per-frame camera
// description. The canonic height is stored down-positive and is
// negated into height above the ellipsoid.
func FromCanonic(pose canv.Pose) (*Camera, error) {
	if err := canv.CheckPose(pose); err != nil {
		return nil, err
	}
	lens, err := NewLens(pose.Lens.HFov, pose.Lens.VFov, pose.Lens.K2, pose.Lens.K3, pose.Lens.K4)
	if err != nil {
		return nil, fmt.Errorf("canonic lens: %w", err)
	}
	g := geo.Geodetic{Lat: pose.Pos[0], Lon: pose.Pos[1], Height: -pose.Pos[2]}
	attitude := geo.PoseToECEF(g, pose.Att[0], pose.Att[1], pose.Att[2])
	return New(attitude, g.ToECEF(), lens), nil
}

// FromEulerEllipsoid creates a camera from a geodetic position and a
// geodetic attitude in radians.
func FromEulerEllipsoid(g geo.Geodetic, yaw, pitch, roll float64, lens Lens) *Camera {
	return New(geo.PoseToECEF(g, yaw, pitch, roll), g.ToECEF(), lens)
}

// Position returns the camera's ECEF position.
func (c *Camera) Position() geo.ECEF { return c.position }

// XYZToUV projects an ECEF coordinate onto the image plane. The
// visible area maps to the range (0,0) to (1,1).
func (c *Camera) XYZToUV(p geo.ECEF) ([2]float64, error) {
	uv, _, err := c.XYZToUVDepth(p)
	return uv, err
}

// XYZToUVDepth projects an ECEF coordinate onto the image plane and
// also reports the camera-relative depth.
func (c *Camera) XYZToUVDepth(p geo.ECEF) ([2]float64, float64, error) {
	v := c.view.MulVec(p.Sub(c.position))
	v = c.lensPerm.MulVec(v)
	uv, err := c.lens.XYZToUV(v)
	return uv, v[2], err
}

// EllipsoidToUV projects a geodetic coordinate onto the image plane.
func (c *Camera) EllipsoidToUV(g geo.Geodetic) ([2]float64, error) {
	return c.XYZToUV(g.ToECEF())
}

// UVToXYZ reconstructs the ECEF coordinate for an image plane
// position at the given depth along the principal axis.
func (c *Camera) UVToXYZ(uv [2]float64, depth float64) geo.ECEF {
	v := c.lens.UVToXYZ(uv).Scale(depth)
	v = c.nedPerm.MulVec(v)
	v = c.pose.MulVec(v)
	return v.Add(c.position)
}

// UVToRay returns a unit-length view ray for an image plane position:
// the ray origin and its direction in ECEF.
func (c *Camera) UVToRay(uv [2]float64) (geo.ECEF, geo.Vec3) {
	p := c.UVToXYZ(uv, 1)
	dir := p.Sub(c.position)
	return c.position, dir.Scale(1 / dir.Norm())
}
