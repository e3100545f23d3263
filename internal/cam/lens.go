package cam

import (
	"errors"
	"fmt"
	"math"

	"georeg/internal/fit"
	"georeg/internal/geo"
)

// ErrBehindCamera reports a projection of a point at or behind the
// image plane.
var ErrBehindCamera = errors.New("point behind camera")

// Lens extends the pinhole model with radial distortion using the
// coefficients k2, k3 and k4. Focal length is fixed at one; the
// effective sensor size follows from the field of view.
type Lens struct {
	k2, k3, k4 float64
	size       [2]float64
}

// NewLens builds a lens from horizontal and vertical field of view in
// radians.
func NewLens(hfov, vfov, k2, k3, k4 float64) (Lens, error) {
	if hfov <= 0 || hfov >= math.Pi || vfov <= 0 || vfov >= math.Pi {
		return Lens{}, fmt.Errorf("field of view %v, %v out of range", hfov, vfov)
	}
	return Lens{
		k2:   k2,
		k3:   k3,
		k4:   k4,
		size: [2]float64{2 * math.Tan(hfov/2), 2 * math.Tan(vfov/2)},
	}, nil
}

// XYZToUV projects a camera-frame coordinate to the image plane. The
// visible area maps to the range (0,0) to (1,1). Depth must be
// positive.
func (l Lens) XYZToUV(p geo.Vec3) ([2]float64, error) {
	if p[2] <= 0 {
		return [2]float64{}, ErrBehindCamera
	}
	x := p[0] / p[2]
	y := p[1] / p[2]

	s := l.radialDistortion(math.Hypot(x, y))
	x *= s
	y *= s

	return [2]float64{x/l.size[0] + 0.5, y/l.size[1] + 0.5}, nil
}

// UVToXYZ reconstructs the camera-frame coordinate at depth one for
// an image plane position.
func (l Lens) UVToXYZ(uv [2]float64) geo.Vec3 {
	x := (uv[0] - 0.5) * l.size[0]
	y := (uv[1] - 0.5) * l.size[1]

	s := l.invRadialDistortion(math.Hypot(x, y))
	return geo.Vec3{x * s, y * s, 1}
}

func (l Lens) radialDistortion(r float64) float64 {
	r2 := r * r
	return 1 + l.k2*r2 + l.k3*r2*r + l.k4*r2*r2
}

// invRadialDistortion finds the scale c with c*distort(c*r) = 1, so
// that applying the forward distortion to the scaled radius recovers
// the observed one.
func (l Lens) invRadialDistortion(r float64) float64 {
	if l.k2 == 0 && l.k3 == 0 && l.k4 == 0 {
		return 1
	}
	res, err := fit.LeastSq(func(p []float64) ([]float64, error) {
		c := p[0]
		return []float64{c*l.radialDistortion(c*r) - 1}, nil
	}, []float64{1}, fit.Options{Step: 1e-8, MaxIter: 10, Eps: 1e-16, Stop: 1e-18})
	if err != nil || len(res.Params) != 1 {
		return 1
	}
	return res.Params[0]
}
