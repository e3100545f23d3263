package cam

import (
	"errors"
	"math"
	"testing"

	"georeg/internal/canv"
	"georeg/internal/geo"
)

func mustLens(t *testing.T, hfov, vfov, k2, k3, k4 float64) Lens {
	t.Helper()
	l, err := NewLens(hfov, vfov, k2, k3, k4)
	if err != nil {
		t.Fatalf("NewLens: %v", err)
	}
	return l
}

func nadir(t *testing.T, height float64, lens Lens) *Camera {
	t.Helper()
	g := geo.Geodetic{Lat: 0, Lon: 0, Height: height}
	// Pitch of -90 degrees points the optical axis straight down.
	return FromEulerEllipsoid(g, 0, -math.Pi/2, 0, lens)
}

func TestNadirProjection(t *testing.T) {
	c := nadir(t, 1000, mustLens(t, 0.6, 0.4, 0, 0, 0))

	ground := geo.Geodetic{Lat: 0, Lon: 0, Height: 0}
	uv, depth, err := c.XYZToUVDepth(ground.ToECEF())
	if err != nil {
		t.Fatalf("XYZToUVDepth: %v", err)
	}
	if math.Abs(uv[0]-0.5) > 1e-9 || math.Abs(uv[1]-0.5) > 1e-9 {
		t.Fatalf("nadir uv = %v, want center", uv)
	}
	if math.Abs(depth-1000) > 1e-6 {
		t.Fatalf("depth = %v, want 1000", depth)
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	c := nadir(t, 1500, mustLens(t, 0.6, 0.4, 0, 0, 0))

	for _, uv := range [][2]float64{{0.5, 0.5}, {0.1, 0.9}, {0.25, 0.4}, {0.99, 0.01}} {
		p := c.UVToXYZ(uv, 1200)
		back, err := c.XYZToUV(p)
		if err != nil {
			t.Fatalf("XYZToUV(%v): %v", uv, err)
		}
		if math.Abs(back[0]-uv[0]) > 1e-9 || math.Abs(back[1]-uv[1]) > 1e-9 {
			t.Errorf("uv %v round trips to %v", uv, back)
		}
	}
}

func TestRoundTripWithDistortion(t *testing.T) {
	c := nadir(t, 800, mustLens(t, 0.8, 0.6, -0.05, 0.01, -0.002))

	for _, uv := range [][2]float64{{0.5, 0.5}, {0.2, 0.7}, {0.85, 0.3}} {
		p := c.UVToXYZ(uv, 500)
		back, err := c.XYZToUV(p)
		if err != nil {
			t.Fatalf("XYZToUV(%v): %v", uv, err)
		}
		if math.Abs(back[0]-uv[0]) > 1e-6 || math.Abs(back[1]-uv[1]) > 1e-6 {
			t.Errorf("uv %v round trips to %v", uv, back)
		}
	}
}

func TestBehindCamera(t *testing.T) {
	c := nadir(t, 1000, mustLens(t, 0.6, 0.4, 0, 0, 0))

	// A point above the camera is behind the downward-looking lens.
	sky := geo.Geodetic{Lat: 0, Lon: 0, Height: 2000}
	if _, err := c.XYZToUV(sky.ToECEF()); !errors.Is(err, ErrBehindCamera) {
		t.Fatalf("error = %v, want ErrBehindCamera", err)
	}
}

func TestUVToRay(t *testing.T) {
	c := nadir(t, 1000, mustLens(t, 0.6, 0.4, 0, 0, 0))

	origin, dir := c.UVToRay([2]float64{0.5, 0.5})
	if origin != c.Position() {
		t.Fatalf("ray origin = %v", origin)
	}
	if math.Abs(dir.Norm()-1) > 1e-12 {
		t.Fatalf("ray direction norm = %v", dir.Norm())
	}
	// The center ray of a nadir camera at the prime meridian equator
	// points along -X in ECEF.
	if math.Abs(dir[0]+1) > 1e-9 {
		t.Fatalf("nadir center ray = %v", dir)
	}
}

func TestFromCanonic(t *testing.T) {
	pose := canv.Pose{
		// Canonic heights are down-positive.
		Pos:  [3]float64{0, 0, -1000},
		Att:  [3]float64{0, -math.Pi / 2, 0},
		Lens: canv.Lens{HFov: 0.6, VFov: 0.4},
	}
	c, err := FromCanonic(pose)
	if err != nil {
		t.Fatalf("FromCanonic: %v", err)
	}

	want := geo.Geodetic{Lat: 0, Lon: 0, Height: 1000}.ToECEF()
	if c.Position().Sub(want).Norm() > 1e-6 {
		t.Fatalf("position = %v, want %v", c.Position(), want)
	}

	uv, err := c.EllipsoidToUV(geo.Geodetic{Lat: 0, Lon: 0, Height: 0})
	if err != nil {
		t.Fatalf("EllipsoidToUV: %v", err)
	}
	if math.Abs(uv[0]-0.5) > 1e-9 || math.Abs(uv[1]-0.5) > 1e-9 {
		t.Fatalf("nadir uv = %v", uv)
	}
}

func TestFromCanonicRejectsBadPose(t *testing.T) {
	bad := canv.Pose{
		Pos:  [3]float64{95, 0, 0},
		Att:  [3]float64{0, 0, 0},
		Lens: canv.Lens{HFov: 0.6, VFov: 0.4},
	}
	if _, err := FromCanonic(bad); !errors.Is(err, canv.ErrFormat) {
		t.Fatalf("error = %v, want ErrFormat", err)
	}
}

func TestLensDistortionInverse(t *testing.T) {
	l := mustLens(t, 0.9, 0.7, -0.08, 0.02, -0.004)
	for _, r := range []float64{0, 0.1, 0.3, 0.5} {
		c := l.invRadialDistortion(r)
		// c must undo the forward distortion at the scaled radius.
		got := c * l.radialDistortion(c*r)
		if math.Abs(got-1) > 1e-7 {
			t.Errorf("r=%v: c*distort(c*r) = %v", r, got)
		}
	}
}
