package geo

import (
	"math"
	"testing"
)

func near(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tol %v)", what, got, want, tol)
	}
}

func TestGeodeticECEFKnownPoints(t *testing.T) {
	cases := []struct {
		name string
		geo  Geodetic
		ecef ECEF
	}{
		{"equator prime meridian", Geodetic{0, 0, 0}, ECEF{SemiMajor, 0, 0}},
		{"north pole", Geodetic{90, 0, 0}, ECEF{0, 0, SemiMinor}},
		{"equator 90E at 1km", Geodetic{0, 90, 1000}, ECEF{0, SemiMajor + 1000, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.geo.ToECEF()
			for i := 0; i < 3; i++ {
				near(t, got[i], tc.ecef[i], 1e-6, "ecef component")
			}
		})
	}
}

func TestECEFRoundTrip(t *testing.T) {
	points := []Geodetic{
		{0, 0, 0},
		{32.08, 34.78, 150},
		{-45.5, -170.2, 12000},
		{89.999, 10, 500},
		{-90, 0, 0},
	}
	for _, g := range points {
		back := FromECEF(g.ToECEF())
		near(t, back.Lat, g.Lat, 1e-9, "latitude")
		if math.Abs(g.Lat) < 90-1e-6 {
			near(t, back.Lon, g.Lon, 1e-9, "longitude")
		}
		near(t, back.Height, g.Height, 1e-4, "height")
	}
}

func TestDisplacement(t *testing.T) {
	a := Geodetic{32.0, 34.0, 0}
	// One degree of latitude is roughly 110.6 km at 32N.
	b := Geodetic{33.0, 34.0, 0}
	d := Displacement(a, b)
	if d < 110e3 || d > 112e3 {
		t.Fatalf("one-degree displacement = %v m", d)
	}
	if Displacement(a, a) != 0 {
		t.Fatal("zero displacement expected")
	}
}

func TestLocalNEDAxesOrthonormal(t *testing.T) {
	m := LocalNEDAxes(Geodetic{32.08, 34.78, 0})
	id := m.Mul(m.Transpose())
	want := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			near(t, id[i][j], want[i][j], 1e-12, "m * m^T")
		}
	}

	// Down at the north pole points along -Z; the down basis vector is
	// the third column.
	pole := LocalNEDAxes(Geodetic{90, 0, 0})
	down := pole.MulVec(Vec3{0, 0, 1})
	near(t, down[2], -1, 1e-12, "polar down z")

	// At the equator and prime meridian, north is +Z and down is -X.
	eq := LocalNEDAxes(Geodetic{0, 0, 0})
	north := eq.MulVec(Vec3{1, 0, 0})
	near(t, north[2], 1, 1e-12, "equatorial north z")
	down = eq.MulVec(Vec3{0, 0, 1})
	near(t, down[0], -1, 1e-12, "equatorial down x")
}

func TestPoseECEFRoundTrip(t *testing.T) {
	g := Geodetic{32.08, 34.78, 900}
	yaw, pitch, roll := 1.1, -0.4, 0.25
	r := PoseToECEF(g, yaw, pitch, roll)
	y2, p2, r2 := PoseFromECEF(g, r)
	near(t, y2, yaw, 1e-12, "yaw")
	near(t, p2, pitch, 1e-12, "pitch")
	near(t, r2, roll, 1e-12, "roll")
}

func TestEulerZYXRoundTrip(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{0.5, -0.2, 0.1},
		{-2.8, 1.2, -3.0},
		{math.Pi - 0.01, -1.5, 0.3},
	}
	for _, c := range cases {
		m := EulerZYX(c[0], c[1], c[2])
		y, p, r := DecompEulerZYX(m)
		near(t, y, c[0], 1e-12, "yaw")
		near(t, p, c[1], 1e-12, "pitch")
		near(t, r, c[2], 1e-12, "roll")
	}
}

func TestEulerdZYX(t *testing.T) {
	m := EulerdZYX(90, 0, 0)
	// Yaw of 90 degrees maps X onto Y.
	v := m.MulVec(Vec3{1, 0, 0})
	near(t, v[0], 0, 1e-12, "x")
	near(t, v[1], 1, 1e-12, "y")
	near(t, v[2], 0, 1e-12, "z")
}

func TestMat3Ops(t *testing.T) {
	m := RotZ(0.3).Mul(RotY(-0.7))
	inv := m.Transpose()
	id := m.Mul(inv)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			near(t, id[i][j], want, 1e-12, "rotation inverse")
		}
	}

	v := Vec3{1, 2, 3}
	near(t, v.Norm(), math.Sqrt(14), 1e-12, "norm")
	near(t, v.Sub(v).Norm(), 0, 0, "sub")
	near(t, v.Scale(2).Dot(v), 28, 1e-12, "scale dot")
}
