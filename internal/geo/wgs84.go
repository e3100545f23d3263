package geo

import "math"

// WGS84 ellipsoid constants.
const (
	SemiMajor   = 6378137.0
	Flattening  = 1.0 / 298.257223563
	SemiMinor   = SemiMajor * (1 - Flattening)
	EccSq       = Flattening * (2 - Flattening)
	SecondEccSq = EccSq / (1 - EccSq)
)

// Geodetic is a WGS84 position: latitude and longitude in degrees,
// height above the ellipsoid in meters.
type Geodetic struct {
	Lat, Lon, Height float64
}

// ECEF is an earth-centered earth-fixed position in meters.
type ECEF = Vec3

// ToECEF converts a geodetic position to ECEF.
func (g Geodetic) ToECEF() ECEF {
	sinLat, cosLat := math.Sincos(Radians(g.Lat))
	sinLon, cosLon := math.Sincos(Radians(g.Lon))
	n := SemiMajor / math.Sqrt(1-EccSq*sinLat*sinLat)
	return ECEF{
		(n + g.Height) * cosLat * cosLon,
		(n + g.Height) * cosLat * sinLon,
		(n*(1-EccSq) + g.Height) * sinLat,
	}
}

// FromECEF converts an ECEF position to geodetic using the Bowring
// closed-form initial guess refined by a couple of fixed-point steps.
func FromECEF(p ECEF) Geodetic {
	x, y, z := p[0], p[1], p[2]
	lon := math.Atan2(y, x)
	r := math.Hypot(x, y)

	if r < 1e-9 {
		// Polar axis: latitude is a sign, height is measured from the
		// semi-minor radius.
		lat := math.Pi / 2
		if z < 0 {
			lat = -lat
		}
		return Geodetic{Degrees(lat), Degrees(lon), math.Abs(z) - SemiMinor}
	}

	u := math.Atan2(z*SemiMajor, r*SemiMinor)
	sinU, cosU := math.Sincos(u)
	lat := math.Atan2(
		z+SecondEccSq*SemiMinor*sinU*sinU*sinU,
		r-EccSq*SemiMajor*cosU*cosU*cosU,
	)
	for i := 0; i < 2; i++ {
		sinLat := math.Sin(lat)
		n := SemiMajor / math.Sqrt(1-EccSq*sinLat*sinLat)
		lat = math.Atan2(z+EccSq*n*sinLat, r)
	}

	sinLat, cosLat := math.Sincos(lat)
	n := SemiMajor / math.Sqrt(1-EccSq*sinLat*sinLat)
	var h float64
	if math.Abs(cosLat) > math.Abs(sinLat) {
		h = r/cosLat - n
	} else {
		h = z/sinLat - n*(1-EccSq)
	}
	return Geodetic{Degrees(lat), Degrees(lon), h}
}

// LocalNEDAxes returns the rotation whose columns are the local
// north, east and down unit vectors at a geodetic position, expressed
// in ECEF. It maps local NED direction vectors into the ECEF frame;
// the transpose maps the other way.
func LocalNEDAxes(g Geodetic) Mat3 {
	sinLat, cosLat := math.Sincos(Radians(g.Lat))
	sinLon, cosLon := math.Sincos(Radians(g.Lon))
	return Mat3{
		{-sinLat * cosLon, -sinLon, -cosLat * cosLon},
		{-sinLat * sinLon, cosLon, -cosLat * sinLon},
		{cosLat, 0, -sinLat},
	}
}

// PoseToECEF converts a geodetic attitude (yaw, pitch, roll in
// radians, relative to the local NED frame) into the equivalent
// global ECEF attitude.
func PoseToECEF(g Geodetic, yaw, pitch, roll float64) Mat3 {
	return LocalNEDAxes(g).Mul(EulerZYX(yaw, pitch, roll))
}

// PoseFromECEF converts a global ECEF attitude into yaw, pitch, roll
// in radians relative to the local NED frame at a geodetic position.
func PoseFromECEF(g Geodetic, r Mat3) (yaw, pitch, roll float64) {
	return DecompEulerZYX(LocalNEDAxes(g).Transpose().Mul(r))
}

// Displacement returns the straight-line distance in meters between
// two geodetic positions.
func Displacement(a, b Geodetic) float64 {
	return b.ToECEF().Sub(a.ToECEF()).Norm()
}
