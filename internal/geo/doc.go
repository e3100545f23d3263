// Package geo provides the small amount of geodesy the pipeline
// needs: WGS84 ellipsoid conversions between geodetic and
// earth-centered earth-fixed coordinates, local north-east-down axes,
// and ZYX Euler rotation composition and decomposition.
package geo
