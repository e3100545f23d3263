package geo

import "math"

// EulerZYX composes a rotation from yaw, pitch, roll in radians,
// applied in Z, Y, X order: R = Rz(yaw) * Ry(pitch) * Rx(roll).
func EulerZYX(yaw, pitch, roll float64) Mat3 {
	return RotZ(yaw).Mul(RotY(pitch)).Mul(RotX(roll))
}

// EulerdZYX is EulerZYX with the angles given in degrees.
func EulerdZYX(yaw, pitch, roll float64) Mat3 {
	return EulerZYX(Radians(yaw), Radians(pitch), Radians(roll))
}

// DecompEulerZYX recovers yaw, pitch, roll in radians from a rotation
// matrix built in ZYX order. At the pitch singularity (|pitch| = pi/2)
// roll is folded into yaw and reported as zero.
func DecompEulerZYX(m Mat3) (yaw, pitch, roll float64) {
	sp := -m[2][0]
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	if math.Abs(sp) > 1-1e-12 {
		yaw = math.Atan2(-m[0][1], m[1][1])
		roll = 0
		return yaw, pitch, roll
	}
	yaw = math.Atan2(m[1][0], m[0][0])
	roll = math.Atan2(m[2][1], m[2][2])
	return yaw, pitch, roll
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }
