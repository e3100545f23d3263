package canv

import (
	"fmt"
	"math"
)

// FormatVersion is written into new index files. Readers accept this
// version and newer.
const FormatVersion = 4

// Lens holds the field of view (radians) and radial distortion
// coefficients for a frame's camera.
type Lens struct {
	HFov float64 `json:"hfov"`
	VFov float64 `json:"vfov"`
	K2   float64 `json:"k2,omitempty"`
	K3   float64 `json:"k3,omitempty"`
	K4   float64 `json:"k4,omitempty"`
}

// Pose is the canonic camera description: geodetic position
// (latitude, longitude in degrees; height in meters), attitude as yaw,
// pitch, roll in radians, and the lens model.
type Pose struct {
	Pos  [3]float64 `json:"pos"`
	Att  [3]float64 `json:"att"`
	Lens Lens       `json:"lens"`
}

// RegStatus is the per-frame registration outcome recorded in output
// metadata.
type RegStatus string

const (
	RegSuccess       RegStatus = "success"
	RegLowConfidence RegStatus = "low-confidence"
	RegFailed        RegStatus = "failed"
)

// Registration annotates an output frame with the server's verdict.
type Registration struct {
	Status RegStatus `json:"status"`
	FOM    float64   `json:"fom"`
	Error  string    `json:"error,omitempty"`
}

// FrameMeta is one frame's metadata record.
type FrameMeta struct {
	Cam       Pose          `json:"cam"`
	Timestamp float64       `json:"ts,omitempty"`
	Reg       *Registration `json:"reg,omitempty"`
}

// CheckPose validates the numeric ranges of a canonic pose.
func CheckPose(p Pose) error {
	for i, v := range p.Pos {
		if !isFinite(v) {
			return fmt.Errorf("%w: pos[%d] is not finite", ErrFormat, i)
		}
	}
	for i, v := range p.Att {
		if !isFinite(v) {
			return fmt.Errorf("%w: att[%d] is not finite", ErrFormat, i)
		}
	}
	if p.Pos[0] < -90 || p.Pos[0] > 90 {
		return fmt.Errorf("%w: latitude %.4f out of range", ErrFormat, p.Pos[0])
	}
	if p.Pos[1] < -180 || p.Pos[1] > 180 {
		return fmt.Errorf("%w: longitude %.4f out of range", ErrFormat, p.Pos[1])
	}
	if p.Lens.HFov <= 0 || p.Lens.HFov >= math.Pi {
		return fmt.Errorf("%w: hfov %.4f out of range", ErrFormat, p.Lens.HFov)
	}
	if p.Lens.VFov <= 0 || p.Lens.VFov >= math.Pi {
		return fmt.Errorf("%w: vfov %.4f out of range", ErrFormat, p.Lens.VFov)
	}
	return nil
}

// ProcRecord is one entry of the command history carried in proc.json.
type ProcRecord struct {
	Cmds []string `json:"cmds"`
	Pwin string   `json:"pwin"`
}

// AppendCommand records a command under a version tag, merging into an
// existing record when the tag matches.
func AppendCommand(proc []ProcRecord, cmd, tag string) []ProcRecord {
	for i := range proc {
		if proc[i].Pwin == tag {
			proc[i].Cmds = append(proc[i].Cmds, cmd)
			return proc
		}
	}
	return append(proc, ProcRecord{Cmds: []string{cmd}, Pwin: tag})
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
