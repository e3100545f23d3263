package testsupport

import (
	"bytes"
	"image"
	"image/jpeg"
	"path/filepath"
	"testing"

	"georeg/internal/canv"
)

// VideoOptions shapes a generated test video.
type VideoOptions struct {
	Frames int
	Width  int
	Height int
}

func (o VideoOptions) withDefaults() VideoOptions {
	if o.Frames <= 0 {
		o.Frames = 5
	}
	if o.Width <= 0 {
		o.Width = 16
	}
	if o.Height <= 0 {
		o.Height = 12
	}
	return o
}

// BuildVideo writes a valid canonic video pair into dir and returns
// the metadata file path. Imagery members are real JPEG encodings so
// downstream decoding works.
func BuildVideo(t testing.TB, dir string, opts VideoOptions) string {
	t.Helper()
	opts = opts.withDefaults()

	path := filepath.Join(dir, "clip.canv")
	w, err := canv.NewWriterPair(path, canv.WriterOptions{
		Planned: opts.Frames,
		Width:   opts.Width,
		Height:  opts.Height,
		Proc:    []canv.ProcRecord{{Cmds: []string{"testsupport build"}, Pwin: "0.0.1"}},
	})
	if err != nil {
		t.Fatalf("new writer pair: %v", err)
	}
	for i := 0; i < opts.Frames; i++ {
		meta := canv.FrameMeta{Cam: FramePose(i), Timestamp: float64(i) / 30}
		if err := w.WriteFrame(i, meta, EncodeJPEG(t, opts.Width, opts.Height, byte(i))); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer pair: %v", err)
	}
	return path
}

// FramePose returns a deterministic valid pose for frame i.
func FramePose(i int) canv.Pose {
	return canv.Pose{
		Pos:  [3]float64{32.05 + float64(i)*0.0001, 34.75, -1200},
		Att:  [3]float64{0.4, -0.9, 0.02},
		Lens: canv.Lens{HFov: 0.6, VFov: 0.45},
	}
}

// EncodeJPEG produces a small grayscale JPEG with a deterministic
// pattern seeded by tone.
func EncodeJPEG(t testing.TB, width, height int, tone byte) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Pix[y*img.Stride+x] = tone + byte(x*3+y*7)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}
