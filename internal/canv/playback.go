package canv

import "fmt"

// Playback pairs an open .canv with its linked .ims and serves frames
// by index.
type Playback struct {
	canv *Canv
	ims  *Ims
}

// Frame carries everything the pipeline needs for one frame.
type Frame struct {
	Index int
	Meta  FrameMeta
	JPEG  []byte
}

// Open resolves the pair rooted at a .canv path and cross-checks the
// two indexes before serving anything.
func Open(canvPath string) (*Playback, error) {
	c, err := OpenCanv(canvPath)
	if err != nil {
		return nil, err
	}
	m, err := OpenIms(c.ImsPath())
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.FrameCount() != m.FrameCount() {
		_ = c.Close()
		_ = m.Close()
		return nil, fmt.Errorf("%w: frame count mismatch: metadata has %d, imagery has %d",
			ErrFormat, c.FrameCount(), m.FrameCount())
	}
	return &Playback{canv: c, ims: m}, nil
}

// FrameCount reports the agreed frame count of the pair.
func (p *Playback) FrameCount() int { return p.canv.FrameCount() }

// ImageSize reports the declared imagery dimensions (width, height).
func (p *Playback) ImageSize() (int, int) { return p.canv.ImageSize() }

// ImsPath returns the path of the linked imagery file.
func (p *Playback) ImsPath() string { return p.canv.ImsPath() }

// Proc returns the command history of the metadata file.
func (p *Playback) Proc() []ProcRecord { return p.canv.Proc() }

// Frame loads one frame's metadata and imagery.
func (p *Playback) Frame(index int) (Frame, error) {
	if index < 0 || index >= p.FrameCount() {
		return Frame{}, fmt.Errorf("%w: frame %d out of range [0,%d)", ErrFormat, index, p.FrameCount())
	}
	meta, err := p.canv.Meta(index)
	if err != nil {
		return Frame{}, err
	}
	jpeg, err := p.ims.Image(index)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Index: index, Meta: meta, JPEG: jpeg}, nil
}

// Close releases both archives.
func (p *Playback) Close() error {
	if p == nil {
		return nil
	}
	cerr := p.canv.Close()
	merr := p.ims.Close()
	if cerr != nil {
		return cerr
	}
	return merr
}
