package canv

import (
	"archive/zip"
	"fmt"
)

type imsIndex struct {
	Version    int `json:"version"`
	FrameCount int `json:"frame-count"`
}

// Ims is a read-only view of the imagery flavour of the pair.
type Ims struct {
	rc      *zip.ReadCloser
	path    string
	index   imsIndex
	members map[int]*zip.File
}

// OpenIms opens and validates a .ims file.
func OpenIms(path string) (*Ims, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrFormat, path, err)
	}

	m := &Ims{rc: rc, path: path}
	if err := m.validate(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return m, nil
}

func (m *Ims) validate() error {
	if err := readJSONMember(m.rc, "index.json", &m.index); err != nil {
		return err
	}
	if m.index.Version < FormatVersion {
		return fmt.Errorf("%w: unsupported version %d in %q", ErrFormat, m.index.Version, m.path)
	}
	if m.index.FrameCount < 1 {
		return fmt.Errorf("%w: frame count %d in %q", ErrFormat, m.index.FrameCount, m.path)
	}

	members, err := frameMembers(m.rc.File, ".jpeg")
	if err != nil {
		return err
	}
	m.members = members
	if err := checkFrameSet(m.members, m.index.FrameCount, "imagery"); err != nil {
		return fmt.Errorf("%s: %w", m.path, err)
	}
	return nil
}

// FrameCount reports the number of frames in the file.
func (m *Ims) FrameCount() int { return m.index.FrameCount }

// Image returns one frame's JPEG bytes.
func (m *Ims) Image(index int) ([]byte, error) {
	f, ok := m.members[index]
	if !ok {
		return nil, fmt.Errorf("%w: imagery for frame %d missing", ErrFormat, index)
	}
	return readMember(f)
}

// Close releases the underlying archive.
func (m *Ims) Close() error {
	if m == nil || m.rc == nil {
		return nil
	}
	err := m.rc.Close()
	m.rc = nil
	return err
}
