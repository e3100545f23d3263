package canv

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type canvIndex struct {
	Version    int    `json:"version"`
	FrameCount int    `json:"frame-count"`
	ImageSize  [2]int `json:"image-size"`
	ImsPath    string `json:"canonic-video-path"`
}

// Canv is a read-only view of the metadata flavour of the pair.
type Canv struct {
	rc      *zip.ReadCloser
	path    string
	index   canvIndex
	proc    []ProcRecord
	members map[int]*zip.File
}

// OpenCanv opens and validates a .canv file. The linked .ims path is
// checked to resolve to an existing file.
func OpenCanv(path string) (*Canv, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrFormat, path, err)
	}

	c := &Canv{rc: rc, path: path}
	if err := c.validate(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Canv) validate() error {
	if err := readJSONMember(c.rc, "index.json", &c.index); err != nil {
		return err
	}
	if c.index.Version < FormatVersion {
		return fmt.Errorf("%w: unsupported version %d in %q", ErrFormat, c.index.Version, c.path)
	}
	if c.index.FrameCount < 1 {
		return fmt.Errorf("%w: frame count %d in %q", ErrFormat, c.index.FrameCount, c.path)
	}
	if c.index.ImageSize[0] < 1 || c.index.ImageSize[1] < 1 {
		return fmt.Errorf("%w: image size %v in %q", ErrFormat, c.index.ImageSize, c.path)
	}
	if c.index.ImsPath == "" || filepath.IsAbs(c.index.ImsPath) || filepath.Ext(c.index.ImsPath) != ".ims" {
		return fmt.Errorf("%w: canonic-video-path %q must be a relative .ims path", ErrFormat, c.index.ImsPath)
	}

	if err := readJSONMember(c.rc, "proc.json", &c.proc); err != nil {
		return err
	}
	if err := checkProc(c.proc); err != nil {
		return fmt.Errorf("%s: %w", c.path, err)
	}

	members, err := frameMembers(c.rc.File, ".json")
	if err != nil {
		return err
	}
	c.members = members
	if err := checkFrameSet(c.members, c.index.FrameCount, "metadata"); err != nil {
		return fmt.Errorf("%s: %w", c.path, err)
	}

	imsPath := c.ImsPath()
	info, err := os.Stat(imsPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: linked imagery %q cannot be resolved", ErrFormat, imsPath)
	}
	return nil
}

// Version reports the file format version.
func (c *Canv) Version() int { return c.index.Version }

// FrameCount reports the number of frames in the file.
func (c *Canv) FrameCount() int { return c.index.FrameCount }

// ImageSize reports the declared imagery dimensions (width, height).
func (c *Canv) ImageSize() (int, int) { return c.index.ImageSize[0], c.index.ImageSize[1] }

// ImsPath returns the absolute path of the linked imagery file.
func (c *Canv) ImsPath() string {
	return filepath.Join(filepath.Dir(c.path), c.index.ImsPath)
}

// Proc returns the command history records.
func (c *Canv) Proc() []ProcRecord {
	out := make([]ProcRecord, len(c.proc))
	copy(out, c.proc)
	return out
}

// Meta reads one frame's metadata record.
func (c *Canv) Meta(index int) (FrameMeta, error) {
	var meta FrameMeta
	f, ok := c.members[index]
	if !ok {
		return meta, fmt.Errorf("%w: metadata for frame %d missing", ErrFormat, index)
	}
	data, err := readMember(f)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: frame %d metadata: %v", ErrFormat, index, err)
	}
	if err := CheckPose(meta.Cam); err != nil {
		return meta, fmt.Errorf("frame %d: %w", index, err)
	}
	return meta, nil
}

// Close releases the underlying archive.
func (c *Canv) Close() error {
	if c == nil || c.rc == nil {
		return nil
	}
	err := c.rc.Close()
	c.rc = nil
	return err
}
