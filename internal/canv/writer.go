package canv

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriterOptions configures a new output file.
type WriterOptions struct {
	// Planned is the number of frames the caller intends to write. It
	// sizes the zero padding of member names; the count recorded at
	// Close is the number actually committed.
	Planned int
	// Width and Height declare the imagery dimensions.
	Width, Height int
	// ImsPath is the relative path from the output file to the linked
	// imagery. Must carry the .ims suffix.
	ImsPath string
	// Proc seeds the command history, typically copied from the input
	// pair with the current command appended.
	Proc []ProcRecord
}

// Writer produces a new metadata file linking existing imagery, the
// shape a registration run leaves behind: the source imagery is
// preserved while the registered metadata is written fresh. Frames
// must arrive in increasing index order starting at zero.
type Writer struct {
	path   string
	file   *os.File
	zw     *zip.Writer
	opts   WriterOptions
	next   int
	closed bool
}

// NewWriter creates the metadata file. The linked imagery path is
// checked for form only; the caller owns its existence.
func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	if opts.Planned < 1 {
		return nil, fmt.Errorf("%w: planned frame count %d", ErrFormat, opts.Planned)
	}
	if opts.Width < 1 || opts.Height < 1 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrFormat, opts.Width, opts.Height)
	}
	if opts.ImsPath == "" || filepath.IsAbs(opts.ImsPath) || filepath.Ext(opts.ImsPath) != ".ims" {
		return nil, fmt.Errorf("%w: linked imagery path %q must be a relative .ims path", ErrFormat, opts.ImsPath)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, err)
	}
	return &Writer{path: path, file: f, zw: zip.NewWriter(f), opts: opts}, nil
}

// Committed reports how many frames have been written so far.
func (w *Writer) Committed() int { return w.next }

// WriteFrame commits one frame's metadata. Indices must be contiguous
// from zero; anything else reports ErrSequence.
func (w *Writer) WriteFrame(index int, meta FrameMeta) error {
	if w.closed {
		return fmt.Errorf("%w: write after close", ErrSequence)
	}
	if index != w.next {
		return fmt.Errorf("%w: got frame %d, want %d", ErrSequence, index, w.next)
	}
	if index >= w.opts.Planned {
		return fmt.Errorf("%w: frame %d beyond planned count %d", ErrSequence, index, w.opts.Planned)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode frame %d metadata: %w", index, err)
	}
	mw, err := w.zw.Create(nthName(index, w.opts.Planned, ".json"))
	if err != nil {
		return fmt.Errorf("frame %d metadata member: %w", index, err)
	}
	if _, err := mw.Write(data); err != nil {
		return fmt.Errorf("frame %d metadata member: %w", index, err)
	}
	w.next++
	return nil
}

// Close writes the index and command history, recording the number of
// frames actually committed, then finalizes the archive. A file
// closed early is a valid, shorter video.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	idx := canvIndex{
		Version:    FormatVersion,
		FrameCount: w.next,
		ImageSize:  [2]int{w.opts.Width, w.opts.Height},
		ImsPath:    w.opts.ImsPath,
	}
	if err := writeJSONMember(w.zw, "index.json", idx); err != nil {
		return err
	}
	if err := writeJSONMember(w.zw, "proc.json", procOrEmpty(w.opts.Proc)); err != nil {
		return err
	}
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("finalize %q: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close %q: %w", w.path, err)
	}
	return nil
}

// Abort closes and removes the file, for runs that failed before
// anything worth keeping was written.
func (w *Writer) Abort() {
	if !w.closed {
		w.closed = true
		_ = w.zw.Close()
		_ = w.file.Close()
	}
	_ = os.Remove(w.path)
}

// WriterPair writes a full .canv/.ims pair frame by frame, for
// producing entirely new videos rather than re-registered metadata.
type WriterPair struct {
	meta    *Writer
	imsPath string
	imsFile *os.File
	imsZip  *zip.Writer
	closed  bool
}

// NewWriterPair creates both archive files. The imagery path is the
// metadata path with its extension swapped for .ims.
func NewWriterPair(canvPath string, opts WriterOptions) (*WriterPair, error) {
	imsPath := canvPath[:len(canvPath)-len(filepath.Ext(canvPath))] + ".ims"
	opts.ImsPath = filepath.Base(imsPath)

	meta, err := NewWriter(canvPath, opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(imsPath)
	if err != nil {
		meta.Abort()
		return nil, fmt.Errorf("create %q: %w", imsPath, err)
	}
	return &WriterPair{meta: meta, imsPath: imsPath, imsFile: f, imsZip: zip.NewWriter(f)}, nil
}

// ImsPath returns the path of the imagery half of the pair.
func (w *WriterPair) ImsPath() string { return w.imsPath }

// Committed reports how many frames have been written so far.
func (w *WriterPair) Committed() int { return w.meta.Committed() }

// WriteFrame commits one frame to both archives.
func (w *WriterPair) WriteFrame(index int, meta FrameMeta, jpeg []byte) error {
	if err := w.meta.WriteFrame(index, meta); err != nil {
		return err
	}

	// JPEG payloads are already compressed; deflating them again only
	// burns CPU.
	iw, err := w.imsZip.CreateHeader(&zip.FileHeader{
		Name:   nthName(index, w.meta.opts.Planned, ".jpeg"),
		Method: zip.Store,
	})
	if err != nil {
		return fmt.Errorf("frame %d imagery member: %w", index, err)
	}
	if _, err := iw.Write(jpeg); err != nil {
		return fmt.Errorf("frame %d imagery member: %w", index, err)
	}
	return nil
}

// Close finalizes both archives with the committed frame count.
func (w *WriterPair) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	committed := w.meta.Committed()
	if err := w.meta.Close(); err != nil {
		return err
	}

	idx := imsIndex{Version: FormatVersion, FrameCount: committed}
	if err := writeJSONMember(w.imsZip, "index.json", idx); err != nil {
		return err
	}
	if err := writeJSONMember(w.imsZip, "proc.json", procOrEmpty(w.meta.opts.Proc)); err != nil {
		return err
	}
	if err := w.imsZip.Close(); err != nil {
		return fmt.Errorf("finalize %q: %w", w.imsPath, err)
	}
	if err := w.imsFile.Close(); err != nil {
		return fmt.Errorf("close %q: %w", w.imsPath, err)
	}
	return nil
}

// Abort closes and removes both halves.
func (w *WriterPair) Abort() {
	if !w.closed {
		w.closed = true
		_ = w.imsZip.Close()
		_ = w.imsFile.Close()
	}
	w.meta.Abort()
	_ = os.Remove(w.imsPath)
}

func writeJSONMember(zw *zip.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("member %q: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("member %q: %w", name, err)
	}
	return nil
}

func procOrEmpty(proc []ProcRecord) []ProcRecord {
	if proc == nil {
		return []ProcRecord{}
	}
	return proc
}
