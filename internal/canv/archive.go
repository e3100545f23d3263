package canv

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// nthName builds the zero-padded member name for a frame, padded to
// the digit count of the total frame count.
func nthName(num, count int, suffix string) string {
	return fmt.Sprintf("%0*d%s", len(strconv.Itoa(count)), num, suffix)
}

// frameMembers indexes the numbered archive members carrying the given
// suffix by their frame number. Padding width is not assumed, so a
// truncated pair whose names were padded for a larger planned count
// still resolves.
func frameMembers(files []*zip.File, suffix string) (map[int]*zip.File, error) {
	members := make(map[int]*zip.File)
	for _, f := range files {
		stem, ok := strings.CutSuffix(f.Name, suffix)
		if !ok || stem == "" {
			continue
		}
		num, err := strconv.Atoi(stem)
		if err != nil || num < 0 {
			continue
		}
		if _, dup := members[num]; dup {
			return nil, fmt.Errorf("%w: duplicate frame member %q", ErrFormat, f.Name)
		}
		members[num] = f
	}
	return members, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %q: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read member %q: %w", f.Name, err)
	}
	return data, nil
}

func readJSONMember(rc *zip.ReadCloser, name string, v any) error {
	for _, f := range rc.File {
		if f.Name != name {
			continue
		}
		data, err := readMember(f)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: parse %q: %v", ErrFormat, name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: member %q missing", ErrFormat, name)
}

func checkProc(proc []ProcRecord) error {
	for i, rec := range proc {
		if rec.Cmds == nil {
			return fmt.Errorf("%w: proc record %d has no cmds", ErrFormat, i)
		}
	}
	return nil
}

// checkFrameSet verifies that every index in [0, count) resolves to a
// member, so each frame reference points at exactly one blob.
func checkFrameSet(members map[int]*zip.File, count int, what string) error {
	for i := 0; i < count; i++ {
		if _, ok := members[i]; !ok {
			return fmt.Errorf("%w: %s for frame %d missing", ErrFormat, what, i)
		}
	}
	return nil
}
