package preflight

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// CheckInputVideo verifies that the input is a readable .canv file. The
// archive itself is validated on open; this only rules out path typos.
func CheckInputVideo(path string) Result {
	const name = "Input video"

	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "no input path given"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if filepath.Ext(path) != ".canv" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a .canv file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckReferences verifies that every reference dataset path exists and
// carries the .r3db suffix.
func CheckReferences(paths []string) Result {
	const name = "Reference datasets"

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
			}
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
		if info.IsDir() {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
		}
		if filepath.Ext(path) != ".r3db" {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a .r3db file)", path)}
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d dataset(s) found", len(paths))}
}

// CheckOutputDirectory verifies that the output directory exists, is
// writable, and has at least minFreeGiB of free space for the output
// video pair and the journal.
func CheckOutputDirectory(path string, minFreeGiB int) Result {
	const name = "Output directory"

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}

	free, err := freeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	need := uint64(minFreeGiB) * 1024 * 1024 * 1024
	if free < need {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %.1f GiB free, need %d GiB)", path, float64(free)/(1024*1024*1024), minFreeGiB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%.1f GiB free)", path, float64(free)/(1024*1024*1024))}
}

// CheckServerAddress verifies the server address form: either a
// tcp://host:port URL of a running server or a path to a server binary
// this process can execute.
func CheckServerAddress(address string) Result {
	const name = "Server"

	address = strings.TrimSpace(address)
	if address == "" {
		return Result{Name: name, Detail: "no server address configured"}
	}

	if strings.HasPrefix(address, "tcp://") {
		parsed, err := url.Parse(address)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", address, err)}
		}
		host, port, err := net.SplitHostPort(parsed.Host)
		if err != nil || host == "" || port == "" {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: want tcp://host:port)", address)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (public server)", address)}
	}

	info, err := os.Stat(address)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", address)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", address, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", address)}
	}
	if err := unix.Access(address, unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not executable: %v)", address, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (private server binary)", address)}
}

func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
