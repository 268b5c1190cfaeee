package fileio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrFileSystem marks failures to create, resize or open the output file.
var ErrFileSystem = errors.New("output file error")

// Preallocate creates path if needed and sets its length to exactly size
// bytes. Bytes already present below size are kept, so a resumed download
// does not lose data when only the length is wrong.
func Preallocate(path string, size int64) error {
	var current int64
	if info, err := os.Stat(path); err == nil {
		current = info.Size()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrFileSystem, err)
	}
	if grow := size - current; grow > 0 {
		if err := checkFreeSpace(filepath.Dir(path), uint64(grow)); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: error creating %s: %v", ErrFileSystem, path, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("%w: error resizing %s to %d bytes: %v", ErrFileSystem, path, size, err)
	}
	return nil
}

// checkFreeSpace fails when the volume holding dir cannot fit need more
// bytes. Volumes that do not report usage are not checked.
func checkFreeSpace(dir string, need uint64) error {
	usage, err := disk.Usage(dir)
	if err != nil || usage == nil {
		return nil
	}
	if usage.Free < need {
		return fmt.Errorf("%w: need %d bytes in %s, only %d free", ErrFileSystem, need, dir, usage.Free)
	}
	return nil
}

// Size returns the current length of path, or false if it does not exist.
func Size(path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrFileSystem, err)
	}
	return info.Size(), true, nil
}

// Writer performs positioned writes into an existing output file. WriteAt
// may be called from many goroutines as long as their ranges never overlap.
type Writer struct {
	f *os.File
}

func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: error opening %s: %v", ErrFileSystem, path, err)
	}
	return &Writer{f: f}, nil
}

// WriteAt writes all of p at offset off. It returns only after the OS has
// accepted every byte.
func (w *Writer) WriteAt(p []byte, off int64) error {
	n, err := w.f.WriteAt(p, off)
	if err != nil {
		return fmt.Errorf("error writing %d bytes at offset %d: %w", len(p), off, err)
	}
	if n != len(p) {
		return fmt.Errorf("short write at offset %d: %d of %d bytes", off, n, len(p))
	}
	return nil
}

// Sync flushes written bytes to stable storage.
func (w *Writer) Sync() error {
	return w.f.Sync()
}

func (w *Writer) Close() error {
	syncErr := w.f.Sync()
	if err := w.f.Close(); err != nil {
		return err
	}
	return syncErr
}
