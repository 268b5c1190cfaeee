package fileio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPreallocateCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	if err := Preallocate(path, 4096); err != nil {
		t.Fatalf("Preallocate: %v", err)
	}
	size, exists, err := Size(path)
	if err != nil || !exists {
		t.Fatalf("Size: exists=%v err=%v", exists, err)
	}
	if size != 4096 {
		t.Errorf("got size %d, want 4096", size)
	}
}

func TestPreallocateKeepsExistingBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(path, []byte("hello world, this is longer"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Preallocate(path, 5); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if err := Preallocate(path, 10); err != nil {
		t.Fatalf("grow: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := append([]byte("hello"), make([]byte, 5)...)
	if !bytes.Equal(data, want) {
		t.Errorf("got %q, want %q", data, want)
	}
}

func TestPreallocateBadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.bin")
	err := Preallocate(path, 10)
	if !errors.Is(err, ErrFileSystem) {
		t.Errorf("got %v, want ErrFileSystem", err)
	}
}

func TestSizeMissing(t *testing.T) {
	_, exists, err := Size(filepath.Join(t.TempDir(), "nope"))
	if err != nil || exists {
		t.Errorf("got exists=%v err=%v, want false nil", exists, err)
	}
}

func TestOpenWriterMissingFile(t *testing.T) {
	_, err := OpenWriter(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrFileSystem) {
		t.Errorf("got %v, want ErrFileSystem", err)
	}
}

func TestWriterConcurrentDisjointRanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	const parts, partSize = 16, 1024
	if err := Preallocate(path, parts*partSize); err != nil {
		t.Fatalf("Preallocate: %v", err)
	}
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, parts)
	for i := range parts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunk := bytes.Repeat([]byte{byte('a' + i)}, partSize)
			// two halves to interleave with other writers
			if err := w.WriteAt(chunk[partSize/2:], int64(i*partSize+partSize/2)); err != nil {
				errs <- err
			}
			if err := w.WriteAt(chunk[:partSize/2], int64(i*partSize)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for i := range parts {
		want := bytes.Repeat([]byte{byte('a' + i)}, partSize)
		if got := data[i*partSize : (i+1)*partSize]; !bytes.Equal(got, want) {
			t.Errorf("part %d corrupted", i)
		}
	}
}
