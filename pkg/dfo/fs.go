package dfo

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// TreeWriter is the set of filesystem capabilities the unpacker needs.
// Paths are slash-separated and relative to the destination root.
// MkDir and Symlink tolerate a target that already exists, so a stream
// can be re-unpacked over its own output.
type TreeWriter interface {
	MkDir(path string) error
	CreateFile(path string) (io.WriteCloser, error)
	Symlink(target, path string) error
	SetExec(path string) error
}

// Discard is a TreeWriter that materializes nothing. Verify and List
// run the full unpack state machine against it.
var Discard TreeWriter = discardWriter{}

type discardWriter struct{}

func (discardWriter) MkDir(string) error           { return nil }
func (discardWriter) Symlink(string, string) error { return nil }
func (discardWriter) SetExec(string) error         { return nil }

func (discardWriter) CreateFile(string) (io.WriteCloser, error) {
	return nopCloser{io.Discard}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// DiskWriter writes a tree under Root on the real filesystem.
type DiskWriter struct {
	Root string
}

func NewDiskWriter(root string) *DiskWriter {
	return &DiskWriter{Root: root}
}

func (d *DiskWriter) resolve(path string) string {
	return filepath.Join(d.Root, filepath.FromSlash(path))
}

// MkDir creates exactly one directory level.
func (d *DiskWriter) MkDir(path string) error {
	err := os.Mkdir(d.resolve(path), 0o755)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

func (d *DiskWriter) CreateFile(path string) (io.WriteCloser, error) {
	return os.Create(d.resolve(path))
}

func (d *DiskWriter) Symlink(target, path string) error {
	err := os.Symlink(target, d.resolve(path))
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

// SetExec adds the execute bits to an already-written file. Adding
// bits that are already present is a no-op.
func (d *DiskWriter) SetExec(path string) error {
	full := d.resolve(path)
	info, err := os.Lstat(full)
	if err != nil {
		return err
	}
	return os.Chmod(full, info.Mode().Perm()|0o111)
}

// MemWriter materializes a tree in memory. It backs hermetic tests and
// any caller that wants to receive a stream without filesystem side
// effects.
type MemWriter struct {
	Dirs  map[string]bool
	Files map[string][]byte
	Links map[string]string
	Exec  map[string]bool
}

func NewMemWriter() *MemWriter {
	return &MemWriter{
		Dirs:  make(map[string]bool),
		Files: make(map[string][]byte),
		Links: make(map[string]string),
		Exec:  make(map[string]bool),
	}
}

func (m *MemWriter) MkDir(path string) error {
	m.Dirs[path] = true
	return nil
}

func (m *MemWriter) CreateFile(path string) (io.WriteCloser, error) {
	return &memFile{m: m, path: path}, nil
}

func (m *MemWriter) Symlink(target, path string) error {
	m.Links[path] = target
	return nil
}

func (m *MemWriter) SetExec(path string) error {
	m.Exec[path] = true
	return nil
}

type memFile struct {
	m    *MemWriter
	path string
	buf  bytes.Buffer
}

func (f *memFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

func (f *memFile) Close() error {
	f.m.Files[f.path] = f.buf.Bytes()
	return nil
}
