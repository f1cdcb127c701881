package dfo

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/tqbf/dfo/pkg/netstring"
	"github.com/tqbf/dfo/pkg/paths"
)

type UnpackOptions struct {
	// Writer receives the materialized tree. Defaults to a DiskWriter
	// rooted at the destination directory, which is created (one
	// level) if missing.
	Writer TreeWriter

	// Observer, if set, is called once per node as its checksum
	// becomes known: files and symlinks when their parent directory
	// closes, directories when their own parent closes. The root has
	// no manifest line and is never observed.
	Observer func(Entry)

	// MaxDepth caps directory nesting; exceeding it is a format
	// error. Defaults to MaxDepth.
	MaxDepth int

	// MaxBlob caps the declared size of in-memory records (op
	// records, manifests, symlink targets). File content is streamed
	// and exempt. Defaults to netstring.DefaultMaxBlob.
	MaxBlob int64
}

type Result struct {
	// Checksum is the root checksum computed from the stream body at
	// the final pop.
	Checksum string

	// Trailer is the root checksum the stream's trailer claims. The
	// caller decides what a mismatch means; the body itself has
	// already been verified against its own manifests either way.
	Trailer string

	// Nodes counts every node materialized, including the root.
	Nodes int
}

// Unpack reads one dfo stream from r and materializes it under dest,
// verifying every directory's manifest as it closes. Bytes after the
// trailer are left unread. On error the destination may hold a
// partially materialized, unverified tree.
func Unpack(r io.Reader, dest string, opts *UnpackOptions) (*Result, error) {
	if opts == nil {
		opts = &UnpackOptions{}
	}
	tw := opts.Writer
	if tw == nil {
		if err := os.Mkdir(dest, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create %s: %w", dest, err)
		}
		tw = NewDiskWriter(dest)
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}

	nr := netstring.NewReader(r)
	nr.SetMaxBlob(opts.MaxBlob)

	u := &unpacker{
		nr:       nr,
		tw:       tw,
		observer: opts.Observer,
		maxDepth: maxDepth,
	}
	return u.run()
}

// unpacker is the stream state machine. Directory nesting lives in two
// explicit parallel stacks (the verifier's collectors and the path
// stack), not the call stack, so depth is bounded only by MaxDepth.
type unpacker struct {
	nr       *netstring.Reader
	tw       TreeWriter
	observer func(Entry)
	maxDepth int

	v     verifier
	dir   string   // slash-joined path of the open directory
	stack []string // enclosing directory paths, innermost last
	names []string // names pushed per level, for pop cross-checks
	nodes int
}

func (u *unpacker) run() (*Result, error) {
	header, err := u.nr.ReadBlob()
	if err != nil {
		return nil, readErr(err, "header")
	}
	if string(header) != Magic {
		return nil, fmt.Errorf(
			"%w: expected %q header, got %q", ErrFormat, Magic, header,
		)
	}

	var root string
	for {
		op, err := u.nr.ReadBlob()
		if err != nil {
			return nil, readErr(err, "op record")
		}
		cmd, name, err := parseOp(op)
		if err != nil {
			return nil, err
		}

		done, sum, err := u.step(cmd, name)
		if err != nil {
			return nil, err
		}
		if done {
			root = sum
			break
		}
	}

	trailer, err := u.nr.ReadBlob()
	if err != nil {
		return nil, readErr(err, "trailer")
	}
	return &Result{
		Checksum: root,
		Trailer:  string(trailer),
		Nodes:    u.nodes,
	}, nil
}

// step executes one (op, data) pair. It returns done=true with the
// root checksum when the outermost directory closes.
func (u *unpacker) step(cmd byte, name string) (bool, string, error) {
	switch cmd {
	case opPush, opPop, opFile, opLink:
	default:
		return false, "", fmt.Errorf(
			"%w: unknown command %q in op record", ErrFormat, cmd,
		)
	}

	// The sentinel "." names the unnamed root and appears exactly
	// twice, bracketing the whole stream. Every other name must be a
	// clean single-component name before it goes near a filesystem.
	depth := u.v.depth()
	if depth == 0 {
		if cmd != opPush || name != paths.RootName {
			return false, "", fmt.Errorf(
				"%w: stream must open with the root directory, got %q %q",
				ErrFormat, cmd, name,
			)
		}
	} else if cmd != opPop || depth != 1 || name != paths.RootName {
		if err := paths.ValidateName(name); err != nil {
			return false, "", fmt.Errorf(
				"%w: op record name: %v", ErrFormat, err,
			)
		}
	}

	switch cmd {
	case opPush:
		return false, "", u.push(name)
	case opPop:
		return u.pop(name)
	case opFile:
		return false, "", u.file(name)
	}
	return false, "", u.link(name)
}

func (u *unpacker) push(name string) error {
	// The opening record's data blob is unused; read and discard it.
	if _, err := u.nr.ReadBlob(); err != nil {
		return readErr(err, "directory blob")
	}
	if u.v.depth() >= u.maxDepth {
		return fmt.Errorf(
			"%w: directory nesting exceeds %d", ErrFormat, u.maxDepth,
		)
	}

	u.stack = append(u.stack, u.dir)
	u.names = append(u.names, name)
	if name != paths.RootName {
		u.dir = path.Join(u.dir, name)
		if err := u.tw.MkDir(u.dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", u.dir, err)
		}
	}
	u.v.push()
	return nil
}

func (u *unpacker) pop(name string) (bool, string, error) {
	manifest, err := u.nr.ReadBlob()
	if err != nil {
		return false, "", readErr(err, "directory manifest")
	}
	if pushed := u.names[len(u.names)-1]; name != pushed {
		return false, "", fmt.Errorf(
			"%w: directory opened as %q, closed as %q",
			ErrFormat, pushed, name,
		)
	}

	closing := u.dir
	entries, sum, err := u.v.pop(closing, manifest)
	if err != nil {
		return false, "", err
	}

	// The executable bit is restored only now, with the directory's
	// content already verified.
	for _, e := range entries {
		if !e.Exec {
			continue
		}
		if err := u.tw.SetExec(path.Join(closing, e.Path)); err != nil {
			return false, "", fmt.Errorf("chmod +x %s: %w", e.Path, err)
		}
	}
	u.observe(closing, entries)
	slog.Debug("verified", "dir", displayPath(closing), "entries", len(entries))

	u.dir = u.stack[len(u.stack)-1]
	u.stack = u.stack[:len(u.stack)-1]
	u.names = u.names[:len(u.names)-1]
	u.nodes++

	if u.v.depth() == 0 {
		return true, sum, nil
	}
	u.v.onEntry(name, sum)
	return false, "", nil
}

func (u *unpacker) file(name string) error {
	size, br, err := u.nr.BlobReader()
	if err != nil {
		return readErr(err, "file content")
	}

	target := path.Join(u.dir, name)
	f, err := u.tw.CreateFile(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	h := sha1.New()
	_, err = io.Copy(io.MultiWriter(f, h), br)
	closeErr := f.Close()
	if err != nil {
		return readErr(err, fmt.Sprintf("content of %s (%d bytes)", target, size))
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", target, closeErr)
	}

	u.v.onEntry(name, hex.EncodeToString(h.Sum(nil)))
	u.nodes++
	return nil
}

func (u *unpacker) link(name string) error {
	target, err := u.nr.ReadBlob()
	if err != nil {
		return readErr(err, "symlink target")
	}

	dest := path.Join(u.dir, name)
	if err := u.tw.Symlink(string(target), dest); err != nil {
		return fmt.Errorf("symlink %s: %w", dest, err)
	}

	u.v.onEntry(name, digest(target))
	u.nodes++
	return nil
}

func (u *unpacker) observe(dir string, entries []Entry) {
	if u.observer == nil {
		return
	}
	for _, e := range entries {
		e.Path = path.Join(dir, e.Path)
		u.observer(e)
	}
}

// parseOp splits an op record into its command byte and name. The
// separator is exactly one space; the name may itself contain spaces.
func parseOp(op []byte) (byte, string, error) {
	s := string(op)
	cmd, name, ok := strings.Cut(s, " ")
	if !ok || len(cmd) != 1 {
		return 0, "", fmt.Errorf("%w: invalid op record %q", ErrFormat, s)
	}
	return cmd[0], name, nil
}
