package dfo

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/tqbf/dfo/pkg/netstring"
	"github.com/tqbf/dfo/pkg/paths"
)

type PackOptions struct {
	// Excludes removes matching paths from the archive entirely; an
	// excluded entry appears in no manifest and does not affect the
	// root checksum.
	Excludes []string

	// ChunkSize is the copy-buffer size used when streaming file
	// content. Defaults to 1 MiB.
	ChunkSize int
}

type PackResult struct {
	// Checksum is the root checksum: the digest of the root
	// directory's manifest, a content-derived name for the whole tree.
	Checksum string

	// Nodes counts every file, directory, and symlink in the stream,
	// including the root directory itself.
	Nodes int
}

// Pack serializes the tree rooted at root to w. It never mutates the
// source tree, reads each regular file exactly once in bounded-size
// chunks, and produces byte-identical output for an unmodified tree.
func Pack(root string, w io.Writer, opts *PackOptions) (*PackResult, error) {
	if opts == nil {
		opts = &PackOptions{}
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = 1 << 20
	}

	p := &packer{
		root:    root,
		nw:      netstring.NewWriter(w),
		matcher: paths.NewExcludeMatcher(opts.Excludes),
		buf:     make([]byte, chunk),
	}

	if err := p.nw.WriteString(Magic); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := p.writePair(opPush, paths.RootName); err != nil {
		return nil, err
	}
	if err := p.nw.WriteBlob(nil); err != nil {
		return nil, err
	}

	manifest, count, err := p.packDir("")
	if err != nil {
		return nil, err
	}

	if err := p.writePair(opPop, paths.RootName); err != nil {
		return nil, err
	}
	if err := p.nw.WriteBlob(manifest); err != nil {
		return nil, err
	}

	sum := digest(manifest)
	if err := p.nw.WriteString(sum); err != nil {
		return nil, fmt.Errorf("write trailer: %w", err)
	}
	return &PackResult{Checksum: sum, Nodes: count + 1}, nil
}

type packer struct {
	root    string
	nw      *netstring.Writer
	matcher *paths.ExcludeMatcher
	buf     []byte
}

func (p *packer) writePair(cmd byte, name string) error {
	if err := p.nw.WriteString(fmt.Sprintf("%c %s", cmd, name)); err != nil {
		return fmt.Errorf("write op record: %w", err)
	}
	return nil
}

// packDir serializes one directory level, depth first, and returns the
// directory's manifest bytes along with the number of nodes below it.
// Entries are visited in byte-wise name order; the manifest bytes, and
// therefore every checksum above this point, depend on that order.
func (p *packer) packDir(rel string) ([]byte, int, error) {
	full := filepath.Join(p.root, filepath.FromSlash(rel))
	slog.Debug("pack", "dir", displayPath(rel))

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, 0, fmt.Errorf("read dir %s: %w", displayPath(rel), err)
	}

	var manifest bytes.Buffer
	count := 0
	for _, ent := range entries {
		name := ent.Name()
		childRel := path.Join(rel, name)
		if p.matcher.Match(childRel) {
			slog.Debug("pack exclude", "path", childRel)
			continue
		}
		if err := paths.ValidateName(name); err != nil {
			return nil, 0, fmt.Errorf("cannot pack %s: %v", childRel, err)
		}

		info, err := ent.Info()
		if err != nil {
			return nil, 0, fmt.Errorf("stat %s: %w", childRel, err)
		}

		typ, sum, err := p.packNode(childRel, name, info)
		if err != nil {
			return nil, 0, err
		}
		count += sum.count + 1

		exec := typ == TypeFile && info.Mode().Perm()&0o100 != 0
		manifest.WriteString(manifestLine(exec, typ, sum.checksum, name))
	}
	return manifest.Bytes(), count, nil
}

// nodeSum carries a node's checksum and, for directories, its subtree
// node count.
type nodeSum struct {
	checksum string
	count    int
}

func (p *packer) packNode(rel, name string, info fs.FileInfo) (byte, nodeSum, error) {
	full := filepath.Join(p.root, filepath.FromSlash(rel))
	mode := info.Mode()

	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return 0, nodeSum{}, fmt.Errorf("readlink %s: %w", rel, err)
		}
		if err := p.writePair(opLink, name); err != nil {
			return 0, nodeSum{}, err
		}
		if err := p.nw.WriteString(target); err != nil {
			return 0, nodeSum{}, fmt.Errorf("write %s: %w", rel, err)
		}
		return TypeSymlink, nodeSum{checksum: digest([]byte(target))}, nil

	case mode.IsRegular():
		if err := p.writePair(opFile, name); err != nil {
			return 0, nodeSum{}, err
		}
		sum, err := p.packFile(full, rel, info.Size())
		if err != nil {
			return 0, nodeSum{}, err
		}
		return TypeFile, nodeSum{checksum: sum}, nil

	case mode.IsDir():
		if err := p.writePair(opPush, name); err != nil {
			return 0, nodeSum{}, err
		}
		if err := p.nw.WriteBlob(nil); err != nil {
			return 0, nodeSum{}, err
		}
		manifest, n, err := p.packDir(rel)
		if err != nil {
			return 0, nodeSum{}, err
		}
		if err := p.writePair(opPop, name); err != nil {
			return 0, nodeSum{}, err
		}
		if err := p.nw.WriteBlob(manifest); err != nil {
			return 0, nodeSum{}, fmt.Errorf("write %s: %w", rel, err)
		}
		return TypeDir, nodeSum{checksum: digest(manifest), count: n}, nil
	}

	return 0, nodeSum{}, fmt.Errorf(
		"%w: %s (mode %v)", ErrUnsupported, rel, mode,
	)
}

// packFile streams one regular file into the output as a single
// counted record, updating the digest incrementally so peak memory
// stays independent of file size. The record size is declared from
// stat, so a file that changes size mid-pack fails the write.
func (p *packer) packFile(full, rel string, size int64) (string, error) {
	f, err := os.Open(full)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	bw, err := p.nw.BlobWriter(size)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}

	h := sha1.New()
	if _, err := io.CopyBuffer(io.MultiWriter(bw, h), f, p.buf); err != nil {
		return "", fmt.Errorf("pack %s: %w", rel, err)
	}
	if err := bw.Close(); err != nil {
		return "", fmt.Errorf("pack %s: %w", rel, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
