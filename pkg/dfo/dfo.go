// Package dfo serializes a directory tree to a single content-addressed
// byte stream and reconstructs a tree from such a stream while proving
// its integrity.
//
// A stream is a sequence of counted records: a fixed magic header, one
// (op, data) record pair per node emitted by a depth-first traversal,
// and a trailer holding the root checksum. Directories are framed by a
// push/pop pair whose pop record carries the directory's manifest: one
// text line per direct child with its permission flag, type, checksum,
// and name, in sorted order. A directory's checksum is the digest of
// those exact manifest bytes, so the root checksum is a Merkle-style
// hash of the whole tree's content, names, structure, and executable
// bits.
package dfo

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Magic identifies a dfo stream. Framed, it is the 8-byte record
// "5:dfo--\n", which makes streams recognizable by file(1).
const Magic = "dfo--"

// Stream op commands. Each op record is "<cmd> <name>".
const (
	opPush = '>' // open a directory
	opPop  = '<' // close a directory; data blob is its manifest
	opFile = 'F' // regular file; data blob is its content
	opLink = 'L' // symlink; data blob is its target
)

// Node types as they appear in manifest lines.
const (
	TypeFile    = 'F'
	TypeSymlink = 'L'
	TypeDir     = 'D'
)

// MaxDepth is the default cap on directory nesting during unpack.
const MaxDepth = 1000

// Entry describes one node observed while reading a stream. Path is
// slash-separated and relative to the tree root.
type Entry struct {
	Path     string
	Type     byte
	Checksum string
	Exec     bool
}

func digest(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// manifestLine renders one directory-manifest line. The exact bytes
// matter: the directory's checksum is the digest of its concatenated
// lines.
func manifestLine(exec bool, typ byte, checksum, name string) string {
	p := byte('-')
	if exec {
		p = 'x'
	}
	return fmt.Sprintf("%c %c %s %s\n", p, typ, checksum, name)
}

// parseManifestLine splits a line into its four single-space-separated
// fields, rejecting anything looser.
func parseManifestLine(line string) (Entry, error) {
	fields := strings.SplitN(line, " ", 4)
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf(
			"%w: manifest line %q: want 4 fields, got %d",
			ErrFormat, line, len(fields),
		)
	}
	var e Entry
	switch fields[0] {
	case "x":
		e.Exec = true
	case "-":
	default:
		return Entry{}, fmt.Errorf(
			"%w: manifest line %q: bad exec flag %q",
			ErrFormat, line, fields[0],
		)
	}
	switch fields[1] {
	case "F", "L", "D":
		e.Type = fields[1][0]
	default:
		return Entry{}, fmt.Errorf(
			"%w: manifest line %q: bad node type %q",
			ErrFormat, line, fields[1],
		)
	}
	e.Checksum = fields[2]
	e.Path = fields[3]
	return e, nil
}
