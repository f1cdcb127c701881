// Package paths holds the naming and matching rules shared by the
// packer and unpacker: what a single archive entry may be called, and
// which entries an exclude pattern removes from a pack.
package paths

import (
	"fmt"
	"strings"
)

// RootName is the sentinel used for the unnamed root directory in an
// archive stream. It is not a legal entry name, which is what makes it
// usable as a sentinel.
const RootName = "."

// ValidateName checks a single entry name as it appears in op records
// and manifest lines. Names are single path components: no separators,
// no newlines (the manifest is line-oriented), and neither "." nor
// "..". The packer applies this to what it finds on disk; the unpacker
// applies it to every name it reads before touching the filesystem.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case name == "." || name == "..":
		return fmt.Errorf("reserved name %q", name)
	case strings.ContainsAny(name, "/\n"):
		return fmt.Errorf("name %q contains a path separator or newline", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("name %q contains a null byte", name)
	}
	return nil
}
