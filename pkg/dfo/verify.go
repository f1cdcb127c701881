package dfo

import (
	"fmt"
	"strings"
)

// pair is one (name, checksum) observation inside a directory, in the
// order the stream delivered it.
type pair struct {
	name     string
	checksum string
}

// verifier checks that a stream's content matches the manifests it
// claims. One collector per open directory: entries accumulate as
// children stream past, and the pop record's manifest is compared
// against them when the directory closes.
type verifier struct {
	stack [][]pair
}

func (v *verifier) push() {
	v.stack = append(v.stack, nil)
}

func (v *verifier) depth() int {
	return len(v.stack)
}

// onEntry records an actual child of the currently open directory.
func (v *verifier) onEntry(name, checksum string) {
	top := len(v.stack) - 1
	v.stack[top] = append(v.stack[top], pair{name, checksum})
}

// pop validates the closing directory against the manifest carried by
// its pop record. It returns the parsed manifest entries (in manifest
// order) and the directory's own checksum, the digest of the manifest
// bytes. dirPath is used only for error reporting.
func (v *verifier) pop(dirPath string, manifest []byte) ([]Entry, string, error) {
	expected, err := parseManifest(manifest)
	if err != nil {
		return nil, "", err
	}

	actual := v.stack[len(v.stack)-1]
	if err := matchEntries(dirPath, expected, actual); err != nil {
		return nil, "", err
	}

	v.stack = v.stack[:len(v.stack)-1]
	return expected, digest(manifest), nil
}

func parseManifest(manifest []byte) ([]Entry, error) {
	text := string(manifest)
	if text != "" && !strings.HasSuffix(text, "\n") {
		return nil, fmt.Errorf(
			"%w: manifest does not end in newline", ErrFormat,
		)
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if line == "" {
			continue
		}
		e, err := parseManifestLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// matchEntries requires the expected and actual (name, checksum) lists
// to agree exactly: same length, same order, same values.
func matchEntries(dirPath string, expected []Entry, actual []pair) error {
	ok := len(expected) == len(actual)
	if ok {
		for i, e := range expected {
			if e.Path != actual[i].name || e.Checksum != actual[i].checksum {
				ok = false
				break
			}
		}
	}
	if ok {
		return nil
	}

	var b strings.Builder
	b.WriteString("expected:\n")
	for _, e := range expected {
		fmt.Fprintf(&b, "    %s %s\n", e.Path, e.Checksum)
	}
	b.WriteString("actual:\n")
	for _, a := range actual {
		fmt.Fprintf(&b, "    %s %s\n", a.name, a.checksum)
	}
	return fmt.Errorf(
		"%w: directory %q manifest mismatch\n%s",
		ErrIntegrity, displayPath(dirPath), strings.TrimSuffix(b.String(), "\n"),
	)
}

func displayPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}
