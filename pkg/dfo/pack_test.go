package dfo

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	emptyDigest = "da39a3ee5e6b4b0d3255bfef95601890afd80709" // sha1("")
	hiDigest    = "55ca6286e3e4f4fba5d0448333fa99fc5a404a73" // sha1("hi\n")
)

func makeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(dir, path)
		assert.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		assert.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func packTree(t *testing.T, dir string, opts *PackOptions) ([]byte, *PackResult) {
	t.Helper()
	var buf bytes.Buffer
	res, err := Pack(dir, &buf, opts)
	require.NoError(t, err)
	return buf.Bytes(), res
}

func TestPackEmptyDir(t *testing.T) {
	stream, res := packTree(t, t.TempDir(), nil)

	// The root manifest of an empty tree is the empty string.
	assert.Equal(t, emptyDigest, res.Checksum)
	assert.Equal(t, 1, res.Nodes)
	assert.Equal(t,
		"5:dfo--\n3:> .\n0:\n3:< .\n0:\n40:"+emptyDigest+"\n",
		string(stream),
	)
}

func TestPackSingleFile(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"a.txt": "hi\n"})

	stream, res := packTree(t, dir, nil)

	line := "- F " + hiDigest + " a.txt\n"
	assert.Equal(t, digest([]byte(line)), res.Checksum)
	assert.Equal(t, 2, res.Nodes)
	assert.Contains(t, string(stream), "7:F a.txt\n3:hi\n\n")
	assert.Contains(t, string(stream), line)
}

func TestPackDeterministic(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{
		"b.txt":       "bee",
		"a.txt":       "ay",
		"sub/c.txt":   "sea",
		"sub/d/e.txt": "ee",
	})
	require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "link")))

	first, res1 := packTree(t, dir, nil)
	second, res2 := packTree(t, dir, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, res1.Checksum, res2.Checksum)
	assert.Equal(t, 8, res1.Nodes)
}

func TestPackSensitivity(t *testing.T) {
	base := map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
	}

	dir := t.TempDir()
	makeTree(t, dir, base)
	_, orig := packTree(t, dir, nil)

	// Flip one byte of content.
	dir2 := t.TempDir()
	makeTree(t, dir2, map[string]string{
		"a.txt":     "alphA",
		"sub/b.txt": "beta",
	})
	_, changed := packTree(t, dir2, nil)
	assert.NotEqual(t, orig.Checksum, changed.Checksum)

	// Rename a deeply nested file.
	dir3 := t.TempDir()
	makeTree(t, dir3, map[string]string{
		"a.txt":     "alpha",
		"sub/c.txt": "beta",
	})
	_, renamed := packTree(t, dir3, nil)
	assert.NotEqual(t, orig.Checksum, renamed.Checksum)

	// Flip only the executable bit.
	dir4 := t.TempDir()
	makeTree(t, dir4, base)
	require.NoError(t, os.Chmod(filepath.Join(dir4, "a.txt"), 0o755))
	_, chmodded := packTree(t, dir4, nil)
	assert.NotEqual(t, orig.Checksum, chmodded.Checksum)
}

func TestPackExecBit(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"run.sh": "#!/bin/sh\n"})
	require.NoError(t, os.Chmod(filepath.Join(dir, "run.sh"), 0o755))

	stream, _ := packTree(t, dir, nil)
	assert.Contains(t, string(stream), "x F ")
}

func TestPackSymlinkChecksum(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("target/path", filepath.Join(dir, "ln")))

	_, res := packTree(t, dir, nil)

	line := "- L " + digest([]byte("target/path")) + " ln\n"
	assert.Equal(t, digest([]byte(line)), res.Checksum)
}

func TestPackExcludes(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{
		"main.go":           "package main",
		"main.o":            "object",
		"node_modules/a.js": "module",
	})

	stream, res := packTree(t, dir, &PackOptions{
		Excludes: []string{"*.o", "node_modules"},
	})

	assert.Equal(t, 2, res.Nodes)
	assert.NotContains(t, string(stream), "main.o")
	assert.NotContains(t, string(stream), "node_modules")

	// An excluded tree hashes identically to one where the excluded
	// entries never existed.
	clean := t.TempDir()
	makeTree(t, clean, map[string]string{"main.go": "package main"})
	_, cleanRes := packTree(t, clean, nil)
	assert.Equal(t, cleanRes.Checksum, res.Checksum)
}

func TestPackRejectsNewlineName(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"bad\nname": "x"})

	var buf bytes.Buffer
	_, err := Pack(dir, &buf, nil)
	assert.Error(t, err)
}

func TestPackNestedManifestComposition(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"sub/a.txt": "hi\n"})

	_, res := packTree(t, dir, nil)

	inner := "- F " + hiDigest + " a.txt\n"
	outer := "- D " + digest([]byte(inner)) + " sub\n"
	assert.Equal(t, digest([]byte(outer)), res.Checksum)
	assert.Equal(t, 3, res.Nodes)
}
