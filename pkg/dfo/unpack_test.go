package dfo

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqbf/dfo/pkg/netstring"
)

// streamBuilder assembles raw streams record by record, valid or not.
type streamBuilder struct {
	buf bytes.Buffer
	w   *netstring.Writer
}

func newStream() *streamBuilder {
	b := &streamBuilder{}
	b.w = netstring.NewWriter(&b.buf)
	return b
}

func (b *streamBuilder) blob(s string) *streamBuilder {
	if err := b.w.WriteString(s); err != nil {
		panic(err)
	}
	return b
}

func (b *streamBuilder) reader() *bytes.Reader {
	return bytes.NewReader(b.buf.Bytes())
}

func memUnpack(t *testing.T, stream []byte) (*MemWriter, *Result, error) {
	t.Helper()
	mw := NewMemWriter()
	res, err := Unpack(bytes.NewReader(stream), "", &UnpackOptions{Writer: mw})
	return mw, res, err
}

func TestUnpackBadMagic(t *testing.T) {
	s := newStream().blob("dfo-X")
	_, err := Unpack(s.reader(), "", &UnpackOptions{Writer: Discard})
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "dfo-X")
}

func TestUnpackEmptyStream(t *testing.T) {
	_, err := Unpack(bytes.NewReader(nil), "", &UnpackOptions{Writer: Discard})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestUnpackOpRecordWithoutSeparator(t *testing.T) {
	// "Fname" has no space separator; nothing may be written before
	// the error surfaces.
	s := newStream().blob(Magic).blob("> .").blob("").blob("Fname")
	mw := NewMemWriter()
	_, err := Unpack(s.reader(), "", &UnpackOptions{Writer: mw})
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "Fname")
	assert.Empty(t, mw.Files)
}

func TestUnpackUnknownCommand(t *testing.T) {
	s := newStream().blob(Magic).blob("> .").blob("").blob("Z thing").blob("")
	_, err := Unpack(s.reader(), "", &UnpackOptions{Writer: Discard})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestUnpackMustOpenWithRoot(t *testing.T) {
	s := newStream().blob(Magic).blob("F a.txt").blob("hi")
	_, err := Unpack(s.reader(), "", &UnpackOptions{Writer: Discard})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestUnpackRejectsTraversalNames(t *testing.T) {
	for _, name := range []string{"..", "a/b", "../../etc", "x\ny"} {
		s := newStream().blob(Magic).blob("> .").blob("").
			blob("F " + name).blob("owned")
		mw := NewMemWriter()
		_, err := Unpack(s.reader(), "", &UnpackOptions{Writer: mw})
		assert.ErrorIs(t, err, ErrFormat, "%q", name)
		assert.Empty(t, mw.Files, "%q", name)
	}
}

func TestUnpackSentinelInsideTree(t *testing.T) {
	s := newStream().blob(Magic).blob("> .").blob("").blob("> .").blob("")
	_, err := Unpack(s.reader(), "", &UnpackOptions{Writer: Discard})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestUnpackPushPopNameMismatch(t *testing.T) {
	inner := ""
	s := newStream().blob(Magic).blob("> .").blob("").
		blob("> sub").blob("").
		blob("< bus").blob(inner)
	_, err := Unpack(s.reader(), "", &UnpackOptions{Writer: Discard})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestUnpackManifestReordered(t *testing.T) {
	// Correct entries, wrong order: the manifest checksum chain is
	// order-sensitive, so this must fail even though the entry set
	// matches.
	sumA := digest([]byte("A"))
	sumB := digest([]byte("B"))
	manifest := manifestLine(false, TypeFile, sumB, "b") +
		manifestLine(false, TypeFile, sumA, "a")

	s := newStream().blob(Magic).blob("> .").blob("").
		blob("F a").blob("A").
		blob("F b").blob("B").
		blob("< .").blob(manifest).
		blob(digest([]byte(manifest)))

	_, _, err := memUnpack(t, s.buf.Bytes())
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "expected:")
	assert.Contains(t, err.Error(), "actual:")
}

func TestUnpackWrongContent(t *testing.T) {
	manifest := manifestLine(false, TypeFile, digest([]byte("expected")), "a")
	s := newStream().blob(Magic).blob("> .").blob("").
		blob("F a").blob("tampered").
		blob("< .").blob(manifest).
		blob(digest([]byte(manifest)))

	_, _, err := memUnpack(t, s.buf.Bytes())
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestUnpackMalformedManifestLine(t *testing.T) {
	for _, manifest := range []string{
		"- F onlythreefields\n",
		"? F " + emptyDigest + " a\n",
		"- Q " + emptyDigest + " a\n",
		"- F " + emptyDigest + " a", // missing trailing newline
	} {
		s := newStream().blob(Magic).blob("> .").blob("").
			blob("< .").blob(manifest).
			blob(digest([]byte(manifest)))
		_, _, err := memUnpack(t, s.buf.Bytes())
		assert.ErrorIs(t, err, ErrFormat, "%q", manifest)
	}
}

func TestUnpackTruncated(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"a.txt": "some content here"})
	stream, _ := packTree(t, dir, nil)

	// Cut right after the header, mid-body, and with only the
	// trailer's terminator missing.
	for _, cut := range []int{
		len("5:dfo--\n"),
		len(stream) / 2,
		len(stream) - 1,
	} {
		_, _, err := memUnpack(t, stream[:cut])
		assert.ErrorIs(t, err, ErrTruncated, "cut at %d", cut)
	}
}

func TestUnpackDepthCap(t *testing.T) {
	s := newStream().blob(Magic).blob("> .").blob("")
	for i := 0; i < 10; i++ {
		s.blob("> deep").blob("")
	}
	_, err := Unpack(s.reader(), "", &UnpackOptions{
		Writer:   Discard,
		MaxDepth: 5,
	})
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "nesting")
}

func TestUnpackCorruptTrailer(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"a.txt": "hi\n"})
	stream, packed := packTree(t, dir, nil)

	// Flip the last hex character of the trailer.
	i := len(stream) - 2
	if stream[i] == 'f' {
		stream[i] = '0'
	} else {
		stream[i] = 'f'
	}

	// The body is self-consistent, so the tree still materializes;
	// only the caller-level trailer comparison fails.
	mw, res, err := memUnpack(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(mw.Files["a.txt"]))
	assert.Equal(t, packed.Checksum, res.Checksum)
	assert.NotEqual(t, res.Checksum, res.Trailer)
}

func TestUnpackIntoMemWriter(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
	})
	require.NoError(t, os.Chmod(filepath.Join(dir, "a.txt"), 0o755))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "ln")))
	stream, packed := packTree(t, dir, nil)

	mw, res, err := memUnpack(t, stream)
	require.NoError(t, err)

	assert.Equal(t, packed.Checksum, res.Checksum)
	assert.Equal(t, res.Trailer, res.Checksum)
	assert.Equal(t, packed.Nodes, res.Nodes)
	assert.Equal(t, "alpha", string(mw.Files["a.txt"]))
	assert.Equal(t, "beta", string(mw.Files["sub/b.txt"]))
	assert.Equal(t, "a.txt", mw.Links["ln"])
	assert.True(t, mw.Dirs["sub"])
	assert.True(t, mw.Exec["a.txt"])
	assert.False(t, mw.Exec["sub/b.txt"])
}

func TestUnpackIgnoresBytesAfterTrailer(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, map[string]string{"a.txt": "hi\n"})
	stream, _ := packTree(t, dir, nil)
	stream = append(stream, []byte("garbage after the stream")...)

	_, res, err := memUnpack(t, stream)
	require.NoError(t, err)
	assert.Equal(t, res.Trailer, res.Checksum)
}
