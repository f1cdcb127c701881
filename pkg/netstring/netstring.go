// Package netstring reads and writes counted byte strings in the
// dfo variant of the netstring format: a decimal length, a colon, the
// payload, and a terminating newline. The newline (rather than the
// classic comma) keeps streams inspectable with ordinary text tools.
package netstring

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrFormat reports a malformed length prefix or terminator.
	ErrFormat = errors.New("netstring: invalid record")

	// ErrTruncated reports EOF in the middle of a record.
	ErrTruncated = errors.New("netstring: truncated record")

	// ErrTooLarge reports a declared length above the reader's cap.
	ErrTooLarge = errors.New("netstring: declared length too large")
)

// DefaultMaxBlob bounds in-memory records. Streamed records
// (BlobReader / BlobWriter) are not subject to it.
const DefaultMaxBlob = 64 << 20

// maxPrefixDigits bounds the length prefix itself, so a stream of
// digits can't make us scan forever.
const maxPrefixDigits = 19

type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteBlob writes one complete record.
func (w *Writer) WriteBlob(b []byte) error {
	if _, err := fmt.Fprintf(w.w, "%d:", len(b)); err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	_, err := io.WriteString(w.w, "\n")
	return err
}

// WriteString writes s as one record.
func (w *Writer) WriteString(s string) error {
	return w.WriteBlob([]byte(s))
}

// BlobWriter starts a record of exactly size bytes. The caller writes
// the payload and must Close, which emits the terminator. Close fails
// if the byte count doesn't match the declared size.
func (w *Writer) BlobWriter(size int64) (io.WriteCloser, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrFormat, size)
	}
	if _, err := fmt.Fprintf(w.w, "%d:", size); err != nil {
		return nil, err
	}
	return &blobWriter{w: w.w, remaining: size}, nil
}

type blobWriter struct {
	w         io.Writer
	remaining int64
}

func (bw *blobWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > bw.remaining {
		return 0, fmt.Errorf(
			"%w: write exceeds declared size by %d bytes",
			ErrFormat, int64(len(p))-bw.remaining,
		)
	}
	n, err := bw.w.Write(p)
	bw.remaining -= int64(n)
	return n, err
}

func (bw *blobWriter) Close() error {
	if bw.remaining != 0 {
		return fmt.Errorf(
			"%w: record short by %d bytes",
			ErrFormat, bw.remaining,
		)
	}
	_, err := io.WriteString(bw.w, "\n")
	return err
}

type Reader struct {
	r       *bufio.Reader
	maxBlob int64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:       bufio.NewReader(r),
		maxBlob: DefaultMaxBlob,
	}
}

// SetMaxBlob changes the cap on declared lengths for ReadBlob.
// A cap of zero or less restores the default.
func (r *Reader) SetMaxBlob(n int64) {
	if n <= 0 {
		n = DefaultMaxBlob
	}
	r.maxBlob = n
}

// ReadBlob reads one complete record into memory. It returns io.EOF
// when the stream ends cleanly on a record boundary, ErrTruncated when
// it ends anywhere else, and ErrTooLarge when the declared length
// exceeds the cap.
func (r *Reader) ReadBlob() ([]byte, error) {
	size, err := r.readPrefix()
	if err != nil {
		return nil, err
	}
	if size > r.maxBlob {
		return nil, fmt.Errorf(
			"%w: %d bytes (cap %d)", ErrTooLarge, size, r.maxBlob,
		)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrTruncated, err)
	}
	if err := r.readTerminator(); err != nil {
		return nil, err
	}
	return buf, nil
}

// BlobReader reads one record's declared size and returns a reader
// over exactly that many payload bytes. The caller must drain it; the
// terminator is consumed and checked on the read that returns io.EOF.
func (r *Reader) BlobReader() (int64, io.Reader, error) {
	size, err := r.readPrefix()
	if err != nil {
		return 0, nil, err
	}
	return size, &blobReader{r: r, remaining: size}, nil
}

type blobReader struct {
	r         *Reader
	remaining int64
	done      bool
}

func (br *blobReader) Read(p []byte) (int, error) {
	if br.remaining == 0 {
		if !br.done {
			br.done = true
			if err := br.r.readTerminator(); err != nil {
				return 0, err
			}
		}
		return 0, io.EOF
	}
	if int64(len(p)) > br.remaining {
		p = p[:br.remaining]
	}
	n, err := br.r.r.Read(p)
	br.remaining -= int64(n)
	if err == io.EOF && br.remaining > 0 {
		err = fmt.Errorf(
			"%w: payload short by %d bytes", ErrTruncated, br.remaining,
		)
	}
	return n, err
}

// readPrefix parses "<decimal>:" and returns the declared length.
// io.EOF before the first byte means a clean end of stream.
func (r *Reader) readPrefix() (int64, error) {
	var digits []byte
	for {
		c, err := r.r.ReadByte()
		if err == io.EOF {
			if len(digits) == 0 {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("%w: EOF in length prefix", ErrTruncated)
		}
		if err != nil {
			return 0, err
		}
		if c == ':' {
			break
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf(
				"%w: unexpected byte %q in length prefix", ErrFormat, c,
			)
		}
		digits = append(digits, c)
		if len(digits) > maxPrefixDigits {
			return 0, fmt.Errorf("%w: length prefix too long", ErrFormat)
		}
	}
	if len(digits) == 0 {
		return 0, fmt.Errorf("%w: empty length prefix", ErrFormat)
	}
	size, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: length prefix: %v", ErrFormat, err)
	}
	return size, nil
}

func (r *Reader) readTerminator() error {
	c, err := r.r.ReadByte()
	if err == io.EOF {
		return fmt.Errorf("%w: EOF before terminator", ErrTruncated)
	}
	if err != nil {
		return err
	}
	if c != '\n' {
		return fmt.Errorf(
			"%w: record terminated by %q, want newline", ErrFormat, c,
		)
	}
	return nil
}
