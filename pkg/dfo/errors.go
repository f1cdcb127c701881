package dfo

import (
	"errors"
	"fmt"
	"io"

	"github.com/tqbf/dfo/pkg/netstring"
)

var (
	// ErrFormat reports a structurally invalid stream: bad magic,
	// malformed op record or manifest line, unknown command, or a
	// violated depth/size limit.
	ErrFormat = errors.New("dfo: malformed stream")

	// ErrTruncated reports end of stream where a record was expected.
	ErrTruncated = errors.New("dfo: truncated stream")

	// ErrIntegrity reports a checksum or manifest mismatch.
	ErrIntegrity = errors.New("dfo: integrity check failed")

	// ErrUnsupported reports a filesystem entry that the format cannot
	// represent: devices, sockets, FIFOs.
	ErrUnsupported = errors.New("dfo: unsupported node kind")
)

// readErr folds a framing-layer error into the package taxonomy,
// tagging it with what the reader was expecting at the time.
func readErr(err error, what string) error {
	switch {
	case err == io.EOF:
		return fmt.Errorf("%w: expected %s, got EOF", ErrTruncated, what)
	case errors.Is(err, netstring.ErrTruncated):
		return fmt.Errorf("%w: reading %s: %v", ErrTruncated, what, err)
	case errors.Is(err, netstring.ErrFormat),
		errors.Is(err, netstring.ErrTooLarge):
		return fmt.Errorf("%w: reading %s: %v", ErrFormat, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
