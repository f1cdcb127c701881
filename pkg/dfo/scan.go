package dfo

import (
	"fmt"
	"io"
)

// Verify runs the full unpack state machine over a stream without
// materializing anything: every file is hashed and discarded, every
// manifest is checked. The returned Result carries both the computed
// root checksum and the trailer for the caller to compare.
func Verify(r io.Reader, opts *UnpackOptions) (*Result, error) {
	o := scanOptions(opts)
	return Unpack(r, "", o)
}

// List verifies a stream and writes one line per node to out, in
// stream order (children before their directory), in the same shape as
// a manifest line but with full tree-relative paths:
//
//	x F 55ca6286e3e4f4fba5d0448333fa99fc5a404a73 bin/run.sh
//
// An Observer already set in opts still runs, after each line is
// written.
func List(r io.Reader, out io.Writer, opts *UnpackOptions) (*Result, error) {
	o := scanOptions(opts)
	chained := o.Observer
	var writeErr error
	o.Observer = func(e Entry) {
		if writeErr == nil {
			p := byte('-')
			if e.Exec {
				p = 'x'
			}
			_, writeErr = fmt.Fprintf(out, "%c %c %s %s\n", p, e.Type, e.Checksum, e.Path)
		}
		if chained != nil {
			chained(e)
		}
	}
	res, err := Unpack(r, "", o)
	if err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, fmt.Errorf("write listing: %w", writeErr)
	}
	return res, nil
}

func scanOptions(opts *UnpackOptions) *UnpackOptions {
	o := UnpackOptions{}
	if opts != nil {
		o = *opts
	}
	o.Writer = Discard
	return &o
}
