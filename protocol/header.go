// File: protocol/header.go
// Package protocol implements the length-header codec used for framed
// exchanges over a session.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are length-prefixed with a big-endian header of one to four
// bytes. The session layer itself stays delimiter-agnostic; callers read
// the header with an exact-count read, decode it here, then issue a
// second exact-count read for the payload.

package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MaxHeaderSize is the widest supported length prefix.
const MaxHeaderSize = 4

// ErrHeaderSize reports an unsupported header width.
var ErrHeaderSize = errors.New("header must be 1 to 4 bytes")

// DecodeHeader interprets b as a big-endian unsigned length.
func DecodeHeader(b []byte) (int, error) {
	if len(b) < 1 || len(b) > MaxHeaderSize {
		return 0, errors.Wrapf(ErrHeaderSize, "got %d bytes", len(b))
	}
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}
	return n, nil
}

// EncodeHeader writes n as a big-endian length prefix of the given width.
// It fails when n does not fit the width.
func EncodeHeader(n, width int) ([]byte, error) {
	if width < 1 || width > MaxHeaderSize {
		return nil, errors.Wrapf(ErrHeaderSize, "got width %d", width)
	}
	if n < 0 || (width < MaxHeaderSize && n >= 1<<(8*width)) {
		return nil, errors.Errorf("length %d does not fit %d-byte header", n, width)
	}
	var scratch [MaxHeaderSize]byte
	binary.BigEndian.PutUint32(scratch[:], uint32(n))
	out := make([]byte, width)
	copy(out, scratch[MaxHeaderSize-width:])
	return out, nil
}
