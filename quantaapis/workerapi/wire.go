package workerapi

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Operation kind bytes of the wire protocol. They match the numeric values
// of arithgraph.OpKind.
const (
	opSum  byte = 0
	opProd byte = 1
)

// Every variable-length field on the wire is prefixed with its byte count
// as an 8-byte little-endian integer. The byte order is pinned so that
// heterogeneous peers interoperate.
const sizePrefixLen = 8

// maxBlockLen bounds a single serialized value so that a corrupt or
// malicious size prefix cannot trigger an arbitrarily large allocation.
const maxBlockLen = 1 << 30

// writeBlock writes one length-prefixed block.
func writeBlock(w io.Writer, data []byte) error {
	var prefix [sizePrefixLen]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return xerrors.Errorf("write size prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return xerrors.Errorf("write value: %w", err)
	}
	return nil
}

// readBlock reads one length-prefixed block. An io.EOF before the first
// prefix byte is returned unwrapped so callers can distinguish a clean
// close from a mid-frame stream error.
func readBlock(r io.Reader) ([]byte, error) {
	var prefix [sizePrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, xerrors.Errorf("read size prefix: %w", err)
	}
	size := binary.LittleEndian.Uint64(prefix[:])
	if size > maxBlockLen {
		return nil, xerrors.Errorf("value size %d exceeds the %d-byte frame limit", size, maxBlockLen)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, xerrors.Errorf("read value: %w", err)
	}
	return data, nil
}

// writeRequest writes one request frame: the operation kind byte followed
// by the two length-prefixed operands.
func writeRequest(w io.Writer, op byte, left, right []byte) error {
	if _, err := w.Write([]byte{op}); err != nil {
		return xerrors.Errorf("write operation kind: %w", err)
	}
	if err := writeBlock(w, left); err != nil {
		return xerrors.Errorf("write left operand: %w", err)
	}
	if err := writeBlock(w, right); err != nil {
		return xerrors.Errorf("write right operand: %w", err)
	}
	return nil
}

// readRequest reads one request frame. A clean close at a frame boundary is
// reported as an unwrapped io.EOF.
func readRequest(r io.Reader) (op byte, left, right []byte, err error) {
	var kind [1]byte
	if _, err = io.ReadFull(r, kind[:]); err != nil {
		if err == io.EOF {
			return 0, nil, nil, io.EOF
		}
		return 0, nil, nil, xerrors.Errorf("read operation kind: %w", err)
	}
	if left, err = readBlock(r); err != nil {
		return 0, nil, nil, xerrors.Errorf("read left operand: %w", err)
	}
	if right, err = readBlock(r); err != nil {
		return 0, nil, nil, xerrors.Errorf("read right operand: %w", err)
	}
	return kind[0], left, right, nil
}

// writeReply writes one reply frame: a single length-prefixed value.
func writeReply(w io.Writer, data []byte) error {
	return writeBlock(w, data)
}

// readReply reads one reply frame. A clean close at a frame boundary is
// reported as an unwrapped io.EOF.
func readReply(r io.Reader) ([]byte, error) {
	return readBlock(r)
}
