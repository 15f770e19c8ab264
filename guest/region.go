package guest

import (
	"fmt"

	"github.com/wippyai/refcount/errors"
)

// Region is a range of guest linear memory owned through a shared handle.
type Region struct {
	arena  *Arena
	Offset uint32
	Size   uint32
	Align  uint32
}

// Read copies length bytes starting at off within the region.
func (r *Region) Read(off, length uint32) ([]byte, error) {
	view, err := r.view(off, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// Write copies data into the region starting at off.
func (r *Region) Write(off uint32, data []byte) error {
	view, err := r.view(off, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(view, data)
	return nil
}

// Bytes returns a view of the whole region. The view aliases guest memory
// and is invalidated when the memory grows.
func (r *Region) Bytes() ([]byte, error) {
	return r.view(0, r.Size)
}

func (r *Region) view(off, length uint32) ([]byte, error) {
	if r.arena == nil {
		return nil, errors.Closed(errors.PhaseGuest, "region")
	}
	if uint64(off)+uint64(length) > uint64(r.Size) {
		return nil, errors.OutOfBounds(errors.PhaseGuest, off, length, r.Size)
	}
	data, ok := r.arena.mem.Read(r.Offset+off, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseGuest, r.Offset+off, length, r.arena.mem.Size())
	}
	return data, nil
}

func (r *Region) String() string {
	return fmt.Sprintf("region[%d:%d]", r.Offset, r.Offset+r.Size)
}

// memoryModule encodes a wasm module with one memory exported as "memory".
func memoryModule(minPages, maxPages uint32, hasMax bool) []byte {
	limits := []byte{0x00}
	limits = appendULEB(limits, minPages)
	if hasMax {
		limits[0] = 0x01
		limits = appendULEB(limits, maxPages)
	}

	memSec := append([]byte{0x01}, limits...) // one memory

	expSec := []byte{0x01, 0x06} // one export, name length 6
	expSec = append(expSec, "memory"...)
	expSec = append(expSec, 0x02, 0x00) // kind memory, index 0

	bin := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic
		0x01, 0x00, 0x00, 0x00, // version
	}
	bin = appendSection(bin, 0x05, memSec)
	bin = appendSection(bin, 0x07, expSec)
	return bin
}

func appendSection(bin []byte, id byte, body []byte) []byte {
	bin = append(bin, id)
	bin = appendULEB(bin, uint32(len(body)))
	return append(bin, body...)
}

func appendULEB(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}
