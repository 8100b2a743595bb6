// Package message implements the gateway's immutable envelope: opaque
// content bytes plus a string-to-string property map, reference-counted,
// with a deterministic wire encoding.
//
// A Message is safe for concurrent reads by any number of goroutines once
// constructed; only Clone/Destroy touch shared state, and they do so with
// an atomic counter. Nothing about a Message's content or properties may be
// mutated after construction - Clone shares the same backing storage.
package message

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
)

const lengthPrefixSize = 4 // uint32 BE, used for every length field in the wire format

// Message is an immutable, reference-counted envelope. The zero value is
// not usable; construct with Create or FromBytes.
type Message struct {
	content    []byte
	properties map[string]string
	refs       *int32
}

// Create builds a new Message with refcount 1. content may be nil or empty.
// properties is copied in; the caller's map may be freely mutated
// afterward without affecting the Message.
func Create(content []byte, properties map[string]string) (*Message, error) {
	if content == nil {
		content = []byte{}
	}
	ownContent := make([]byte, len(content))
	copy(ownContent, content)

	ownProps := make(map[string]string, len(properties))
	for k, v := range properties {
		ownProps[k] = v
	}

	refs := int32(1)
	return &Message{
		content:    ownContent,
		properties: ownProps,
		refs:       &refs,
	}, nil
}

// Clone increments the refcount and returns the same logical Message. The
// returned *Message is a distinct Go value sharing the same backing arrays
// and the same refcount cell, matching the spec's "clones share storage"
// invariant; callers must Destroy every clone they hold, including the
// first.
func (m *Message) Clone() *Message {
	atomic.AddInt32(m.refs, 1)
	return &Message{
		content:    m.content,
		properties: m.properties,
		refs:       m.refs,
	}
}

// Destroy decrements the refcount. Every Destroy drops the backing storage
// references held by the Go value it is called on; Go's GC reclaims the
// underlying arrays once every clone has dropped its reference, so Destroy
// is mainly a correctness contract (and a hook other implementations of
// this wire protocol rely on for explicit deallocation), not a hard free.
func (m *Message) Destroy() {
	if atomic.AddInt32(m.refs, -1) < 0 {
		panic("edgegateway: message refcount underflow: Destroy called more times than Clone+Create")
	}
	m.content = nil
	m.properties = nil
}

// Content returns a read-only view of the message content. The slice is
// valid until Destroy is called on the last holder of this Message (or any
// of its clones); callers that need to retain content past that point must
// copy it.
func (m *Message) Content() []byte { return m.content }

// Properties returns a read-only view of the property map. Mutating the
// returned map is a caller bug: it aliases the Message's internal storage
// and will corrupt every other clone's view.
func (m *Message) Properties() map[string]string { return m.properties }

// RefCount returns the current reference count, for tests and diagnostics.
func (m *Message) RefCount() int32 { return atomic.LoadInt32(m.refs) }

// RequiredSize returns the number of bytes ToBytes would write, without
// writing them. Equivalent to calling ToBytes(nil).
func (m *Message) RequiredSize() int {
	size := lengthPrefixSize + lengthPrefixSize // total size field is self-referential only at decode time; count count field here
	for k, v := range m.properties {
		size += lengthPrefixSize + len(k) + lengthPrefixSize + len(v)
	}
	size += lengthPrefixSize + len(m.content)
	return size
}

// ToBytes serializes the message payload into its wire format. If out is
// nil, ToBytes returns the required size without writing
// anything. If out is non-nil but smaller than required, it returns
// gwerrors.ErrBufferTooSmall. On success it returns the number of bytes
// written (equal to len(out) consumed, i.e. RequiredSize()).
func (m *Message) ToBytes(out []byte) (int, error) {
	required := m.RequiredSize()
	if out == nil {
		return required, nil
	}
	if len(out) < required {
		return 0, gwerrors.ErrBufferTooSmall
	}

	off := 0
	binary.BigEndian.PutUint32(out[off:], uint32(required-lengthPrefixSize))
	off += lengthPrefixSize
	binary.BigEndian.PutUint32(out[off:], uint32(len(m.properties)))
	off += lengthPrefixSize
	for k, v := range m.properties {
		off += putLengthPrefixed(out[off:], []byte(k))
		off += putLengthPrefixed(out[off:], []byte(v))
	}
	off += putLengthPrefixed(out[off:], m.content)
	return required, nil
}

func putLengthPrefixed(dst []byte, s []byte) int {
	binary.BigEndian.PutUint32(dst, uint32(len(s)))
	copy(dst[lengthPrefixSize:], s)
	return lengthPrefixSize + len(s)
}

// ToOwnedBytes allocates a buffer sized to RequiredSize and serializes into
// it. Convenience wrapper over ToBytes for callers that don't have a
// preallocated frame (the broker's publish path uses ToBytes directly so it
// can serialize straight into the outbound frame).
func (m *Message) ToOwnedBytes() []byte {
	buf := make([]byte, m.RequiredSize())
	_, _ = m.ToBytes(buf)
	return buf
}

// FromBytes parses and validates a message payload produced by ToBytes.
// The returned Message owns freshly allocated storage; buf may be reused or
// discarded immediately after this call.
func FromBytes(buf []byte) (*Message, error) {
	if len(buf) < lengthPrefixSize*2 {
		return nil, fmt.Errorf("%w: frame shorter than header", gwerrors.ErrMalformedMessage)
	}
	off := 0
	total := binary.BigEndian.Uint32(buf[off:])
	off += lengthPrefixSize
	if int(total)+lengthPrefixSize != len(buf) {
		return nil, fmt.Errorf("%w: declared size %d does not match frame length %d", gwerrors.ErrMalformedMessage, total, len(buf)-lengthPrefixSize)
	}

	propCount := binary.BigEndian.Uint32(buf[off:])
	off += lengthPrefixSize

	props := make(map[string]string, propCount)
	for i := uint32(0); i < propCount; i++ {
		key, n, err := readLengthPrefixed(buf, off)
		if err != nil {
			return nil, err
		}
		off = n
		val, n, err := readLengthPrefixed(buf, off)
		if err != nil {
			return nil, err
		}
		off = n
		props[string(key)] = string(val)
	}

	content, off, err := readLengthPrefixed(buf, off)
	if err != nil {
		return nil, err
	}
	if off != len(buf) {
		return nil, fmt.Errorf("%w: trailing bytes after content", gwerrors.ErrMalformedMessage)
	}

	ownContent := make([]byte, len(content))
	copy(ownContent, content)
	refs := int32(1)
	return &Message{content: ownContent, properties: props, refs: &refs}, nil
}

// readLengthPrefixed reads a uint32 length + payload starting at off,
// returning the payload slice (aliasing buf) and the offset past it.
func readLengthPrefixed(buf []byte, off int) ([]byte, int, error) {
	if off+lengthPrefixSize > len(buf) {
		return nil, 0, fmt.Errorf("%w: truncated length prefix", gwerrors.ErrMalformedMessage)
	}
	n := binary.BigEndian.Uint32(buf[off:])
	off += lengthPrefixSize
	if off+int(n) > len(buf) {
		return nil, 0, fmt.Errorf("%w: truncated field (want %d bytes, have %d)", gwerrors.ErrMalformedMessage, n, len(buf)-off)
	}
	return buf[off : off+int(n)], off + int(n), nil
}
