// Package metadata decodes the RSocket setup payload's composite metadata
// into typed mime-keyed entries (C1 of the registry core). The RSocket
// frame codec itself is out of scope (spec.md Non-goals); this package
// only understands the composite-metadata sub-format carried inside a
// setup frame's metadata bytes.
package metadata

import (
	"encoding/binary"
	"fmt"
)

// Recognized mime kinds relevant to the registry core.
const (
	MimeApplication = "message/x.rsocket.application+json"
	MimeBearerToken = "message/x.rsocket.authentication.bearer.v0"
)

// ParseError wraps a composite-metadata decode failure, carrying the
// offending mime so the admission pipeline can attribute it in the
// RST-500402 rejection.
type ParseError struct {
	Mime  string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Mime == "" {
		return fmt.Sprintf("composite metadata parse failure: %v", e.Cause)
	}
	return fmt.Sprintf("composite metadata parse failure (mime=%s): %v", e.Mime, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// CompositeMetadata is the decoded form of a setup payload's metadata: a
// flat sequence of mime-tagged byte slices, keyed by mime string.
type CompositeMetadata struct {
	entries map[string][]byte
}

// Contains reports whether an entry for the given mime kind is present.
func (c *CompositeMetadata) Contains(mime string) bool {
	if c == nil {
		return false
	}
	_, ok := c.entries[mime]
	return ok
}

// Get returns the raw bytes for the given mime kind.
func (c *CompositeMetadata) Get(mime string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, ok := c.entries[mime]
	return b, ok
}

// Parse decodes raw composite metadata bytes. Each entry is a mime header
// (either a well-known single byte with the high bit set, or a 7-bit
// length-prefixed mime string) followed by a 24-bit big-endian data length
// and the payload itself.
func Parse(raw []byte) (*CompositeMetadata, error) {
	cm := &CompositeMetadata{entries: make(map[string][]byte)}
	pos := 0
	for pos < len(raw) {
		if pos >= len(raw) {
			return nil, &ParseError{Cause: fmt.Errorf("truncated mime header at offset %d", pos)}
		}

		var mime string
		first := raw[pos]
		if first&0x80 != 0 {
			id := first & 0x7F
			known, ok := wellKnownMimes[id]
			if !ok {
				return nil, &ParseError{Cause: fmt.Errorf("unknown well-known mime id %d", id)}
			}
			mime = known
			pos++
		} else {
			length := int(first) + 1
			pos++
			if pos+length > len(raw) {
				return nil, &ParseError{Cause: fmt.Errorf("truncated mime string at offset %d", pos)}
			}
			mime = string(raw[pos : pos+length])
			pos += length
		}

		if pos+3 > len(raw) {
			return nil, &ParseError{Mime: mime, Cause: fmt.Errorf("truncated data length at offset %d", pos)}
		}
		dataLen := int(raw[pos])<<16 | int(raw[pos+1])<<8 | int(raw[pos+2])
		pos += 3
		if pos+dataLen > len(raw) {
			return nil, &ParseError{Mime: mime, Cause: fmt.Errorf("truncated entry data at offset %d", pos)}
		}
		cm.entries[mime] = raw[pos : pos+dataLen]
		pos += dataLen
	}
	return cm, nil
}

// wellKnownMimes maps the subset of RSocket's well-known composite-metadata
// mime ids relevant to this core. Only the two mime kinds the registry
// recognizes are assigned stable ids; any other well-known id encountered
// is treated as an unknown-mime parse failure since this core never
// consumes it.
var wellKnownMimes = map[byte]string{
	0x7A: MimeApplication,
	0x7B: MimeBearerToken,
}

// Encode is the inverse of Parse, used by tests and by admin tooling that
// needs to synthesize setup payloads.
func Encode(entries map[string][]byte) []byte {
	var buf []byte
	for mime, data := range entries {
		buf = append(buf, byte(len(mime)-1))
		buf = append(buf, []byte(mime)...)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
		buf = append(buf, lenBuf[1:]...)
		buf = append(buf, data...)
	}
	return buf
}
