// Package ids provides the strongly-typed stream identifier and version
// types shared by every other package in this module (spec §3, §4.1).
package ids

import (
	"fmt"

	"go.jetify.com/typeid"
)

// StreamID is the non-empty identifier of an aggregate instance, e.g.
// "order-12345". Equality is byte-for-byte.
type StreamID string

// ErrEmptyStreamID is returned by Parse when s is empty.
var ErrEmptyStreamID = fmt.Errorf("stream id: empty")

// Parse validates s and returns a StreamID, failing with ErrEmptyStreamID
// when s is empty. Use Parse at trust boundaries (HTTP handlers, RPC
// decoders, CLI flags).
func Parse(s string) (StreamID, error) {
	if s == "" {
		return "", ErrEmptyStreamID
	}
	return StreamID(s), nil
}

// New constructs a StreamID without validation. Reserved for
// application-controlled construction where emptiness is already ruled out
// by a prior typeid.Generate or similar.
func New(s string) StreamID {
	return StreamID(s)
}

// NewPrefixed generates a typeid-style identifier ("prefix_<26-char suffix>")
// for use as a StreamID, mirroring the teacher's go.jetify.com/typeid usage
// for command and event identifiers.
func NewPrefixed(prefix string) (StreamID, error) {
	tid, err := typeid.WithPrefix(prefix)
	if err != nil {
		return "", fmt.Errorf("stream id: generate %q: %w", prefix, err)
	}
	return StreamID(tid.String()), nil
}

func (id StreamID) String() string { return string(id) }

// Version is a monotone, non-negative per-stream sequence number. The
// version of a stream is the version of its last appended event (Initial
// for an empty stream).
type Version uint64

// Initial is the version of a stream with no events.
const Initial Version = 0

// Next returns the successor version.
func (v Version) Next() Version { return v + 1 }

// Before reports whether v precedes other.
func (v Version) Before(other Version) bool { return v < other }

func (v Version) String() string { return fmt.Sprintf("%d", uint64(v)) }
