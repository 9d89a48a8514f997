// Package txlog implements the append-only, serial-numbered
// transaction log that backs a document DB's feed pipeline: every
// mutating operation is durably recorded before it is considered
// applied, and replay from any serial reproduces the exact sequence
// of records originally appended.
package txlog

import "encoding/binary"

// Record is one logged entry. Type is an opaque tag the log itself
// never interprets - callers (the docdb feed adapter, in production)
// define what their Type values mean.
type Record struct {
	Serial  uint64
	Type    uint8
	Payload []byte
}

// headerSize is the fixed-width prefix before a record's payload:
// serial (8) + type (1) + payload length (4).
const headerSize = 8 + 1 + 4

// encodedSize returns the total on-disk size of r, header plus
// payload.
func (r Record) encodedSize() int {
	return headerSize + len(r.Payload)
}

// appendTo serializes r onto buf and returns the result.
func (r Record) appendTo(buf []byte) []byte {
	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[0:8], r.Serial)
	header[8] = r.Type
	binary.BigEndian.PutUint32(header[9:13], uint32(len(r.Payload)))
	buf = append(buf, header[:]...)
	buf = append(buf, r.Payload...)
	return buf
}
