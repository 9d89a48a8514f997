package txlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// segmentTrailerMagic marks a segment as closed (fully written and
// checksummed) versus still active. A reader that finds no trailer
// treats the segment as the active, possibly-in-progress one and
// tolerates a truncated final record rather than erroring.
const segmentTrailerMagic = 0x7a4c4f47 // "zLOG"

// trailerSize is magic (4) + crc32 (4).
const trailerSize = 8

// writeSegmentTrailer appends the closing checksum trailer to a
// completed segment file: the magic marker, followed by the CRC32
// (IEEE) of every byte written to the segment so far.
func writeSegmentTrailer(f *os.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	var trailer [trailerSize]byte
	binary.BigEndian.PutUint32(trailer[0:4], segmentTrailerMagic)
	binary.BigEndian.PutUint32(trailer[4:8], h.Sum32())
	_, err := f.Write(trailer[:])
	return err
}

// readSegment reads every well-formed record from path, calling fn for
// each. If the segment carries a valid closing trailer, the checksum
// is verified against the record bytes (everything except the
// trailer) and a mismatch is reported as an error. If there is no
// trailer (the segment is still being actively appended to, or the
// process crashed before rotation), a truncated trailing record is
// silently dropped rather than treated as corruption.
func readSegment(path string, fn func(Record) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	recordBytes := data
	hasTrailer := false
	var storedCRC uint32
	if len(data) >= trailerSize {
		tail := data[len(data)-trailerSize:]
		if binary.BigEndian.Uint32(tail[0:4]) == segmentTrailerMagic {
			hasTrailer = true
			storedCRC = binary.BigEndian.Uint32(tail[4:8])
			recordBytes = data[:len(data)-trailerSize]
		}
	}

	if hasTrailer {
		if crc32.ChecksumIEEE(recordBytes) != storedCRC {
			return fmt.Errorf("txlog: segment %s failed checksum verification", path)
		}
	}

	offset := 0
	for offset < len(recordBytes) {
		remaining := recordBytes[offset:]
		if len(remaining) < headerSize {
			break // truncated trailing record; tolerated
		}
		payloadLen := int(binary.BigEndian.Uint32(remaining[9:13]))
		if len(remaining) < headerSize+payloadLen {
			break // truncated trailing record; tolerated
		}
		rec := Record{
			Serial:  binary.BigEndian.Uint64(remaining[0:8]),
			Type:    remaining[8],
			Payload: append([]byte(nil), remaining[headerSize:headerSize+payloadLen]...),
		}
		if err := fn(rec); err != nil {
			return err
		}
		offset += headerSize + payloadLen
	}
	return nil
}
