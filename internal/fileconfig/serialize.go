package fileconfig

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteSnapshot serializes snap as a length-prefixed binary stream:
// <serial u64><fileCount u32>{<nameLen u16><name bytes><payloadLen u32><payload bytes>}...
// File order is requiredFiles followed by FileExtraConfigs if present,
// so the stream is reproduced byte-for-byte for the same input map.
func WriteSnapshot(w io.Writer, snap Snapshot) error {
	bw := bufio.NewWriter(w)

	names := make([]FileName, 0, len(requiredFiles)+1)
	for _, name := range requiredFiles {
		if _, ok := snap.Files[name]; ok {
			names = append(names, name)
		}
	}
	if _, ok := snap.Files[FileExtraConfigs]; ok {
		names = append(names, FileExtraConfigs)
	}

	if err := binary.Write(bw, binary.BigEndian, uint64(snap.Serial)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		payload := snap.Files[name]
		if err := binary.Write(bw, binary.BigEndian, uint16(len(name))); err != nil {
			return err
		}
		if _, err := bw.WriteString(string(name)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, uint32(len(payload))); err != nil {
			return err
		}
		if _, err := bw.Write(payload); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSnapshot parses the format WriteSnapshot produces. A stream
// missing FileExtraConfigs is valid; any other missing required file
// is left absent from the returned Snapshot.Files for the caller to
// validate.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	br := bufio.NewReader(r)

	var serial uint64
	if err := binary.Read(br, binary.BigEndian, &serial); err != nil {
		return Snapshot{}, fmt.Errorf("fileconfig: read serial: %w", err)
	}
	var count uint32
	if err := binary.Read(br, binary.BigEndian, &count); err != nil {
		return Snapshot{}, fmt.Errorf("fileconfig: read file count: %w", err)
	}

	files := make(map[FileName][]byte, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(br, binary.BigEndian, &nameLen); err != nil {
			return Snapshot{}, fmt.Errorf("fileconfig: read name length for file %d: %w", i, err)
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(br, nameBuf); err != nil {
			return Snapshot{}, fmt.Errorf("fileconfig: read name for file %d: %w", i, err)
		}
		var payloadLen uint32
		if err := binary.Read(br, binary.BigEndian, &payloadLen); err != nil {
			return Snapshot{}, fmt.Errorf("fileconfig: read payload length for %q: %w", nameBuf, err)
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(br, payload); err != nil {
			return Snapshot{}, fmt.Errorf("fileconfig: read payload for %q: %w", nameBuf, err)
		}
		files[FileName(nameBuf)] = payload
	}

	return Snapshot{Serial: SerialNum(serial), Files: files}, nil
}
