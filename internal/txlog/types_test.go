package txlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_AppendToEncodesSizeSerialAndType(t *testing.T) {
	r := Record{Serial: 42, Type: 7, Payload: []byte("payload-bytes")}
	buf := r.appendTo(nil)
	assert.Equal(t, r.encodedSize(), len(buf))
	assert.Equal(t, uint64(42), uint64(buf[0])<<56|uint64(buf[1])<<48|uint64(buf[2])<<40|uint64(buf[3])<<32|uint64(buf[4])<<24|uint64(buf[5])<<16|uint64(buf[6])<<8|uint64(buf[7]))
	assert.Equal(t, byte(7), buf[8])
}

func TestRecord_EncodedSizeAccountsForPayload(t *testing.T) {
	r := Record{Payload: make([]byte, 100)}
	assert.Equal(t, headerSize+100, r.encodedSize())
}
