package docdb

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/vespacore/servingcore/internal/txlog"
)

// recordType tags every txlog.Record written by a document DB; the log
// itself is payload-agnostic, but a document DB only ever writes one
// kind of record today.
const recordType uint8 = 1

// TxLogAdapter satisfies the TransactionLog interface on top of a
// generic txlog.Log, encoding each Operation with encoding/gob. gob is
// used rather than a wire-format library because this payload never
// leaves the process that wrote it and never crosses a language
// boundary - it is read back only by the same binary replaying its own
// log on restart.
type TxLogAdapter struct {
	log *txlog.Log
}

// NewTxLogAdapter wraps an open txlog.Log for use as a document DB's
// transaction log.
func NewTxLogAdapter(log *txlog.Log) *TxLogAdapter {
	return &TxLogAdapter{log: log}
}

type gobOperation struct {
	Kind            OpKind
	DocID           DocumentID
	Fields          Fields
	Condition       string
	TestAndSetToken string
	TimestampUnix   int64
}

func toGobOperation(op Operation) gobOperation {
	return gobOperation{
		Kind:            op.Kind,
		DocID:           op.Doc.ID,
		Fields:          op.Doc.Fields,
		Condition:       op.Condition,
		TestAndSetToken: op.TestAndSetToken,
		TimestampUnix:   op.TimestampUnix,
	}
}

func fromGobOperation(g gobOperation) Operation {
	return Operation{
		Kind:            g.Kind,
		Doc:             Document{ID: g.DocID, Fields: g.Fields},
		Condition:       g.Condition,
		TestAndSetToken: g.TestAndSetToken,
		TimestampUnix:   g.TimestampUnix,
	}
}

func encodeOperation(op Operation) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toGobOperation(op)); err != nil {
		return nil, fmt.Errorf("docdb: encode operation for log: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeOperation(payload []byte) (Operation, error) {
	var g gobOperation
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&g); err != nil {
		return Operation{}, fmt.Errorf("docdb: decode operation from log: %w", err)
	}
	return fromGobOperation(g), nil
}

// Append encodes op and appends it to the underlying log.
func (a *TxLogAdapter) Append(ctx context.Context, op Operation) (SerialNum, error) {
	payload, err := encodeOperation(op)
	if err != nil {
		return 0, err
	}
	serial, err := a.log.Append(ctx, recordType, payload)
	if err != nil {
		return 0, err
	}
	return SerialNum(serial), nil
}

// Replay decodes and delivers every record with serial >= fromSerial,
// in the exact order they were originally appended.
func (a *TxLogAdapter) Replay(ctx context.Context, fromSerial SerialNum, apply func(SerialNum, Operation) error) error {
	return a.log.Replay(ctx, uint64(fromSerial), func(rec txlog.Record) error {
		op, err := decodeOperation(rec.Payload)
		if err != nil {
			return err
		}
		return apply(SerialNum(rec.Serial), op)
	})
}

// Sync fsyncs the underlying log up through serial.
func (a *TxLogAdapter) Sync(ctx context.Context, serial SerialNum) error {
	return a.log.Sync(ctx, uint64(serial))
}
