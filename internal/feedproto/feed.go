// Package feedproto defines the abstract feed protocol's wire-shape
// types: put/update/remove/get requests and the serial number a
// document DB assigns in response. These are boundary DTOs,
// not a binary wire format - a transport adapter (HTTP, gRPC, or an
// in-process call from cmd/servingd) is responsible for actually
// putting bytes on a wire.
package feedproto

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vespacore/servingcore/internal/docdb"
)

// Op names one of the four feed operations a client may request.
type Op string

const (
	OpPut    Op = "put"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpGet    Op = "get"
)

// Request is one feed operation as received at the boundary, before
// translation into the document DB's internal Operation type.
type Request struct {
	// TraceID identifies this request across log lines and metrics; a
	// caller that does not supply one gets a generated one from
	// NewRequest.
	TraceID string `json:"trace_id"`

	Operation Op               `json:"operation"`
	DocumentID string          `json:"document_id"`
	Fields     map[string]any  `json:"fields,omitempty"`
	Condition  string          `json:"condition,omitempty"`
	TestAndSetToken string     `json:"test_and_set_token,omitempty"`
	Timestamp  *time.Time      `json:"timestamp,omitempty"`
}

// NewRequest builds a Request with a generated trace id.
func NewRequest(op Op, documentID string, fields map[string]any) Request {
	return Request{
		TraceID:    uuid.NewString(),
		Operation:  op,
		DocumentID: documentID,
		Fields:     fields,
	}
}

// Response carries the serial number the receiving document DB
// assigned to the operation.
type Response struct {
	TraceID string `json:"trace_id"`
	Serial  uint64 `json:"serial"`
}

// ErrUnknownOperation is returned by ToOperation for an Op value
// outside OpPut/OpUpdate/OpRemove/OpGet.
type ErrUnknownOperation struct {
	Op Op
}

func (e *ErrUnknownOperation) Error() string {
	return fmt.Sprintf("feedproto: unknown operation %q", e.Op)
}

// ToOperation translates r into the internal Operation shape a
// document DB's feed pipeline consumes.
func (r Request) ToOperation() (docdb.Operation, error) {
	var kind docdb.OpKind
	switch r.Operation {
	case OpPut:
		kind = docdb.OpPut
	case OpUpdate:
		kind = docdb.OpUpdate
	case OpRemove:
		kind = docdb.OpRemove
	case OpGet:
		kind = docdb.OpGet
	default:
		return docdb.Operation{}, &ErrUnknownOperation{Op: r.Operation}
	}

	op := docdb.Operation{
		Kind: kind,
		Doc: docdb.Document{
			ID:     docdb.DocumentID(r.DocumentID),
			Fields: docdb.Fields(r.Fields),
		},
		Condition:       r.Condition,
		TestAndSetToken: r.TestAndSetToken,
	}
	if r.Timestamp != nil {
		op.TimestampUnix = r.Timestamp.Unix()
	}
	return op, nil
}

// ResponseFromResult builds a Response from a document DB's
// FeedResult, preserving the originating request's trace id.
func ResponseFromResult(traceID string, result docdb.FeedResult) Response {
	return Response{TraceID: traceID, Serial: uint64(result.Serial)}
}
