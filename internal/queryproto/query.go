// Package queryproto defines the abstract query protocol's wire-shape
// types: the request a dispatcher fans out across shards and the
// reply handed back to the caller, including coverage and degradation
// accounting.
package queryproto

import (
	"time"

	"github.com/google/uuid"

	"github.com/vespacore/servingcore/internal/dispatch"
	"github.com/vespacore/servingcore/internal/search/nnindex"
)

// NearestNeighborTarget carries the optional NN search clause of a
// query: the attribute field to search and the query tensor to search
// against.
type NearestNeighborTarget struct {
	Field      string
	Target     nnindex.Tensor
	TargetHits int
}

// Request is a query as received at the boundary, before being fanned
// out by the dispatcher.
type Request struct {
	TraceID string

	// Tree is the query tree in whatever representation the caller's
	// query language parser produced; this package treats it as opaque
	// since a query language parser is out of scope here.
	Tree any

	RankProfile string
	Offset      int
	Hits        int
	Timeout     time.Duration
	TraceLevel  int

	MatchFeatures   []string
	SummaryFeatures []string
	Filter          string

	NearestNeighbor *NearestNeighborTarget
}

// NewRequest builds a Request with a generated trace id and the given
// tree/rank profile; Hits defaults to 10 and Timeout to 500ms if unset
// by the caller via the returned value's fields.
func NewRequest(tree any, rankProfile string) Request {
	return Request{
		TraceID:     uuid.NewString(),
		Tree:        tree,
		RankProfile: rankProfile,
		Hits:        10,
		Timeout:     500 * time.Millisecond,
	}
}

// Reply is a query's response: ranked hits, coverage, degradation
// reasons, and an optional trace log (populated only when TraceLevel
// was set on the request).
type Reply struct {
	TraceID string

	Hits     []dispatch.Hit
	Coverage dispatch.CoverageRecord

	DegradationReasons []string

	Trace []string
}

// ReplyFrom assembles a Reply from a dispatcher's merged hits and
// coverage record, preserving the originating request's trace id.
func ReplyFrom(traceID string, hits []dispatch.Hit, coverage dispatch.CoverageRecord) Reply {
	return Reply{
		TraceID:            traceID,
		Hits:               hits,
		Coverage:           coverage,
		DegradationReasons: coverage.DegradedBy,
	}
}
