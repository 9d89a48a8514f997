package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vespacore/servingcore/internal/docdb"
	"github.com/vespacore/servingcore/internal/feedproto"
	"github.com/vespacore/servingcore/internal/graph"
	"github.com/vespacore/servingcore/internal/queryproto"
)

// registerAPIRoutes wires the abstract feed and query protocols onto
// router, each request resolving against whatever document DB /
// dispatcher instance the current config generation holds.
func registerAPIRoutes(router *mux.Router, graphMgr *graph.Manager) {
	router.HandleFunc("/feed", feedHandler(graphMgr)).Methods(http.MethodPost)
	router.HandleFunc("/query", queryHandler(graphMgr)).Methods(http.MethodPost)
}

func currentDocDB(graphMgr *graph.Manager) (*docdb.DB, bool) {
	gen := graphMgr.Current()
	if gen == nil {
		return nil, false
	}
	inst, present := gen.Instances[nodeDocDB]
	if !present {
		return nil, false
	}
	db, ok := inst.Value.(*docdb.DB)
	return db, ok
}

// feedHandler decodes a feedproto.Request and applies it against the
// current generation's document DB.
func feedHandler(graphMgr *graph.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedproto.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid feed request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.TraceID == "" {
			req.TraceID = feedproto.NewRequest(req.Operation, req.DocumentID, req.Fields).TraceID
		}

		op, err := req.ToOperation()
		if err != nil {
			var unknownOp *feedproto.ErrUnknownOperation
			if errors.As(err, &unknownOp) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		db, ok := currentDocDB(graphMgr)
		if !ok {
			http.Error(w, "no document db available for the current generation", http.StatusServiceUnavailable)
			return
		}

		result, err := db.Feed(r.Context(), docdb.FeedSourceLive, op)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, feedproto.ResponseFromResult(req.TraceID, result))
	}
}

// queryHandler decodes a queryproto.Request but does not execute it:
// a single-node deployment has no ShardInvoker bridging the dispatcher
// to this node's own match/rank execution (no query-language parser or
// rank evaluator is in scope here), so every well-formed request is
// answered with 501 Not Implemented, as the /query entry of the
// OpenAPI document in docs.go states.
func queryHandler(graphMgr *graph.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryproto.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid query request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "query execution requires a shard invoker, not wired in a single-node deployment", http.StatusNotImplemented)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
