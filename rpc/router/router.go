package router

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ValentinKolb/dRDB/lib/btree"
	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/region"
	"github.com/ValentinKolb/dRDB/lib/store"
	"github.com/ValentinKolb/dRDB/rpc/common"
	"github.com/ValentinKolb/dRDB/rpc/serializer"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("router")

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node hosts one machine's CPU shards and routes operations onto them: an
// incoming operation is narrowed to every intersecting shard, executed per
// shard, and the responses are merged back into one logical response.
type Node struct {
	ctx        *cluster.Context
	stores     []*store.Store
	subspaces  []region.Region
	serializer serializer.IRPCSerializer

	// Local transition timestamp source. When shards are raft-backed the
	// log index takes this role instead.
	timestamp atomic.Uint64
}

// NewNode creates a node with numShards CPU shards.
func NewNode(numShards int, ctx *cluster.Context, s serializer.IRPCSerializer) *Node {
	if numShards <= 0 {
		numShards = ctx.NumWorkers()
	}

	n := &Node{ctx: ctx, serializer: s}
	for i := 0; i < numShards; i++ {
		worker := i % ctx.NumWorkers()
		n.stores = append(n.stores, store.NewStore(btree.NewSlice(), ctx, worker))
		n.subspaces = append(n.subspaces, region.CPUShardingSubspace(i, numShards))
	}

	log.Infof("created node with %d cpu shards", numShards)
	return n
}

// Stores exposes the per-shard stores to the node wiring and tests.
func (n *Node) Stores() []*store.Store {
	return n.stores
}

// --------------------------------------------------------------------------
// Operation Routing
// --------------------------------------------------------------------------

// ExecuteRead splits a read across the intersecting CPU shards and merges
// the per-shard responses.
func (n *Node) ExecuteRead(read protocol.Read) (protocol.ReadResponse, error) {
	declared := read.GetRegion()

	responses := make([]protocol.ReadResponse, 0, len(n.stores))
	for i, st := range n.stores {
		inter := declared.Intersect(n.subspaces[i])
		if inter.IsEmpty() {
			continue
		}

		sharded := read.Shard(inter)
		resp, err := st.ProtocolRead(sharded, btree.NewTransaction(btree.AccessRead), btree.NewSuperblock())
		if err != nil {
			return protocol.ReadResponse{}, err
		}
		responses = append(responses, resp)
	}

	if len(responses) == 0 {
		return protocol.ReadResponse{}, fmt.Errorf("router: read region %s intersects no shard", declared)
	}

	// A single piece never went through hash sharding; merging it through
	// the multistore path would trip its >= 2 pieces contract.
	if len(responses) == 1 {
		return read.Unshard(responses, n.ctx, 0)
	}
	return read.MultistoreUnshard(responses, n.ctx, 0)
}

// ExecuteWrite routes a write to the single CPU shard owning its key.
func (n *Node) ExecuteWrite(write protocol.Write) (protocol.WriteResponse, error) {
	declared := write.GetRegion()

	for i, st := range n.stores {
		if !n.subspaces[i].IsSuperset(declared) {
			continue
		}

		sharded := write.Shard(declared)
		resp, err := st.ProtocolWrite(sharded, n.timestamp.Add(1), btree.NewTransaction(btree.AccessWrite), btree.NewSuperblock())
		if err != nil {
			return protocol.WriteResponse{}, err
		}
		return write.Unshard([]protocol.WriteResponse{resp}, n.ctx), nil
	}

	return protocol.WriteResponse{}, fmt.Errorf("router: write region %s owned by no shard", declared)
}

// --------------------------------------------------------------------------
// HTTP Transport
// --------------------------------------------------------------------------

// Handler builds the node's HTTP surface:
//
//	POST /rdb             -- one serialized operation message, one response
//	POST /rdb/backfill    -- {region, since} body, NDJSON chunk stream out
//	POST /rdb/backfill/apply -- NDJSON chunk stream in
//	GET  /healthz, /metrics
func (n *Node) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/rdb", n.handleOperation)
	r.Post("/rdb/backfill", n.handleSendBackfill)
	r.Post("/rdb/backfill/apply", n.handleReceiveBackfill)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return r
}

// Listen serves the node's HTTP surface on the configured endpoint.
func (n *Node) Listen(config common.ServerConfig) error {
	log.Infof("listening on %s (protocol %q)", config.Endpoint, protocol.ProtocolName)
	return http.ListenAndServe(config.Endpoint, n.Handler())
}

// handleOperation decodes one message, executes it and writes the response
// message.
func (n *Node) handleOperation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		n.writeMessage(w, http.StatusBadRequest, common.NewErrorResponse(err.Error()))
		return
	}

	var msg common.Message
	if err := n.serializer.Deserialize(body, &msg); err != nil {
		n.writeMessage(w, http.StatusBadRequest, common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err)))
		return
	}

	n.writeMessage(w, http.StatusOK, n.dispatch(&msg))
}

// dispatch runs one decoded message against the node.
func (n *Node) dispatch(msg *common.Message) *common.Message {
	switch msg.MsgType {
	case common.MsgTPointRead, common.MsgTRangeRead, common.MsgTDistributionRead:
		read, err := msg.ToRead()
		if err != nil {
			return common.NewErrorResponse(err.Error())
		}
		resp, err := n.ExecuteRead(read)
		if err != nil {
			return common.NewErrorResponse(err.Error())
		}
		out, err := common.NewReadResponseMessage(resp)
		if err != nil {
			return common.NewErrorResponse(err.Error())
		}
		return out

	case common.MsgTPointWrite, common.MsgTPointModify, common.MsgTPointDelete:
		write, err := msg.ToWrite()
		if err != nil {
			return common.NewErrorResponse(err.Error())
		}
		resp, err := n.ExecuteWrite(write)
		if err != nil {
			return common.NewErrorResponse(err.Error())
		}
		out, err := common.NewWriteResponseMessage(msg.MsgType, resp)
		if err != nil {
			return common.NewErrorResponse(err.Error())
		}
		return out

	default:
		return common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", msg.MsgType))
	}
}

func (n *Node) writeMessage(w http.ResponseWriter, status int, msg *common.Message) {
	raw, err := n.serializer.Serialize(*msg)
	if err != nil {
		log.Errorf("failed to serialize response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

// --------------------------------------------------------------------------
// Backfill over HTTP
// --------------------------------------------------------------------------

// backfillRequest is the body of a backfill send request.
type backfillRequest struct {
	Region region.Region `json:"region"`
	Since  uint64        `json:"since"`
}

// handleSendBackfill streams the requested region's contents as NDJSON
// chunk messages, one per line.
func (n *Node) handleSendBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)

	for i, st := range n.stores {
		inter := req.Region.Intersect(n.subspaces[i])
		if inter.IsEmpty() {
			continue
		}

		err := st.ProtocolSendBackfill(
			[]store.RegionTimestamp{{Region: inter, Since: req.Since}},
			func(chunk protocol.BackfillChunk) error {
				// A full resync erases over the whole hash universe; narrow it
				// to this shard so it does not wipe pairs streamed by the
				// shards before it.
				if _, ok := chunk.Variant.(protocol.DeleteRange); ok {
					chunk = chunk.Shard(inter)
				}
				msg, err := common.NewBackfillChunkMessage(chunk)
				if err != nil {
					return err
				}
				return enc.Encode(msg)
			},
			btree.NewSuperblock(), btree.NewTransaction(btree.AccessRead), &store.BackfillProgress{}, r.Context())
		if err != nil {
			// The stream is already underway; all we can do is stop it.
			log.Errorf("backfill of %s failed: %v", inter, err)
			return
		}
	}
}

// handleReceiveBackfill applies an NDJSON chunk stream, routing every chunk
// to the shards its region intersects.
func (n *Node) handleReceiveBackfill(w http.ResponseWriter, r *http.Request) {
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	applied := 0
	for scanner.Scan() {
		var msg common.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		chunk, err := msg.ToBackfillChunk()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		chunkRegion := chunk.GetRegion()
		for i, st := range n.stores {
			inter := chunkRegion.Intersect(n.subspaces[i])
			if inter.IsEmpty() {
				continue
			}
			st.ProtocolReceiveBackfill(chunk.Shard(inter), btree.NewTransaction(btree.AccessWrite), btree.NewSuperblock())
		}
		applied++
	}

	if err := scanner.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "applied %d chunks", applied)
}
