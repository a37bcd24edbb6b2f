package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/region"
	"github.com/ValentinKolb/dRDB/rpc/common"
	"github.com/ValentinKolb/dRDB/rpc/serializer"
)

func testNode(t *testing.T, numShards int) *Node {
	t.Helper()
	ctx := cluster.NewContext(cluster.ContextConfig{NumWorkers: 2})
	return NewNode(numShards, ctx, serializer.NewJSONSerializer())
}

func postMessage(t *testing.T, server *httptest.Server, msg *common.Message) *common.Message {
	t.Helper()

	s := serializer.NewJSONSerializer()
	raw, err := s.Serialize(*msg)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	resp, err := http.Post(server.URL+"/rdb", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}

	var out common.Message
	if err := s.Deserialize(body, &out); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if out.MsgType == common.MsgTError {
		t.Fatalf("server returned error: %s", out.Err)
	}
	return &out
}

// TestNodeWriteReadOverHTTP tests the point write/read path through the
// full wire stack
func TestNodeWriteReadOverHTTP(t *testing.T) {
	node := testNode(t, 4)
	server := httptest.NewServer(node.Handler())
	defer server.Close()

	postMessage(t, server, common.NewPointWriteRequest("a", []byte(`{"n": 1}`)))

	resp := postMessage(t, server, common.NewPointReadRequest("a"))
	if !resp.Ok || string(resp.Value) != `{"n": 1}` {
		t.Errorf("expected the stored document back, got ok=%v value=%s", resp.Ok, resp.Value)
	}
}

// TestNodeRangeReadMergesShards tests that a range read spanning all hash
// shards comes back merged and trimmed
func TestNodeRangeReadMergesShards(t *testing.T) {
	node := testNode(t, 4)
	server := httptest.NewServer(node.Handler())
	defer server.Close()

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		postMessage(t, server, common.NewPointWriteRequest(key, []byte(`1`)))
	}

	req, err := common.NewRangeReadRequest(protocol.RangeRead{
		KeyRange: region.NewKeyRange("a", "z"),
		Maximum:  100,
	})
	if err != nil {
		t.Fatalf("building request: %v", err)
	}

	resp := postMessage(t, server, req)
	rr, err := resp.ToReadResponse()
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	got := rr.Variant.(protocol.RangeReadResponse)
	if got.Result.Type != protocol.ResultStream {
		t.Fatalf("expected a stream, got %s", got.Result.Type)
	}
	if len(got.Result.Stream) != 5 {
		t.Errorf("expected all 5 rows after the merge, got %d", len(got.Result.Stream))
	}
	if got.LastConsideredKey != "z" {
		t.Errorf("no shard hit its cap, watermark should be 'z', got %q", got.LastConsideredKey)
	}
}

// TestNodeLengthTerminal tests a terminal read over the wire
func TestNodeLengthTerminal(t *testing.T) {
	node := testNode(t, 2)
	server := httptest.NewServer(node.Handler())
	defer server.Close()

	for _, key := range []string{"a", "b", "c"} {
		postMessage(t, server, common.NewPointWriteRequest(key, []byte(`1`)))
	}

	req, err := common.NewRangeReadRequest(protocol.RangeRead{
		KeyRange: region.UniverseKeyRange(),
		Maximum:  100,
		Terminal: &protocol.Terminal{Type: protocol.TerminalLength},
	})
	if err != nil {
		t.Fatalf("building request: %v", err)
	}

	resp := postMessage(t, server, req)
	rr, err := resp.ToReadResponse()
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	got := rr.Variant.(protocol.RangeReadResponse)
	if got.Result.Type != protocol.ResultLength || got.Result.Length != 3 {
		t.Errorf("expected merged length 3, got %+v", got.Result)
	}
}

// TestNodeDeleteOverHTTP tests the delete response envelope
func TestNodeDeleteOverHTTP(t *testing.T) {
	node := testNode(t, 2)
	server := httptest.NewServer(node.Handler())
	defer server.Close()

	postMessage(t, server, common.NewPointWriteRequest("a", []byte(`1`)))

	resp := postMessage(t, server, common.NewPointDeleteRequest("a"))
	wr, err := resp.ToWriteResponse()
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if wr.Variant.(protocol.PointDeleteResponse).Result != protocol.DeleteDeleted {
		t.Error("expected the delete to report Deleted")
	}

	read := postMessage(t, server, common.NewPointReadRequest("a"))
	if read.Ok {
		t.Error("deleted key should read as absent")
	}
}

// TestBackfillOverHTTP tests streaming a region from one node into another
func TestBackfillOverHTTP(t *testing.T) {
	source := testNode(t, 2)
	target := testNode(t, 4) // a different sharding on purpose

	sourceServer := httptest.NewServer(source.Handler())
	defer sourceServer.Close()
	targetServer := httptest.NewServer(target.Handler())
	defer targetServer.Close()

	for _, key := range []string{"a", "b", "c"} {
		postMessage(t, sourceServer, common.NewPointWriteRequest(key, []byte(`1`)))
	}

	// Pull the chunk stream from the source.
	reqBody, _ := json.Marshal(backfillRequest{Region: region.Universe(), Since: 0})
	resp, err := http.Post(sourceServer.URL+"/rdb/backfill", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("backfill request: %v", err)
	}
	stream, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}

	// Push it into the target.
	applyResp, err := http.Post(targetServer.URL+"/rdb/backfill/apply", "application/x-ndjson", bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("apply request: %v", err)
	}
	applyResp.Body.Close()
	if applyResp.StatusCode != http.StatusOK {
		t.Fatalf("apply returned status %d", applyResp.StatusCode)
	}

	// The target must now hold the source's data.
	for _, key := range []string{"a", "b", "c"} {
		read := postMessage(t, targetServer, common.NewPointReadRequest(key))
		if !read.Ok {
			t.Errorf("key %q missing on the target after backfill", key)
		}
	}
}
