package protocol

import (
	"testing"

	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
)

func testClusterContext() *cluster.Context {
	return cluster.NewContext(cluster.ContextConfig{NumWorkers: 1})
}

func streamResponse(kr region.KeyRange, last string, truncated bool, rows ...KeyValue) ReadResponse {
	return ReadResponse{Variant: RangeReadResponse{
		Result:            RangeResult{Type: ResultStream, Stream: rows},
		Truncated:         truncated,
		KeyRange:          kr,
		LastConsideredKey: last,
	}}
}

// TestUnshardPointRead tests that point read unshard is the identity on a
// single response
func TestUnshardPointRead(t *testing.T) {
	ctx := testClusterContext()
	r := NewPointRead("foo")

	resp := ReadResponse{Variant: PointReadResponse{Value: []byte("{}"), Exists: true}}
	merged, err := r.Unshard([]ReadResponse{resp}, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := merged.Variant.(PointReadResponse)
	if !ok || !got.Exists || string(got.Value) != "{}" {
		t.Errorf("point read unshard should return the single response unchanged, got %#v", merged.Variant)
	}
}

// TestUnshardStreamConcat tests vanilla stream merging across key-range
// shards
func TestUnshardStreamConcat(t *testing.T) {
	ctx := testClusterContext()
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Maximum: 10})

	// Shard responses arrive out of key order on purpose.
	responses := []ReadResponse{
		streamResponse(region.NewKeyRange("m", "z"), "n", true, KeyValue{Key: "m", Value: float64(3)}),
		streamResponse(region.NewKeyRange("a", "m"), "b", false,
			KeyValue{Key: "a", Value: float64(1)}, KeyValue{Key: "b", Value: float64(2)}),
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := merged.Variant.(RangeReadResponse)
	if got.Result.Type != ResultStream {
		t.Fatalf("expected a stream result, got %s", got.Result.Type)
	}

	wantKeys := []string{"a", "b", "m"}
	if len(got.Result.Stream) != len(wantKeys) {
		t.Fatalf("expected %d rows, got %d", len(wantKeys), len(got.Result.Stream))
	}
	for i, key := range wantKeys {
		if got.Result.Stream[i].Key != key {
			t.Errorf("row %d: expected key %q, got %q", i, key, got.Result.Stream[i].Key)
		}
	}

	// Truncation ORs, the watermark is the maximum across pieces.
	if !got.Truncated {
		t.Error("truncated flags should be ORed")
	}
	if got.LastConsideredKey != "n" {
		t.Errorf("expected last considered key 'n', got %q", got.LastConsideredKey)
	}
	if !got.KeyRange.Equal(region.NewKeyRange("a", "z")) {
		t.Errorf("response key range should equal the read's region, got %s", got.KeyRange)
	}
}

// TestUnshardLength tests the length terminal sums across pieces
func TestUnshardLength(t *testing.T) {
	ctx := testClusterContext()
	terminal := &Terminal{Type: TerminalLength}
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Terminal: terminal})

	responses := []ReadResponse{
		{Variant: RangeReadResponse{Result: RangeResult{Type: ResultLength, Length: 3}, KeyRange: region.NewKeyRange("a", "m")}},
		{Variant: RangeReadResponse{Result: RangeResult{Type: ResultLength, Length: 4}, KeyRange: region.NewKeyRange("m", "z")}},
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := merged.Variant.(RangeReadResponse)
	if got.Result.Type != ResultLength || got.Result.Length != 7 {
		t.Errorf("expected merged length 7, got %+v", got.Result)
	}
}

// TestUnshardForEach tests the for-each terminal sums insertions
func TestUnshardForEach(t *testing.T) {
	ctx := testClusterContext()
	terminal := &Terminal{Type: TerminalForEach}
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Terminal: terminal})

	responses := []ReadResponse{
		{Variant: RangeReadResponse{Result: RangeResult{Type: ResultInserted, Inserted: 2}, KeyRange: region.NewKeyRange("a", "m")}},
		{Variant: RangeReadResponse{Result: RangeResult{Type: ResultInserted, Inserted: 5}, KeyRange: region.NewKeyRange("m", "z")}},
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := merged.Variant.(RangeReadResponse)
	if got.Result.Type != ResultInserted || got.Result.Inserted != 7 {
		t.Errorf("expected merged inserted 7, got %+v", got.Result)
	}
}

// TestUnshardGroupedMapReduce tests per-group re-reduction across pieces
func TestUnshardGroupedMapReduce(t *testing.T) {
	ctx := testClusterContext()
	terminal := &Terminal{Type: TerminalGroupedMapReduce, Reduction: query.SumReduction()}
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Terminal: terminal})

	responses := []ReadResponse{
		{Variant: RangeReadResponse{
			Result:   RangeResult{Type: ResultGroups, Groups: Groups{"g1": float64(2), "g2": float64(5)}},
			KeyRange: region.NewKeyRange("a", "m"),
		}},
		{Variant: RangeReadResponse{
			Result:   RangeResult{Type: ResultGroups, Groups: Groups{"g1": float64(3), "g3": float64(1)}},
			KeyRange: region.NewKeyRange("m", "z"),
		}},
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := merged.Variant.(RangeReadResponse)
	if got.Result.Type != ResultGroups {
		t.Fatalf("expected a groups result, got %s", got.Result.Type)
	}

	want := map[string]float64{"g1": 5, "g2": 5, "g3": 1}
	for group, sum := range want {
		if got.Result.Groups[group] != sum {
			t.Errorf("group %s: expected %v, got %v", group, sum, got.Result.Groups[group])
		}
	}
	if len(got.Result.Groups) != len(want) {
		t.Errorf("expected %d groups, got %d", len(want), len(got.Result.Groups))
	}
}

// TestUnshardReduction tests folding shard atoms into one accumulator
func TestUnshardReduction(t *testing.T) {
	ctx := testClusterContext()
	terminal := &Terminal{Type: TerminalReduce, Reduction: query.SumReduction()}
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Terminal: terminal})

	responses := []ReadResponse{
		{Variant: RangeReadResponse{Result: RangeResult{Type: ResultAtom, Atom: float64(10)}, KeyRange: region.NewKeyRange("a", "m")}},
		{Variant: RangeReadResponse{Result: RangeResult{Type: ResultAtom, Atom: float64(32)}, KeyRange: region.NewKeyRange("m", "z")}},
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := merged.Variant.(RangeReadResponse)
	if got.Result.Type != ResultAtom || got.Result.Atom != float64(42) {
		t.Errorf("expected merged atom 42, got %+v", got.Result)
	}
}

// TestUnshardPieceError tests that a failed piece wins over successful ones
func TestUnshardPieceError(t *testing.T) {
	ctx := testClusterContext()
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Maximum: 10})

	boom := query.NewRuntimeError("boom", nil)
	responses := []ReadResponse{
		streamResponse(region.NewKeyRange("a", "m"), "b", false, KeyValue{Key: "a", Value: float64(1)}),
		{Variant: RangeReadResponse{Result: ErrorResult(boom), KeyRange: region.NewKeyRange("m", "z")}},
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := merged.Variant.(RangeReadResponse)
	if got.Result.Type != ResultError || got.Result.Err == nil || got.Result.Err.Msg != "boom" {
		t.Errorf("the failed piece's error should become the merged result, got %+v", got.Result)
	}
}

// TestUnshardReductionError tests that errors raised while merging are
// captured into the result
func TestUnshardReductionError(t *testing.T) {
	ctx := testClusterContext()
	terminal := &Terminal{Type: TerminalReduce, Reduction: query.Reduction{
		Base: query.Datum(float64(0)),
		Var1: "acc",
		Var2: "row",
		Body: query.RaiseError("bad body"),
	}}
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Terminal: terminal})

	responses := []ReadResponse{
		{Variant: RangeReadResponse{Result: RangeResult{Type: ResultAtom, Atom: float64(1)}, KeyRange: region.NewKeyRange("a", "z")}},
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("evaluation errors must not fail the request: %v", err)
	}

	got := merged.Variant.(RangeReadResponse)
	if got.Result.Type != ResultError || got.Result.Err == nil || got.Result.Err.Msg != "bad body" {
		t.Errorf("expected the captured runtime error, got %+v", got.Result)
	}
}

// TestUnshardDistributionConcat tests distribution merging across key-range
// shards
func TestUnshardDistributionConcat(t *testing.T) {
	ctx := testClusterContext()
	r := NewDistributionRead(region.NewKeyRange("a", "z"), 4)

	responses := []ReadResponse{
		{Variant: DistributionReadResponse{KeyCounts: map[string]int64{"a": 10, "b": 20}}},
		{Variant: DistributionReadResponse{KeyCounts: map[string]int64{"m": 5}}},
	}

	merged, err := r.Unshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := merged.Variant.(DistributionReadResponse)
	want := map[string]int64{"a": 10, "b": 20, "m": 5}
	if len(got.KeyCounts) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got.KeyCounts))
	}
	for key, count := range want {
		if got.KeyCounts[key] != count {
			t.Errorf("key %q: expected %d, got %d", key, count, got.KeyCounts[key])
		}
	}
}

// TestWriteUnshard tests the single-response contract of write unshard
func TestWriteUnshard(t *testing.T) {
	ctx := testClusterContext()
	w := NewPointWrite("foo", []byte("{}"))

	resp := WriteResponse{Variant: PointWriteResponse{Result: WriteStored}}
	merged := w.Unshard([]WriteResponse{resp}, ctx)
	if merged.Variant.(PointWriteResponse).Result != WriteStored {
		t.Error("write unshard should return the single response unchanged")
	}

	multi := w.MultistoreUnshard([]WriteResponse{resp}, ctx)
	if multi.Variant.(PointWriteResponse).Result != WriteStored {
		t.Error("multistore write unshard should match unshard")
	}
}
