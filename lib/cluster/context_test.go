package cluster

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/google/uuid"
)

// TestWatchablePublish tests snapshot publication and subscription
func TestWatchablePublish(t *testing.T) {
	w := NewWatchable(&ClusterMetadata{})

	var seen int
	w.Subscribe(func(*ClusterMetadata) { seen++ })

	// Subscribe delivers the current snapshot immediately.
	if seen != 1 {
		t.Fatalf("expected 1 notification after subscribe, got %d", seen)
	}

	next := &ClusterMetadata{}
	w.Set(next)

	if seen != 2 {
		t.Errorf("expected 2 notifications after publish, got %d", seen)
	}
	if w.Get() != next {
		t.Error("Get should return the latest published snapshot")
	}
}

// TestCrossWorkerView tests per-worker projections refresh on publication
func TestCrossWorkerView(t *testing.T) {
	const numWorkers = 4

	src := NewWatchable(&NamespacesMetadata{})
	view := NewCrossWorkerView(src, numWorkers)

	nsID := uuid.New()
	next := &NamespacesMetadata{
		Namespaces: map[uuid.UUID]NamespaceMetadata{
			nsID: {Name: "docs", CPUShards: 2},
		},
	}
	src.Set(next)

	for worker := 0; worker < numWorkers; worker++ {
		snap := view.For(worker).Snapshot()
		if snap == nil {
			t.Fatalf("worker %d has no snapshot", worker)
		}
		if snap.Namespaces[nsID].Name != "docs" {
			t.Errorf("worker %d sees stale metadata", worker)
		}
	}
}

// TestNewEnv tests that environments carry fresh per-request handles
func TestNewEnv(t *testing.T) {
	machineID := uuid.New()

	var created int
	ctx := NewContext(ContextConfig{
		NumWorkers: 2,
		MachineID:  machineID,
		JSFactory: func() query.ScriptRunner {
			created++
			return countingRunner{}
		},
	})

	env1 := ctx.NewEnv(0, query.Scopes{Bindings: map[string]query.Value{"x": float64(1)}})
	env2 := ctx.NewEnv(1, query.Scopes{})

	if created != 2 {
		t.Errorf("expected one scripting runtime per request, got %d", created)
	}
	if env1.MachineID != machineID || env2.MachineID != machineID {
		t.Error("environments should carry the machine identity")
	}

	// The request's scope bindings must be visible to evaluation.
	v, err := query.Eval(query.Var("x"), env1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != float64(1) {
		t.Errorf("expected 1, got %v", v)
	}

	if err := env1.Close(); err != nil {
		t.Errorf("closing the environment should close the runner: %v", err)
	}
}

type countingRunner struct{}

func (countingRunner) Close() error { return nil }

// TestEnvInterruptSignal tests that envs observe the process interruptor
func TestEnvInterruptSignal(t *testing.T) {
	interruptor, cancel := context.WithCancel(context.Background())

	ctx := NewContext(ContextConfig{NumWorkers: 1, Interruptor: interruptor})
	env := ctx.NewEnv(0, query.Scopes{})

	if _, err := query.Eval(query.Datum(float64(1)), env, nil); err != nil {
		t.Fatalf("unexpected error before interrupt: %v", err)
	}

	cancel()

	if _, err := query.Eval(query.Datum(float64(1)), env, nil); err != query.ErrInterrupted {
		t.Errorf("expected ErrInterrupted after cancel, got %v", err)
	}
}

// TestMetadataProjection tests that SetMetadata fans out to worker views
func TestMetadataProjection(t *testing.T) {
	ctx := NewContext(ContextConfig{NumWorkers: 2})

	dbID := uuid.New()
	ctx.SetMetadata(&ClusterMetadata{
		Databases: DatabasesMetadata{
			Databases: map[uuid.UUID]DatabaseMetadata{dbID: {Name: "main"}},
		},
	})

	env := ctx.NewEnv(1, query.Scopes{})
	snap, ok := env.Databases.Get().(*DatabasesMetadata)
	if !ok || snap == nil {
		t.Fatalf("expected a databases snapshot, got %T", env.Databases.Get())
	}
	if snap.Databases[dbID].Name != "main" {
		t.Error("worker view should reflect the published metadata")
	}
}
