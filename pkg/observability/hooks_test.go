package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Simulation hooks
	s := NoopSimulationHooks{}
	s.OnRunStart(ctx, 100, 250)
	s.OnFrame(ctx, 0.8, 50, time.Millisecond)
	s.OnRunComplete(ctx, 600, time.Second, nil)
	s.OnSessionOpen(ctx, 100)
	s.OnSessionClose(ctx)
	s.OnRenderComplete(ctx, "svg", time.Second, nil)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "layout")
	c.OnCacheMiss(ctx, "state")
	c.OnCacheSet(ctx, "layout", 1024)

	// HTTP hooks
	h := NoopHTTPHooks{}
	h.OnResponse(ctx, "POST", "/simulations/{id}/frames", 200, time.Millisecond)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Simulation().(NoopSimulationHooks); !ok {
		t.Error("Simulation() should return NoopSimulationHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	// Set custom hooks
	customSim := &testSimulationHooks{}
	SetSimulationHooks(customSim)
	if Simulation() != customSim {
		t.Error("SetSimulationHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Simulation().(NoopSimulationHooks); !ok {
		t.Error("Reset() should restore NoopSimulationHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testSimulationHooks{}
	SetSimulationHooks(custom)

	// Setting nil should be ignored
	SetSimulationHooks(nil)

	if Simulation() != custom {
		t.Error("SetSimulationHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testSimulationHooks struct{ NoopSimulationHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
