package partition

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

const testSeed = 1415926535

func TestNewRejectsBadConfiguration(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"zero agents", Options{AgentID: 0, AgentCount: 0, SpaceSize: 10}},
		{"negative agents", Options{AgentID: 0, AgentCount: -2, SpaceSize: 10}},
		{"id equals count", Options{AgentID: 3, AgentCount: 3, SpaceSize: 10}},
		{"negative id", Options{AgentID: -1, AgentCount: 3, SpaceSize: 10}},
		{"empty space", Options{AgentID: 0, AgentCount: 1, SpaceSize: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestAgentSplitIsExhaustiveAndDisjoint(t *testing.T) {
	for agentCount := 1; agentCount <= 8; agentCount++ {
		remaining := make(map[int]struct{}, DefaultSpaceSize)
		for i := 0; i < DefaultSpaceSize; i++ {
			remaining[i] = struct{}{}
		}

		for agentID := 0; agentID < agentCount; agentID++ {
			p, err := New(Options{AgentID: agentID, AgentCount: agentCount, SpaceSize: DefaultSpaceSize, SharedSeed: testSeed})
			if err != nil {
				t.Fatalf("new agent %d/%d: %v", agentID, agentCount, err)
			}
			for {
				v := p.Next()
				if p.InFallback() {
					break
				}
				if _, ok := remaining[v]; !ok {
					t.Fatalf("agents=%d agent=%d: value %d missing or duplicated", agentCount, agentID, v)
				}
				delete(remaining, v)
			}
		}
		if len(remaining) != 0 {
			t.Fatalf("agents=%d: %d values never served", agentCount, len(remaining))
		}
	}
}

func TestUnevenSplitLeavesTrailingAgentsEmpty(t *testing.T) {
	// ceil(10/8) = 2, so agents 5..7 own nothing.
	total := 0
	for agentID := 0; agentID < 8; agentID++ {
		block := Block(agentID, 8, 10, testSeed)
		if agentID >= 5 && len(block) != 0 {
			t.Fatalf("agent %d: expected empty block, got %v", agentID, block)
		}
		total += len(block)
	}
	if total != 10 {
		t.Fatalf("expected 10 values across blocks, got %d", total)
	}

	p, err := New(Options{AgentID: 7, AgentCount: 8, SpaceSize: 10, SharedSeed: testSeed})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	v := p.Next()
	if !p.InFallback() {
		t.Fatal("expected immediate fallback for an empty block")
	}
	if v < 0 || v >= 10 {
		t.Fatalf("fallback value %d outside the space", v)
	}
}

func TestFallbackActivatesOncePerLifetime(t *testing.T) {
	calls := 0
	p, err := New(Options{
		AgentID: 1, AgentCount: 4, SpaceSize: 40, SharedSeed: testSeed,
		OnFallback: func(int) { calls++ },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 10; i++ {
		p.Next()
	}
	if p.InFallback() || p.FallbackActivations() != 0 {
		t.Fatal("fallback engaged before the partition was empty")
	}

	// Drain far past several fallback regenerations.
	for i := 0; i < 200; i++ {
		v := p.Next()
		if v < 0 || v >= 40 {
			t.Fatalf("fallback value %d outside the space", v)
		}
	}
	if !p.InFallback() {
		t.Fatal("expected fallback mode")
	}
	if p.FallbackActivations() != 1 || calls != 1 {
		t.Fatalf("expected one activation, got %d (hook %d)", p.FallbackActivations(), calls)
	}

	p.Reset()
	if p.InFallback() || p.FallbackActivations() != 0 {
		t.Fatal("reset should leave fallback mode")
	}
	for i := 0; i < 11; i++ {
		p.Next()
	}
	if p.FallbackActivations() != 1 || calls != 2 {
		t.Fatalf("expected a fresh activation after reset, got %d (hook %d)", p.FallbackActivations(), calls)
	}
}

func TestResetReproducesTheSameMultiset(t *testing.T) {
	tick := time.Unix(1700000000, 0)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	p, err := New(Options{AgentID: 2, AgentCount: 3, SpaceSize: DefaultSpaceSize, SharedSeed: testSeed, Clock: clock})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := p.Snapshot()

	for i := 0; i < 100; i++ {
		p.Next()
	}
	p.Reset()
	after := p.Snapshot()

	if !reflect.DeepEqual(before, after) {
		t.Fatal("reset produced a different partition")
	}
	if p.Pops() != 0 {
		t.Fatalf("expected pops reset to 0, got %d", p.Pops())
	}
}

func TestLocalOrderDoesNotDependOnSharedSeed(t *testing.T) {
	block := Block(0, 1, 500, testSeed)
	again := Block(0, 1, 500, testSeed)
	if !reflect.DeepEqual(block, again) {
		t.Fatal("shared-seed shuffle is not reproducible")
	}

	a, _ := New(Options{AgentID: 0, AgentCount: 1, SpaceSize: 500, SharedSeed: testSeed,
		Clock: func() time.Time { return time.Unix(1, 0) }})
	b, _ := New(Options{AgentID: 0, AgentCount: 1, SpaceSize: 500, SharedSeed: testSeed,
		Clock: func() time.Time { return time.Unix(2, 0) }})

	same := true
	for i := 0; i < 20; i++ {
		if a.Next() != b.Next() {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different local seeds produced the same draw order")
	}
}
