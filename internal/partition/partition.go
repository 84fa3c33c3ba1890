// Package partition splits the candidate space across cooperating agents.
//
// Every agent shuffles the full space with the same shared seed and takes
// its own contiguous block, so the blocks of honestly configured agents are
// disjoint and together cover the space. The block is then reshuffled with
// a clock-derived seed so agents do not walk their blocks in lockstep.
package partition

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"
)

// ErrConfiguration is returned for an impossible agent id/count/space.
var ErrConfiguration = errors.New("invalid partition configuration")

// DefaultSpaceSize covers the 4-digit code space.
const DefaultSpaceSize = 10000

// Options configures a Partitioner.
type Options struct {
	AgentID    int
	AgentCount int
	SpaceSize  int
	SharedSeed int64

	// Clock seeds the local reshuffle and the fallback supply. Defaults to time.Now.
	Clock func() time.Time

	// OnFallback is called once each time the partition runs dry.
	OnFallback func(pops int)
}

// Partitioner serves untried candidates for one agent.
type Partitioner struct {
	opts Options

	values       []int
	fallback     bool
	activations  int
	pops         int
	localSeedSeq uint64
}

// New validates opts and computes the initial partition.
func New(opts Options) (*Partitioner, error) {
	if opts.AgentCount <= 0 {
		return nil, fmt.Errorf("%w: agent count must be positive, got %d", ErrConfiguration, opts.AgentCount)
	}
	if opts.AgentID < 0 || opts.AgentID >= opts.AgentCount {
		return nil, fmt.Errorf("%w: agent id %d outside [0, %d)", ErrConfiguration, opts.AgentID, opts.AgentCount)
	}
	if opts.SpaceSize <= 0 {
		return nil, fmt.Errorf("%w: space size must be positive, got %d", ErrConfiguration, opts.SpaceSize)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	p := &Partitioner{opts: opts}
	p.Reset()
	return p, nil
}

// BlockSize is ceil(spaceSize / agentCount).
func BlockSize(spaceSize, agentCount int) int {
	return (spaceSize + agentCount - 1) / agentCount
}

// Block returns the agent's slice of the shared-seed shuffle, in shuffle order.
// Trailing agents get an empty block when the space does not divide evenly.
func Block(agentID, agentCount, spaceSize int, sharedSeed int64) []int {
	space := make([]int, spaceSize)
	for i := range space {
		space[i] = i
	}
	shared := rand.New(rand.NewPCG(uint64(sharedSeed), uint64(sharedSeed)^0x9e3779b97f4a7c15))
	shared.Shuffle(len(space), func(i, j int) { space[i], space[j] = space[j], space[i] })

	size := BlockSize(spaceSize, agentCount)
	start := agentID * size
	if start >= spaceSize {
		return []int{}
	}
	end := min(start+size, spaceSize)
	out := make([]int, end-start)
	copy(out, space[start:end])
	return out
}

// Reset recomputes the partition from scratch and leaves fallback mode.
func (p *Partitioner) Reset() {
	p.values = Block(p.opts.AgentID, p.opts.AgentCount, p.opts.SpaceSize, p.opts.SharedSeed)
	p.localRNG().Shuffle(len(p.values), func(i, j int) {
		p.values[i], p.values[j] = p.values[j], p.values[i]
	})
	p.fallback = false
	p.activations = 0
	p.pops = 0
}

// Next removes and returns one candidate. It never blocks: once the
// partition is empty it serves a full-space shuffle, regenerated whenever
// that runs dry too.
func (p *Partitioner) Next() int {
	if len(p.values) == 0 {
		if !p.fallback {
			p.fallback = true
			p.activations++
			if p.opts.OnFallback != nil {
				p.opts.OnFallback(p.pops)
			}
		}
		p.generateFallback()
	}
	last := len(p.values) - 1
	v := p.values[last]
	p.values = p.values[:last]
	p.pops++
	return v
}

func (p *Partitioner) generateFallback() {
	values := make([]int, p.opts.SpaceSize)
	for i := range values {
		values[i] = i
	}
	p.localRNG().Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
	p.values = values
}

// localRNG is never shared with the partition shuffle. The sequence number
// keeps two reshuffles inside the same clock tick from repeating each other.
func (p *Partitioner) localRNG() *rand.Rand {
	p.localSeedSeq++
	return rand.New(rand.NewPCG(uint64(p.opts.Clock().UnixNano()), p.localSeedSeq))
}

// InFallback reports whether the partition has been exhausted.
func (p *Partitioner) InFallback() bool { return p.fallback }

// FallbackActivations counts partition-to-fallback transitions since the last reset.
func (p *Partitioner) FallbackActivations() int { return p.activations }

// Remaining is the number of values left in the current supply.
func (p *Partitioner) Remaining() int { return len(p.values) }

// Pops is the number of Next calls since the last reset.
func (p *Partitioner) Pops() int { return p.pops }

// Snapshot returns the untried values in ascending order.
func (p *Partitioner) Snapshot() []int {
	out := make([]int, len(p.values))
	copy(out, p.values)
	sort.Ints(out)
	return out
}
