package node

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock abstracts wall-clock reads so the service's periodic scheduling
// and timestamp comparisons are deterministically testable.
type Clock interface {
	Now() Timestamp
}

type systemClock struct{}

func (systemClock) Now() Timestamp { return TimestampFromTime(time.Now()) }

// SystemClock returns the production Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// ManualClock is a Clock tests can advance explicitly, needed to drive
// the idle/sync/announce/prune scheduling windows without sleeping.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

func (c *ManualClock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TimestampFromTime(c.t)
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// RNG abstracts the sources of randomness the service needs: ping
// nonce/length generation. Kept injectable so tests can make outcomes
// deterministic.
type RNG interface {
	Uint64() uint64
}

type pcgRNG struct {
	r *rand.Rand
}

// NewRNG builds a seedable RNG (PCG, the generator math/rand/v2 favors
// for reproducible streams).
func NewRNG(seed1, seed2 uint64) RNG {
	return &pcgRNG{r: rand.New(rand.NewPCG(seed1, seed2))}
}

func (p *pcgRNG) Uint64() uint64 { return p.r.Uint64() }
