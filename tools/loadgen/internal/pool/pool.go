package pool

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned when an operation is attempted on a closed pool.
var ErrPoolClosed = errors.New("parameter pool is closed")

// EvictionPolicy defines how values are evicted when a bucket is full.
type EvictionPolicy int

const (
	// EvictionFIFO evicts the oldest value first.
	EvictionFIFO EvictionPolicy = iota

	// EvictionLRU evicts the least recently used value first.
	EvictionLRU

	// EvictionRandom evicts a value at random.
	EvictionRandom
)

func (e EvictionPolicy) String() string {
	switch e {
	case EvictionFIFO:
		return "FIFO"
	case EvictionLRU:
		return "LRU"
	case EvictionRandom:
		return "Random"
	default:
		return "Unknown"
	}
}

// ParseEvictionPolicy parses a string into an EvictionPolicy, defaulting
// to FIFO for unknown input.
func ParseEvictionPolicy(s string) EvictionPolicy {
	switch s {
	case "LRU", "lru":
		return EvictionLRU
	case "Random", "random", "RANDOM":
		return EvictionRandom
	default:
		return EvictionFIFO
	}
}

// Stats describes the state and hit/miss history of a parameter pool.
type Stats struct {
	TotalValues   int64
	ValuesByType  map[SemanticType]int64
	HitCount      int64
	MissCount     int64
	EvictionCount int64
	ExpiredCount  int64
	AddCount      int64
	Uptime        time.Duration
}

// HitRate returns the hit rate as a percentage (0-100).
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total) * 100
}

// Config holds configuration options for a ParameterPool.
type Config struct {
	// DefaultTTL is the default time-to-live for values (0 means no expiration)
	DefaultTTL time.Duration

	// MaxValuesPerType bounds each semantic type's bucket (0 means unlimited)
	MaxValuesPerType int

	// EvictionPolicy determines which value leaves a full bucket
	EvictionPolicy EvictionPolicy

	// CleanupInterval is how often expired values are swept (0 disables the sweeper)
	CleanupInterval time.Duration
}

// DefaultConfig returns a Config sized for a typical billing workload run:
// subscription and invoice IDs churn quickly, so buckets stay small and
// values expire within minutes.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:       5 * time.Minute,
		MaxValuesPerType: 1000,
		EvictionPolicy:   EvictionFIFO,
		CleanupInterval:  time.Minute,
	}
}

// ParameterPool stores values harvested from API responses, keyed by
// semantic type, so later requests in a workload can reuse real IDs:
// a subscription ID captured from a create response feeds subsequent
// usage posts and estimate calls, an invoice ID feeds the pay call.
//
// All operations are safe for concurrent use.
type ParameterPool struct {
	mu      sync.RWMutex
	buckets map[SemanticType][]*ParameterValue
	config  Config
	startAt time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	adds      atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
	closed      atomic.Bool

	rng *rand.Rand
}

// New creates a ParameterPool with the given configuration and starts
// the expiry sweeper if one is configured.
func New(config Config) *ParameterPool {
	p := &ParameterPool{
		buckets:   make(map[SemanticType][]*ParameterValue),
		config:    config,
		startAt:   time.Now(),
		sweepDone: make(chan struct{}),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if config.CleanupInterval > 0 {
		p.sweepTicker = time.NewTicker(config.CleanupInterval)
		go p.sweepLoop()
	}

	return p
}

// Add stores a value in its semantic type's bucket, evicting one entry
// per the configured policy if the bucket is full. Returns the number
// of values evicted to make room.
func (p *ParameterPool) Add(ctx context.Context, value *ParameterValue) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.adds.Add(1)
	evicted := 0

	bucket := p.buckets[value.SemanticType]
	if p.config.MaxValuesPerType > 0 && len(bucket) >= p.config.MaxValuesPerType {
		evicted = p.evictLocked(value.SemanticType)
	}
	p.buckets[value.SemanticType] = append(p.buckets[value.SemanticType], value)

	return evicted, nil
}

// evictLocked removes one value per the eviction policy. Caller holds p.mu.
func (p *ParameterPool) evictLocked(semanticType SemanticType) int {
	bucket := p.buckets[semanticType]
	if len(bucket) == 0 {
		return 0
	}

	idx := 0
	switch p.config.EvictionPolicy {
	case EvictionLRU:
		oldest := bucket[0].LastAccessedAt()
		for i, v := range bucket {
			if v.LastAccessedAt().Before(oldest) {
				oldest = v.LastAccessedAt()
				idx = i
			}
		}
	case EvictionRandom:
		idx = p.rng.Intn(len(bucket))
	}

	p.buckets[semanticType] = append(bucket[:idx], bucket[idx+1:]...)
	p.evictions.Add(1)
	return 1
}

// Get returns the first live value for the semantic type, or nil if the
// bucket holds none.
func (p *ParameterPool) Get(ctx context.Context, semanticType SemanticType) (*ParameterValue, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range p.buckets[semanticType] {
		if !v.IsExpired() {
			v.Touch()
			p.hits.Add(1)
			return v, nil
		}
	}

	p.misses.Add(1)
	return nil, nil
}

// GetRandom returns a uniformly random live value for the semantic
// type, or nil if the bucket holds none. Random picks keep a workload
// from hammering the same subscription row on every request.
func (p *ParameterPool) GetRandom(ctx context.Context, semanticType SemanticType) (*ParameterValue, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]*ParameterValue, 0, len(p.buckets[semanticType]))
	for _, v := range p.buckets[semanticType] {
		if !v.IsExpired() {
			live = append(live, v)
		}
	}
	if len(live) == 0 {
		p.misses.Add(1)
		return nil, nil
	}

	v := live[p.rng.Intn(len(live))]
	v.Touch()
	p.hits.Add(1)
	return v, nil
}

// GetAll returns all live values for the semantic type.
func (p *ParameterPool) GetAll(ctx context.Context, semanticType SemanticType) ([]*ParameterValue, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	bucket := p.buckets[semanticType]
	result := make([]*ParameterValue, 0, len(bucket))
	for _, v := range bucket {
		if !v.IsExpired() {
			result = append(result, v)
		}
	}
	return result, nil
}

// Count returns the number of stored values for the semantic type,
// expired entries included until the sweeper removes them.
func (p *ParameterPool) Count(ctx context.Context, semanticType SemanticType) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.buckets[semanticType]), nil
}

// Remove deletes a specific value. Returns true if it was present.
func (p *ParameterPool) Remove(ctx context.Context, value *ParameterValue) (bool, error) {
	if p.closed.Load() {
		return false, ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[value.SemanticType]
	for i, v := range bucket {
		if v == value {
			p.buckets[value.SemanticType] = append(bucket[:i], bucket[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Clear drops every value for the semantic type and returns how many
// were dropped.
func (p *ParameterPool) Clear(ctx context.Context, semanticType SemanticType) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	count := len(p.buckets[semanticType])
	delete(p.buckets, semanticType)
	return count, nil
}

// ClearAll drops every value in the pool.
func (p *ParameterPool) ClearAll(ctx context.Context) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buckets = make(map[SemanticType][]*ParameterValue)
	return nil
}

// Cleanup removes expired values and returns how many were removed.
func (p *ParameterPool) Cleanup(ctx context.Context) (int, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for st, bucket := range p.buckets {
		live := bucket[:0]
		for _, v := range bucket {
			if v.IsExpired() {
				removed++
				continue
			}
			live = append(live, v)
		}
		p.buckets[st] = live
	}

	p.expired.Add(int64(removed))
	return removed, nil
}

func (p *ParameterPool) sweepLoop() {
	for {
		select {
		case <-p.sweepTicker.C:
			_, _ = p.Cleanup(context.Background())
		case <-p.sweepDone:
			return
		}
	}
}

// Stats returns a snapshot of the pool's counters and contents.
func (p *ParameterPool) Stats(ctx context.Context) (Stats, error) {
	if p.closed.Load() {
		return Stats{}, ErrPoolClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		ValuesByType:  make(map[SemanticType]int64),
		HitCount:      p.hits.Load(),
		MissCount:     p.misses.Load(),
		EvictionCount: p.evictions.Load(),
		ExpiredCount:  p.expired.Load(),
		AddCount:      p.adds.Load(),
		Uptime:        time.Since(p.startAt),
	}
	for st, bucket := range p.buckets {
		count := int64(len(bucket))
		stats.TotalValues += count
		stats.ValuesByType[st] = count
	}
	return stats, nil
}

// Types returns the semantic types that currently hold values.
func (p *ParameterPool) Types(ctx context.Context) ([]SemanticType, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	types := make([]SemanticType, 0, len(p.buckets))
	for st, bucket := range p.buckets {
		if len(bucket) > 0 {
			types = append(types, st)
		}
	}
	return types, nil
}

// Close stops the sweeper. Further operations return ErrPoolClosed.
func (p *ParameterPool) Close() error {
	if p.closed.Swap(true) {
		return ErrPoolClosed
	}
	if p.sweepTicker != nil {
		p.sweepTicker.Stop()
		close(p.sweepDone)
	}
	return nil
}
