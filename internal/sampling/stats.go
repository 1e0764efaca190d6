package sampling

import "sync"

// WeightBuckets is the number of fixed-interval buckets in the
// secondary weight histogram, per spec §4.6.
const WeightBuckets = 16

// weightBucketInterval is the fixed cycle-penalty interval per bucket.
const weightBucketInterval = 64

// PageStats is the per-page access record of spec §3: a per-NUMA-node
// access count vector, the last accessing node, and a home-change
// count incremented whenever the accessing node differs from the
// previous sample's.
type PageStats struct {
	PerNode       []uint64
	LastNode      int
	HomeChanges   uint64
	hasLastNode   bool
}

// PageAccessStats is the SamplingEngine's exclusively-owned page table,
// keyed by page-aligned address (spec §3).
type PageAccessStats struct {
	mu       sync.Mutex
	pageSize uint64
	nodeOf   func(cpu int) int
	nodeCount int
	pages    map[uint64]*PageStats
}

// NewPageAccessStats creates an empty table. nodeOf maps an accessing
// CPU to its NUMA node (via internal/topology).
func NewPageAccessStats(pageSize uint64, nodeCount int, nodeOf func(cpu int) int) *PageAccessStats {
	return &PageAccessStats{
		pageSize:  pageSize,
		nodeOf:    nodeOf,
		nodeCount: nodeCount,
		pages:     make(map[uint64]*PageStats),
	}
}

// PageOf masks addr down to its containing page.
func (s *PageAccessStats) PageOf(addr uint64) uint64 {
	return addr &^ (s.pageSize - 1)
}

// AddMemAccess records one access to addr from accessingCPU, inserting
// the page on first sample and incrementing a home-change counter
// whenever the accessing node differs from the previous sample's, per
// spec §3.
func (s *PageAccessStats) AddMemAccess(addr uint64, accessingCPU int) {
	page := s.PageOf(addr)
	node := s.nodeOf(accessingCPU)
	if node < 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[page]
	if !ok {
		p = &PageStats{PerNode: make([]uint64, s.nodeCount)}
		s.pages[page] = p
	}
	if node < len(p.PerNode) {
		p.PerNode[node]++
	}
	if p.hasLastNode && p.LastNode != node {
		p.HomeChanges++
	}
	p.LastNode = node
	p.hasLastNode = true
}

// Get returns a copy of the stats for page, and whether it exists.
func (s *PageAccessStats) Get(page uint64) (PageStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[page]
	if !ok {
		return PageStats{}, false
	}
	cp := *p
	cp.PerNode = append([]uint64(nil), p.PerNode...)
	return cp, true
}

// Pages returns every page address currently tracked.
func (s *PageAccessStats) Pages() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.pages))
	for p := range s.pages {
		out = append(out, p)
	}
	return out
}

// Reset clears the whole table, used after a migration pass per spec
// §4.7.
func (s *PageAccessStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[uint64]*PageStats)
}

// LevelHistogram maps a memory-hierarchy level bitmask to a count, plus
// a secondary fixed-interval weight histogram, per spec §4.6.
type LevelHistogram struct {
	mu      sync.Mutex
	levels  map[uint64]uint64
	weights [WeightBuckets]uint64
}

// NewLevelHistogram creates an empty LevelHistogram.
func NewLevelHistogram() *LevelHistogram {
	return &LevelHistogram{levels: make(map[uint64]uint64)}
}

// Add records one sample at the given data_src level mask and cycle
// weight.
func (h *LevelHistogram) Add(dataSrc uint64, weight uint64) {
	lvl := (dataSrc >> memLvlShift) & 0x3fff
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels[lvl]++
	bucket := weight / weightBucketInterval
	if bucket >= WeightBuckets {
		bucket = WeightBuckets - 1
	}
	h.weights[bucket]++
}

// Levels returns a copy of the level->count map.
func (h *LevelHistogram) Levels() map[uint64]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[uint64]uint64, len(h.levels))
	for k, v := range h.levels {
		out[k] = v
	}
	return out
}

// WeightHistogram returns a copy of the fixed-interval weight buckets.
func (h *LevelHistogram) WeightHistogram() [WeightBuckets]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.weights
}

// Reset clears the histogram, used after a migration pass.
func (h *LevelHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels = make(map[uint64]uint64)
	h.weights = [WeightBuckets]uint64{}
}

// FrequencyHistogram maps an aggregate access count to how many pages
// have that count, per spec §4.6.
func BuildFrequencyHistogram(stats *PageAccessStats) map[uint64]uint64 {
	out := make(map[uint64]uint64)
	for _, page := range stats.Pages() {
		p, ok := stats.Get(page)
		if !ok {
			continue
		}
		var total uint64
		for _, c := range p.PerNode {
			total += c
		}
		out[total]++
	}
	return out
}
