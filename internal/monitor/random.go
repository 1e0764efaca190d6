package monitor

import (
	"math/rand"

	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// Random is a deterministic-seeded pseudo-random monitor in [min, max],
// used for tests per spec §4.5.
type Random struct {
	base
	min, max float64
	rng      *rand.Rand
	values   map[int]float64
}

// NewRandom creates a Random monitor seeded by seed.
func NewRandom(name string, min, max float64, seed int64, dir pinning.Direction) *Random {
	return &Random{
		base:   newBase(name, "", dir),
		min:    min,
		max:    max,
		rng:    rand.New(rand.NewSource(seed)),
		values: make(map[int]float64),
	}
}

func (r *Random) Init() error { return nil }

func (r *Random) Start(tid int) error {
	r.values[tid] = r.min + r.rng.Float64()*(r.max-r.min)
	r.markStarted(tid)
	return nil
}

func (r *Random) Value(tid int) (float64, error) {
	return r.values[tid], nil
}

func (r *Random) Stop(tid int) (float64, error) {
	v := r.values[tid]
	r.Clear(tid)
	return v, nil
}

func (r *Random) Clear(tid int) {
	delete(r.values, tid)
	r.markStopped(tid)
}
