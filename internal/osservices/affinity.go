package osservices

import (
	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"golang.org/x/sys/unix"
)

// SetAffinity pins tid to exactly the given cores, replacing any previous
// affinity mask, per spec §4.4's pinning operation.
func SetAffinity(tid int, cores []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(tid, &set); err != nil {
		return errs.New(errs.System, "set_affinity", err)
	}
	return nil
}

// GetAffinity returns the cores tid is currently pinned to.
func GetAffinity(tid int) ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(tid, &set); err != nil {
		return nil, errs.New(errs.System, "get_affinity", err)
	}
	var cores []int
	for c := 0; c < 1024; c++ {
		if set.IsSet(c) {
			cores = append(cores, c)
		}
	}
	return cores, nil
}
