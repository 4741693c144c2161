// Package benchmarks provides synthetic access-pattern workloads and a
// harness that compares prefetchers on them.
package benchmarks

import (
	"math/rand"

	"github.com/sarchlab/prefetchsim/loader"
)

// Workload is a synthetic memory access trace.
type Workload struct {
	// Name identifies the workload
	Name string

	// Description explains the access pattern
	Description string

	// Generate builds the trace. It must be deterministic.
	Generate func() []loader.Access
}

// GetWorkloads returns the standard set of workloads. Each one targets the
// pattern a particular predictor is built for.
func GetWorkloads() []Workload {
	return []Workload{
		sequentialStream(),
		stridedArray(),
		interleavedStrides(),
		pointerChase(),
		deltaPattern(),
		randomAccess(),
	}
}

// GetCoreWorkloads returns a minimal set of workloads for quick checks.
func GetCoreWorkloads() []Workload {
	return []Workload{
		sequentialStream(),
		pointerChase(),
		randomAccess(),
	}
}

// GetWorkload returns the workload with the given name.
func GetWorkload(name string) (Workload, bool) {
	for _, w := range GetWorkloads() {
		if w.Name == name {
			return w, true
		}
	}
	return Workload{}, false
}

// tracer hands out increasing time stamps.
type tracer struct {
	accesses []loader.Access
	now      int64
	gap      int64
}

func newTracer(gap int64) *tracer {
	return &tracer{gap: gap}
}

func (t *tracer) add(pc, addr uint64) {
	t.accesses = append(t.accesses, loader.Access{
		Time: t.now,
		PC:   pc,
		Addr: addr,
	})
	t.now += t.gap
}

// 1. Sequential Stream - one load walking a large buffer line by line
func sequentialStream() Workload {
	return Workload{
		Name:        "sequential_stream",
		Description: "4096 loads to consecutive 64B lines",
		Generate: func() []loader.Access {
			t := newTracer(50)
			for i := uint64(0); i < 4096; i++ {
				t.add(0x400, 0x100000+i*64)
			}
			return t.accesses
		},
	}
}

// 2. Strided Array - a loop body whose load skips four lines per iteration
func stridedArray() Workload {
	return Workload{
		Name:        "strided_array",
		Description: "loop of a counter load and a load with a 256B stride",
		Generate: func() []loader.Access {
			t := newTracer(50)
			for i := uint64(0); i < 2048; i++ {
				t.add(0x3F0, 0x10000)
				t.add(0x400, 0x200000+i*256)
			}
			return t.accesses
		},
	}
}

// 3. Interleaved Strides - two arrays walked by two loads in one loop
func interleavedStrides() Workload {
	return Workload{
		Name:        "interleaved_strides",
		Description: "two loads per iteration with 64B and 192B strides",
		Generate: func() []loader.Access {
			t := newTracer(50)
			for i := uint64(0); i < 2048; i++ {
				t.add(0x400, 0x300000+i*64)
				t.add(0x408, 0x800000+i*192)
			}
			return t.accesses
		},
	}
}

// 4. Pointer Chase - a fixed linked list in random layout walked repeatedly
func pointerChase() Workload {
	return Workload{
		Name:        "pointer_chase",
		Description: "8 walks over a 1024 node list scattered across 4MB",
		Generate: func() []loader.Access {
			rng := rand.New(rand.NewSource(1))
			nodes := rng.Perm(65536)[:1024]

			t := newTracer(50)
			for walk := 0; walk < 8; walk++ {
				for _, n := range nodes {
					t.add(0x500, 0x1000000+uint64(n)*64)
				}
			}
			return t.accesses
		},
	}
}

// 5. Delta Pattern - records of two fields spread over a sparse table
func deltaPattern() Workload {
	return Workload{
		Name:        "delta_pattern",
		Description: "alternating +4KB and +64B jumps repeated over 4 passes",
		Generate: func() []loader.Access {
			t := newTracer(50)
			for pass := 0; pass < 4; pass++ {
				addr := uint64(0x4000000)
				for i := 0; i < 1024; i++ {
					t.add(0x600, addr)
					addr += 4096
					t.add(0x604, addr)
					addr += 64
				}
			}
			return t.accesses
		},
	}
}

// 6. Random Access - uniform loads over a large region
func randomAccess() Workload {
	return Workload{
		Name:        "random_access",
		Description: "4096 uniform random loads over 64MB",
		Generate: func() []loader.Access {
			rng := rand.New(rand.NewSource(2))
			t := newTracer(50)
			for i := 0; i < 4096; i++ {
				t.add(0x700, 0x10000000+uint64(rng.Intn(1<<20))*64)
			}
			return t.accesses
		},
	}
}
