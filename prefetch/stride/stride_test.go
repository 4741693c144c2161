package stride_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/prefetch/stride"
)

type evictRecorder struct {
	pcs []uint64
}

func (r *evictRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos == stride.HookPosPCEvicted {
		r.pcs = append(r.pcs, ctx.Item.(stride.Entry).PC)
	}
}

var _ = Describe("State", func() {
	DescribeTable("transitions",
		func(from stride.State, correct bool, to stride.State, retrain bool) {
			next, r := from.Next(correct)
			Expect(next).To(Equal(to))
			Expect(r).To(Equal(retrain))
		},
		Entry("Init correct", stride.StateInit, true, stride.StateSteady, false),
		Entry("Init incorrect", stride.StateInit, false, stride.StateTransient, true),
		Entry("Transient correct", stride.StateTransient, true, stride.StateSteady, false),
		Entry("Transient incorrect", stride.StateTransient, false, stride.StateNoPred, true),
		Entry("NoPred correct", stride.StateNoPred, true, stride.StateTransient, false),
		Entry("NoPred incorrect", stride.StateNoPred, false, stride.StateTransient, true),
		Entry("Steady correct", stride.StateSteady, true, stride.StateSteady, false),
		Entry("Steady incorrect", stride.StateSteady, false, stride.StateInit, false),
	)

	It("should have readable names", func() {
		Expect(stride.StateSteady.String()).To(Equal("Steady"))
		Expect(stride.State(9).String()).To(Equal("State(9)"))
	})
})

var _ = Describe("Predictor", func() {
	var p *stride.Predictor

	access := func(pc, addr uint64, time int64) (uint64, bool) {
		return p.Update(prefetch.AccessEvent{
			PC:      pc,
			Address: addr,
			Time:    time,
			Miss:    true,
		})
	}

	BeforeEach(func() {
		p = stride.NewPredictor(stride.DefaultCapacity)
	})

	It("should panic on a zero capacity", func() {
		Expect(func() { stride.NewPredictor(0) }).To(Panic())
	})

	Describe("Training", func() {
		It("should walk Init, Transient, Steady on a constant stride", func() {
			var states []stride.State
			for i, addr := range []uint64{100, 200, 300, 400} {
				access(0x400, addr, int64(i))
				e, ok := p.Entry(0x400)
				Expect(ok).To(BeTrue())
				states = append(states, e.State)
			}

			Expect(states).To(Equal([]stride.State{
				stride.StateTransient,
				stride.StateSteady,
				stride.StateSteady,
				stride.StateSteady,
			}))

			e, _ := p.Entry(0x400)
			Expect(e.Stride).To(Equal(int64(100)))
			Expect(e.PrevAddr).To(Equal(uint64(400)))
		})

		It("should learn negative strides", func() {
			for i, addr := range []uint64{500, 400, 300, 200} {
				access(0x400, addr, int64(i))
			}

			e, _ := p.Entry(0x400)
			Expect(e.State).To(Equal(stride.StateSteady))
			Expect(e.Stride).To(Equal(int64(-100)))

			p.OnFetch(0x3F0, 10)
			addr, ok := p.Predict(0x3F0)
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal(uint64(100)))
		})

		It("should ignore accesses from unknown instructions", func() {
			p.OnAccess(0x800, 0x1000, true)
			_, ok := p.Entry(0x800)
			Expect(ok).To(BeFalse())
			Expect(p.Len()).To(Equal(0))
		})

		for _, seed := range []int64{3, 17, 99} {
			seed := seed

			It("should follow the state table for random outcomes", func() {
				rng := rand.New(rand.NewSource(seed))
				const pc = 0x1000

				p.OnFetch(pc, 0)
				model := stride.StateInit

				for t := int64(1); t <= 500; t++ {
					e, _ := p.Entry(pc)
					correct := rng.Intn(2) == 0

					addr := e.PrevAddr + uint64(e.Stride)
					if !correct {
						addr += uint64(1 + rng.Intn(64))
					}

					p.OnFetch(pc, t)
					p.OnAccess(pc, addr, true)

					model, _ = model.Next(correct)
					after, _ := p.Entry(pc)
					Expect(after.State).To(Equal(model))
					Expect(after.PrevAddr).To(Equal(addr))

					if !correct && after.State != stride.StateInit {
						Expect(after.Stride).To(Equal(int64(addr - e.PrevAddr)))
					} else {
						Expect(after.Stride).To(Equal(e.Stride))
					}
				}
			})
		}
	})

	Describe("Prediction", func() {
		It("should prefetch the next stride of the following PC", func() {
			for i, addr := range []uint64{100, 200, 300, 400} {
				access(0x400, addr, int64(i))
			}

			addr, ok := access(0x3F0, 0x9000, 10)
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal(uint64(500)))
		})

		It("should not predict from the instruction itself", func() {
			for i, addr := range []uint64{100, 200, 300, 400} {
				_, ok := access(0x400, addr, int64(i))
				Expect(ok).To(BeFalse())
			}
		})

		It("should not predict when the follower is not steady", func() {
			access(0x400, 100, 0)
			access(0x3F0, 0x9000, 1)

			_, ok := p.Predict(0x3F0)
			Expect(ok).To(BeFalse())
		})

		It("should not predict when expecting a backward branch", func() {
			for i, addr := range []uint64{100, 200, 300} {
				access(0x400, addr, int64(i))
			}

			p.OnFetch(0x3F0, 10)
			p.OnFetch(0x100, 11)

			e, _ := p.Entry(0x3F0)
			Expect(e.Forward).To(BeFalse())

			_, ok := p.Predict(0x3F0)
			Expect(ok).To(BeFalse())
		})

		It("should not predict for unknown instructions", func() {
			_, ok := p.Predict(0x1234)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Forward hint", func() {
		It("should start new entries as forward", func() {
			p.OnFetch(0x200, 0)
			e, _ := p.Entry(0x200)
			Expect(e.Forward).To(BeTrue())
		})

		It("should set the previous PC by comparing with the new one", func() {
			p.OnFetch(0x100, 0)
			p.OnFetch(0x200, 1)
			p.OnFetch(0x100, 2)

			a, _ := p.Entry(0x100)
			b, _ := p.Entry(0x200)
			Expect(a.Forward).To(BeTrue())
			Expect(b.Forward).To(BeFalse())
		})

		It("should clear the hint when the same PC repeats", func() {
			p.OnFetch(0x100, 0)
			p.OnFetch(0x100, 1)

			e, _ := p.Entry(0x100)
			Expect(e.Forward).To(BeFalse())
		})

		It("should treat PC zero as a real previous instruction", func() {
			p.OnFetch(0, 0)
			p.OnFetch(0x100, 1)
			p.OnFetch(0, 2)

			zero, _ := p.Entry(0)
			next, _ := p.Entry(0x100)
			Expect(zero.Forward).To(BeTrue())
			Expect(next.Forward).To(BeFalse())
		})
	})

	Describe("Capacity", func() {
		var recorder *evictRecorder

		BeforeEach(func() {
			p = stride.NewPredictor(2)
			recorder = &evictRecorder{}
			p.AcceptHook(recorder)
		})

		It("should evict the least recently fetched PC", func() {
			p.OnFetch(0x100, 0)
			p.OnFetch(0x200, 1)
			p.OnFetch(0x100, 2)
			p.OnFetch(0x300, 3)

			Expect(recorder.pcs).To(Equal([]uint64{0x200}))
			Expect(p.Len()).To(Equal(2))
			_, ok := p.Entry(0x200)
			Expect(ok).To(BeFalse())
			Expect(p.Audit()).To(Succeed())
		})

		It("should keep both indices consistent under random fetches", func() {
			p = stride.NewPredictor(16)
			rng := rand.New(rand.NewSource(5))

			for t := int64(0); t < 2000; t++ {
				pc := uint64(rng.Intn(64)) * 4
				p.Update(prefetch.AccessEvent{
					PC:      pc,
					Address: uint64(rng.Intn(1 << 16)),
					Time:    t / 3,
				})

				Expect(p.Audit()).To(Succeed())
				Expect(p.Len()).To(BeNumerically("<=", 16))
			}
		})
	})

	It("should forget everything on reset", func() {
		access(0x400, 100, 0)
		p.Reset()

		Expect(p.Len()).To(Equal(0))
		Expect(p.Audit()).To(Succeed())
	})
})
